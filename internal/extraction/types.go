package extraction

import (
	"path/filepath"
	"strings"

	"docflow/internal/services"
)

// Field is one extracted value with its model-assessed confidence, expressed
// as a percentage in [0, 100].
type Field struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of one extraction call.
type Result struct {
	DocumentID    string  `json:"document_id"`
	Fields        []Field `json:"fields"`
	LineItemCount int     `json:"line_item_count"`
	TotalAmount   float64 `json:"total_amount"`
}

// AverageConfidence returns the mean field confidence in percent, or zero for
// a result with no fields.
func (r *Result) AverageConfidence() float64 {
	if len(r.Fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range r.Fields {
		sum += f.Confidence
	}
	return sum / float64(len(r.Fields))
}

var supportedMimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".bmp":  "image/bmp",
}

// MimeTypeForPath maps a file extension to its MIME type. Unsupported
// extensions come back as a validation error so callers do not retry them.
func MimeTypeForPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := supportedMimeTypes[ext]; ok {
		return mime, nil
	}
	return "", services.Wrap(services.ErrValidation, "extraction", "mime type",
		"unsupported file type "+ext, nil)
}
