package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docflow/internal/config"
	"docflow/internal/services"
)

// Extractor sends document bytes to the understanding service and returns the
// extracted fields. Implementations must be safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, documentID string, content []byte, mimeType string) (*Result, error)
}

// Client is the HTTP Extractor. The remote call is treated as opaque and
// retryable; rate limiting and retries belong to the pipeline step running
// it, not to the client.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient builds a Client from the extraction config section.
func NewClient(cfg config.Extraction) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type extractRequest struct {
	DocumentID string `json:"document_id"`
	MimeType   string `json:"mime_type"`
	Content    string `json:"content"`
}

// Extract posts the document as inline base64 and decodes the field list.
func (c *Client) Extract(ctx context.Context, documentID string, content []byte, mimeType string) (*Result, error) {
	if len(content) == 0 {
		return nil, services.Wrap(services.ErrValidation, "extraction", "extract", "empty document", nil)
	}

	body, err := json.Marshal(extractRequest{
		DocumentID: documentID,
		MimeType:   mimeType,
		Content:    base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "extraction", "extract", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "extraction", "extract", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "extraction", "extract", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, services.Wrap(services.ErrValidation, "extraction", "extract", detail, nil)
		}
		return nil, services.Wrap(services.ErrExternalService, "extraction", "extract", detail, nil)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "extraction", "extract", "decode response", err)
	}
	result.DocumentID = documentID
	return &result, nil
}

// Guarded wraps an Extractor with a circuit breaker. While the circuit is
// open every call fails fast with ErrCircuitOpen instead of hitting the
// remote service.
type Guarded struct {
	inner   Extractor
	breaker *Breaker
}

// NewGuarded wraps inner with breaker.
func NewGuarded(inner Extractor, breaker *Breaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) Extract(ctx context.Context, documentID string, content []byte, mimeType string) (*Result, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "extraction", "extract", "call rejected", err)
	}
	result, err := g.inner.Extract(ctx, documentID, content, mimeType)
	if err != nil {
		g.breaker.RecordFailure()
		return nil, err
	}
	g.breaker.RecordSuccess()
	return result, nil
}
