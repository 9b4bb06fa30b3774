package review

// Priority weights. Each term is pre-normalized so it contributes at most its
// weight times the stated maximum.
const (
	weightConfidence = 0.4
	weightDeadline   = 0.3
	weightLineItems  = 0.2
	weightAmount     = 0.1
)

// ScoreInputs are the signals the priority score is computed from, captured
// once when the queue item is created. The score is frozen thereafter.
type ScoreInputs struct {
	// AverageConfidence is the mean field confidence in percent [0, 100].
	AverageConfidence float64
	// HoursUntilDeadline is the time remaining to the SLA deadline.
	HoursUntilDeadline float64
	// LineItems is the document's line item count.
	LineItems int
	// TotalAmount is the document's monetary total.
	TotalAmount float64
}

// Score computes the review priority. Lower confidence, nearer deadlines,
// more line items, and larger amounts all raise the score:
//
//	(100 - confidence) * 0.4 + (hours/24) * 0.3 + (items/100) * 0.2 + (amount/10000) * 0.1
func Score(in ScoreInputs) float64 {
	return (100-in.AverageConfidence)*weightConfidence +
		in.HoursUntilDeadline/24*weightDeadline +
		float64(in.LineItems)/100*weightLineItems +
		in.TotalAmount/10000*weightAmount
}
