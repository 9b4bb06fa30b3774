package review

import (
	"math"
	"testing"
)

func TestScoreWorkedExample(t *testing.T) {
	// 70% average confidence, 12 hours to deadline, 10 line items, 5000 total.
	got := Score(ScoreInputs{
		AverageConfidence:  70,
		HoursUntilDeadline: 12,
		LineItems:          10,
		TotalAmount:        5000,
	})
	if math.Abs(got-12.22) > 1e-9 {
		t.Fatalf("score = %v, want 12.22", got)
	}
}

func TestScoreMonotonicity(t *testing.T) {
	base := ScoreInputs{AverageConfidence: 80, HoursUntilDeadline: 24, LineItems: 5, TotalAmount: 1000}
	ref := Score(base)

	lowConf := base
	lowConf.AverageConfidence = 50
	if Score(lowConf) <= ref {
		t.Fatal("lower confidence must raise the score")
	}

	bigger := base
	bigger.TotalAmount = 100000
	if Score(bigger) <= ref {
		t.Fatal("larger amount must raise the score")
	}

	moreItems := base
	moreItems.LineItems = 50
	if Score(moreItems) <= ref {
		t.Fatal("more line items must raise the score")
	}
}

func TestStatusLabel(t *testing.T) {
	cases := map[Status]string{
		StatusPending:   "Pending",
		StatusInReview:  "In Review",
		StatusCorrected: "Corrected",
	}
	for status, want := range cases {
		if got := status.Label(); got != want {
			t.Fatalf("Label(%s) = %q, want %q", status, got, want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus(" In_Review "); !ok || status != StatusInReview {
		t.Fatalf("ParseStatus = %s, %t", status, ok)
	}
	if _, ok := ParseStatus("archived"); ok {
		t.Fatal("unknown status accepted")
	}
}
