package model

import (
	"cmp"
	"slices"
	"time"
)

// Summary is a condensed, human-oriented view of a RunResult.
// It is what the text writer prints and what the history store indexes.
type Summary struct {
	// URL is the final URL of the run.
	URL string `json:"url"`

	// FetchedAt is when the run started.
	FetchedAt time.Time `json:"fetched_at"`

	// Overall is the overall score, nil when nothing was scored.
	Overall *float64 `json:"overall"`

	// === Rating counts ===

	PassCount    int `json:"pass_count"`
	AverageCount int `json:"average_count"`
	FailCount    int `json:"fail_count"`
	ErrorCount   int `json:"error_count"`

	// Categories lists category scores in configuration order.
	Categories []CategoryResult `json:"categories,omitempty"`

	// Findings lists every audit that did not pass, worst first.
	Findings []Finding `json:"findings,omitempty"`
}

// Finding is an audit that did not pass.
type Finding struct {
	// AuditID is the audit identifier.
	AuditID string `json:"audit_id"`

	// Title is the audit title.
	Title string `json:"title"`

	// Rating is the audit's rating.
	Rating Rating `json:"rating"`

	// RatingText is the human-readable rating.
	RatingText string `json:"rating_text"`

	// Score is the audit score, nil for errors.
	Score *float64 `json:"score,omitempty"`

	// DisplayValue is the formatted measurement.
	DisplayValue string `json:"display_value,omitempty"`

	// Detail is the debug string for errors and warnings.
	Detail string `json:"detail,omitempty"`
}

// NewSummary condenses a RunResult.
func NewSummary(run *RunResult) *Summary {
	s := &Summary{
		URL:        run.FinalURL,
		FetchedAt:  run.FetchedAt,
		Overall:    run.Scores.Overall,
		Categories: run.Scores.Categories,
	}
	if s.URL == "" {
		s.URL = run.RequestedURL
	}

	for _, res := range run.OrderedAudits() {
		rating := res.Rating()
		s.count(rating)
		if rating == RatingPass {
			continue
		}
		s.Findings = append(s.Findings, Finding{
			AuditID:      res.ID,
			Title:        res.Title,
			Rating:       rating,
			RatingText:   rating.String(),
			Score:        res.Score,
			DisplayValue: res.DisplayValue,
			Detail:       res.DebugString,
		})
	}
	s.sortFindings()
	return s
}

func (s *Summary) count(r Rating) {
	switch r {
	case RatingPass:
		s.PassCount++
	case RatingAverage:
		s.AverageCount++
	case RatingFail:
		s.FailCount++
	default:
		s.ErrorCount++
	}
}

// sortFindings orders findings errors first, then by ascending score. The
// sort is stable so ties keep configuration order.
func (s *Summary) sortFindings() {
	slices.SortStableFunc(s.Findings, func(a, b Finding) int {
		if c := cmp.Compare(a.Rating, b.Rating); c != 0 {
			return c
		}
		if a.Score == nil || b.Score == nil {
			return 0
		}
		return cmp.Compare(*a.Score, *b.Score)
	})
}

// TotalAudits returns the number of audits counted.
func (s *Summary) TotalAudits() int {
	return s.PassCount + s.AverageCount + s.FailCount + s.ErrorCount
}
