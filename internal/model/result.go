package model

import (
	"time"
)

// AuditResult is the outcome of running a single audit.
type AuditResult struct {
	// ID is the audit identifier, e.g. "is-on-https".
	ID string `json:"id"`

	// Title is a short human-readable name.
	Title string `json:"title"`

	// Description explains what the audit checks.
	Description string `json:"description,omitempty"`

	// Score is in the range 0-100. Nil when the audit errored or is
	// informative only.
	Score *float64 `json:"score"`

	// RawValue is the measured value the score was derived from.
	RawValue any `json:"raw_value,omitempty"`

	// DisplayValue is RawValue formatted for people.
	DisplayValue string `json:"display_value,omitempty"`

	// Details carries audit specific structured data.
	Details any `json:"details,omitempty"`

	// DebugString explains an error or a notable condition.
	DebugString string `json:"debug_string,omitempty"`

	// Error is true when the audit could not produce a result.
	Error bool `json:"error"`
}

// NewErrorResult returns the result recorded for an audit that could not run.
func NewErrorResult(id, title, debug string) *AuditResult {
	return &AuditResult{
		ID:          id,
		Title:       title,
		DebugString: debug,
		Error:       true,
	}
}

// Rating returns the rating for the audit's score.
func (r *AuditResult) Rating() Rating {
	if r.Error || r.Score == nil {
		return RatingError
	}
	return RatingForScore(*r.Score)
}

// AuditRef is an audit's contribution to a category.
type AuditRef struct {
	// ID is the audit identifier.
	ID string `json:"id"`

	// Weight is the audit's weight within the category.
	Weight float64 `json:"weight"`

	// Score is the audit's score, copied from its result. Nil when the audit
	// errored or did not run.
	Score *float64 `json:"score"`
}

// CategoryResult is the aggregated score of one category.
type CategoryResult struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Weight      float64    `json:"weight"`
	Audits      []AuditRef `json:"audits,omitempty"`

	// Score is the weighted mean of the audit scores. Nil for a category
	// without audits.
	Score *float64 `json:"score"`
}

// Scores is the output of the scoring stage.
type Scores struct {
	// Overall is the weighted mean of the scored categories. Nil when no
	// category was scored.
	Overall *float64 `json:"overall"`

	// Categories are in configuration order.
	Categories []CategoryResult `json:"categories"`
}

// Timing records how long each stage of a run took.
type Timing struct {
	Total  time.Duration `json:"total"`
	Gather time.Duration `json:"gather"`
	Audit  time.Duration `json:"audit"`
}

// RunResult is the complete result of auditing one URL.
type RunResult struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// RequestedURL is the URL given on the command line.
	RequestedURL string `json:"requested_url"`

	// FinalURL is the URL after redirects.
	FinalURL string `json:"final_url"`

	// FetchedAt is when the run started.
	FetchedAt time.Time `json:"fetched_at"`

	// Version is the lightscan version that produced the result.
	Version string `json:"version"`

	// UserAgent is the browser user agent observed during the run.
	UserAgent string `json:"user_agent,omitempty"`

	// Audits maps audit IDs to their results.
	Audits map[string]*AuditResult `json:"audits"`

	// AuditOrder lists audit IDs in the order they were configured.
	AuditOrder []string `json:"audit_order"`

	// Scores holds category and overall scores.
	Scores Scores `json:"scores"`

	// Timing records stage durations.
	Timing Timing `json:"timing"`

	// ArtifactsDir is where artifacts were saved, if they were.
	ArtifactsDir string `json:"artifacts_dir,omitempty"`

	// Warnings are non-fatal problems encountered during the run.
	Warnings []string `json:"warnings,omitempty"`
}

// NewRunResult creates an empty RunResult for url.
func NewRunResult(id, url string) *RunResult {
	return &RunResult{
		ID:           id,
		RequestedURL: url,
		FetchedAt:    time.Now(),
		Audits:       make(map[string]*AuditResult),
	}
}

// AddAudit records an audit result, keeping configuration order.
func (r *RunResult) AddAudit(result *AuditResult) {
	if _, ok := r.Audits[result.ID]; !ok {
		r.AuditOrder = append(r.AuditOrder, result.ID)
	}
	r.Audits[result.ID] = result
}

// OrderedAudits returns the audit results in configuration order.
func (r *RunResult) OrderedAudits() []*AuditResult {
	out := make([]*AuditResult, 0, len(r.AuditOrder))
	for _, id := range r.AuditOrder {
		if res, ok := r.Audits[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

// AddWarning records a non-fatal problem.
func (r *RunResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
