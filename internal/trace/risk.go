package trace

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
)

// DefaultPercentiles are the percentiles reported when none are requested.
var DefaultPercentiles = []float64{0.5, 0.75, 0.9, 0.99, 1}

// Percentile is the estimated input wait, in milliseconds, at a percentile.
type Percentile struct {
	Percentile float64 `json:"percentile"`
	Time       float64 `json:"time"`
}

// Engine computes responsiveness statistics over traces.
type Engine struct {
	clip   bool
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClipToWindow counts only the part of a slice that lies inside the
// analysis window. By default a slice overlapping the window counts whole.
func WithClipToWindow(clip bool) EngineOption {
	return func(e *Engine) {
		e.clip = clip
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RiskToResponsiveness estimates input latency percentiles for input arriving
// between startTime (milliseconds, trace clock) and the end of the trace.
// A nil percentiles slice means DefaultPercentiles.
func (e *Engine) RiskToResponsiveness(d *Data, startTime float64, percentiles []float64) ([]Percentile, error) {
	tl, err := NewTimeline(d)
	if err != nil {
		return nil, err
	}
	return e.RiskFromTimeline(tl, startTime, percentiles)
}

// RiskFromTimeline is RiskToResponsiveness over an already built timeline.
func (e *Engine) RiskFromTimeline(tl *Timeline, startTime float64, percentiles []float64) ([]Percentile, error) {
	if percentiles == nil {
		percentiles = DefaultPercentiles
	}
	if err := validatePercentiles(percentiles); err != nil {
		return nil, err
	}

	totalTime := tl.TraceEnd - startTime
	if totalTime <= 0 {
		return nil, fmt.Errorf("%w: start %.3fms is not before trace end %.3fms", ErrNoDataInWindow, startTime, tl.TraceEnd)
	}

	durations := e.windowDurations(tl, startTime)
	e.logger.Debug("computing input latency",
		"slices", len(durations),
		"window_ms", totalTime,
		"clip", e.clip,
	)
	return RiskPercentiles(durations, totalTime, percentiles), nil
}

// windowDurations returns the sorted durations of top-level slices that
// intersect (startTime, traceEnd).
func (e *Engine) windowDurations(tl *Timeline, startTime float64) []float64 {
	var durations []float64
	for _, s := range tl.slices {
		if s.End <= startTime || s.Start >= tl.TraceEnd {
			continue
		}
		if !e.clip {
			durations = append(durations, s.Duration())
			continue
		}
		start := max(s.Start, startTime)
		end := min(s.End, tl.TraceEnd)
		durations = append(durations, end-start)
	}
	slices.Sort(durations)
	return durations
}

func validatePercentiles(percentiles []float64) error {
	prev := 0.0
	for _, p := range percentiles {
		if p <= 0 || p > 1 || p < prev {
			return fmt.Errorf("%w: got %v", ErrInvalidPercentiles, percentiles)
		}
		prev = p
	}
	return nil
}

// RiskPercentiles computes the input wait at each percentile for input
// arriving uniformly over totalTime, given the ascending durations of the
// tasks that ran in that window. Time not covered by a task waits 0; input
// arriving inside a task of length d waits uniformly between 0 and d.
//
// The distribution function is piecewise linear with knots at the sorted
// durations, so one forward walk over durations answers every percentile.
// Percentiles must be ascending.
func RiskPercentiles(durations []float64, totalTime float64, percentiles []float64) []Percentile {
	out := make([]Percentile, 0, len(percentiles))
	n := len(durations)
	if n == 0 {
		for _, p := range percentiles {
			out = append(out, Percentile{Percentile: p})
		}
		return out
	}

	busy := kahanSum(durations)

	// covered is totalTime * CDF(knot): the amount of time whose wait is at
	// most knot. At knot 0 that is the idle time.
	covered := totalTime - busy
	knot := 0.0
	k := 0

	for _, p := range percentiles {
		target := p * totalTime

		for k < n {
			next := covered + (durations[k]-knot)*float64(n-k)
			if next >= target {
				break
			}
			covered = next
			knot = durations[k]
			k++
		}

		var t float64
		if k == n {
			t = knot
		} else {
			t = knot + (target-covered)/float64(n-k)
			t = math.Min(t, durations[k])
		}
		out = append(out, Percentile{Percentile: p, Time: math.Max(t, 0)})
	}
	return out
}

// kahanSum adds values with compensated summation.
func kahanSum(values []float64) float64 {
	var sum, c float64
	for _, v := range values {
		y := v - c
		t := sum + y
		c = (t - sum) - y
		sum = t
	}
	return sum
}
