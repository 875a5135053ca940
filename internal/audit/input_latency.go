package audit

import (
	"context"
	"fmt"

	"github.com/nao1215/lightscan/internal/model"
	"github.com/nao1215/lightscan/internal/trace"
)

// EstimatedInputLatencyID identifies the estimated input latency audit.
const EstimatedInputLatencyID = "estimated-input-latency"

// Scoring curve and constants for estimated input latency, in milliseconds.
const (
	inputLatencyMedian = 100
	inputLatencyPODR   = 50

	// baseInputLatency is added for the time the browser needs to deliver
	// an input event to the page.
	baseInputLatency = 16

	inputLatencyPercentile = 0.9
)

// EstimatedInputLatency estimates how long the main thread takes to respond
// to input during the window after the page becomes meaningful.
type EstimatedInputLatency struct{}

// Meta implements Audit.
func (a *EstimatedInputLatency) Meta() Meta {
	return Meta{
		ID:                EstimatedInputLatencyID,
		Title:             "Estimated Input Latency",
		Description:       "The estimated time the page takes to respond to user input once it has become meaningful, at the 90th percentile.",
		RequiredArtifacts: []string{model.ArtifactTraces},
	}
}

// Audit implements Audit.
func (a *EstimatedInputLatency) Audit(_ context.Context, actx *Context) (*Product, error) {
	pass, data, ok := pickPass(actx.Artifacts.Traces)
	if !ok {
		return nil, fmt.Errorf("no trace recorded")
	}

	tl, err := timeline(actx, pass, data)
	if err != nil {
		return nil, err
	}
	start := tl.InputWindowStart()

	key := fmt.Sprintf("risk/%s/%g/%t", pass, start, actx.Settings.ClipToWindow)
	percentiles, err := Compute(actx.Computed, key, func() ([]trace.Percentile, error) {
		engine := trace.NewEngine(
			trace.WithClipToWindow(actx.Settings.ClipToWindow),
			trace.WithEngineLogger(actx.Logger),
		)
		return engine.RiskFromTimeline(tl, start, trace.DefaultPercentiles)
	})
	if err != nil {
		return nil, err
	}

	var p90 float64
	for _, p := range percentiles {
		if p.Percentile == inputLatencyPercentile {
			p90 = p.Time
		}
	}
	latency := p90 + baseInputLatency

	return &Product{
		Score:        logNormalScore(latency, inputLatencyMedian, inputLatencyPODR),
		RawValue:     latency,
		DisplayValue: actx.Printer.Sprintf("%.1f ms", latency),
		Details:      percentiles,
	}, nil
}
