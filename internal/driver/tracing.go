package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mafredri/cdp/protocol/tracing"

	"github.com/nao1215/lightscan/internal/devtools"
	"github.com/nao1215/lightscan/internal/trace"
)

// tracer accumulates Tracing.dataCollected chunks until tracingComplete.
type tracer struct {
	mu     sync.Mutex
	events []trace.Event
	done   chan struct{}
	subs   []*devtools.Subscription
}

// BeginTrace starts recording a trace with the given categories.
func (d *Driver) BeginTrace(ctx context.Context, categories []string) error {
	d.mu.Lock()
	if d.tracer != nil {
		d.mu.Unlock()
		return ErrTraceInProgress
	}
	t := &tracer{done: make(chan struct{})}
	d.tracer = t
	d.mu.Unlock()

	t.subs = append(t.subs,
		d.conn.On("Tracing.dataCollected", func(params json.RawMessage) {
			var chunk struct {
				Value []trace.Event `json:"value"`
			}
			if err := json.Unmarshal(params, &chunk); err != nil {
				d.logger.Warn("dropping malformed trace chunk", "error", err)
				return
			}
			t.mu.Lock()
			t.events = append(t.events, chunk.Value...)
			t.mu.Unlock()
		}),
		d.conn.Once("Tracing.tracingComplete", func(json.RawMessage) {
			close(t.done)
		}),
	)

	args := tracing.NewStartArgs().
		SetCategories(strings.Join(categories, ",")).
		SetTransferMode("ReportEvents")
	if err := d.send(ctx, "Tracing.start", args); err != nil {
		d.stopTracer()
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	d.logger.Debug("tracing started", "categories", len(categories))
	return nil
}

// EndTrace stops recording and returns the collected trace.
func (d *Driver) EndTrace(ctx context.Context) (*trace.Data, error) {
	d.mu.Lock()
	t := d.tracer
	d.mu.Unlock()
	if t == nil {
		return nil, ErrTraceNotStarted
	}
	defer d.stopTracer()

	if err := d.send(ctx, "Tracing.end", nil); err != nil {
		return nil, fmt.Errorf("failed to end tracing: %w", err)
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for trace data: %w", ctx.Err())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	d.logger.Debug("tracing complete", "events", len(t.events))
	return trace.FromEvents(t.events), nil
}

func (d *Driver) stopTracer() {
	d.mu.Lock()
	t := d.tracer
	d.tracer = nil
	d.mu.Unlock()
	if t == nil {
		return
	}
	for _, s := range t.subs {
		s.Cancel()
	}
}
