package audit

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/model"
	"github.com/nao1215/lightscan/internal/pipeline"
)

// Meta describes an audit.
type Meta struct {
	ID          string
	Title       string
	Description string

	// RequiredArtifacts must be present and free of gatherer errors for the
	// audit to run.
	RequiredArtifacts []string
}

// Product is what an audit computes. Score is on the 0-100 scale.
type Product struct {
	Score        float64
	RawValue     any
	DisplayValue string
	Details      any
	DebugString  string
}

// Context is what an audit can read.
type Context struct {
	// Artifacts are shared by all audits and must not be modified.
	Artifacts *model.Artifacts

	// Computed memoizes derived data shared between audits.
	Computed *ComputedCache

	// Settings are the run settings.
	Settings config.Settings

	// Logger is scoped to the audit.
	Logger *slog.Logger

	// Printer formats numbers for display values.
	Printer *message.Printer
}

// Audit computes one result from artifacts.
type Audit interface {
	Meta() Meta
	Audit(ctx context.Context, actx *Context) (*Product, error)
}

// Factory creates an audit.
type Factory func() Audit

// Registry maps audit IDs to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for id.
func (r *Registry) Register(id string, f Factory) {
	r.factories[id] = f
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.factories[id]
	return ok
}

// IDs returns the registered IDs in sorted order.
func (r *Registry) IDs() []string {
	return slices.Sorted(maps.Keys(r.factories))
}

// Resolve instantiates the audits named by ids, in order.
func (r *Registry) Resolve(ids []string) ([]Audit, error) {
	audits := make([]Audit, 0, len(ids))
	for _, id := range ids {
		f, ok := r.factories[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", config.ErrUnknownAudit, id)
		}
		audits = append(audits, f())
	}
	return audits, nil
}

// DefaultRegistry returns a registry holding the built-in audits.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(IsOnHTTPSID, func() Audit { return &IsOnHTTPS{} })
	r.Register(EstimatedInputLatencyID, func() Audit { return &EstimatedInputLatency{} })
	r.Register(TotalByteWeightID, func() Audit { return &TotalByteWeight{} })
	r.Register(ContentWidthID, func() Audit { return &ContentWidth{} })
	r.Register(ServiceWorkerID, func() Audit { return &ServiceWorker{} })
	return r
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger      *slog.Logger
	settings    config.Settings
	concurrency int
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runOptions) {
		o.logger = logger
	}
}

// WithSettings sets the run settings audits see.
func WithSettings(s config.Settings) Option {
	return func(o *runOptions) {
		o.settings = s
	}
}

// WithConcurrency bounds how many audits run at once.
func WithConcurrency(n int) Option {
	return func(o *runOptions) {
		o.concurrency = n
	}
}

// Run evaluates audits against artifacts and returns one result per audit
// in the same order. A failing audit yields an error result; Run itself
// fails only when ctx is cancelled.
func Run(ctx context.Context, audits []Audit, artifacts *model.Artifacts, opts ...Option) ([]*model.AuditResult, error) {
	o := &runOptions{
		logger:      slog.Default(),
		concurrency: config.DefaultAuditConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	if artifacts == nil {
		artifacts = model.NewArtifacts()
	}

	computed := NewComputedCache()
	bp := pipeline.NewBatchProcessor(
		pipeline.WithConcurrency(o.concurrency),
		pipeline.WithBatchLogger(o.logger),
	)

	return pipeline.Process(ctx, bp, audits, func(ctx context.Context, _ int, a Audit) *model.AuditResult {
		meta := a.Meta()
		actx := &Context{
			Artifacts: artifacts,
			Computed:  computed,
			Settings:  o.settings,
			Logger:    o.logger.With("audit", meta.ID),
			Printer:   message.NewPrinter(language.English),
		}
		return runOne(ctx, a, meta, actx)
	})
}

// runOne runs a single audit in isolation.
func runOne(ctx context.Context, a Audit, meta Meta, actx *Context) (res *model.AuditResult) {
	defer func() {
		if r := recover(); r != nil {
			actx.Logger.Error("audit panicked", "panic", r)
			res = model.NewErrorResult(meta.ID, meta.Title, fmt.Sprintf("Audit error: %v", r))
		}
	}()

	if debug, ok := checkArtifacts(actx.Artifacts, meta.RequiredArtifacts); !ok {
		actx.Logger.Warn("audit skipped", "reason", debug)
		return model.NewErrorResult(meta.ID, meta.Title, debug)
	}

	p, err := a.Audit(ctx, actx)
	if err != nil {
		actx.Logger.Warn("audit failed", "error", err)
		return model.NewErrorResult(meta.ID, meta.Title, "Audit error: "+err.Error())
	}
	if p == nil {
		return model.NewErrorResult(meta.ID, meta.Title, "Audit error: no result")
	}

	score := clampScore(p.Score)
	actx.Logger.Debug("audit complete", "score", score)
	return &model.AuditResult{
		ID:           meta.ID,
		Title:        meta.Title,
		Description:  meta.Description,
		Score:        &score,
		RawValue:     p.RawValue,
		DisplayValue: p.DisplayValue,
		Details:      p.Details,
		DebugString:  p.DebugString,
	}
}

// checkArtifacts returns the debug string for the first required artifact
// that is missing or failed.
func checkArtifacts(artifacts *model.Artifacts, required []string) (string, bool) {
	for _, name := range required {
		if !artifacts.Has(name) {
			return fmt.Sprintf("Required %s gatherer did not run.", name), false
		}
		v, _ := artifacts.Get(name)
		if ae, ok := model.AsArtifactError(v); ok {
			return fmt.Sprintf("Required %s gatherer encountered an error: %s", name, ae.Message), false
		}
	}
	return "", true
}

func clampScore(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return math.Round(min(max(s, 0), 100))
}

// artifact returns the artifact name as *T.
func artifact[T any](actx *Context, name string) (*T, error) {
	v, _ := actx.Artifacts.Get(name)
	t, ok := v.(*T)
	if !ok || t == nil {
		return nil, fmt.Errorf("%s artifact has unexpected type %T", name, v)
	}
	return t, nil
}

// binaryScore maps a pass/fail check to 100 or 0.
func binaryScore(pass bool) float64 {
	if pass {
		return 100
	}
	return 0
}
