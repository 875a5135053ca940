package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/lightscan/internal/assets"
	"github.com/nao1215/lightscan/internal/audit"
	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/devtools"
	"github.com/nao1215/lightscan/internal/driver"
	"github.com/nao1215/lightscan/internal/gather"
	"github.com/nao1215/lightscan/internal/model"
	"github.com/nao1215/lightscan/internal/pipeline"
	"github.com/nao1215/lightscan/internal/scoring"
)

// DriverFactory builds the browser driver for a run.
type DriverFactory func(cfg *config.Config, logger *slog.Logger) (gather.Driver, error)

// History stores completed runs.
type History interface {
	SaveRun(ctx context.Context, run *model.RunResult) error
}

// Runner executes runs for one configuration. A Runner may be reused; each
// Run gets its own driver and orchestrator.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	version   string
	newDriver DriverFactory
	gatherers *gather.Registry
	audits    *audit.Registry
	history   History
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithVersion sets the version recorded in results.
func WithVersion(version string) Option {
	return func(r *Runner) {
		r.version = version
	}
}

// WithDriverFactory replaces DefaultDriverFactory.
func WithDriverFactory(f DriverFactory) Option {
	return func(r *Runner) {
		r.newDriver = f
	}
}

// WithGathererRegistry replaces gather.DefaultRegistry.
func WithGathererRegistry(reg *gather.Registry) Option {
	return func(r *Runner) {
		r.gatherers = reg
	}
}

// WithAuditRegistry replaces audit.DefaultRegistry.
func WithAuditRegistry(reg *audit.Registry) Option {
	return func(r *Runner) {
		r.audits = reg
	}
}

// WithHistory records every audited run in h.
func WithHistory(h History) Option {
	return func(r *Runner) {
		r.history = h
	}
}

// New creates a Runner for cfg.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		logger:    slog.Default(),
		version:   "(devel)",
		newDriver: DefaultDriverFactory,
		gatherers: gather.DefaultRegistry(),
		audits:    audit.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultDriverFactory connects to the browser's debugging port over a
// WebSocket, or directly to cfg.WebSocketURL when set.
func DefaultDriverFactory(cfg *config.Config, logger *slog.Logger) (gather.Driver, error) {
	endpoint := "http://" + net.JoinHostPort(cfg.Hostname, strconv.Itoa(cfg.Port))

	opts := []devtools.WebSocketOption{devtools.WithTransportLogger(logger)}
	if cfg.WebSocketURL != "" {
		opts = append(opts, devtools.WithWebSocketURL(cfg.WebSocketURL))
	}
	if cfg.SOCKSProxy != "" {
		opts = append(opts, devtools.WithSOCKSProxy(cfg.SOCKSProxy))
	}

	t, err := devtools.NewWebSocketTransport(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	conn := devtools.NewConn(t, devtools.WithLogger(logger))
	return driver.New(conn, driver.WithLogger(logger)), nil
}

// runState is the value threaded through the run pipeline.
type runState struct {
	url       string
	runCfg    *config.File
	settings  config.Settings
	artifacts *model.Artifacts
	result    *model.RunResult
	teardown  <-chan struct{}
}

// Run audits targetURL, or the configured URL when targetURL is empty.
// In audit-only mode the URL is optional and artifacts are read from the
// configured artifacts directory.
func (r *Runner) Run(ctx context.Context, targetURL string) (*model.RunResult, error) {
	if targetURL == "" {
		targetURL = r.cfg.URL
	}

	runCfg := r.cfg.RunConfig
	if runCfg == nil {
		runCfg = config.DefaultRunConfig()
	}
	runCfg.Normalize()
	if err := runCfg.Validate(r.gatherers.Has, r.audits.Has); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}

	started := time.Now()
	state := &runState{
		url:      targetURL,
		runCfg:   runCfg,
		settings: r.cfg.Settings(),
		result:   model.NewRunResult(uuid.NewString(), targetURL),
	}
	state.result.FetchedAt = started
	state.result.Version = r.version

	p := pipeline.New[*runState](pipeline.WithLogger(r.logger))
	p.AddSteps(r.steps()...)

	err := p.Execute(ctx, state)
	if state.teardown != nil {
		<-state.teardown
	}
	if err != nil {
		return nil, err
	}

	state.result.Timing.Total = time.Since(started)
	return state.result, nil
}

// steps returns the pipeline for the configured mode.
func (r *Runner) steps() []pipeline.Step[*runState] {
	switch {
	case r.cfg.AuditOnly:
		return []pipeline.Step[*runState]{
			pipeline.NewStep("load-artifacts", r.loadArtifacts),
			pipeline.NewStep("audit", r.audit),
			pipeline.NewStep("score", r.score),
			pipeline.NewStep("record-history", r.recordHistory),
		}
	case r.cfg.GatherOnly:
		return []pipeline.Step[*runState]{
			pipeline.NewStep("validate-url", r.validateURL),
			pipeline.NewStep("gather", r.gather),
			pipeline.NewStep("save-artifacts", r.saveArtifacts),
		}
	default:
		return []pipeline.Step[*runState]{
			pipeline.NewStep("validate-url", r.validateURL),
			pipeline.NewStep("gather", r.gather),
			pipeline.NewStep("save-artifacts", r.saveArtifacts),
			pipeline.NewStep("audit", r.audit),
			pipeline.NewStep("score", r.score),
			pipeline.NewStep("record-history", r.recordHistory),
		}
	}
}

func (r *Runner) validateURL(_ context.Context, s *runState) error {
	return ValidateURL(s.url)
}

func (r *Runner) gather(ctx context.Context, s *runState) error {
	d, err := r.newDriver(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create driver: %w", err)
	}

	o := gather.NewOrchestrator(d,
		gather.WithLogger(r.logger),
		gather.WithRegistry(r.gatherers),
		gather.WithTeardownTimeout(r.cfg.TeardownTimeout),
	)
	s.teardown = o.TeardownDone()

	start := time.Now()
	artifacts, err := o.Run(ctx, s.url, s.runCfg, s.settings)
	if err != nil {
		return err
	}
	s.result.Timing.Gather = time.Since(start)
	s.artifacts = artifacts
	r.describeArtifacts(s)
	return nil
}

func (r *Runner) saveArtifacts(ctx context.Context, s *runState) error {
	if !r.cfg.SaveArtifacts && !r.cfg.GatherOnly {
		return nil
	}

	dir := r.cfg.ArtifactsDir
	if dir == "" {
		dir = config.DefaultArtifactsDir(s.result.ID)
	}
	if _, err := assets.Save(ctx, dir, s.result.ID, s.artifacts); err != nil {
		return fmt.Errorf("failed to save artifacts: %w", err)
	}
	s.result.ArtifactsDir = dir
	r.logger.Info("artifacts saved", "dir", dir)
	return nil
}

func (r *Runner) loadArtifacts(ctx context.Context, s *runState) error {
	dir := r.cfg.ArtifactsDir
	if dir == "" {
		return ErrNoArtifactsDir
	}

	start := time.Now()
	artifacts, m, err := assets.Load(ctx, dir, r.gatherers.Decode)
	if err != nil {
		return fmt.Errorf("failed to load artifacts: %w", err)
	}
	s.result.Timing.Gather = time.Since(start)
	s.artifacts = artifacts
	s.result.ArtifactsDir = dir
	r.logger.Debug("artifacts loaded", "dir", dir, "gathered_by", m.RunID, "files", len(m.Files))

	r.describeArtifacts(s)
	if s.result.RequestedURL == "" {
		if u, ok := artifacts.Values[gather.URLGathererName].(*gather.URLArtifact); ok {
			s.result.RequestedURL = u.InitialURL
		}
	}
	return nil
}

// describeArtifacts copies run metadata out of the artifacts and records a
// warning for every gatherer that failed.
func (r *Runner) describeArtifacts(s *runState) {
	if u, ok := s.artifacts.Values[gather.URLGathererName].(*gather.URLArtifact); ok {
		s.result.FinalURL = u.FinalURL
	}
	if ua, ok := s.artifacts.Values[gather.UserAgentGathererName].(*gather.UserAgentArtifact); ok {
		s.result.UserAgent = ua.UserAgent
	}

	names := make([]string, 0, len(s.artifacts.Values))
	for name := range s.artifacts.Values {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if ae, ok := model.AsArtifactError(s.artifacts.Values[name]); ok {
			s.result.AddWarning(ae.Error())
		}
	}
}

func (r *Runner) audit(ctx context.Context, s *runState) error {
	audits, err := r.audits.Resolve(s.runCfg.Audits)
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := audit.Run(ctx, audits, s.artifacts,
		audit.WithLogger(r.logger),
		audit.WithSettings(s.settings),
		audit.WithConcurrency(s.settings.AuditConcurrency),
	)
	if err != nil {
		return err
	}
	for _, res := range results {
		s.result.AddAudit(res)
	}
	s.result.Timing.Audit = time.Since(start)
	return nil
}

func (r *Runner) score(_ context.Context, s *runState) error {
	s.result.Scores = scoring.ScoreAllCategories(s.runCfg.Categories, s.result.Audits)
	return nil
}

func (r *Runner) recordHistory(ctx context.Context, s *runState) error {
	if r.history == nil {
		return nil
	}
	if err := r.history.SaveRun(ctx, s.result); err != nil {
		r.logger.Warn("failed to save run to history", "error", err)
		s.result.AddWarning("run was not saved to history: " + err.Error())
	}
	return nil
}

// ValidateURL checks that raw is an absolute http, https, about or file URL.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
		}
	case "about", "file":
	default:
		return fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURL, raw)
	}
	return nil
}
