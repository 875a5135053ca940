package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/devtools"
	"github.com/nao1215/lightscan/internal/driver"
	"github.com/nao1215/lightscan/internal/model"
)

// Orchestrator runs the gather phases for one run. An Orchestrator is used
// once.
type Orchestrator struct {
	driver          Driver
	registry        *Registry
	logger          *slog.Logger
	teardownTimeout time.Duration

	mu           sync.Mutex
	started      bool
	teardownDone chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRegistry sets the gatherer registry. Defaults to DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithTeardownTimeout bounds the background teardown.
func WithTeardownTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.teardownTimeout = d
		}
	}
}

// NewOrchestrator creates an Orchestrator that drives d.
func NewOrchestrator(d Driver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		driver:          d,
		teardownTimeout: config.DefaultTeardownTimeout,
		teardownDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	return o
}

// TeardownDone is closed once the background teardown has finished.
func (o *Orchestrator) TeardownDone() <-chan struct{} {
	return o.teardownDone
}

// instance is one gatherer within one pass.
type instance struct {
	name     string
	gatherer Gatherer

	artifact any
	// failed is set when the gatherer failed non-fatally. Its remaining
	// phases are skipped.
	failed *model.ArtifactError
}

// plannedPass is a pass with its gatherers instantiated.
type plannedPass struct {
	cfg       config.Pass
	instances []*instance

	// Filled in while the pass runs.
	load LoadData
}

// Run gathers artifacts from targetURL using the passes in runCfg. The
// returned artifacts are complete; teardown continues in the background
// until TeardownDone is closed.
func (o *Orchestrator) Run(ctx context.Context, targetURL string, runCfg *config.File, settings config.Settings) (*model.Artifacts, error) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	o.started = true
	o.mu.Unlock()

	passes, err := o.plan(runCfg.Passes)
	if err != nil {
		close(o.teardownDone)
		return nil, err
	}

	if err := o.driver.Connect(ctx); err != nil {
		close(o.teardownDone)
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go o.watchDetach(runCtx, cancel)

	if err := o.gather(runCtx, targetURL, passes, settings); err != nil {
		if cause := context.Cause(runCtx); errors.Is(cause, devtools.ErrDetached) {
			err = fmt.Errorf("%w (while handling: %v)", cause, err)
		}
		o.teardown(ctx, false)
		return nil, err
	}

	o.teardown(ctx, !settings.SkipCleanReload)
	return collate(passes)
}

// watchDetach cancels the run when the target goes away.
func (o *Orchestrator) watchDetach(ctx context.Context, cancel context.CancelCauseFunc) {
	select {
	case err := <-o.driver.Detached():
		if !errors.Is(err, devtools.ErrDetached) {
			err = fmt.Errorf("%w: %w", devtools.ErrDetached, err)
		}
		o.logger.Error("browser target detached", "error", err)
		cancel(err)
	case <-ctx.Done():
	}
}

func (o *Orchestrator) plan(passes []config.Pass) ([]*plannedPass, error) {
	out := make([]*plannedPass, 0, len(passes))
	for _, p := range passes {
		pp := &plannedPass{cfg: p}
		for _, name := range p.Gatherers {
			g, err := o.registry.New(name)
			if err != nil {
				return nil, err
			}
			pp.instances = append(pp.instances, &instance{name: name, gatherer: g})
		}
		out = append(out, pp)
	}
	return out, nil
}

func (o *Orchestrator) gather(ctx context.Context, targetURL string, passes []*plannedPass, settings config.Settings) error {
	if err := o.setup(ctx, targetURL, settings); err != nil {
		return err
	}

	runURL := targetURL
	for _, pp := range passes {
		pc := PassContext{
			URL:      runURL,
			PassName: pp.cfg.PassName,
			Pass:     pp.cfg,
			Settings: settings,
			Driver:   o.driver,
			Logger:   o.logger.With("pass", pp.cfg.PassName),
		}

		pc, err := o.runPass(ctx, pc, pp)
		if err != nil {
			return err
		}
		// URL patches carry into later passes.
		runURL = pc.URL
	}
	return nil
}

// setup prepares the browser. Any failure is fatal.
func (o *Orchestrator) setup(ctx context.Context, targetURL string, settings config.Settings) error {
	o.logger.Debug("setting up browser",
		"emulation", !settings.DisableDeviceEmulation,
		"storage_reset", !settings.DisableStorageReset,
	)

	if !settings.DisableDeviceEmulation {
		if err := o.driver.Emulate(ctx, settings.Emulation); err != nil {
			return fmt.Errorf("%w: %w", ErrSetupFailed, err)
		}
	}
	if !settings.DisableStorageReset {
		if err := o.driver.CleanBrowserCaches(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrSetupFailed, err)
		}
		if err := o.driver.ClearDataForOrigin(ctx, targetURL); err != nil {
			return fmt.Errorf("%w: %w", ErrSetupFailed, err)
		}
	}
	if err := o.driver.ForceUpdateServiceWorkers(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	return nil
}

// runPass runs the phases of one pass and returns the context as patched by
// its gatherers.
func (o *Orchestrator) runPass(ctx context.Context, pc PassContext, pp *plannedPass) (PassContext, error) {
	pc.Logger.Info("starting pass", "gatherers", len(pp.instances), "load_page", pp.cfg.ShouldLoadPage())

	// BEFORE_PASS
	for _, in := range pp.instances {
		bp, ok := in.gatherer.(BeforePasser)
		if !ok || in.failed != nil {
			continue
		}
		patch, err := bp.BeforePass(ctx, pc)
		if err := o.check(pc, in, "beforePass", err); err != nil {
			return pc, err
		}
		if patch != nil {
			pc.Logger.Debug("applying patch", "gatherer", in.name, "url", patch.URL)
			patch.apply(&pc)
		}
	}

	// PAGE_LOAD
	pp.load = LoadData{FinalURL: pc.URL}
	recording := false
	if pp.cfg.ShouldLoadPage() {
		finalURL, err := o.loadPage(ctx, pc)
		if err != nil {
			return pc, err
		}
		pp.load.FinalURL = finalURL
		recording = true
	}

	// PASS
	for _, in := range pp.instances {
		p, ok := in.gatherer.(Passer)
		if !ok || in.failed != nil {
			continue
		}
		artifact, err := p.Pass(ctx, pc)
		if err := o.check(pc, in, "pass", err); err != nil {
			return pc, err
		}
		if in.failed == nil {
			in.artifact = artifact
		}
	}

	// AFTER_PASS
	if recording {
		if err := o.stopRecording(ctx, pc, pp); err != nil {
			return pc, err
		}
	}
	for _, in := range pp.instances {
		ap, ok := in.gatherer.(AfterPasser)
		if !ok || in.failed != nil {
			continue
		}
		artifact, err := ap.AfterPass(ctx, pc, pp.load)
		if err := o.check(pc, in, "afterPass", err); err != nil {
			return pc, err
		}
		if in.failed == nil {
			in.artifact = artifact
		}
	}

	pc.Logger.Info("pass complete", "final_url", pp.load.FinalURL)
	return pc, nil
}

// check classifies a gatherer error. A non-fatal error marks the instance
// failed and returns nil.
func (o *Orchestrator) check(pc PassContext, in *instance, phase string, err error) error {
	if err == nil {
		return nil
	}
	if IsNonFatal(err) {
		pc.Logger.Warn("gatherer failed, continuing",
			"gatherer", in.name,
			"phase", phase,
			"error", err,
		)
		in.failed = model.NewArtifactError(in.name, err)
		return nil
	}
	pc.Logger.Error("gatherer failed",
		"gatherer", in.name,
		"phase", phase,
		"error", err,
	)
	return fmt.Errorf("%w: %s during %s in pass %q: %w", ErrGathererFailed, in.name, phase, pc.PassName, err)
}

// loadPage settles on about:blank, starts recording and navigates to the
// target.
func (o *Orchestrator) loadPage(ctx context.Context, pc PassContext) (string, error) {
	if _, err := o.driver.GotoURL(ctx, driver.BlankURL, driver.GotoOptions{}); err != nil {
		return "", fmt.Errorf("failed to load blank page: %w", err)
	}
	if err := sleep(ctx, pc.Settings.BlankDuration); err != nil {
		return "", err
	}

	if pc.Pass.RecordNetwork {
		if err := o.driver.BeginNetworkCollect(ctx); err != nil {
			return "", err
		}
	}
	if pc.Pass.RecordTrace {
		if err := o.driver.BeginTrace(ctx, pc.Pass.Categories()); err != nil {
			return "", err
		}
	}

	pc.Logger.Info("loading page", "url", pc.URL)
	finalURL, err := o.driver.GotoURL(ctx, pc.URL, driver.GotoOptions{
		WaitForLoad:    true,
		MaxWait:        pc.Settings.MaxWaitForLoad,
		PauseAfterLoad: pc.Pass.PauseAfterLoad,
	})
	if err != nil {
		return "", err
	}
	return finalURL, nil
}

func (o *Orchestrator) stopRecording(ctx context.Context, pc PassContext, pp *plannedPass) error {
	if pc.Pass.RecordTrace {
		data, err := o.driver.EndTrace(ctx)
		if err != nil {
			return err
		}
		pp.load.Trace = data
		pc.Logger.Debug("trace recorded", "events", len(data.TraceEvents))
	}
	if pc.Pass.RecordNetwork {
		records, err := o.driver.EndNetworkCollect(ctx)
		if err != nil {
			return err
		}
		pp.load.NetworkRecords = records
		pc.Logger.Debug("network recorded", "requests", len(records))
	}
	return nil
}

// teardown resets and disconnects the browser in the background. Errors are
// logged only.
func (o *Orchestrator) teardown(ctx context.Context, reload bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.teardownTimeout)
	go func() {
		defer close(o.teardownDone)
		defer cancel()

		if reload {
			if err := o.driver.ReloadForCleanState(ctx); err != nil {
				o.logger.Warn("failed to reset page", "error", err)
			}
		}
		if err := o.driver.Disconnect(); err != nil {
			o.logger.Warn("failed to disconnect from browser", "error", err)
		}
		o.logger.Debug("teardown complete")
	}()
}

// collate merges every pass into one artifact bag.
func collate(passes []*plannedPass) (*model.Artifacts, error) {
	artifacts := model.NewArtifacts()
	for _, pp := range passes {
		if pp.load.Trace != nil {
			artifacts.Traces[pp.cfg.PassName] = pp.load.Trace
		}
		if pp.load.NetworkRecords != nil {
			artifacts.NetworkRecords[pp.cfg.PassName] = pp.load.NetworkRecords
		}
		for _, in := range pp.instances {
			if _, dup := artifacts.Values[in.name]; dup {
				return nil, fmt.Errorf("%w: %q", config.ErrDuplicateArtifact, in.name)
			}
			if in.failed != nil {
				artifacts.Values[in.name] = in.failed
				continue
			}
			artifacts.Values[in.name] = in.artifact
		}
	}
	return artifacts, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
