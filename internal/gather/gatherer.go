package gather

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/devtools"
	"github.com/nao1215/lightscan/internal/driver"
	"github.com/nao1215/lightscan/internal/model"
	"github.com/nao1215/lightscan/internal/trace"
)

// Driver is the browser surface the orchestrator and gatherers use.
// *driver.Driver implements it.
type Driver interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Detached() <-chan error

	Emulate(ctx context.Context, e config.Emulation) error
	CleanBrowserCaches(ctx context.Context) error
	ClearDataForOrigin(ctx context.Context, rawURL string) error
	ForceUpdateServiceWorkers(ctx context.Context) error

	GotoURL(ctx context.Context, rawURL string, opts driver.GotoOptions) (string, error)
	ReloadForCleanState(ctx context.Context) error

	BeginTrace(ctx context.Context, categories []string) error
	EndTrace(ctx context.Context) (*trace.Data, error)
	BeginNetworkCollect(ctx context.Context) error
	EndNetworkCollect(ctx context.Context) ([]model.NetworkRecord, error)

	EvaluateAsync(ctx context.Context, expr string, out any) error
	SendCommand(ctx context.Context, method string, params any) (json.RawMessage, error)
	On(method string, h devtools.Handler) *devtools.Subscription
}

var _ Driver = (*driver.Driver)(nil)

// Gatherer produces exactly one artifact, named after the gatherer.
type Gatherer interface {
	Name() string
}

// BeforePasser runs before the page loads. A non-nil Patch is applied to the
// pass context before the next gatherer runs.
type BeforePasser interface {
	BeforePass(ctx context.Context, pc PassContext) (*Patch, error)
}

// Passer runs once the page has loaded. Its return value is the artifact
// unless the gatherer is also an AfterPasser.
type Passer interface {
	Pass(ctx context.Context, pc PassContext) (any, error)
}

// AfterPasser runs after recording has stopped. Its return value is the
// artifact.
type AfterPasser interface {
	AfterPass(ctx context.Context, pc PassContext, load LoadData) (any, error)
}

// PassContext is what a gatherer sees of the current pass. It is passed by
// value so a gatherer cannot change what the others observe except through
// a Patch.
type PassContext struct {
	// URL is the page being audited, including earlier patches.
	URL string

	// PassName is the name of the current pass.
	PassName string

	// Pass is the current pass configuration.
	Pass config.Pass

	// Settings are the run-wide settings.
	Settings config.Settings

	// Driver talks to the browser.
	Driver Driver

	// Logger is scoped to the pass.
	Logger *slog.Logger
}

// Patch is a change a gatherer requests to the pass context.
type Patch struct {
	// URL replaces the target URL for the rest of the run when not empty.
	URL string
}

// apply merges p into pc.
func (p *Patch) apply(pc *PassContext) {
	if p == nil {
		return
	}
	if p.URL != "" {
		pc.URL = p.URL
	}
}

// LoadData is what the page load recorded.
type LoadData struct {
	// FinalURL is the main frame URL after redirects. It equals the target
	// URL when the pass did not load the page.
	FinalURL string

	// Trace is the recorded trace, nil unless the pass records one.
	Trace *trace.Data

	// NetworkRecords are the requests observed, nil unless the pass records
	// network activity.
	NetworkRecords []model.NetworkRecord
}

// nonFatalError marks a gatherer error that should not abort the run.
type nonFatalError struct {
	err error
}

func (e *nonFatalError) Error() string { return e.err.Error() }
func (e *nonFatalError) Unwrap() error { return e.err }

// NonFatal marks err so the run continues with an *model.ArtifactError in
// place of the gatherer's artifact. NonFatal(nil) returns nil.
func NonFatal(err error) error {
	if err == nil {
		return nil
	}
	return &nonFatalError{err: err}
}

// IsNonFatal reports whether err was marked with NonFatal.
func IsNonFatal(err error) bool {
	var nf *nonFatalError
	return errors.As(err, &nf)
}
