package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mafredri/cdp/protocol/emulation"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	cdpruntime "github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/protocol/serviceworker"
	"github.com/mafredri/cdp/protocol/storage"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/devtools"
)

// BlankURL is the page used to reset state between loads.
const BlankURL = "about:blank"

// allStorageTypes are cleared for the audited origin before a run.
var allStorageTypes = strings.Join([]string{
	"appcache",
	"cookies",
	"file_systems",
	"indexeddb",
	"local_storage",
	"shader_cache",
	"websql",
	"service_workers",
	"cache_storage",
}, ",")

// Driver performs page operations over a devtools connection.
type Driver struct {
	conn   *devtools.Conn
	logger *slog.Logger

	mu      sync.Mutex
	tracer  *tracer
	network *networkRecorder
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// New creates a Driver on conn.
func New(conn *devtools.Conn, opts ...Option) *Driver {
	d := &Driver{
		conn:   conn,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connect establishes the underlying connection.
func (d *Driver) Connect(ctx context.Context) error {
	return d.conn.Connect(ctx)
}

// Disconnect closes the underlying connection.
func (d *Driver) Disconnect() error {
	return d.conn.Disconnect()
}

// Detached delivers an error when the target goes away unexpectedly.
func (d *Driver) Detached() <-chan error {
	return d.conn.Detached()
}

// SendCommand sends a raw protocol command.
func (d *Driver) SendCommand(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return d.conn.SendCommand(ctx, method, params)
}

// On subscribes to a protocol event.
func (d *Driver) On(method string, h devtools.Handler) *devtools.Subscription {
	return d.conn.On(method, h)
}

// Once subscribes to the next occurrence of a protocol event.
func (d *Driver) Once(method string, h devtools.Handler) *devtools.Subscription {
	return d.conn.Once(method, h)
}

func (d *Driver) send(ctx context.Context, method string, params any) error {
	_, err := d.conn.SendCommand(ctx, method, params)
	return err
}

// Emulate applies device metrics, user agent, touch and throttling.
func (d *Driver) Emulate(ctx context.Context, e config.Emulation) error {
	d.logger.Debug("applying emulation",
		"width", e.Width,
		"height", e.Height,
		"mobile", e.Mobile,
		"cpu_slowdown", e.CPUSlowdown,
	)

	metrics := emulation.NewSetDeviceMetricsOverrideArgs(e.Width, e.Height, e.DeviceScaleFactor, e.Mobile)
	if err := d.send(ctx, "Emulation.setDeviceMetricsOverride", metrics); err != nil {
		return fmt.Errorf("failed to set device metrics: %w", err)
	}

	if e.UserAgent != "" {
		if err := d.send(ctx, "Emulation.setUserAgentOverride", emulation.NewSetUserAgentOverrideArgs(e.UserAgent)); err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	if err := d.send(ctx, "Emulation.setTouchEmulationEnabled", emulation.NewSetTouchEmulationEnabledArgs(e.Touch)); err != nil {
		return fmt.Errorf("failed to set touch emulation: %w", err)
	}

	if e.CPUThrottled() {
		if err := d.send(ctx, "Emulation.setCPUThrottlingRate", emulation.NewSetCPUThrottlingRateArgs(e.CPUSlowdown)); err != nil {
			return fmt.Errorf("failed to throttle cpu: %w", err)
		}
	}

	if e.NetworkThrottled() {
		// Throughput is in bytes per second.
		args := network.NewEmulateNetworkConditionsArgs(false, e.LatencyMs, e.DownloadKbps*1024/8, e.UploadKbps*1024/8)
		if err := d.send(ctx, "Network.enable", nil); err != nil {
			return fmt.Errorf("failed to enable network domain: %w", err)
		}
		if err := d.send(ctx, "Network.emulateNetworkConditions", args); err != nil {
			return fmt.Errorf("failed to throttle network: %w", err)
		}
	}
	return nil
}

// CleanBrowserCaches clears the HTTP cache and disables it for the session.
func (d *Driver) CleanBrowserCaches(ctx context.Context) error {
	if err := d.send(ctx, "Network.enable", nil); err != nil {
		return fmt.Errorf("failed to enable network domain: %w", err)
	}
	if err := d.send(ctx, "Network.clearBrowserCache", nil); err != nil {
		return fmt.Errorf("failed to clear browser cache: %w", err)
	}
	if err := d.send(ctx, "Network.setCacheDisabled", network.NewSetCacheDisabledArgs(true)); err != nil {
		return fmt.Errorf("failed to disable cache: %w", err)
	}
	return nil
}

// ClearDataForOrigin clears every storage type for the origin of rawURL.
// URLs without an origin, such as about:blank, have no storage to clear.
func (d *Driver) ClearDataForOrigin(ctx context.Context, rawURL string) error {
	origin, err := Origin(rawURL)
	if errors.Is(err, ErrNoOrigin) {
		d.logger.Debug("skipping storage reset", "url", rawURL)
		return nil
	}
	if err != nil {
		return err
	}
	d.logger.Debug("clearing origin storage", "origin", origin)
	if err := d.send(ctx, "Storage.clearDataForOrigin", storage.NewClearDataForOriginArgs(origin, allStorageTypes)); err != nil {
		return fmt.Errorf("failed to clear data for %s: %w", origin, err)
	}
	return nil
}

// ForceUpdateServiceWorkers makes installed service workers update on the
// next page load instead of serving a stale version.
func (d *Driver) ForceUpdateServiceWorkers(ctx context.Context) error {
	if err := d.send(ctx, "ServiceWorker.enable", nil); err != nil {
		return fmt.Errorf("failed to enable service worker domain: %w", err)
	}
	args := serviceworker.NewSetForceUpdateOnPageLoadArgs(true)
	if err := d.send(ctx, "ServiceWorker.setForceUpdateOnPageLoad", args); err != nil {
		return fmt.Errorf("failed to force service worker update: %w", err)
	}
	return nil
}

// GotoOptions control GotoURL.
type GotoOptions struct {
	// WaitForLoad waits for the load event before returning.
	WaitForLoad bool

	// MaxWait bounds the wait for the load event. Zero waits for ctx only.
	MaxWait time.Duration

	// PauseAfterLoad sleeps after the load event.
	PauseAfterLoad time.Duration
}

// GotoURL navigates to rawURL and returns the main frame URL after
// redirects.
func (d *Driver) GotoURL(ctx context.Context, rawURL string, opts GotoOptions) (string, error) {
	var mu sync.Mutex
	finalURL := rawURL

	navSub := d.conn.On("Page.frameNavigated", func(params json.RawMessage) {
		var ev page.FrameNavigatedReply
		if err := json.Unmarshal(params, &ev); err != nil || (ev.Frame.ParentID != nil && *ev.Frame.ParentID != "") {
			return
		}
		u := ev.Frame.URL
		if ev.Frame.URLFragment != nil {
			u += *ev.Frame.URLFragment
		}
		mu.Lock()
		finalURL = u
		mu.Unlock()
	})
	defer navSub.Cancel()

	loaded := make(chan struct{})
	loadSub := d.conn.Once("Page.loadEventFired", func(json.RawMessage) {
		close(loaded)
	})
	defer loadSub.Cancel()

	if err := d.send(ctx, "Page.enable", nil); err != nil {
		return "", fmt.Errorf("failed to enable page domain: %w", err)
	}

	d.logger.Debug("navigating", "url", rawURL, "wait_for_load", opts.WaitForLoad, "max_wait", opts.MaxWait)
	raw, err := d.conn.SendCommand(ctx, "Page.navigate", page.NewNavigateArgs(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", rawURL, err)
	}
	var reply page.NavigateReply
	if err := json.Unmarshal(raw, &reply); err == nil && reply.ErrorText != nil && *reply.ErrorText != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrNavigationFailed, rawURL, *reply.ErrorText)
	}

	if opts.WaitForLoad {
		var timeout <-chan time.Time
		if opts.MaxWait > 0 {
			timer := time.NewTimer(opts.MaxWait)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case <-loaded:
		case <-timeout:
			return "", fmt.Errorf("%w: %s did not load within %s", ErrPageLoadTimeout, rawURL, opts.MaxWait)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if opts.PauseAfterLoad > 0 {
		select {
		case <-time.After(opts.PauseAfterLoad):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return finalURL, nil
}

// ReloadForCleanState navigates to about:blank so that the audited page
// stops running.
func (d *Driver) ReloadForCleanState(ctx context.Context) error {
	if err := d.send(ctx, "Page.navigate", page.NewNavigateArgs(BlankURL)); err != nil {
		return fmt.Errorf("failed to reset page: %w", err)
	}
	return nil
}

// EvaluateAsync evaluates expr in the page, awaiting a returned promise, and
// decodes the result into out. out may be nil. A thrown exception is
// returned as *devtools.ExceptionError.
func (d *Driver) EvaluateAsync(ctx context.Context, expr string, out any) error {
	args := cdpruntime.NewEvaluateArgs(expr).
		SetAwaitPromise(true).
		SetReturnByValue(true)

	raw, err := d.conn.SendCommand(ctx, "Runtime.evaluate", args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	var reply cdpruntime.EvaluateReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	if len(reply.Result.Value) == 0 {
		return fmt.Errorf("evaluation returned no value (type %s)", reply.Result.Type)
	}
	if err := json.Unmarshal(reply.Result.Value, out); err != nil {
		return fmt.Errorf("failed to decode evaluation value: %w", err)
	}
	return nil
}

// Origin returns the scheme://host[:port] origin of rawURL. Every file: URL
// shares the origin "file://". URLs without a host, such as about:blank,
// return ErrNoOrigin.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme == "file" {
		return "file://", nil
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrNoOrigin, rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
