package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mafredri/cdp/protocol/serviceworker"
)

// Names of the built-in gatherers.
const (
	URLGathererName                = "URL"
	UserAgentGathererName          = "UserAgent"
	ViewportDimensionsGathererName = "ViewportDimensions"
	ServiceWorkerGathererName      = "ServiceWorker"
)

// URLArtifact is the URL gatherer's artifact.
type URLArtifact struct {
	// InitialURL is the URL the pass started from.
	InitialURL string `json:"initial_url"`

	// FinalURL is the main frame URL after redirects.
	FinalURL string `json:"final_url"`
}

// URLGatherer records the requested and final URL.
type URLGatherer struct {
	initialURL string
}

// Name implements Gatherer.
func (g *URLGatherer) Name() string { return URLGathererName }

// BeforePass implements BeforePasser.
func (g *URLGatherer) BeforePass(_ context.Context, pc PassContext) (*Patch, error) {
	g.initialURL = pc.URL
	return nil, nil
}

// AfterPass implements AfterPasser.
func (g *URLGatherer) AfterPass(_ context.Context, _ PassContext, load LoadData) (any, error) {
	return &URLArtifact{InitialURL: g.initialURL, FinalURL: load.FinalURL}, nil
}

// UserAgentArtifact is the UserAgent gatherer's artifact.
type UserAgentArtifact struct {
	UserAgent string `json:"user_agent"`
}

// UserAgentGatherer reads navigator.userAgent.
type UserAgentGatherer struct{}

// Name implements Gatherer.
func (g *UserAgentGatherer) Name() string { return UserAgentGathererName }

// AfterPass implements AfterPasser.
func (g *UserAgentGatherer) AfterPass(ctx context.Context, pc PassContext, _ LoadData) (any, error) {
	var ua string
	if err := pc.Driver.EvaluateAsync(ctx, "navigator.userAgent", &ua); err != nil {
		return nil, NonFatal(fmt.Errorf("failed to read user agent: %w", err))
	}
	return &UserAgentArtifact{UserAgent: ua}, nil
}

// ViewportDimensions is the ViewportDimensions gatherer's artifact.
type ViewportDimensions struct {
	InnerWidth       int     `json:"inner_width"`
	InnerHeight      int     `json:"inner_height"`
	OuterWidth       int     `json:"outer_width"`
	OuterHeight      int     `json:"outer_height"`
	ScrollWidth      int     `json:"scroll_width"`
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
}

const viewportExpression = `(function() {
  return {
    inner_width: window.innerWidth,
    inner_height: window.innerHeight,
    outer_width: window.outerWidth,
    outer_height: window.outerHeight,
    scroll_width: document.documentElement ? document.documentElement.scrollWidth : 0,
    device_pixel_ratio: window.devicePixelRatio
  };
})()`

// ViewportDimensionsGatherer measures the window and the document.
type ViewportDimensionsGatherer struct{}

// Name implements Gatherer.
func (g *ViewportDimensionsGatherer) Name() string { return ViewportDimensionsGathererName }

// AfterPass implements AfterPasser.
func (g *ViewportDimensionsGatherer) AfterPass(ctx context.Context, pc PassContext, _ LoadData) (any, error) {
	var dims ViewportDimensions
	if err := pc.Driver.EvaluateAsync(ctx, viewportExpression, &dims); err != nil {
		return nil, NonFatal(fmt.Errorf("failed to measure viewport: %w", err))
	}
	return &dims, nil
}

// ServiceWorkerArtifact is the ServiceWorker gatherer's artifact.
type ServiceWorkerArtifact struct {
	Versions      []serviceworker.Version      `json:"versions"`
	Registrations []serviceworker.Registration `json:"registrations"`
}

// serviceWorkerWait bounds the wait for the browser to report versions after
// ServiceWorker.enable.
const serviceWorkerWait = 2 * time.Second

// ServiceWorkerGatherer collects service worker registrations and versions.
type ServiceWorkerGatherer struct {
	// wait overrides serviceWorkerWait in tests.
	wait time.Duration
}

// Name implements Gatherer.
func (g *ServiceWorkerGatherer) Name() string { return ServiceWorkerGathererName }

// AfterPass implements AfterPasser.
func (g *ServiceWorkerGatherer) AfterPass(ctx context.Context, pc PassContext, _ LoadData) (any, error) {
	var (
		mu       sync.Mutex
		artifact = &ServiceWorkerArtifact{}
		reported = make(chan struct{})
		once     sync.Once
	)

	regSub := pc.Driver.On("ServiceWorker.workerRegistrationUpdated", func(params json.RawMessage) {
		var ev serviceworker.WorkerRegistrationUpdatedReply
		if err := json.Unmarshal(params, &ev); err != nil {
			return
		}
		mu.Lock()
		artifact.Registrations = append(artifact.Registrations, ev.Registrations...)
		mu.Unlock()
	})
	defer regSub.Cancel()

	verSub := pc.Driver.On("ServiceWorker.workerVersionUpdated", func(params json.RawMessage) {
		var ev serviceworker.WorkerVersionUpdatedReply
		if err := json.Unmarshal(params, &ev); err != nil {
			return
		}
		mu.Lock()
		artifact.Versions = append(artifact.Versions, ev.Versions...)
		mu.Unlock()
		once.Do(func() { close(reported) })
	})
	defer verSub.Cancel()

	if _, err := pc.Driver.SendCommand(ctx, "ServiceWorker.enable", nil); err != nil {
		return nil, NonFatal(fmt.Errorf("failed to enable service worker domain: %w", err))
	}

	wait := g.wait
	if wait <= 0 {
		wait = serviceWorkerWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-reported:
	case <-timer.C:
		pc.Logger.Debug("no service worker versions reported", "gatherer", ServiceWorkerGathererName)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if _, err := pc.Driver.SendCommand(ctx, "ServiceWorker.disable", nil); err != nil {
		pc.Logger.Debug("failed to disable service worker domain", "error", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return artifact, nil
}
