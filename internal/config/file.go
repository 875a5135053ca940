package config

import (
	"fmt"
	"time"
)

// DefaultPassName names a pass that does not set passName.
const DefaultPassName = "defaultPass"

// DefaultTraceCategories are recorded when a tracing pass does not list its own.
var DefaultTraceCategories = []string{
	"-*",
	"toplevel",
	"blink.console",
	"blink.user_timing",
	"benchmark",
	"loading",
	"latencyInfo",
	"devtools.timeline",
	"disabled-by-default-devtools.timeline",
	"disabled-by-default-devtools.timeline.frame",
	"disabled-by-default-devtools.timeline.stack",
	"disabled-by-default-devtools.screenshot",
}

// File represents the structure of the .lightscan run configuration.
type File struct {
	// Settings apply to the whole run.
	Settings Settings `yaml:"settings,omitempty" json:"settings"`

	// Passes run in order. Each loads the page at most once.
	Passes []Pass `yaml:"passes" json:"passes"`

	// Audits are evaluated after gathering, in this order.
	Audits []string `yaml:"audits" json:"audits"`

	// Categories group audits into weighted scores.
	Categories []Category `yaml:"categories,omitempty" json:"categories"`
}

// Settings are run-wide options.
type Settings struct {
	// MaxWaitForLoad bounds each page load.
	MaxWaitForLoad time.Duration `yaml:"maxWaitForLoad,omitempty" json:"max_wait_for_load"`

	// BlankDuration is how long to sit on about:blank before navigating.
	BlankDuration time.Duration `yaml:"blankDuration,omitempty" json:"blank_duration"`

	// DisableDeviceEmulation skips Emulation.
	DisableDeviceEmulation bool `yaml:"disableDeviceEmulation,omitempty" json:"disable_device_emulation"`

	// DisableStorageReset keeps caches and origin storage.
	DisableStorageReset bool `yaml:"disableStorageReset,omitempty" json:"disable_storage_reset"`

	// SkipCleanReload leaves the page as it is after the last pass instead
	// of navigating to about:blank during teardown.
	SkipCleanReload bool `yaml:"skipCleanReload,omitempty" json:"skip_clean_reload"`

	// ClipToWindow counts only the part of a main-thread task inside the
	// input latency window.
	ClipToWindow bool `yaml:"clipToWindow,omitempty" json:"clip_to_window"`

	// AuditConcurrency is how many audits run in parallel.
	AuditConcurrency int `yaml:"auditConcurrency,omitempty" json:"audit_concurrency"`

	// Emulation describes the emulated device.
	Emulation Emulation `yaml:"emulation,omitempty" json:"emulation"`
}

// WithDefaults returns s with zero values replaced by defaults.
func (s Settings) WithDefaults() Settings {
	if s.MaxWaitForLoad == 0 {
		s.MaxWaitForLoad = DefaultMaxWaitForLoad
	}
	if s.BlankDuration == 0 {
		s.BlankDuration = DefaultBlankDuration
	}
	if s.AuditConcurrency == 0 {
		s.AuditConcurrency = DefaultAuditConcurrency
	}
	if s.Emulation == (Emulation{}) {
		s.Emulation = DefaultEmulation()
	}
	return s
}

// Emulation describes the emulated device, CPU and network.
type Emulation struct {
	Width             int     `yaml:"width" json:"width"`
	Height            int     `yaml:"height" json:"height"`
	DeviceScaleFactor float64 `yaml:"deviceScaleFactor" json:"device_scale_factor"`
	Mobile            bool    `yaml:"mobile" json:"mobile"`
	Touch             bool    `yaml:"touch" json:"touch"`
	UserAgent         string  `yaml:"userAgent,omitempty" json:"user_agent,omitempty"`

	// CPUSlowdown is the CPU throttling rate. 1 or 0 disables throttling.
	CPUSlowdown float64 `yaml:"cpuSlowdown,omitempty" json:"cpu_slowdown,omitempty"`

	// Network throttling. All zero disables it.
	LatencyMs    float64 `yaml:"latencyMs,omitempty" json:"latency_ms,omitempty"`
	DownloadKbps float64 `yaml:"downloadKbps,omitempty" json:"download_kbps,omitempty"`
	UploadKbps   float64 `yaml:"uploadKbps,omitempty" json:"upload_kbps,omitempty"`

	// DisableThrottling turns off CPU and network throttling but keeps
	// the device metrics.
	DisableThrottling bool `yaml:"disableThrottling,omitempty" json:"disable_throttling,omitempty"`
}

// NetworkThrottled reports whether any network throttling is configured.
func (e Emulation) NetworkThrottled() bool {
	return !e.DisableThrottling && (e.LatencyMs > 0 || e.DownloadKbps > 0 || e.UploadKbps > 0)
}

// CPUThrottled reports whether CPU throttling is configured.
func (e Emulation) CPUThrottled() bool {
	return !e.DisableThrottling && e.CPUSlowdown > 1
}

// DefaultEmulation is a mid-range phone on a slow 4G connection.
func DefaultEmulation() Emulation {
	return Emulation{
		Width:             412,
		Height:            732,
		DeviceScaleFactor: 2.625,
		Mobile:            true,
		Touch:             true,
		UserAgent: "Mozilla/5.0 (Linux; Android 8.0.0; Nexus 5X Build/OPR4.170623.006) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/61.0.3163.100 Mobile Safari/537.36",
		CPUSlowdown:  4,
		LatencyMs:    150,
		DownloadKbps: 1638.4,
		UploadKbps:   750,
	}
}

// Pass is one page load and the gatherers that observe it.
type Pass struct {
	// PassName identifies the pass. Traces and network records are keyed by it.
	PassName string `yaml:"passName" json:"pass_name"`

	// RecordTrace records a performance trace during the load.
	RecordTrace bool `yaml:"recordTrace,omitempty" json:"record_trace"`

	// RecordNetwork records network requests during the load.
	RecordNetwork bool `yaml:"recordNetwork,omitempty" json:"record_network"`

	// LoadPage navigates to the target during the pass. Defaults to true.
	LoadPage *bool `yaml:"loadPage,omitempty" json:"load_page,omitempty"`

	// PauseAfterLoad waits after the load event before the pass phase.
	PauseAfterLoad time.Duration `yaml:"pauseAfterLoad,omitempty" json:"pause_after_load"`

	// TraceCategories overrides DefaultTraceCategories.
	TraceCategories []string `yaml:"traceCategories,omitempty" json:"trace_categories,omitempty"`

	// Gatherers run in this order in every phase.
	Gatherers []string `yaml:"gatherers" json:"gatherers"`
}

// ShouldLoadPage reports whether the pass navigates to the target.
func (p *Pass) ShouldLoadPage() bool {
	return p.LoadPage == nil || *p.LoadPage
}

// Categories returns the trace categories to record.
func (p *Pass) Categories() []string {
	if len(p.TraceCategories) > 0 {
		return p.TraceCategories
	}
	return DefaultTraceCategories
}

// AuditRef is a weighted reference from a category to an audit.
type AuditRef struct {
	ID     string  `yaml:"id" json:"id"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Category groups audits into one weighted score.
type Category struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Weight      float64    `yaml:"weight" json:"weight"`
	Audits      []AuditRef `yaml:"audits,omitempty" json:"audits,omitempty"`
}

// Normalize fills pass names and returns f for chaining.
func (f *File) Normalize() *File {
	for i := range f.Passes {
		if f.Passes[i].PassName == "" {
			if i == 0 {
				f.Passes[i].PassName = DefaultPassName
			} else {
				f.Passes[i].PassName = fmt.Sprintf("pass%d", i+1)
			}
		}
	}
	return f
}

// Validate checks the run configuration. isGatherer and isAudit report
// whether a name is registered; either may be nil to skip that check.
func (f *File) Validate(isGatherer, isAudit func(name string) bool) error {
	if len(f.Passes) == 0 {
		return ErrNoPasses
	}

	passes := make(map[string]bool, len(f.Passes))
	artifacts := make(map[string]string)
	for _, p := range f.Passes {
		if passes[p.PassName] {
			return fmt.Errorf("%w: %q", ErrDuplicatePass, p.PassName)
		}
		passes[p.PassName] = true

		for _, g := range p.Gatherers {
			if prev, ok := artifacts[g]; ok {
				return fmt.Errorf("%w: %q in passes %q and %q", ErrDuplicateArtifact, g, prev, p.PassName)
			}
			artifacts[g] = p.PassName
			if isGatherer != nil && !isGatherer(g) {
				return fmt.Errorf("%w: %q", ErrUnknownGatherer, g)
			}
		}
	}

	audits := make(map[string]bool, len(f.Audits))
	for _, a := range f.Audits {
		if isAudit != nil && !isAudit(a) {
			return fmt.Errorf("%w: %q", ErrUnknownAudit, a)
		}
		audits[a] = true
	}

	for _, c := range f.Categories {
		if c.ID == "" {
			return ErrInvalidCategory
		}
		if c.Weight < 0 {
			return fmt.Errorf("%w: category %q", ErrInvalidWeight, c.ID)
		}
		for _, ref := range c.Audits {
			if !audits[ref.ID] {
				return fmt.Errorf("%w: category %q references %q", ErrUnknownAudit, c.ID, ref.ID)
			}
			if ref.Weight < 0 {
				return fmt.Errorf("%w: audit %q in category %q", ErrInvalidWeight, ref.ID, c.ID)
			}
		}
	}
	return nil
}

// DefaultRunConfig returns the built-in run configuration: one traced pass
// running every built-in gatherer and audit.
func DefaultRunConfig() *File {
	return &File{
		Passes: []Pass{
			{
				PassName:      DefaultPassName,
				RecordTrace:   true,
				RecordNetwork: true,
				Gatherers:     []string{"URL", "UserAgent", "ViewportDimensions", "ServiceWorker"},
			},
		},
		Audits: []string{
			"is-on-https",
			"estimated-input-latency",
			"total-byte-weight",
			"content-width",
			"service-worker",
		},
		Categories: []Category{
			{
				ID:          "performance",
				Name:        "Performance",
				Description: "How quickly the page loads and responds to input.",
				Weight:      1,
				Audits: []AuditRef{
					{ID: "estimated-input-latency", Weight: 1},
					{ID: "total-byte-weight", Weight: 1},
				},
			},
			{
				ID:          "pwa",
				Name:        "Progressive Web App",
				Description: "Whether the page works well on mobile and offline.",
				Weight:      1,
				Audits: []AuditRef{
					{ID: "service-worker", Weight: 1},
					{ID: "content-width", Weight: 1},
				},
			},
			{
				ID:          "best-practices",
				Name:        "Best Practices",
				Description: "Security and modern web platform practices.",
				Weight:      1,
				Audits: []AuditRef{
					{ID: "is-on-https", Weight: 1},
				},
			},
		},
	}
}
