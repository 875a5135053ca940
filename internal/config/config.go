package config

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "lightscan"

	// DefaultPort is the browser's remote debugging port.
	DefaultPort = 9222

	// DefaultHostname is the host the browser listens on. 127.0.0.1 avoids
	// resolving localhost to an IPv6 address the browser is not bound to.
	DefaultHostname = "127.0.0.1"

	// DefaultMaxWaitForLoad bounds how long a page load may take before the
	// run fails with a load timeout.
	DefaultMaxWaitForLoad = 45 * time.Second

	// DefaultBlankDuration is how long the page sits on about:blank before
	// each navigation so that the previous page's work has settled.
	DefaultBlankDuration = 300 * time.Millisecond

	// DefaultAuditConcurrency is how many audits run in parallel.
	DefaultAuditConcurrency = 4

	// DefaultTeardownTimeout bounds the teardown phase, which runs after
	// artifacts have been returned.
	DefaultTeardownTimeout = 10 * time.Second

	// DefaultOutputFormat is the report format written to stdout.
	DefaultOutputFormat = OutputText
)

// Report output formats.
const (
	OutputJSON     = "json"
	OutputMarkdown = "markdown"
	OutputText     = "text"
)

// OutputFormats lists the valid --output values.
var OutputFormats = []string{OutputJSON, OutputMarkdown, OutputText}

// Config holds all configuration options given on the command line.
// It is passed through the application rather than kept in global state.
type Config struct {
	// URL is the page to audit.
	URL string

	// Port is the browser's remote debugging port.
	Port int

	// Hostname is the host the browser's debugging port listens on.
	Hostname string

	// WebSocketURL, when set, connects to this page socket directly and
	// skips target discovery.
	WebSocketURL string

	// SOCKSProxy is an optional "host:port" SOCKS5 proxy used to reach a
	// remote browser, typically an SSH dynamic forward.
	SOCKSProxy string

	// ConfigFilePath is the path to the YAML run configuration.
	// If empty, .lightscan is looked up in the current directory and then
	// the home directory; if none is found the built-in default is used.
	ConfigFilePath string

	// RunConfig is the loaded run configuration.
	RunConfig *File

	// MaxWaitForLoad overrides the run configuration's page load timeout
	// when positive.
	MaxWaitForLoad time.Duration

	// SaveArtifacts writes the gathered artifacts to ArtifactsDir.
	SaveArtifacts bool

	// ArtifactsDir is where artifacts are saved and, in audit-only mode,
	// loaded from. Defaults to a per-run directory under XDGCacheDir.
	ArtifactsDir string

	// GatherOnly stops after gathering and saving artifacts.
	GatherOnly bool

	// AuditOnly skips the browser and audits artifacts from ArtifactsDir.
	AuditOnly bool

	// OutputFormat is one of OutputFormats.
	OutputFormat string

	// OutputPath is the file the report is written to. Stdout when empty.
	OutputPath string

	// DisableDeviceEmulation skips mobile device emulation and throttling.
	DisableDeviceEmulation bool

	// DisableStorageReset keeps caches and origin storage between runs.
	DisableStorageReset bool

	// NoHistory disables saving the run to the history database.
	NoHistory bool

	// DBDir is the directory holding the history database.
	// Defaults to XDGDataDir().
	DBDir string

	// AuditConcurrency is how many audits may run in parallel.
	AuditConcurrency int

	// TeardownTimeout bounds the teardown phase.
	TeardownTimeout time.Duration

	// Verbose enables debug logging.
	Verbose bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Port:             DefaultPort,
		Hostname:         DefaultHostname,
		OutputFormat:     DefaultOutputFormat,
		DBDir:            XDGDataDir(),
		AuditConcurrency: DefaultAuditConcurrency,
		TeardownTimeout:  DefaultTeardownTimeout,
	}
}

// XDGDataDir returns the XDG data directory for lightscan.
// On Linux: ~/.local/share/lightscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for lightscan.
// On Linux: ~/.config/lightscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for lightscan.
// On Linux: ~/.cache/lightscan
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// DefaultArtifactsDir returns the artifact directory used for runID when
// none is configured.
func DefaultArtifactsDir(runID string) string {
	return filepath.Join(XDGCacheDir(), "artifacts", runID)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if c.URL == "" && !c.AuditOnly {
		return ErrNoTarget
	}
	if c.WebSocketURL == "" && !c.AuditOnly && (c.Port <= 0 || c.Port > 65535) {
		return ErrInvalidPort
	}
	if c.MaxWaitForLoad < 0 {
		return ErrInvalidMaxWait
	}
	if c.GatherOnly && c.AuditOnly {
		return ErrConflictingModes
	}
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		return ErrInvalidOutputFormat
	}
	if c.AuditConcurrency <= 0 {
		return ErrInvalidAuditConcurrency
	}
	return nil
}

// Settings returns the run configuration's settings with command line
// overrides applied.
func (c *Config) Settings() Settings {
	var s Settings
	if c.RunConfig != nil {
		s = c.RunConfig.Settings
	}
	s = s.WithDefaults()

	if c.MaxWaitForLoad > 0 {
		s.MaxWaitForLoad = c.MaxWaitForLoad
	}
	if c.DisableDeviceEmulation {
		s.DisableDeviceEmulation = true
	}
	if c.DisableStorageReset {
		s.DisableStorageReset = true
	}
	if c.AuditConcurrency > 0 {
		s.AuditConcurrency = c.AuditConcurrency
	}
	return s
}
