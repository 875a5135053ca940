package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// Changes to defaults must be intentional, so each one is pinned here.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Port is 9222", func(t *testing.T) {
		t.Parallel()
		if cfg.Port != 9222 {
			t.Errorf("expected Port to be 9222, got %d", cfg.Port)
		}
	})

	t.Run("default Hostname is 127.0.0.1", func(t *testing.T) {
		t.Parallel()
		if cfg.Hostname != "127.0.0.1" {
			t.Errorf("expected Hostname to be '127.0.0.1', got '%s'", cfg.Hostname)
		}
	})

	t.Run("default OutputFormat is text", func(t *testing.T) {
		t.Parallel()
		if cfg.OutputFormat != OutputText {
			t.Errorf("expected OutputFormat to be text, got %q", cfg.OutputFormat)
		}
	})

	t.Run("default AuditConcurrency is 4", func(t *testing.T) {
		t.Parallel()
		if cfg.AuditConcurrency != 4 {
			t.Errorf("expected AuditConcurrency to be 4, got %d", cfg.AuditConcurrency)
		}
	})

	t.Run("MaxWaitForLoad is not overridden by default", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxWaitForLoad != 0 {
			t.Errorf("expected MaxWaitForLoad to be unset, got %v", cfg.MaxWaitForLoad)
		}
	})

	t.Run("default DBDir is the XDG data dir", func(t *testing.T) {
		t.Parallel()
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})
}

// TestConfigValidate tests the Validate method with various configurations.
// Each test case is designed to test one specific validation rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.URL = "https://example.com"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config returns nil",
			modify: func(*Config) {},
		},
		{
			name:    "missing URL",
			modify:  func(c *Config) { c.URL = "" },
			wantErr: ErrNoTarget,
		},
		{
			name: "audit-only needs no URL",
			modify: func(c *Config) {
				c.URL = ""
				c.AuditOnly = true
			},
		},
		{
			name:    "port out of range",
			modify:  func(c *Config) { c.Port = 70000 },
			wantErr: ErrInvalidPort,
		},
		{
			name: "explicit socket url ignores port",
			modify: func(c *Config) {
				c.Port = 0
				c.WebSocketURL = "ws://127.0.0.1:9222/devtools/page/1"
			},
		},
		{
			name:    "negative max wait",
			modify:  func(c *Config) { c.MaxWaitForLoad = -time.Second },
			wantErr: ErrInvalidMaxWait,
		},
		{
			name: "gather-only and audit-only",
			modify: func(c *Config) {
				c.GatherOnly = true
				c.AuditOnly = true
			},
			wantErr: ErrConflictingModes,
		},
		{
			name:    "unknown output format",
			modify:  func(c *Config) { c.OutputFormat = "html" },
			wantErr: ErrInvalidOutputFormat,
		},
		{
			name:    "zero audit concurrency",
			modify:  func(c *Config) { c.AuditConcurrency = 0 },
			wantErr: ErrInvalidAuditConcurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestConfigSettings tests merging command line overrides into run settings.
func TestConfigSettings(t *testing.T) {
	t.Parallel()

	t.Run("defaults without run config", func(t *testing.T) {
		t.Parallel()

		s := NewConfig().Settings()
		if s.MaxWaitForLoad != DefaultMaxWaitForLoad {
			t.Errorf("expected default max wait, got %v", s.MaxWaitForLoad)
		}
		if s.BlankDuration != DefaultBlankDuration {
			t.Errorf("expected default blank duration, got %v", s.BlankDuration)
		}
		if s.Emulation != DefaultEmulation() {
			t.Errorf("expected default emulation, got %+v", s.Emulation)
		}
	})

	t.Run("flags override the file", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.RunConfig = &File{Settings: Settings{MaxWaitForLoad: 10 * time.Second, BlankDuration: time.Second}}
		cfg.MaxWaitForLoad = 20 * time.Second
		cfg.DisableStorageReset = true

		s := cfg.Settings()
		if s.MaxWaitForLoad != 20*time.Second {
			t.Errorf("expected flag max wait, got %v", s.MaxWaitForLoad)
		}
		if s.BlankDuration != time.Second {
			t.Errorf("expected file blank duration, got %v", s.BlankDuration)
		}
		if !s.DisableStorageReset {
			t.Error("expected storage reset to be disabled")
		}
		if s.DisableDeviceEmulation {
			t.Error("device emulation must stay enabled")
		}
	})
}

// TestFileValidate tests run configuration validation.
func TestFileValidate(t *testing.T) {
	t.Parallel()

	known := func(names ...string) func(string) bool {
		return func(n string) bool { return slices.Contains(names, n) }
	}
	gatherers := known("URL", "UserAgent", "ViewportDimensions", "ServiceWorker")
	audits := known("is-on-https", "estimated-input-latency", "total-byte-weight", "content-width", "service-worker")

	t.Run("default run config is valid", func(t *testing.T) {
		t.Parallel()

		if err := DefaultRunConfig().Validate(gatherers, audits); err != nil {
			t.Errorf("expected valid default config, got %v", err)
		}
	})

	tests := []struct {
		name    string
		file    *File
		wantErr error
	}{
		{
			name:    "no passes",
			file:    &File{},
			wantErr: ErrNoPasses,
		},
		{
			name: "duplicate pass names",
			file: &File{Passes: []Pass{
				{PassName: "a", Gatherers: []string{"URL"}},
				{PassName: "a", Gatherers: []string{"UserAgent"}},
			}},
			wantErr: ErrDuplicatePass,
		},
		{
			name: "duplicate artifact across passes",
			file: &File{Passes: []Pass{
				{PassName: "a", Gatherers: []string{"URL"}},
				{PassName: "b", Gatherers: []string{"URL"}},
			}},
			wantErr: ErrDuplicateArtifact,
		},
		{
			name: "duplicate artifact within a pass",
			file: &File{Passes: []Pass{
				{PassName: "a", Gatherers: []string{"URL", "URL"}},
			}},
			wantErr: ErrDuplicateArtifact,
		},
		{
			name: "unknown gatherer",
			file: &File{Passes: []Pass{
				{PassName: "a", Gatherers: []string{"Screenshot"}},
			}},
			wantErr: ErrUnknownGatherer,
		},
		{
			name: "unknown audit",
			file: &File{
				Passes: []Pass{{PassName: "a", Gatherers: []string{"URL"}}},
				Audits: []string{"first-meaningful-paint"},
			},
			wantErr: ErrUnknownAudit,
		},
		{
			name: "category references audit not in run",
			file: &File{
				Passes: []Pass{{PassName: "a", Gatherers: []string{"URL"}}},
				Audits: []string{"is-on-https"},
				Categories: []Category{
					{ID: "c", Weight: 1, Audits: []AuditRef{{ID: "content-width", Weight: 1}}},
				},
			},
			wantErr: ErrUnknownAudit,
		},
		{
			name: "category without id",
			file: &File{
				Passes:     []Pass{{PassName: "a"}},
				Categories: []Category{{Name: "Nameless"}},
			},
			wantErr: ErrInvalidCategory,
		},
		{
			name: "negative weight",
			file: &File{
				Passes:     []Pass{{PassName: "a"}},
				Categories: []Category{{ID: "c", Weight: -1}},
			},
			wantErr: ErrInvalidWeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.file.Validate(gatherers, audits)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestPass tests pass helpers.
func TestPass(t *testing.T) {
	t.Parallel()

	no := false
	p := Pass{}
	if !p.ShouldLoadPage() {
		t.Error("passes load the page by default")
	}
	p.LoadPage = &no
	if p.ShouldLoadPage() {
		t.Error("expected loadPage: false to be honored")
	}
	if !slices.Equal(p.Categories(), DefaultTraceCategories) {
		t.Error("expected default trace categories")
	}
	p.TraceCategories = []string{"toplevel"}
	if !slices.Equal(p.Categories(), []string{"toplevel"}) {
		t.Error("expected custom trace categories")
	}
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.lightscan")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".lightscan")
		content := `settings:
  maxWaitForLoad: 30s
  blankDuration: 500ms
  disableStorageReset: true
passes:
  - recordTrace: true
    pauseAfterLoad: 1s
    gatherers: [URL, UserAgent]
  - passName: offline
    loadPage: false
    gatherers: [ServiceWorker]
audits:
  - is-on-https
categories:
  - id: best-practices
    name: Best Practices
    weight: 2
    audits:
      - id: is-on-https
        weight: 1
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Settings.MaxWaitForLoad != 30*time.Second {
			t.Errorf("expected max wait 30s, got %v", cfg.Settings.MaxWaitForLoad)
		}
		if cfg.Settings.BlankDuration != 500*time.Millisecond {
			t.Errorf("expected blank duration 500ms, got %v", cfg.Settings.BlankDuration)
		}
		if len(cfg.Passes) != 2 {
			t.Fatalf("expected 2 passes, got %d", len(cfg.Passes))
		}
		if cfg.Passes[0].PassName != DefaultPassName {
			t.Errorf("expected first pass to be named %q, got %q", DefaultPassName, cfg.Passes[0].PassName)
		}
		if cfg.Passes[0].PauseAfterLoad != time.Second {
			t.Errorf("expected pause 1s, got %v", cfg.Passes[0].PauseAfterLoad)
		}
		if cfg.Passes[1].ShouldLoadPage() {
			t.Error("expected offline pass not to load the page")
		}
		if cfg.Categories[0].Weight != 2 {
			t.Errorf("expected category weight 2, got %v", cfg.Categories[0].Weight)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".lightscan")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("passes: []"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

// TestLoadRunConfig tests resolution of the run configuration.
func TestLoadRunConfig(t *testing.T) {
	t.Parallel()

	t.Run("explicit missing path is an error", func(t *testing.T) {
		t.Parallel()

		_, _, err := LoadRunConfig("/nonexistent/run.yaml")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("explicit path is loaded", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "run.yaml")
		if err := os.WriteFile(configPath, []byte("passes:\n  - gatherers: [URL]\n"), 0600); err != nil {
			t.Fatal(err)
		}
		f, path, err := LoadRunConfig(configPath)
		if err != nil {
			t.Fatal(err)
		}
		if path != configPath {
			t.Errorf("expected path %q, got %q", configPath, path)
		}
		if len(f.Passes) != 1 || f.Passes[0].Gatherers[0] != "URL" {
			t.Errorf("unexpected passes %+v", f.Passes)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
		"cache":  XDGCacheDir(),
	} {
		if filepath.Base(dir) != AppName {
			t.Errorf("%s dir %q does not end in %q", name, dir, AppName)
		}
	}
	if got := DefaultArtifactsDir("abc"); filepath.Base(got) != "abc" {
		t.Errorf("unexpected artifacts dir %q", got)
	}
}
