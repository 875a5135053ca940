package runner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/devtools"
	"github.com/nao1215/lightscan/internal/driver"
	"github.com/nao1215/lightscan/internal/gather"
)

// scriptedBrowser is a devtools.Transport that answers every command with an
// empty result and fires Page.loadEventFired after each navigation.
type scriptedBrowser struct {
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	origins []string
}

func newScriptedBrowser() *scriptedBrowser {
	return &scriptedBrowser{
		inbox:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (b *scriptedBrowser) Open(context.Context) error { return nil }

func (b *scriptedBrowser) WriteMessage(_ context.Context, data []byte) error {
	var cmd struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params struct {
			Origin string `json:"origin"`
		} `json:"params"`
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return err
	}

	if cmd.Method == "Storage.clearDataForOrigin" {
		b.mu.Lock()
		b.origins = append(b.origins, cmd.Params.Origin)
		b.mu.Unlock()
	}

	resp, err := json.Marshal(map[string]any{"id": cmd.ID, "result": map[string]any{}})
	if err != nil {
		return err
	}
	b.inbox <- resp
	if cmd.Method == "Page.navigate" {
		b.inbox <- []byte(`{"method":"Page.loadEventFired","params":{"timestamp":1}}`)
	}
	return nil
}

func (b *scriptedBrowser) ReadMessage(context.Context) ([]byte, error) {
	select {
	case msg := <-b.inbox:
		return msg, nil
	case <-b.closed:
		return nil, io.EOF
	}
}

func (b *scriptedBrowser) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func (b *scriptedBrowser) clearedOrigins() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.origins...)
}

// TestRun_RealDriver runs the default setup, including emulation and the
// storage reset, through a driver.Driver for every accepted URL scheme.
func TestRun_RealDriver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		url         string
		wantOrigins []string
	}{
		{name: "https", url: "https://example.com/", wantOrigins: []string{"https://example.com"}},
		{name: "file", url: "file:///tmp/page.html", wantOrigins: []string{"file://"}},
		{name: "about", url: "about:blank", wantOrigins: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			browser := newScriptedBrowser()
			factory := func(_ *config.Config, logger *slog.Logger) (gather.Driver, error) {
				conn := devtools.NewConn(browser, devtools.WithLogger(logger))
				return driver.New(conn, driver.WithLogger(logger)), nil
			}

			cfg := testConfig(tt.url)
			cfg.RunConfig.Passes = []config.Pass{{Gatherers: []string{gather.URLGathererName}}}
			cfg.RunConfig.Audits = []string{"is-on-https"}

			r := New(cfg, WithLogger(quietLogger()), WithDriverFactory(factory))
			result, err := r.Run(context.Background(), "")
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if result.FinalURL != tt.url {
				t.Errorf("final url = %q, want %q", result.FinalURL, tt.url)
			}

			got := browser.clearedOrigins()
			if len(got) != len(tt.wantOrigins) {
				t.Fatalf("cleared origins = %v, want %v", got, tt.wantOrigins)
			}
			for i := range got {
				if got[i] != tt.wantOrigins[i] {
					t.Errorf("cleared origins = %v, want %v", got, tt.wantOrigins)
				}
			}
		})
	}
}
