package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestPipeTransport tests NUL-delimited framing.
func TestPipeTransport(t *testing.T) {
	t.Parallel()

	t.Run("round trip through a conn", func(t *testing.T) {
		t.Parallel()

		// browser side reads our commands from toBrowser and answers on fromBrowser.
		toBrowserR, toBrowserW := io.Pipe()
		fromBrowserR, fromBrowserW := io.Pipe()

		go func() {
			browser := NewPipeTransport(toBrowserR, fromBrowserW)
			defer browser.Close() //nolint:errcheck // test peer
			for {
				frame, err := browser.ReadMessage(context.Background())
				if err != nil {
					return
				}
				var cmd struct {
					ID     int64  `json:"id"`
					Method string `json:"method"`
				}
				if err := json.Unmarshal(frame, &cmd); err != nil {
					return
				}
				event := `{"method":"Runtime.consoleAPICalled","params":{}}`
				resp := fmt.Sprintf(`{"id":%d,"result":{"method":%q}}`, cmd.ID, cmd.Method)
				if browser.WriteMessage(context.Background(), []byte(event)) != nil {
					return
				}
				if browser.WriteMessage(context.Background(), []byte(resp)) != nil {
					return
				}
			}
		}()

		c := NewConn(NewPipeTransport(fromBrowserR, toBrowserW))
		if err := c.Connect(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer c.Disconnect() //nolint:errcheck // test cleanup

		raw, err := c.SendCommand(context.Background(), "Runtime.enable", nil)
		if err != nil {
			t.Fatalf("SendCommand() error = %v", err)
		}
		if string(raw) != `{"method":"Runtime.enable"}` {
			t.Errorf("unexpected result %s", raw)
		}
	})

	t.Run("partial frame at EOF", func(t *testing.T) {
		t.Parallel()

		p := NewPipeTransport(strings.NewReader("{\"id\":1}\x00{\"id\""), io.Discard)
		frame, err := p.ReadMessage(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if string(frame) != `{"id":1}` {
			t.Errorf("unexpected frame %q", frame)
		}
		if _, err := p.ReadMessage(context.Background()); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
		}
	})

	t.Run("open after close", func(t *testing.T) {
		t.Parallel()

		p := NewPipeTransport(strings.NewReader(""), io.Discard)
		if err := p.Close(); err != nil {
			t.Fatal(err)
		}
		if err := p.Open(context.Background()); !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("expected io.ErrClosedPipe, got %v", err)
		}
	})
}

// fakeBrowser serves the DevTools discovery endpoints and a page socket that
// echoes every command back as its result.
func fakeBrowser(t *testing.T, listed bool) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	var srv *httptest.Server

	target := func() map[string]string {
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/page/P1"
		return map[string]string{
			"id":                   "P1",
			"type":                 "page",
			"title":                "about:blank",
			"url":                  "about:blank",
			"webSocketDebuggerUrl": wsURL,
		}
	}

	mux.HandleFunc("/json/list", func(w http.ResponseWriter, _ *http.Request) {
		list := []map[string]string{}
		if listed {
			list = append(list, target())
		}
		_ = json.NewEncoder(w).Encode(list) //nolint:errcheck // test server
	})
	mux.HandleFunc("/json/new", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(target()) //nolint:errcheck // test server
	})
	mux.HandleFunc("/devtools/page/P1", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(data, &cmd); err != nil {
				return
			}
			resp := fmt.Sprintf(`{"id":%d,"result":{"echo":%q}}`, cmd.ID, cmd.Method)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(resp)); err != nil {
				return
			}
		}
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestWebSocketTransport tests discovery and messaging against a fake browser.
func TestWebSocketTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		listed bool
	}{
		{name: "uses listed page target", listed: true},
		{name: "creates a target when none is listed", listed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := fakeBrowser(t, tt.listed)
			tr, err := NewWebSocketTransport(srv.URL, WithReadyRetry(2, 10*time.Millisecond))
			if err != nil {
				t.Fatal(err)
			}

			c := NewConn(tr)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.Connect(ctx); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			defer c.Disconnect() //nolint:errcheck // test cleanup

			if tr.Target() == nil || tr.Target().ID != "P1" {
				t.Errorf("unexpected target %+v", tr.Target())
			}

			raw, err := c.SendCommand(ctx, "Page.enable", nil)
			if err != nil {
				t.Fatalf("SendCommand() error = %v", err)
			}
			if string(raw) != `{"echo":"Page.enable"}` {
				t.Errorf("unexpected result %s", raw)
			}
		})
	}

	t.Run("debugger never ready", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		tr, err := NewWebSocketTransport(srv.URL, WithReadyRetry(3, time.Millisecond))
		if err != nil {
			t.Fatal(err)
		}
		err = tr.Open(context.Background())
		if !errors.Is(err, ErrDebuggerNotReady) {
			t.Errorf("expected ErrDebuggerNotReady, got %v", err)
		}
	})

	t.Run("explicit socket url skips discovery", func(t *testing.T) {
		t.Parallel()

		srv := fakeBrowser(t, false)
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/page/P1"
		tr, err := NewWebSocketTransport("http://127.0.0.1:1", WithWebSocketURL(wsURL))
		if err != nil {
			t.Fatal(err)
		}
		if err := tr.Open(context.Background()); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer tr.Close() //nolint:errcheck // test cleanup

		if tr.Target() != nil {
			t.Error("expected no discovered target")
		}
	})

	t.Run("write before open", func(t *testing.T) {
		t.Parallel()

		tr, err := NewWebSocketTransport("http://127.0.0.1:1")
		if err != nil {
			t.Fatal(err)
		}
		if err := tr.WriteMessage(context.Background(), []byte("{}")); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		if err := tr.Close(); err != nil {
			t.Errorf("Close() on unopened transport error = %v", err)
		}
	})
}
