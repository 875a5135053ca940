package devtools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mafredri/cdp/devtool"
	"golang.org/x/net/proxy"
)

const (
	// DefaultReadyAttempts is how many times the debugging endpoint is polled
	// before giving up.
	DefaultReadyAttempts = 10

	// DefaultReadyDelay is the fixed delay between readiness polls.
	DefaultReadyDelay = 500 * time.Millisecond

	// writeBufferSize matches the larger buffer used for DevTools sockets;
	// commands such as Runtime.evaluate can carry sizeable scripts.
	writeBufferSize = 1 << 20

	// closeGracePeriod bounds the close handshake.
	closeGracePeriod = time.Second
)

// WebSocketTransport connects to a page target over the browser's remote
// debugging port.
type WebSocketTransport struct {
	// endpoint is the HTTP base URL of the debugging port, e.g. "http://127.0.0.1:9222".
	endpoint string

	// wsURL, when set, skips target discovery.
	wsURL string

	// socksProxy is an optional "host:port" SOCKS5 proxy.
	socksProxy string

	attempts   int
	retryDelay time.Duration

	dialer     *websocket.Dialer
	httpClient *http.Client
	logger     *slog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	target  *devtool.Target
}

// WebSocketOption configures a WebSocketTransport.
type WebSocketOption func(*WebSocketTransport)

// WithWebSocketURL connects to the given ws:// URL directly.
func WithWebSocketURL(u string) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.wsURL = u
	}
}

// WithSOCKSProxy routes discovery and the socket through a SOCKS5 proxy,
// typically an SSH tunnel to a remote browser.
func WithSOCKSProxy(addr string) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.socksProxy = addr
	}
}

// WithReadyRetry overrides the readiness polling budget.
func WithReadyRetry(attempts int, delay time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		if attempts > 0 {
			t.attempts = attempts
		}
		if delay >= 0 {
			t.retryDelay = delay
		}
	}
}

// WithTransportLogger sets the logger used during discovery.
func WithTransportLogger(logger *slog.Logger) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.logger = logger
	}
}

// NewWebSocketTransport creates a transport for the debugging port at
// endpoint. No network activity happens until Open.
func NewWebSocketTransport(endpoint string, opts ...WebSocketOption) (*WebSocketTransport, error) {
	t := &WebSocketTransport{
		endpoint:   endpoint,
		attempts:   DefaultReadyAttempts,
		retryDelay: DefaultReadyDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.dialer = &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		WriteBufferSize:  writeBufferSize,
	}
	t.httpClient = &http.Client{Timeout: 5 * time.Second}

	if t.socksProxy != "" {
		d, err := proxy.SOCKS5("tcp", t.socksProxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("devtools: socks proxy %s: %w", t.socksProxy, err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("devtools: socks proxy %s does not support contexts", t.socksProxy)
		}
		t.dialer.NetDialContext = cd.DialContext
		t.httpClient.Transport = &http.Transport{DialContext: cd.DialContext}
	}

	return t, nil
}

// Target returns the page target selected during discovery, or nil when a
// socket URL was given explicitly.
func (t *WebSocketTransport) Target() *devtool.Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// Open discovers the page target if needed and dials its socket.
func (t *WebSocketTransport) Open(ctx context.Context) error {
	wsURL := t.wsURL
	if wsURL == "" {
		u, err := t.discover(ctx)
		if err != nil {
			return err
		}
		wsURL = u
	}

	conn, resp, err := t.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close() //nolint:errcheck // handshake body is not used
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

// discover polls the debugging endpoint until it lists a page target.
func (t *WebSocketTransport) discover(ctx context.Context) (string, error) {
	dt := devtool.New(t.endpoint, devtool.WithClient(t.httpClient))

	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		target, err := t.pageTarget(ctx, dt)
		if err == nil {
			t.mu.Lock()
			t.target = target
			t.mu.Unlock()
			t.logger.Debug("found page target", "id", target.ID, "url", target.URL)
			return target.WebSocketDebuggerURL, nil
		}
		lastErr = err
		t.logger.Debug("debugger not ready", "endpoint", t.endpoint, "attempt", attempt, "error", err)

		if attempt == t.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(t.retryDelay):
		}
	}
	return "", fmt.Errorf("%w: %s after %d attempts: %w", ErrDebuggerNotReady, t.endpoint, t.attempts, lastErr)
}

func (t *WebSocketTransport) pageTarget(ctx context.Context, dt *devtool.DevTools) (*devtool.Target, error) {
	targets, err := dt.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, target := range targets {
		if target.Type == devtool.Page && target.WebSocketDebuggerURL != "" {
			return target, nil
		}
	}
	target, err := dt.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("no page target and create failed: %w", err)
	}
	if target.WebSocketDebuggerURL == "" {
		return nil, errors.New("created target has no debugger url")
	}
	return target, nil
}

func (t *WebSocketTransport) socket() (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}
	return t.conn, nil
}

// WriteMessage sends one text frame.
func (t *WebSocketTransport) WriteMessage(ctx context.Context, data []byte) error {
	conn, err := t.socket()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage blocks for the next frame.
func (t *WebSocketTransport) ReadMessage(_ context.Context) ([]byte, error) {
	conn, err := t.socket()
	if err != nil {
		return nil, err
	}
	_, data, err := conn.ReadMessage()
	return data, err
}

// Close sends a close frame and closes the socket.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteControl( //nolint:errcheck // peer may already be gone
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	t.writeMu.Unlock()

	return conn.Close()
}
