// Package devtools implements the wire level of the Chrome DevTools Protocol.
//
// A Conn turns an asynchronous, multiplexed Transport into two simpler
// primitives:
//
//   - SendCommand, which assigns a fresh id to a command and blocks until the
//     response carrying the same id arrives, and
//   - an event bus (On, Once, Off) that fans unsolicited events out to
//     per-method subscribers in registration order.
//
// Two transports are provided. WebSocketTransport talks to the browser's
// remote debugging port and discovers the page target through the
// /json endpoints. PipeTransport speaks NUL-delimited frames over a reader and
// writer pair, which is what Chrome exposes with --remote-debugging-pipe.
//
// # Usage
//
//	t, err := devtools.NewWebSocketTransport("http://127.0.0.1:9222")
//	if err != nil {
//		return err
//	}
//	conn := devtools.NewConn(t)
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	defer conn.Disconnect()
//
//	sub := conn.On("Page.loadEventFired", func(params json.RawMessage) {
//		// ...
//	})
//	defer sub.Cancel()
//
//	if _, err := conn.SendCommand(ctx, "Page.enable", nil); err != nil {
//		return err
//	}
//
// Event handlers run on the connection's read goroutine. A handler must not
// wait for the result of SendCommand, since the response can only be read
// after the handler returns.
package devtools
