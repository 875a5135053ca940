package devtools

import (
	"errors"
	"fmt"

	"github.com/mafredri/cdp/protocol/runtime"
)

// Connection errors.
var (
	// ErrNotConnected is returned by SendCommand when the connection has not
	// been established, or was torn down or detached.
	ErrNotConnected = errors.New("devtools: not connected")

	// ErrDetached is delivered on Conn.Detached when the target goes away
	// while a session is active.
	ErrDetached = errors.New("devtools: target detached")

	// ErrConnectionClosed rejects commands still pending when Disconnect is called.
	ErrConnectionClosed = errors.New("devtools: connection closed")

	// ErrDebuggerNotReady is returned when the remote debugging endpoint did
	// not answer within the readiness retry budget.
	ErrDebuggerNotReady = errors.New("devtools: debugger not ready")
)

// ProtocolError is an error response sent by the browser for a command.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`

	// Method is the command that failed. It is filled in locally.
	Method string `json:"-"`
}

// Error implements error.
func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("devtools: %s failed: %s (code %d)", e.Method, e.Message, e.Code)
	if e.Data != "" {
		msg += ": " + e.Data
	}
	return msg
}

// ExceptionError is returned when a command completed at the protocol level
// but the page threw while evaluating it (Runtime.evaluate and friends).
type ExceptionError struct {
	Method  string
	Details runtime.ExceptionDetails
}

// Error implements error.
func (e *ExceptionError) Error() string {
	desc := e.Details.Text
	if e.Details.Exception != nil && e.Details.Exception.Description != nil {
		desc = *e.Details.Exception.Description
	}
	return fmt.Sprintf("devtools: %s threw at %d:%d: %s",
		e.Method, e.Details.LineNumber, e.Details.ColumnNumber, desc)
}
