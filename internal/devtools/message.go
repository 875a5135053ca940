package devtools

import (
	"encoding/json"

	"github.com/mafredri/cdp/protocol/runtime"
)

// command is the outgoing frame for SendCommand.
type command struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Message is an incoming frame. Responses carry an ID and either Result or
// Error. Events carry a Method and Params and no ID.
type Message struct {
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ProtocolError  `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// IsEvent reports whether m is an unsolicited event.
func (m *Message) IsEvent() bool {
	return m.ID == 0 && m.Method != ""
}

// exceptionDetails extracts Runtime exception details from a command result,
// or returns nil when the result does not carry any.
func exceptionDetails(result json.RawMessage) *runtime.ExceptionDetails {
	if len(result) == 0 {
		return nil
	}
	var r struct {
		ExceptionDetails *runtime.ExceptionDetails `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &r); err != nil {
		return nil
	}
	return r.ExceptionDetails
}
