package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Trace event phases used by the timeline.
const (
	PhaseComplete = "X"
	PhaseBegin    = "B"
	PhaseEnd      = "E"
	PhaseInstant  = "I"
	PhaseMark     = "R"
	PhaseMetadata = "M"
)

// Event is a single trace event. Ts and Dur are in microseconds.
type Event struct {
	Pid  int             `json:"pid"`
	Tid  int             `json:"tid"`
	Ts   float64         `json:"ts"`
	Dur  float64         `json:"dur,omitempty"`
	Ph   string          `json:"ph"`
	Cat  string          `json:"cat"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// End returns the end timestamp of the event in microseconds.
func (e *Event) End() float64 {
	return e.Ts + e.Dur
}

// HasCategory reports whether cat appears in the event's comma separated
// category list.
func (e *Event) HasCategory(cat string) bool {
	return slices.Contains(strings.Split(e.Cat, ","), cat)
}

// Data is a normalized trace. It always serializes in the object shape.
type Data struct {
	TraceEvents []Event `json:"traceEvents"`
}

// Parse decodes raw trace JSON in either the array or the object shape.
func Parse(raw []byte) (*Data, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnknownFormat)
	}

	switch trimmed[0] {
	case '[':
		var events []Event
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("failed to decode trace events: %w", err)
		}
		return &Data{TraceEvents: events}, nil
	case '{':
		var obj struct {
			TraceEvents *[]Event `json:"traceEvents"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode trace object: %w", err)
		}
		if obj.TraceEvents == nil {
			return nil, fmt.Errorf("%w: object has no traceEvents", ErrUnknownFormat)
		}
		return &Data{TraceEvents: *obj.TraceEvents}, nil
	default:
		return nil, fmt.Errorf("%w: starts with %q", ErrUnknownFormat, trimmed[0])
	}
}

// FromEvents builds Data from events already decoded elsewhere, such as the
// chunks delivered by Tracing.dataCollected.
func FromEvents(events []Event) *Data {
	return &Data{TraceEvents: events}
}
