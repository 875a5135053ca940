package trace

import "errors"

var (
	// ErrNoMainThread is returned for a trace without a TracingStartedInPage
	// event, which makes the main thread impossible to identify.
	ErrNoMainThread = errors.New("malformed trace: no TracingStartedInPage event")

	// ErrNoDataInWindow is returned when the analysis window is empty.
	ErrNoDataInWindow = errors.New("no data in analysis window")

	// ErrUnknownFormat is returned by Parse for input that is neither an
	// array of events nor an object with a traceEvents array.
	ErrUnknownFormat = errors.New("unknown trace format")

	// ErrInvalidPercentiles is returned when percentiles are not ascending
	// values in (0, 1].
	ErrInvalidPercentiles = errors.New("percentiles must be ascending values in (0, 1]")
)
