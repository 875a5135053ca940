package driver

import "errors"

var (
	// ErrPageLoadTimeout is returned by GotoURL when the load event does not
	// fire within the configured wait.
	ErrPageLoadTimeout = errors.New("page load timed out")

	// ErrNavigationFailed is returned when the browser rejects a navigation,
	// for example because the host could not be resolved.
	ErrNavigationFailed = errors.New("navigation failed")

	// ErrTraceNotStarted is returned by EndTrace without a matching BeginTrace.
	ErrTraceNotStarted = errors.New("trace was not started")

	// ErrTraceInProgress is returned by BeginTrace while a trace is recording.
	ErrTraceInProgress = errors.New("trace already in progress")

	// ErrNoOrigin is returned by Origin for URLs without a host, such as
	// about:blank.
	ErrNoOrigin = errors.New("url has no origin")

	// ErrNetworkNotStarted is returned by EndNetworkCollect without a
	// matching BeginNetworkCollect.
	ErrNetworkNotStarted = errors.New("network collection was not started")
)
