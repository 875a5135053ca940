package gather

import "errors"

var (
	// ErrGathererFailed wraps a fatal gatherer error.
	ErrGathererFailed = errors.New("gatherer failed")

	// ErrSetupFailed wraps a failure while preparing the browser.
	ErrSetupFailed = errors.New("browser setup failed")

	// ErrAlreadyRun is returned when an Orchestrator is run twice.
	ErrAlreadyRun = errors.New("orchestrator already run")
)
