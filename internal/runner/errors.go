package runner

import "errors"

var (
	// ErrInvalidURL is returned for a target that is not an absolute http,
	// https, about or file URL.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrNoArtifactsDir is returned in audit-only mode without an artifacts
	// directory.
	ErrNoArtifactsDir = errors.New("audit-only mode requires an artifacts directory")
)
