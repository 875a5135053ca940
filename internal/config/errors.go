package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and File.Validate() so that
// callers can use errors.Is() while still printing a useful message.
var (
	// ErrNoTarget is returned when no URL is given and the run is not audit-only.
	ErrNoTarget = errors.New("no target specified: provide a URL to audit")

	// ErrInvalidPort is returned when the debugging port is out of range.
	ErrInvalidPort = errors.New("invalid port: must be between 1 and 65535")

	// ErrInvalidMaxWait is returned when the page load timeout is negative.
	ErrInvalidMaxWait = errors.New("invalid max wait for load: must be non-negative")

	// ErrConflictingModes is returned when both --gather-only and --audit-only
	// are specified.
	ErrConflictingModes = errors.New("conflicting modes: --gather-only and --audit-only cannot be used together")

	// ErrInvalidOutputFormat is returned for an unknown --output value.
	ErrInvalidOutputFormat = errors.New("invalid output format: must be json, markdown or text")

	// ErrInvalidAuditConcurrency is returned when audit concurrency is not positive.
	ErrInvalidAuditConcurrency = errors.New("invalid audit concurrency: must be positive")

	// ErrNoPasses is returned for a run configuration without passes.
	ErrNoPasses = errors.New("run configuration has no passes")

	// ErrDuplicatePass is returned when two passes share a name.
	ErrDuplicatePass = errors.New("duplicate pass name")

	// ErrDuplicateArtifact is returned when a gatherer appears more than once
	// in a run. Each artifact must be produced by exactly one gatherer.
	ErrDuplicateArtifact = errors.New("duplicate artifact: gatherer listed more than once")

	// ErrUnknownGatherer is returned for a gatherer name that is not registered.
	ErrUnknownGatherer = errors.New("unknown gatherer")

	// ErrUnknownAudit is returned for an audit name that is not registered or
	// a category that references an audit the run does not include.
	ErrUnknownAudit = errors.New("unknown audit")

	// ErrInvalidCategory is returned for a category without an ID.
	ErrInvalidCategory = errors.New("invalid category: id is required")

	// ErrInvalidWeight is returned for a negative category or audit weight.
	ErrInvalidWeight = errors.New("invalid weight: must be non-negative")
)
