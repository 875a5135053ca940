package model

import (
	"errors"
	"fmt"

	"github.com/nao1215/lightscan/internal/trace"
)

// Artifacts is the bag of data gathered during a run. It is built during
// gathering and treated as read-only once handed to audits.
type Artifacts struct {
	// Values maps an artifact name (the name of the gatherer that produced
	// it) to its value. A gatherer that failed non-fatally stores an
	// *ArtifactError instead.
	Values map[string]any `json:"values"`

	// Traces maps a pass name to the trace recorded during that pass.
	Traces map[string]*trace.Data `json:"traces"`

	// NetworkRecords maps a pass name to the requests observed during that pass.
	NetworkRecords map[string][]NetworkRecord `json:"network_records"`
}

// NewArtifacts returns an empty Artifacts with all maps initialized.
func NewArtifacts() *Artifacts {
	return &Artifacts{
		Values:         make(map[string]any),
		Traces:         make(map[string]*trace.Data),
		NetworkRecords: make(map[string][]NetworkRecord),
	}
}

// Get returns the artifact named name.
func (a *Artifacts) Get(name string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.Values[name]
	return v, ok
}

// Has reports whether name was produced, successfully or not. The pseudo
// artifacts "traces" and "networkRecords" are present when at least one
// pass recorded them.
func (a *Artifacts) Has(name string) bool {
	if a == nil {
		return false
	}
	switch name {
	case ArtifactTraces:
		return len(a.Traces) > 0
	case ArtifactNetworkRecords:
		return len(a.NetworkRecords) > 0
	}
	_, ok := a.Values[name]
	return ok
}

// Names of artifacts that are recorded by the orchestrator itself rather than
// by a gatherer.
const (
	ArtifactTraces         = "traces"
	ArtifactNetworkRecords = "networkRecords"
)

// ArtifactError is stored in place of an artifact when its gatherer failed
// without aborting the run.
type ArtifactError struct {
	// Gatherer is the name of the gatherer that failed.
	Gatherer string `json:"gatherer"`

	// Message is the failure message. It survives a round trip through an
	// artifact snapshot; Err does not.
	Message string `json:"message"`

	// Err is the original error, when available.
	Err error `json:"-"`
}

// NewArtifactError wraps err as the artifact of gatherer.
func NewArtifactError(gatherer string, err error) *ArtifactError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ArtifactError{Gatherer: gatherer, Message: msg, Err: err}
}

// Error implements error.
func (e *ArtifactError) Error() string {
	return fmt.Sprintf("%s gatherer: %s", e.Gatherer, e.Message)
}

// Unwrap returns the original error.
func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// AsArtifactError reports whether v is an artifact error and returns it.
func AsArtifactError(v any) (*ArtifactError, bool) {
	err, ok := v.(error)
	if !ok {
		return nil, false
	}
	var ae *ArtifactError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
