package gather

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/nao1215/lightscan/internal/config"
)

// Entry describes a registered gatherer.
type Entry struct {
	// New returns a fresh gatherer. Gatherers may keep state across the
	// phases of one run, so one instance is never shared between runs.
	New func() Gatherer

	// Decode rebuilds the gatherer's artifact from its saved JSON.
	Decode func(raw json.RawMessage) (any, error)
}

// Registry maps gatherer names to their entries.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces the entry for name.
func (r *Registry) Register(name string, e Entry) {
	r.entries[name] = e
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.entries))
}

// New instantiates the gatherer registered as name.
func (r *Registry) New(name string) (Gatherer, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownGatherer, name)
	}
	return e.New(), nil
}

// Decode rebuilds a saved artifact. Artifacts of unregistered gatherers, or
// of gatherers without a decoder, decode to generic JSON values.
func (r *Registry) Decode(name string, raw json.RawMessage) (any, error) {
	if e, ok := r.entries[name]; ok && e.Decode != nil {
		return e.Decode(raw)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s artifact: %w", name, err)
	}
	return v, nil
}

// decodeAs returns a decoder producing *T.
func decodeAs[T any](raw json.RawMessage) (any, error) {
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

// DefaultRegistry returns a registry holding the built-in gatherers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(URLGathererName, Entry{
		New:    func() Gatherer { return &URLGatherer{} },
		Decode: decodeAs[URLArtifact],
	})
	r.Register(UserAgentGathererName, Entry{
		New:    func() Gatherer { return &UserAgentGatherer{} },
		Decode: decodeAs[UserAgentArtifact],
	})
	r.Register(ViewportDimensionsGathererName, Entry{
		New:    func() Gatherer { return &ViewportDimensionsGatherer{} },
		Decode: decodeAs[ViewportDimensions],
	})
	r.Register(ServiceWorkerGathererName, Entry{
		New:    func() Gatherer { return &ServiceWorkerGatherer{} },
		Decode: decodeAs[ServiceWorkerArtifact],
	})
	return r
}
