package provider

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownProvider indicates a request named a provider that is not
// registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Registry maps provider identifiers to gateways. It is populated once at
// startup and read-only afterward, so no locking is needed.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Gateway)}
}

// Register adds a gateway under an identifier, replacing any previous one.
func (r *Registry) Register(id string, gw Gateway) {
	r.gateways[id] = gw
}

// Get returns the gateway registered under id.
func (r *Registry) Get(id string) (Gateway, error) {
	gw, ok := r.gateways[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return gw, nil
}

// IDs returns the registered provider identifiers, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
