// Package registry resolves logical generation service ids to endpoints.
// The mapping is loaded from an external document and replaced wholesale on
// reload, so lookups never observe a half-updated table.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/maauso/mediagen-api/internal/media"
)

// Static errors for service resolution.
var (
	// ErrServiceNotFound is returned when a service id is not in the registry.
	ErrServiceNotFound = errors.New("registry: service not found")
	// ErrNoServiceForKind is returned when no service can produce the requested kind.
	ErrNoServiceForKind = errors.New("registry: no service configured for kind")
)

// Service describes one generation backend.
type Service struct {
	// ID is the logical service id used by callers.
	ID string
	// EndpointURL is the tool server URL.
	EndpointURL string
	// Kind is the media kind the service produces.
	Kind media.Kind
	// DisplayName is a human readable name.
	DisplayName string
}

// Registry is a read-mostly table of services, safe for concurrent use.
type Registry struct {
	services atomic.Pointer[map[string]Service]
	defaults map[media.Kind]string
}

// Option configures a Registry.
type Option func(*Registry)

// WithDefault sets the service used for kind when the caller names none.
func WithDefault(kind media.Kind, serviceID string) Option {
	return func(r *Registry) {
		if serviceID != "" {
			r.defaults[kind] = serviceID
		}
	}
}

// New creates a registry holding a copy of services.
func New(services map[string]Service, opts ...Option) *Registry {
	r := &Registry{defaults: make(map[media.Kind]string)}
	for _, opt := range opts {
		opt(r)
	}
	r.Swap(services)
	return r
}

// Swap replaces the whole table. The map is copied; the caller keeps ownership.
func (r *Registry) Swap(services map[string]Service) {
	table := make(map[string]Service, len(services))
	for id, svc := range services {
		svc.ID = id
		table[id] = svc
	}
	r.services.Store(&table)
}

// Reload loads the document at path and swaps it in.
// The current table is kept when loading fails.
func (r *Registry) Reload(path string) error {
	services, err := LoadFile(path)
	if err != nil {
		return err
	}
	r.Swap(services)
	return nil
}

// Resolve returns the service registered under id.
func (r *Registry) Resolve(id string) (Service, error) {
	table := r.services.Load()
	if table != nil {
		if svc, ok := (*table)[id]; ok {
			return svc, nil
		}
	}
	return Service{}, fmt.Errorf("%w: %q", ErrServiceNotFound, id)
}

// DefaultFor returns the service used for kind when none is requested:
// the configured default if set, otherwise the first service of that kind
// in id order.
func (r *Registry) DefaultFor(kind media.Kind) (Service, error) {
	if id, ok := r.defaults[kind]; ok {
		return r.Resolve(id)
	}

	table := r.services.Load()
	if table == nil {
		return Service{}, fmt.Errorf("%w: %s", ErrNoServiceForKind, kind)
	}

	ids := make([]string, 0, len(*table))
	for id, svc := range *table {
		if svc.Kind == kind {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Service{}, fmt.Errorf("%w: %s", ErrNoServiceForKind, kind)
	}
	sort.Strings(ids)
	return (*table)[ids[0]], nil
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	table := r.services.Load()
	if table == nil {
		return 0
	}
	return len(*table)
}
