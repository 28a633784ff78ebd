package channel

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Factory builds one platform's inbound/outbound pair from its opaque
// credential mapping. Missing required fields surface as
// ErrMissingCredentials, which the registry treats as fatal configuration.
type Factory func(creds Credentials, opts Options) (Inbound, Outbound, error)

// ErrUnknownPlatform is returned by Resolve for unregistered platform names.
var ErrUnknownPlatform = errors.New("unknown platform")

// Registry maps platform names to channel factories. Adding a platform is
// one Register call; dispatch logic never changes per platform.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a platform name to its factory, replacing any previous
// binding for the same name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Resolve constructs the inbound/outbound pair for one platform.
func (r *Registry) Resolve(name string, creds Credentials, opts Options) (Inbound, Outbound, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
	}

	inbound, outbound, err := factory(creds, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("construct %s channel: %w", name, err)
	}

	return inbound, outbound, nil
}

// Platforms lists registered platform names in sorted order.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
