package notifier

import (
	"fmt"
	"sort"

	"github.com/Strob0t/Sofia/internal/domain/orchestration"
)

// Registry maps output types to notifiers. It is built once at startup and
// handed to the dispatcher; it is not safe for registration after that.
type Registry struct {
	notifiers map[orchestration.OutputType]Notifier
}

// NewRegistry creates a registry holding the given notifiers.
// It panics on duplicate names, which is a wiring bug.
func NewRegistry(ns ...Notifier) *Registry {
	r := &Registry{notifiers: make(map[orchestration.OutputType]Notifier, len(ns))}
	for _, n := range ns {
		if _, exists := r.notifiers[n.Name()]; exists {
			panic(fmt.Sprintf("notifier: duplicate registration for %q", n.Name()))
		}
		r.notifiers[n.Name()] = n
	}
	return r
}

// Get returns the notifier for the output type.
func (r *Registry) Get(t orchestration.OutputType) (Notifier, error) {
	n, ok := r.notifiers[t]
	if !ok {
		return nil, fmt.Errorf("notifier: unknown output type %q", t)
	}
	return n, nil
}

// Available returns the registered output types, sorted.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.notifiers))
	for name := range r.notifiers {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
