package step

import (
	"sort"
	"sync"

	"github.com/healtheconlab/ceflow/pkg/schema"
)

// Registry is a thread-safe name-to-step lookup. The engine resolves router
// directives through it, so an unregistered step name is a wiring defect.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// Register adds a step to the registry. Returns error on duplicate name.
func (r *Registry) Register(s Step) error {
	if s == nil {
		return schema.NewError(schema.ErrCodeValidation, "step is nil")
	}
	name := s.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "step name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "step %q already registered", name)
	}

	r.steps[name] = s
	return nil
}

// Get retrieves a step by name.
func (r *Registry) Get(name string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.steps[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "step %q not registered", name)
	}
	return s, nil
}

// Names returns the registered step names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
