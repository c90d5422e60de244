package table

import "sync"

// Registry holds all table definitions, keyed by name. Definitions are
// registered during startup and read concurrently by request handlers.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Definition)}
}

// Register adds a definition. Later registrations replace earlier ones
// with the same name.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[def.Name] = def
}

// Get returns the definition with the given name, or nil.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables[name]
}

// All returns all registered definitions.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*Definition, 0, len(r.tables))
	for _, d := range r.tables {
		defs = append(defs, d)
	}
	return defs
}
