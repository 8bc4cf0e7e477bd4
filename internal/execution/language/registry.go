package language

import (
	"sort"
	"sync"
)

// Registry holds the descriptors of every supported language.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[Language]Descriptor
	aliases     map[string]Language
}

// NewRegistry builds a registry from specs. Later specs replace earlier ones with the same id.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[Language]Descriptor),
		aliases:     make(map[string]Language),
	}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultRegistry returns a registry holding DefaultSpecs.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultSpecs()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register compiles spec and adds or replaces its entry.
func (r *Registry) Register(spec Spec) error {
	d, err := compileSpec(spec)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[d.id] = d
	for _, alias := range spec.Aliases {
		if name := Normalize(alias); name != "" {
			r.aliases[name] = d.id
		}
	}
	return nil
}

// Describe returns the descriptor for lang.
func (r *Registry) Describe(lang Language) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[lang]
	if !ok {
		return nil, unsupported(string(lang))
	}
	return d, nil
}

// Resolve normalizes a caller supplied name, follows aliases and returns the descriptor.
func (r *Registry) Resolve(raw string) (Descriptor, error) {
	name := Normalize(raw)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.descriptors[Language(name)]; ok {
		return d, nil
	}
	if id, ok := r.aliases[name]; ok {
		if d, ok := r.descriptors[id]; ok {
			return d, nil
		}
	}
	return nil, unsupported(raw)
}

// Languages returns the registered ids in sorted order.
func (r *Registry) Languages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Language, 0, len(r.descriptors))
	for id := range r.descriptors {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
