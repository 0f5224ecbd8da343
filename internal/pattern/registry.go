package pattern

import (
	"fmt"
	"slices"
	"sync"
)

// Registry stores the access patterns of one dataset.
//
// A Registry is safe for concurrent use. It holds no notion of a current
// pattern; callers select one through a Selection they own.
type Registry struct {
	mu       sync.RWMutex
	rank     int
	patterns map[Name]Pattern
	order    []Name
	frozen   bool
}

// NewRegistry creates an empty registry for datasets of the given rank.
func NewRegistry(rank int) *Registry {
	return &Registry{
		rank:     rank,
		patterns: make(map[Name]Pattern),
	}
}

// Rank returns the dataset rank the registry validates against.
func (r *Registry) Rank() int {
	return r.rank
}

// Register validates and stores a pattern.
//
// Registering the same definition twice is a no-op; a conflicting definition
// for an existing name returns ErrDuplicate. After Freeze, new patterns are
// rejected.
func (r *Registry) Register(name Name, core, slice []int) (Pattern, error) {
	p, err := New(name, core, slice, r.rank)
	if err != nil {
		return Pattern{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.patterns[name]; ok {
		if equalPattern(existing, p) {
			return existing.Clone(), nil
		}
		return Pattern{}, fmt.Errorf("%w: %s is %v, cannot redefine as %v", ErrDuplicate, name, existing, p)
	}
	if r.frozen {
		return Pattern{}, fmt.Errorf("register %s: registry is frozen", name)
	}

	r.patterns[name] = p
	r.order = append(r.order, name)
	return p.Clone(), nil
}

// Freeze makes the registry read-only. Called when processing starts.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Get returns a copy of the named pattern.
func (r *Registry) Get(name Name) (Pattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patterns[name]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: %s", ErrUnknownPattern, name)
	}
	return p.Clone(), nil
}

// Has reports whether the named pattern is registered.
func (r *Registry) Has(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.patterns[name]
	return ok
}

// Names returns registered pattern names in registration order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Clone returns an unfrozen copy, used when deriving one dataset from another.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := NewRegistry(r.rank)
	for _, name := range r.order {
		out.patterns[name] = r.patterns[name].Clone()
		out.order = append(out.order, name)
	}
	return out
}

// Select returns a new Selection over the registry with no active pattern.
func (r *Registry) Select() *Selection {
	return &Selection{registry: r}
}

// Selection tracks which pattern of a registry a caller operates against.
// It is owned by a single stage and is not safe for concurrent use.
type Selection struct {
	registry *Registry
	active   *Pattern
}

// Activate selects the named pattern.
func (s *Selection) Activate(name Name) (Pattern, error) {
	p, err := s.registry.Get(name)
	if err != nil {
		return Pattern{}, err
	}
	s.active = &p
	return p.Clone(), nil
}

// Active returns the active pattern.
func (s *Selection) Active() (Pattern, error) {
	if s.active == nil {
		return Pattern{}, ErrNoPatternActive
	}
	return s.active.Clone(), nil
}

// CoreDims returns the normalized core dimensions of the active pattern.
func (s *Selection) CoreDims() ([]int, error) {
	if s.active == nil {
		return nil, ErrNoPatternActive
	}
	return slices.Clone(s.active.Core), nil
}

// SliceDims returns the normalized slice dimensions of the active pattern.
func (s *Selection) SliceDims() ([]int, error) {
	if s.active == nil {
		return nil, ErrNoPatternActive
	}
	return slices.Clone(s.active.Slice), nil
}

func equalPattern(a, b Pattern) bool {
	return a.Name == b.Name && slices.Equal(a.Core, b.Core) && slices.Equal(a.Slice, b.Slice)
}
