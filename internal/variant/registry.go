package variant

import (
	"fmt"
	"slices"
	"sync"

	"github.com/born-ml/tomo/internal/config"
)

// Factory builds a Source from its inputs and parameters.
type Factory func(sources []Source, params config.Params) (Source, error)

// Registry maps variant names to factories. Lookups are exact-match.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry creates a registry holding the built-in variants:
// "plain", "darkflat", "stacked", "concatenated" and "replicated".
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(KindPlain.String(), plainFactory)
	r.MustRegister(KindDarkFlat.String(), darkFlatFactory)
	r.MustRegister(KindStacked.String(), stackedFactory)
	r.MustRegister(KindConcatenated.String(), concatenatedFactory)
	r.MustRegister(KindReplicated.String(), replicatedFactory)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("variant %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Build looks up name and runs its factory.
func (r *Registry) Build(name string, sources []Source, params config.Params) (Source, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	s, err := f(sources, params)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	return s, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func exactly(n int, sources []Source) error {
	if len(sources) != n {
		return fmt.Errorf("expected %d source(s), got %d: %w", n, len(sources), ErrIncompatibleSources)
	}
	return nil
}

func plainFactory(sources []Source, _ config.Params) (Source, error) {
	if err := exactly(1, sources); err != nil {
		return nil, err
	}
	return sources[0], nil
}

// darkFlatFactory accepts either one source with an "image_key" parameter,
// or up to three sources (data, dark, flat) with separate calibration.
func darkFlatFactory(sources []Source, params config.Params) (Source, error) {
	axis, err := params.Int("axis", 0)
	if err != nil {
		return nil, err
	}
	var opts []DarkFlatOption
	if params.Has("dark_scale") {
		f, err := params.Float("dark_scale", 1)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDarkScale(float32(f)))
	}
	if params.Has("flat_scale") {
		f, err := params.Float("flat_scale", 1)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithFlatScale(float32(f)))
	}

	switch len(sources) {
	case 1:
		codes, err := params.Ints("image_key")
		if err != nil {
			return nil, err
		}
		key, err := NewImageKey(codes)
		if err != nil {
			return nil, err
		}
		return NewDarkFlat(sources[0], axis, key, opts...)
	case 2:
		return NewDarkFlatFromSources(sources[0], axis, sources[1], nil, opts...)
	case 3:
		return NewDarkFlatFromSources(sources[0], axis, sources[1], sources[2], opts...)
	default:
		return nil, fmt.Errorf("expected 1 to 3 sources, got %d: %w", len(sources), ErrIncompatibleSources)
	}
}

func stackedFactory(sources []Source, params config.Params) (Source, error) {
	axis, err := params.Int("axis", 0)
	if err != nil {
		return nil, err
	}
	return NewStacked(axis, sources...)
}

func concatenatedFactory(sources []Source, params config.Params) (Source, error) {
	axis, err := params.Int("axis", 0)
	if err != nil {
		return nil, err
	}
	return NewConcatenated(axis, sources...)
}

func replicatedFactory(sources []Source, params config.Params) (Source, error) {
	if err := exactly(1, sources); err != nil {
		return nil, err
	}
	n, err := params.Int("n", 0)
	if err != nil {
		return nil, err
	}
	return NewReplicated(sources[0], n)
}
