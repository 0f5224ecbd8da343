package dataset

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/born-ml/tomo/internal/config"
	"github.com/born-ml/tomo/internal/container"
	"github.com/born-ml/tomo/internal/pattern"
	"github.com/born-ml/tomo/internal/store"
	"github.com/born-ml/tomo/internal/variant"
)

// OpenContainer opens a .tomo file as a read-only dataset that decodes
// blocks on demand.
//
// Patterns stored in the file are registered. If the file carries an image
// key and no variant option is given, the dataset is composed as darkflat.
func OpenContainer(path string, opts ...Option) (*Dataset, error) {
	r, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	h := r.Header()
	opts = append(containerOptions(h), opts...)
	d, err := FromHandle(r, opts...)
	if err != nil {
		return nil, err
	}
	if err := registerPatterns(d, h.Patterns); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Load copies a .tomo file into a new array named name in st and opens it
// as a dataset, the same way OpenContainer does.
func Load(ctx context.Context, path string, st store.Store, name string, opts ...Option) (*Dataset, error) {
	r, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	h, err := st.Create(ctx, name, r.Shape(), r.DType())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := r.CopyTo(ctx, h); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := h.Close(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	header := r.Header()
	d, err := Open(ctx, st, name, append(containerOptions(header), opts...)...)
	if err != nil {
		return nil, err
	}
	if err := registerPatterns(d, header.Patterns); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Save writes the logical contents of d to a .tomo file.
func Save(ctx context.Context, d *Dataset, path string, c container.Compression) error {
	contents := container.Contents{
		ID:       d.id.String(),
		Name:     d.name,
		Metadata: d.metadata,
	}
	for _, name := range d.patterns.Names() {
		p, err := d.patterns.Get(name)
		if err != nil {
			return err
		}
		contents.Patterns = append(contents.Patterns, container.PatternMeta{
			Name:  string(p.Name),
			Core:  p.Core,
			Slice: p.Slice,
		})
	}

	acc, err := d.OpenForRead()
	if err != nil {
		return err
	}
	defer acc.Close()

	if err := container.NewWriter(path, container.WithCompression(c)).Write(ctx, acc, contents); err != nil {
		return fmt.Errorf("save %s: %w", d.name, err)
	}
	return nil
}

func containerOptions(h container.Header) []Option {
	var opts []Option
	if id, err := uuid.Parse(h.ID); err == nil {
		opts = append(opts, WithID(id))
	}
	if len(h.Metadata) > 0 {
		opts = append(opts, WithMetadata(h.Metadata))
	}
	if h.ImageKey != nil {
		opts = append(opts, WithVariant(variant.KindDarkFlat.String(), config.Params{
			"axis":      h.ImageKey.Axis,
			"image_key": h.ImageKey.Codes,
		}))
	}
	return opts
}

// registerPatterns registers stored patterns. Patterns of a different rank
// than the composed dataset (a replicated view, say) are skipped.
func registerPatterns(d *Dataset, patterns []container.PatternMeta) error {
	for _, p := range patterns {
		if len(p.Core)+len(p.Slice) != d.patterns.Rank() {
			continue
		}
		if _, err := d.RegisterPattern(pattern.Name(p.Name), p.Core, p.Slice); err != nil {
			return err
		}
	}
	return nil
}
