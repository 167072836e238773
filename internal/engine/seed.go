package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/artpar/crudkit/internal/core/domain"
	"github.com/artpar/crudkit/internal/shell/store"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout of a seed file:
//
//	widgets:
//	  - name: Sprocket
//	    price_cents: 250
//	notes:
//	  - id: welcome
//	    title: Hello
type SeedFile struct {
	Widgets []WidgetSeed `yaml:"widgets"`
	Notes   []NoteSeed   `yaml:"notes"`
}

// WidgetSeed is one widget in a seed file.
type WidgetSeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	PriceCents  int64  `yaml:"price_cents"`
}

// NoteSeed is one note in a seed file. ID is optional.
type NoteSeed struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// ParseSeeds decodes a seed file. Unknown keys are rejected.
func ParseSeeds(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seeds SeedFile
	if err := dec.Decode(&seeds); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}
	return &seeds, nil
}

// LoadSeedFile reads the seed file at path and applies it.
func LoadSeedFile(ctx context.Context, b *Backend, path string, logger *slog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	seeds, err := ParseSeeds(f)
	if err != nil {
		return 0, err
	}
	return ApplySeeds(ctx, b.Provider(), seeds, logger)
}

// ApplySeeds creates every seeded entity in a single unit of work. Either all
// of them are stored or none are.
func ApplySeeds(ctx context.Context, p store.Provider, seeds *SeedFile, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	uow, err := p.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer uow.Close()

	widgets, err := store.Resolve[store.Repository[int64, *domain.Widget]](uow)
	if err != nil {
		return 0, err
	}
	notes, err := store.Resolve[store.Repository[string, *domain.Note]](uow)
	if err != nil {
		return 0, err
	}

	for i, s := range seeds.Widgets {
		w, err := domain.NewWidget(s.Name, s.Description, s.PriceCents)
		if err != nil {
			return 0, fmt.Errorf("widget %d: %w", i, err)
		}
		if err := widgets.Create(ctx, w); err != nil {
			return 0, fmt.Errorf("widget %d: %w", i, err)
		}
	}
	for i, s := range seeds.Notes {
		n := &domain.Note{ID: s.ID, Title: s.Title, Body: s.Body}
		if err := n.Validate(); err != nil {
			return 0, fmt.Errorf("note %d: %w", i, err)
		}
		if err := notes.Create(ctx, n); err != nil {
			return 0, fmt.Errorf("note %d: %w", i, err)
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit seeds: %w", err)
	}

	count := len(seeds.Widgets) + len(seeds.Notes)
	logger.Info("seeds applied", "widgets", len(seeds.Widgets), "notes", len(seeds.Notes))
	return count, nil
}
