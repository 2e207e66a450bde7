package pool

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/pitchelo/internal/domain/model"
)

// entry is one candidate line of a pool file.
type entry struct {
	ID     string  `koanf:"id" validate:"required,max=64"`
	Name   string  `koanf:"name" validate:"required"`
	Metric float64 `koanf:"metric"`
}

type document struct {
	Categories map[string][]entry `koanf:"categories"`
}

// FileProvider reads pools from a YAML file on every call, so edits are
// picked up; wrap it in Cached to bound the reads.
//
//	categories:
//	  al_cy_young:
//	    - {id: "669373", name: Tarik Skubal, metric: 2.39}
type FileProvider struct {
	path     string
	size     int
	validate *validator.Validate
}

// FileOption applies a configuration option to the FileProvider.
type FileOption func(*FileProvider)

// WithPoolSize caps how many candidates per category are served.
func WithPoolSize(n int) FileOption {
	return func(p *FileProvider) {
		if n > 0 {
			p.size = n
		}
	}
}

// NewFileProvider checks that path parses and returns a provider over it.
func NewFileProvider(path string, opts ...FileOption) (*FileProvider, error) {
	p := &FileProvider{path: path, size: DefaultSize, validate: validator.New(validator.WithRequiredStructEnabled())}
	for _, opt := range opts {
		opt(p)
	}
	if _, err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

// ListCandidates implements Provider.
func (p *FileProvider) ListCandidates(ctx context.Context, category model.Category) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownCategory, category)
	}
	pools, err := p.load()
	if err != nil {
		return nil, err
	}
	return pools[category], nil
}

func (p *FileProvider) load() (map[model.Category][]model.Candidate, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(p.path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidPool, p.path, err)
	}
	var doc document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidPool, p.path, err)
	}

	out := make(map[model.Category][]model.Candidate, len(doc.Categories))
	for key, entries := range doc.Categories {
		cat, err := model.ParseCategory(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPool, err)
		}
		cands := make([]model.Candidate, 0, len(entries))
		for i, e := range entries {
			e.ID, e.Name = strings.TrimSpace(e.ID), strings.TrimSpace(e.Name)
			if err := p.validate.Struct(e); err != nil {
				return nil, fmt.Errorf("%w: %s entry %d: %w", ErrInvalidPool, cat, i, err)
			}
			cands = append(cands, model.Candidate{ID: e.ID, Name: e.Name, Metric: e.Metric})
		}
		out[cat] = rank(cands, p.size)
	}
	return out, nil
}
