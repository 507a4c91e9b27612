package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/roach88/shopsync/internal/domain"
)

// Catalog is the JSON document read by FileSource.
type Catalog struct {
	Products   []domain.Product  `json:"products"`
	Categories []domain.Category `json:"categories"`
}

// FileSource serves a catalog fixture from disk. The file is read on every
// fetch, so a missing file behaves like an unreachable server.
type FileSource struct {
	path string
}

// NewFileSource returns a source backed by the JSON file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) FetchCatalog(ctx context.Context) ([]domain.Product, error) {
	cat, err := f.load(ctx, "products")
	if err != nil {
		return nil, err
	}
	if err := validateAll(cat.Products); err != nil {
		return nil, &UnavailableError{Resource: "products", Err: err}
	}
	return cat.Products, nil
}

func (f *FileSource) FetchCategories(ctx context.Context) ([]domain.Category, error) {
	cat, err := f.load(ctx, "categories")
	if err != nil {
		return nil, err
	}
	if err := validateAll(cat.Categories); err != nil {
		return nil, &UnavailableError{Resource: "categories", Err: err}
	}
	return cat.Categories, nil
}

func (f *FileSource) load(ctx context.Context, resource string) (Catalog, error) {
	if err := ctx.Err(); err != nil {
		return Catalog{}, &UnavailableError{Resource: resource, Err: err}
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Catalog{}, &UnavailableError{Resource: resource, Err: err}
	}
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return Catalog{}, &UnavailableError{Resource: resource, Err: fmt.Errorf("parse %s: %w", f.path, err)}
	}
	return cat, nil
}
