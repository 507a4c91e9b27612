package testutil

import (
	"context"
	"sync"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/remote"
)

// Resource names reported by StubSource.Entered and Calls.
const (
	ResourceProducts   = "products"
	ResourceCategories = "categories"
)

// StubSource is a scriptable remote.Source.
//
// By default every fetch returns the configured data immediately. After
// Gate, fetches block until the returned release function is called or the
// fetch context ends, which lets tests observe the pending phase.
//
// Thread-safety: all methods are safe for concurrent use.
type StubSource struct {
	mu            sync.Mutex
	products      []domain.Product
	productsErr   error
	categories    []domain.Category
	categoriesErr error
	gate          chan struct{}
	calls         map[string]int
	entered       chan string
}

var _ remote.Source = (*StubSource)(nil)

// NewStubSource returns a source serving empty lists.
func NewStubSource() *StubSource {
	return &StubSource{
		products:   []domain.Product{},
		categories: []domain.Category{},
		calls:      make(map[string]int),
		entered:    make(chan string, 16),
	}
}

// WithProducts sets the catalog returned by FetchCatalog.
func (s *StubSource) WithProducts(products ...domain.Product) *StubSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = domain.CloneProducts(products)
	s.productsErr = nil
	return s
}

// WithCategories sets the list returned by FetchCategories.
func (s *StubSource) WithCategories(categories ...domain.Category) *StubSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = domain.CloneCategories(categories)
	s.categoriesErr = nil
	return s
}

// FailProducts makes FetchCatalog fail. A nil err fails with a generic
// remote.UnavailableError.
func (s *StubSource) FailProducts(err error) *StubSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productsErr = unavailable(ResourceProducts, err)
	return s
}

// FailCategories makes FetchCategories fail.
func (s *StubSource) FailCategories(err error) *StubSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categoriesErr = unavailable(ResourceCategories, err)
	return s
}

// Gate makes subsequent fetches block. Call release to let them finish;
// release is idempotent.
func (s *StubSource) Gate() (release func()) {
	s.mu.Lock()
	gate := make(chan struct{})
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Entered receives a resource name each time a fetch starts.
func (s *StubSource) Entered() <-chan string {
	return s.entered
}

// Calls returns how many times resource was fetched.
func (s *StubSource) Calls(resource string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[resource]
}

func (s *StubSource) FetchCatalog(ctx context.Context) ([]domain.Product, error) {
	if err := s.enter(ctx, ResourceProducts); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.productsErr != nil {
		return nil, s.productsErr
	}
	return domain.CloneProducts(s.products), nil
}

func (s *StubSource) FetchCategories(ctx context.Context) ([]domain.Category, error) {
	if err := s.enter(ctx, ResourceCategories); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoriesErr != nil {
		return nil, s.categoriesErr
	}
	return domain.CloneCategories(s.categories), nil
}

// enter records the call, announces it, and waits on the gate if one is set.
func (s *StubSource) enter(ctx context.Context, resource string) error {
	s.mu.Lock()
	s.calls[resource]++
	gate := s.gate
	s.mu.Unlock()

	select {
	case s.entered <- resource:
	default:
	}

	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return unavailable(resource, ctx.Err())
	}
}

func unavailable(resource string, err error) error {
	if remote.IsUnavailable(err) {
		return err
	}
	return &remote.UnavailableError{Resource: resource, Err: err}
}
