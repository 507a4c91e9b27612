package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/shopsync/internal/domain"
)

// Source returns authoritative entity lists or fails.
// Implementations must honor ctx cancellation.
type Source interface {
	FetchCatalog(ctx context.Context) ([]domain.Product, error)
	FetchCategories(ctx context.Context) ([]domain.Category, error)
}

// Ensure implementations satisfy Source at compile time.
var (
	_ Source = (*Client)(nil)
	_ Source = (*FileSource)(nil)
	_ Source = Offline{}
)

// UnavailableError reports that a resource could not be fetched.
type UnavailableError struct {
	Resource string
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("remote %s unavailable", e.Resource)
	}
	return fmt.Sprintf("remote %s unavailable: %v", e.Resource, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is an *UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// ErrOffline is wrapped by every Offline failure.
var ErrOffline = errors.New("offline")

// Offline is a Source with no network. Every fetch fails immediately.
type Offline struct{}

func (Offline) FetchCatalog(context.Context) ([]domain.Product, error) {
	return nil, &UnavailableError{Resource: "products", Err: ErrOffline}
}

func (Offline) FetchCategories(context.Context) ([]domain.Category, error) {
	return nil, &UnavailableError{Resource: "categories", Err: ErrOffline}
}
