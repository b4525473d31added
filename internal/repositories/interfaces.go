package repositories

import (
	"context"
	"errors"

	"github.com/hanko-field/quickorder/internal/domain"
)

// RepositoryError categorises persistence failures for callers.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err is a RepositoryError for a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsUnavailable reports whether err is a transient RepositoryError.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// CounterRepository hands out monotonically increasing sequence values.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// RuleRepository loads the active price rules of a website.
type RuleRepository interface {
	CatalogRules(ctx context.Context, websiteID string) ([]domain.CatalogRule, error)
	CartRules(ctx context.Context, websiteID string) ([]domain.CartRule, error)
}

// PaymentMethodConfigRepository lists payment methods configured for a store.
type PaymentMethodConfigRepository interface {
	ListConfigured(ctx context.Context, storeID string) ([]domain.RegisteredPaymentMethod, error)
}

// HealthRepository reports the status of downstream dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
