package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrStaleVersion is returned by versioned updates when the stored row was
// modified after it was read.
var ErrStaleVersion = errors.New("row version changed since read")

// IsNotFoundError reports whether err means the row does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateError reports whether err is a unique constraint violation,
// such as a second in-progress attempt for the same test and student.
func IsDuplicateError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Repository aggregates the per-domain repositories behind one handle.
type Repository interface {
	Test() TestRepository
	Attempt() AttemptRepository

	// User domain (read-only, backed by the identity provider)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
