package store

import (
	"context"
	"errors"

	"libraryhub/pkg/domain"
)

var (
	// ErrVersionConflict is returned by SaveLoan when either record changed
	// since it was read. Neither record is written in that case.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateKey wraps unique-constraint violations (ISBN, user_id).
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store persists books and users.
type Store interface {
	// books
	CreateBook(ctx context.Context, b domain.Book) (domain.Book, error)
	GetBook(ctx context.Context, id string) (domain.Book, bool, error)
	ListBooksByStatus(ctx context.Context, available bool) ([]domain.Book, error)

	// users
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, bool, error)
	GetUserByUserID(ctx context.Context, userID string) (domain.User, bool, error)

	// SaveLoan writes the book and user together. Each write is guarded by the
	// record's Version; on success both are returned with bumped versions.
	SaveLoan(ctx context.Context, b domain.Book, u domain.User) (domain.Book, domain.User, error)
}
