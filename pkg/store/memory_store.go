package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"libraryhub/pkg/domain"
)

// MemoryStore keeps records in-process. It honours the same uniqueness and
// version rules as GormStore, so it backs tests and single-node demos.
type MemoryStore struct {
	mu        sync.RWMutex
	books     map[string]domain.Book
	bookOrder []string
	isbn      map[string]string // ISBN -> book ID
	users     map[string]domain.User
	userKeys  map[string]string // user_id -> internal ID
	now       func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:    make(map[string]domain.Book),
		isbn:     make(map[string]string),
		users:    make(map[string]domain.User),
		userKeys: make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateBook inserts a new book, rejecting duplicate IDs and ISBNs.
func (m *MemoryStore) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return domain.Book{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; exists {
		return domain.Book{}, fmt.Errorf("%w: books.id %q", ErrDuplicateKey, b.ID)
	}
	if _, exists := m.isbn[b.ISBN]; exists {
		return domain.Book{}, fmt.Errorf("%w: books.isbn %q", ErrDuplicateKey, b.ISBN)
	}
	now := m.now()
	b = b.Clone()
	b.CreatedAt, b.UpdatedAt, b.Version = now, now, 1
	m.books[b.ID] = b
	m.isbn[b.ISBN] = b.ID
	m.bookOrder = append(m.bookOrder, b.ID)
	return b.Clone(), nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Book{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return domain.Book{}, false, nil
	}
	return b.Clone(), true, nil
}

// ListBooksByStatus returns books in insertion order filtered by availability.
func (m *MemoryStore) ListBooksByStatus(ctx context.Context, available bool) ([]domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.bookOrder))
	for _, id := range m.bookOrder {
		if b, ok := m.books[id]; ok && b.Status == available {
			res = append(res, b.Clone())
		}
	}
	return res, nil
}

// CreateUser inserts a new user, rejecting duplicate IDs and user_ids.
func (m *MemoryStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.ID]; exists {
		return domain.User{}, fmt.Errorf("%w: users.id %q", ErrDuplicateKey, u.ID)
	}
	if _, exists := m.userKeys[u.UserID]; exists {
		return domain.User{}, fmt.Errorf("%w: users.user_id %q", ErrDuplicateKey, u.UserID)
	}
	now := m.now()
	u = u.Clone()
	u.CreatedAt, u.UpdatedAt, u.Version = now, now, 1
	m.users[u.ID] = u
	m.userKeys[u.UserID] = u.ID
	return u.Clone(), nil
}

// GetUser returns a user by internal ID.
func (m *MemoryStore) GetUser(ctx context.Context, id string) (domain.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, false, nil
	}
	return u.Clone(), true, nil
}

// GetUserByUserID returns a user by business key.
func (m *MemoryStore) GetUserByUserID(ctx context.Context, userID string) (domain.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.userKeys[userID]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u.Clone(), ok, nil
}

// SaveLoan replaces the book and user under one lock, or neither.
func (m *MemoryStore) SaveLoan(ctx context.Context, b domain.Book, u domain.User) (domain.Book, domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.Book{}, domain.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.books[b.ID]
	if !ok || current.Version != b.Version {
		return domain.Book{}, domain.User{}, fmt.Errorf("book %s: %w", b.ID, ErrVersionConflict)
	}
	currentUser, ok := m.users[u.ID]
	if !ok || currentUser.Version != u.Version {
		return domain.Book{}, domain.User{}, fmt.Errorf("user %s: %w", u.ID, ErrVersionConflict)
	}
	now := m.now()

	nextBook := current.Clone()
	nextBook.Status = b.Status
	nextBook.UserID = b.Clone().UserID
	nextBook.Version++
	nextBook.UpdatedAt = now

	nextUser := currentUser.Clone()
	nextUser.IssuedBooks = append([]string{}, u.IssuedBooks...)
	nextUser.Version++
	nextUser.UpdatedAt = now

	m.books[b.ID] = nextBook
	m.users[u.ID] = nextUser
	return nextBook.Clone(), nextUser.Clone(), nil
}
