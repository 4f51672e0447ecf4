package app

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"libraryhub/pkg/domain"
	"libraryhub/pkg/store"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	a, err := New(Config{Store: mem})
	require.NoError(t, err)
	return a, mem
}

func seedBook(t *testing.T, a *App, isbn string) domain.Book {
	t.Helper()
	book, err := a.CreateBook(context.Background(), CreateBookInput{
		ISBN:            isbn,
		Title:           "Title " + isbn,
		Author:          "Author",
		PublicationYear: 1999,
	})
	require.NoError(t, err)
	return book
}

func seedUser(t *testing.T, a *App, userID string) domain.User {
	t.Helper()
	user, err := a.CreateUser(context.Background(), CreateUserInput{UserID: userID, UserName: "Name " + userID})
	require.NoError(t, err)
	return user
}

// spyStore counts calls and can inject failures in front of a MemoryStore.
type spyStore struct {
	*store.MemoryStore
	calls       atomic.Int32
	getBookErr  error
	listErr     error
	saveLoanErr error
	createErr   error
}

func (s *spyStore) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	s.calls.Add(1)
	if s.createErr != nil {
		return domain.Book{}, s.createErr
	}
	return s.MemoryStore.CreateBook(ctx, b)
}

func (s *spyStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	s.calls.Add(1)
	if s.getBookErr != nil {
		return domain.Book{}, false, s.getBookErr
	}
	return s.MemoryStore.GetBook(ctx, id)
}

func (s *spyStore) ListBooksByStatus(ctx context.Context, available bool) ([]domain.Book, error) {
	s.calls.Add(1)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.MemoryStore.ListBooksByStatus(ctx, available)
}

func (s *spyStore) GetUser(ctx context.Context, id string) (domain.User, bool, error) {
	s.calls.Add(1)
	return s.MemoryStore.GetUser(ctx, id)
}

func (s *spyStore) SaveLoan(ctx context.Context, b domain.Book, u domain.User) (domain.Book, domain.User, error) {
	s.calls.Add(1)
	if s.saveLoanErr != nil {
		return domain.Book{}, domain.User{}, s.saveLoanErr
	}
	return s.MemoryStore.SaveLoan(ctx, b, u)
}

func newSpyApp(t *testing.T) (*App, *spyStore) {
	t.Helper()
	spy := &spyStore{MemoryStore: store.NewMemoryStore()}
	a, err := New(Config{Store: spy})
	require.NoError(t, err)
	return a, spy
}
