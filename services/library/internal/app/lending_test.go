package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryhub/internal/keylock"
	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
	"libraryhub/pkg/store"
)

func TestIssueThenReturnRestoresState(t *testing.T) {
	ctx := context.Background()
	a, mem := newTestApp(t)
	book := seedBook(t, a, "isbn-1")
	user := seedUser(t, a, "U1")

	issued, err := a.IssueBook(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.False(t, issued.Book.Status)
	assert.Equal(t, user.ID, issued.Book.BorrowerID())
	assert.Equal(t, []string{book.ID}, issued.User.IssuedBooks)

	storedBook, _, _ := mem.GetBook(ctx, book.ID)
	storedUser, _, _ := mem.GetUser(ctx, user.ID)
	assert.False(t, storedBook.Status)
	assert.Equal(t, user.ID, storedBook.BorrowerID())
	assert.Equal(t, []string{book.ID}, storedUser.IssuedBooks)

	returned, err := a.ReturnBook(ctx, user.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, returned.Book.Status)
	assert.Nil(t, returned.Book.UserID)
	assert.Empty(t, returned.User.IssuedBooks)

	storedBook, _, _ = mem.GetBook(ctx, book.ID)
	storedUser, _, _ = mem.GetUser(ctx, user.ID)
	assert.True(t, storedBook.Status)
	assert.Nil(t, storedBook.UserID)
	assert.Empty(t, storedUser.IssuedBooks)
}

func TestIssueTwiceIsRejectedWithoutMutation(t *testing.T) {
	ctx := context.Background()
	a, mem := newTestApp(t)
	book := seedBook(t, a, "isbn-1")
	user := seedUser(t, a, "U1")

	first, err := a.IssueBook(ctx, user.ID, book.ID)
	require.NoError(t, err)

	_, err = a.IssueBook(ctx, user.ID, book.ID)
	require.ErrorIs(t, err, ErrBookAlreadyIssued)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "Book is already issued", err.Error())

	storedBook, _, _ := mem.GetBook(ctx, book.ID)
	storedUser, _, _ := mem.GetUser(ctx, user.ID)
	assert.Equal(t, first.Book.Version, storedBook.Version)
	assert.Equal(t, first.User.Version, storedUser.Version)
	assert.Equal(t, []string{book.ID}, storedUser.IssuedBooks)
}

func TestIssueUnknownBook(t *testing.T) {
	a, _ := newTestApp(t)
	user := seedUser(t, a, "U1")

	_, err := a.IssueBook(context.Background(), user.ID, util.NewID())
	require.ErrorIs(t, err, ErrBookNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestIssueMalformedIDResolvesToNotFound(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := a.IssueBook(context.Background(), "invalidId", "invalidId")
	require.ErrorIs(t, err, ErrBookNotFound)
}

func TestIssueUnknownUserLeavesBookAvailable(t *testing.T) {
	ctx := context.Background()
	a, mem := newTestApp(t)
	book := seedBook(t, a, "isbn-1")

	_, err := a.IssueBook(ctx, util.NewID(), book.ID)
	require.ErrorIs(t, err, ErrUserNotFound)

	stored, _, _ := mem.GetBook(ctx, book.ID)
	assert.True(t, stored.Status)
	assert.Nil(t, stored.UserID)
	assert.Equal(t, int64(1), stored.Version)
}

// Issue checks the book's state before the user exists; Return checks id
// shape before anything else. Both orders are deliberate.
func TestIssueChecksBookStateBeforeUserExistence(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	book := seedBook(t, a, "isbn-1")
	user := seedUser(t, a, "U1")
	_, err := a.IssueBook(ctx, user.ID, book.ID)
	require.NoError(t, err)

	_, err = a.IssueBook(ctx, util.NewID(), book.ID)
	require.ErrorIs(t, err, ErrBookAlreadyIssued)
}

func TestIssueRequiresIDs(t *testing.T) {
	a, spy := newSpyApp(t)

	_, err := a.IssueBook(context.Background(), "", " ")
	require.ErrorIs(t, err, ErrLendingIDsRequired)
	assert.Equal(t, KindInvalidArgument, KindOf(err))
	assert.Zero(t, spy.calls.Load())
}

func TestReturnMalformedIDsNeverReachStore(t *testing.T) {
	a, spy := newSpyApp(t)

	for _, ids := range [][2]string{
		{"invalidId", "invalidId"},
		{util.NewID(), "invalidId"},
		{"invalidId", util.NewID()},
		{"", ""},
	} {
		_, err := a.ReturnBook(context.Background(), ids[0], ids[1])
		require.ErrorIs(t, err, ErrInvalidLendingIDs, "ids %v", ids)
	}
	assert.Zero(t, spy.calls.Load())
}

func TestReturnUnknownBook(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := a.ReturnBook(context.Background(), util.NewID(), util.NewID())
	require.ErrorIs(t, err, ErrBookNotFound)
}

func TestReturnAvailableBookRejected(t *testing.T) {
	a, _ := newTestApp(t)
	book := seedBook(t, a, "isbn-1")
	user := seedUser(t, a, "U1")

	_, err := a.ReturnBook(context.Background(), user.ID, book.ID)
	require.ErrorIs(t, err, ErrBookAlreadyAvailable)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestReturnUnknownUser(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	book := seedBook(t, a, "isbn-1")
	user := seedUser(t, a, "U1")
	_, err := a.IssueBook(ctx, user.ID, book.ID)
	require.NoError(t, err)

	_, err = a.ReturnBook(ctx, util.NewID(), book.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestReturnByOtherUserRejected(t *testing.T) {
	ctx := context.Background()
	a, mem := newTestApp(t)
	book := seedBook(t, a, "isbn-1")
	holder := seedUser(t, a, "U1")
	other := seedUser(t, a, "U2")
	_, err := a.IssueBook(ctx, holder.ID, book.ID)
	require.NoError(t, err)

	_, err = a.ReturnBook(ctx, other.ID, book.ID)
	require.ErrorIs(t, err, ErrBookNotIssuedToUser)

	stored, _, _ := mem.GetBook(ctx, book.ID)
	assert.Equal(t, holder.ID, stored.BorrowerID())
}

func TestReturnUsesIssuedListEvenWhenOwnerMatches(t *testing.T) {
	ctx := context.Background()
	a, mem := newTestApp(t)
	user := seedUser(t, a, "U1")
	owner := user.ID
	book, err := mem.CreateBook(ctx, domain.Book{
		ID:       util.NewID(),
		ISBN:     "drifted",
		Status:   false,
		UserID:   &owner,
		PersonID: domain.AdminCustodianID,
	})
	require.NoError(t, err)

	_, err = a.ReturnBook(ctx, user.ID, book.ID)
	require.ErrorIs(t, err, ErrBookNotIssuedToUser)
}

func TestReturnRemovesOnlyThatBook(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	user := seedUser(t, a, "U1")
	b1 := seedBook(t, a, "isbn-1")
	b2 := seedBook(t, a, "isbn-2")
	_, err := a.IssueBook(ctx, user.ID, b1.ID)
	require.NoError(t, err)
	_, err = a.IssueBook(ctx, user.ID, b2.ID)
	require.NoError(t, err)

	res, err := a.ReturnBook(ctx, user.ID, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b2.ID}, res.User.IssuedBooks)
}

func TestLendingAcceptsUppercaseIDs(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	book := seedBook(t, a, "isbn-1")
	user := seedUser(t, a, "U1")

	_, err := a.IssueBook(ctx, strings.ToUpper(user.ID), strings.ToUpper(book.ID))
	require.NoError(t, err)
	_, err = a.ReturnBook(ctx, strings.ToUpper(user.ID), strings.ToUpper(book.ID))
	require.NoError(t, err)
}

func TestConcurrentIssueHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	a, mem := newTestApp(t)
	book := seedBook(t, a, "isbn-1")

	const n = 16
	users := make([]domain.User, n)
	for i := range users {
		users[i] = seedUser(t, a, fmt.Sprintf("U%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = a.IssueBook(ctx, users[i].ID, book.ID)
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "more than one issue succeeded")
			winner = i
			continue
		}
		require.ErrorIs(t, err, ErrBookAlreadyIssued)
	}
	require.NotEqual(t, -1, winner)

	stored, _, _ := mem.GetBook(ctx, book.ID)
	assert.Equal(t, users[winner].ID, stored.BorrowerID())
	for i, u := range users {
		got, _, _ := mem.GetUser(ctx, u.ID)
		assert.Equal(t, i == winner, got.HasIssued(book.ID), "user %d", i)
	}
}

func TestSaveFailureReportsPersistenceAndWritesNothing(t *testing.T) {
	ctx := context.Background()
	a, spy := newSpyApp(t)
	book := seedBook(t, a, "isbn-1")
	user := seedUser(t, a, "U1")
	spy.saveLoanErr = errors.New("connection reset")

	_, err := a.IssueBook(ctx, user.ID, book.ID)
	require.ErrorIs(t, err, ErrPersistence)
	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Failed to issue book. Try again", appErr.Message)
	assert.EqualError(t, appErr.Err, "connection reset")

	stored, _, _ := spy.MemoryStore.GetBook(ctx, book.ID)
	storedUser, _, _ := spy.MemoryStore.GetUser(ctx, user.ID)
	assert.True(t, stored.Status)
	assert.Empty(t, storedUser.IssuedBooks)
}

func TestLookupFailureReportsPersistence(t *testing.T) {
	a, spy := newSpyApp(t)
	spy.getBookErr = errors.New("db down")

	_, err := a.ReturnBook(context.Background(), util.NewID(), util.NewID())
	require.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "db down")
}

func TestVersionConflictReportsConflict(t *testing.T) {
	ctx := context.Background()
	a, spy := newSpyApp(t)
	book := seedBook(t, a, "isbn-1")
	user := seedUser(t, a, "U1")
	spy.saveLoanErr = fmt.Errorf("book %s: %w", book.ID, store.ErrVersionConflict)

	_, err := a.IssueBook(ctx, user.ID, book.ID)
	require.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, KindConflict, KindOf(err))
}

type refusingLocker struct{}

func (refusingLocker) Lock(context.Context, string) (func(), error) {
	return nil, keylock.ErrNotAcquired
}

func TestLockFailureReportsBookBusy(t *testing.T) {
	a, err := New(Config{Store: store.NewMemoryStore(), Locker: refusingLocker{}})
	require.NoError(t, err)

	_, err = a.IssueBook(context.Background(), util.NewID(), util.NewID())
	require.ErrorIs(t, err, ErrBookBusy)
	assert.ErrorIs(t, err, keylock.ErrNotAcquired)
}
