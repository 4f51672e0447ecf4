package app

import (
	"context"
	"errors"

	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
	"libraryhub/pkg/store"
)

// LoanResult is the pair of records written by a lending transition.
type LoanResult struct {
	Book domain.Book `json:"book"`
	User domain.User `json:"user"`
}

// IssueBook moves a book from Available to OnLoan(userID) and appends it to
// the user's issued-book list. Checks run book, book state, then user.
// Identifier shape is not validated: an unknown id of any shape is NotFound.
func (a *App) IssueBook(ctx context.Context, userID, bookID string) (LoanResult, error) {
	userID, bookID = normalizeID(userID), normalizeID(bookID)
	if userID == "" || bookID == "" {
		return LoanResult{}, ErrLendingIDsRequired
	}
	const failMsg = "Failed to issue book. Try again"

	unlock, err := a.lockBook(ctx, bookID)
	if err != nil {
		return LoanResult{}, err
	}
	defer unlock()

	book, ok, err := a.store.GetBook(ctx, bookID)
	if err != nil {
		return LoanResult{}, persistence(failMsg, err)
	}
	if !ok {
		return LoanResult{}, ErrBookNotFound
	}
	if !book.Available() {
		return LoanResult{}, ErrBookAlreadyIssued
	}
	user, ok, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return LoanResult{}, persistence(failMsg, err)
	}
	if !ok {
		return LoanResult{}, ErrUserNotFound
	}

	owner := user.ID
	book.Status = false
	book.UserID = &owner
	user.IssuedBooks = append(user.IssuedBooks, book.ID)

	res, err := a.saveLoan(ctx, failMsg, book, user)
	if err != nil {
		return LoanResult{}, err
	}
	util.LoggerFromContext(ctx).Info("book issued", "book_id", book.ID, "user_id", user.ID)
	return res, nil
}

// ReturnBook moves a book from OnLoan(userID) back to Available and removes it
// from the user's issued-book list. Both ids must be well formed before the
// store is consulted; then checks run book, book state, user, membership.
func (a *App) ReturnBook(ctx context.Context, userID, bookID string) (LoanResult, error) {
	userID, bookID = normalizeID(userID), normalizeID(bookID)
	if !util.IsValidID(userID) || !util.IsValidID(bookID) {
		return LoanResult{}, ErrInvalidLendingIDs
	}
	const failMsg = "Failed to return book. Try again"

	unlock, err := a.lockBook(ctx, bookID)
	if err != nil {
		return LoanResult{}, err
	}
	defer unlock()

	book, ok, err := a.store.GetBook(ctx, bookID)
	if err != nil {
		return LoanResult{}, persistence(failMsg, err)
	}
	if !ok {
		return LoanResult{}, ErrBookNotFound
	}
	if book.Available() {
		return LoanResult{}, ErrBookAlreadyAvailable
	}
	user, ok, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return LoanResult{}, persistence(failMsg, err)
	}
	if !ok {
		return LoanResult{}, ErrUserNotFound
	}
	// Membership in the user's list is authoritative, not the book's owner field.
	if !user.HasIssued(book.ID) {
		return LoanResult{}, ErrBookNotIssuedToUser
	}

	book.Status = true
	book.UserID = nil
	remaining := make([]string, 0, len(user.IssuedBooks))
	for _, id := range user.IssuedBooks {
		if id != book.ID {
			remaining = append(remaining, id)
		}
	}
	user.IssuedBooks = remaining

	res, err := a.saveLoan(ctx, failMsg, book, user)
	if err != nil {
		return LoanResult{}, err
	}
	util.LoggerFromContext(ctx).Info("book returned", "book_id", book.ID, "user_id", user.ID)
	return res, nil
}

func (a *App) lockBook(ctx context.Context, bookID string) (func(), error) {
	unlock, err := a.locker.Lock(ctx, "book:"+bookID)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("book lock not acquired", "book_id", bookID, "err", err)
		return nil, wrap(ErrBookBusy, err)
	}
	return unlock, nil
}

func (a *App) saveLoan(ctx context.Context, failMsg string, book domain.Book, user domain.User) (LoanResult, error) {
	savedBook, savedUser, err := a.store.SaveLoan(ctx, book, user)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			util.LoggerFromContext(ctx).Warn("loan write lost race", "book_id", book.ID, "user_id", user.ID, "err", err)
			return LoanResult{}, wrap(ErrConcurrentUpdate, err)
		}
		util.LoggerFromContext(ctx).Error("save loan failed", "book_id", book.ID, "user_id", user.ID, "err", err)
		return LoanResult{}, persistence(failMsg, err)
	}
	return LoanResult{Book: savedBook, User: savedUser}, nil
}
