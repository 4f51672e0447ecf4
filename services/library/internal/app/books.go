package app

import (
	"context"
	"strings"

	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
)

// CreateBookInput carries the fields accepted when cataloguing a book.
// UserID and PersonID are optional.
type CreateBookInput struct {
	ISBN            string
	Title           string
	Author          string
	PublicationYear int
	UserID          string
	PersonID        string
}

func (in CreateBookInput) normalize() (CreateBookInput, error) {
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.UserID = normalizeID(in.UserID)
	in.PersonID = normalizeID(in.PersonID)
	switch {
	case in.ISBN == "":
		return in, invalidArgument("ISBN is required")
	case in.Title == "":
		return in, invalidArgument("title is required")
	case in.Author == "":
		return in, invalidArgument("author is required")
	case in.PublicationYear <= 0:
		return in, invalidArgument("publication_year must be a positive integer")
	case in.UserID != "" && !util.IsValidID(in.UserID):
		return in, invalidArgument("Invalid user_id")
	case in.PersonID != "" && !util.IsValidID(in.PersonID):
		return in, invalidArgument("Invalid person_id")
	}
	return in, nil
}

// CreateBook stores a new, available book.
func (a *App) CreateBook(ctx context.Context, in CreateBookInput) (domain.Book, error) {
	in, err := in.normalize()
	if err != nil {
		return domain.Book{}, err
	}
	book := domain.Book{
		ID:              util.NewID(),
		ISBN:            in.ISBN,
		Title:           in.Title,
		Author:          in.Author,
		PublicationYear: in.PublicationYear,
		Status:          true,
		PersonID:        in.PersonID,
	}
	if in.UserID != "" {
		owner := in.UserID
		book.UserID = &owner
	}
	if book.PersonID == "" {
		book.PersonID = a.defaultCustodianID
	}
	saved, err := a.store.CreateBook(ctx, book)
	if err != nil {
		util.LoggerFromContext(ctx).Error("create book failed", "isbn", book.ISBN, "err", err)
		return domain.Book{}, persistence("Failed to add book. Try again", err)
	}
	return saved, nil
}

// ListAvailableBooks returns every book whose availability flag is set.
// An empty result is reported as ErrNoAvailableBooks.
func (a *App) ListAvailableBooks(ctx context.Context) ([]domain.Book, error) {
	books, err := a.store.ListBooksByStatus(ctx, true)
	if err != nil {
		util.LoggerFromContext(ctx).Error("list available books failed", "err", err)
		return nil, persistence("Failed to retrieve available books. Try again", err)
	}
	if len(books) == 0 {
		return nil, ErrNoAvailableBooks
	}
	return books, nil
}

// GetBook retrieves a book by ID.
func (a *App) GetBook(ctx context.Context, id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(ctx, normalizeID(id))
	if err != nil {
		return domain.Book{}, persistence("Failed to retrieve book. Try again", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}
