package domain

import "time"

// AdminCustodianID is recorded as a book's custodian when none is supplied.
const AdminCustodianID = "000000000000000000000000"

type Book struct {
	ID              string    `json:"_id"`
	ISBN            string    `json:"ISBN"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	PublicationYear int       `json:"publication_year"`
	Status          bool      `json:"status"`
	UserID          *string   `json:"user_id"`
	PersonID        string    `json:"person_id"`
	Version         int64     `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Available reports whether the book can be issued.
func (b Book) Available() bool {
	return b.Status
}

// BorrowerID returns the owning-user reference, or "" when the book is on the shelf.
func (b Book) BorrowerID() string {
	if b.UserID == nil {
		return ""
	}
	return *b.UserID
}

type User struct {
	ID          string    `json:"_id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	IssuedBooks []string  `json:"issued_books"`
	Version     int64     `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasIssued reports whether bookID is in the user's issued-book list.
func (u User) HasIssued(bookID string) bool {
	for _, id := range u.IssuedBooks {
		if id == bookID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no mutable state with u.
func (u User) Clone() User {
	out := u
	out.IssuedBooks = append([]string{}, u.IssuedBooks...)
	return out
}

// Clone returns a copy that shares no mutable state with b.
func (b Book) Clone() Book {
	out := b
	if b.UserID != nil {
		id := *b.UserID
		out.UserID = &id
	}
	return out
}
