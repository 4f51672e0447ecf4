package app

import "errors"

// Kind classifies failures so the HTTP layer can pick a status code.
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindConflict        Kind = "conflict"
	KindPersistence     Kind = "persistence"
)

// Error is returned by every App operation. Message is safe to show to
// clients; Err holds the underlying store error for Persistence failures.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind and message. A sentinel with an empty Message
// matches any error of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// Kind sentinels, for errors.Is(err, app.ErrNotFound) style checks.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrPersistence     = &Error{Kind: KindPersistence}
)

var (
	ErrBookNotFound         = &Error{Kind: KindNotFound, Message: "Book not found"}
	ErrUserNotFound         = &Error{Kind: KindNotFound, Message: "User not found"}
	ErrNoAvailableBooks     = &Error{Kind: KindNotFound, Message: "No available books found"}
	ErrBookAlreadyIssued    = &Error{Kind: KindInvalidState, Message: "Book is already issued"}
	ErrBookAlreadyAvailable = &Error{Kind: KindInvalidState, Message: "Book is already available"}
	ErrBookNotIssuedToUser  = &Error{Kind: KindInvalidState, Message: "Book is not issued to this user"}
	ErrInvalidLendingIDs    = &Error{Kind: KindInvalidArgument, Message: "Invalid User ID or Book ID"}
	ErrLendingIDsRequired   = &Error{Kind: KindInvalidArgument, Message: "userId and bookId are required"}
	ErrConcurrentUpdate     = &Error{Kind: KindConflict, Message: "Book was modified concurrently. Try again"}
	ErrBookBusy             = &Error{Kind: KindConflict, Message: "Book is busy. Try again"}
)

func invalidArgument(msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}

func persistence(msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

func wrap(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: err}
}

// KindOf returns the Kind of err, or KindPersistence for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindPersistence
}
