package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"libraryhub/internal/ratelimit"
	"libraryhub/internal/util"
	"libraryhub/services/library/internal/app"
)

const (
	maxBodyBytes = 1 << 20
	livenessText = "Library service is running"
)

// Limiter throttles the lending endpoints. *ratelimit.FixedWindowLimiter satisfies it.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
	Limit() int
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Limiter        Limiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes the library HTTP API.
type Server struct {
	app     *app.App
	limiter Limiter
	proxies *util.TrustedProxies
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	s := &Server{
		app:     cfg.App,
		limiter: cfg.Limiter,
		proxies: cfg.TrustedProxies,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("library", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// books
	s.mux.HandleFunc("/api/book/add-book", s.handleAddBook)
	s.mux.HandleFunc("/api/book/addBook", s.handleAddBook)
	s.mux.HandleFunc("/api/book/available-books", s.handleAvailableBooks)
	s.mux.HandleFunc("/api/book/", s.handleBookByID)

	// users and lending
	s.mux.HandleFunc("/api/user/addUsers", s.handleAddUser)
	s.mux.Handle("/api/user/issued-book", s.withRateLimit(s.handleIssueBook))
	s.mux.Handle("/api/user/return-book", s.withRateLimit(s.handleReturnBook))
	s.mux.HandleFunc("/api/user/", s.handleUserByID)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeFailure(w, http.StatusNotFound, "Route not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, livenessText)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type addBookRequest struct {
	ISBN            string      `json:"ISBN"`
	Title           string      `json:"title"`
	Author          string      `json:"author"`
	PublicationYear json.Number `json:"publication_year"`
	UserID          string      `json:"user_id"`
	PersonID        string      `json:"person_id"`
}

func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req addBookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	year, ok := parseYear(req.PublicationYear)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "publication_year must be a positive integer")
		return
	}
	book, err := s.app.CreateBook(r.Context(), app.CreateBookInput{
		ISBN:            req.ISBN,
		Title:           req.Title,
		Author:          req.Author,
		PublicationYear: year,
		UserID:          req.UserID,
		PersonID:        req.PersonID,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Book added successfully",
		Data:    book,
	})
}

func (s *Server) handleAvailableBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListAvailableBooks(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	n := len(books)
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Available books retrieved successfully",
		Length:  &n,
		Data:    books,
	})
}

// /api/book/{id}
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	id, ok := singleSegment(r.URL.Path, "/api/book/")
	if !ok {
		writeFailure(w, http.StatusNotFound, "Route not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	book, err := s.app.GetBook(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Book retrieved successfully",
		Data:    book,
	})
}

type addUserRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req addUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := s.app.CreateUser(r.Context(), app.CreateUserInput{UserID: req.UserID, UserName: req.UserName})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "User added successfully",
		Data:    user,
	})
}

// /api/user/{id}
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	id, ok := singleSegment(r.URL.Path, "/api/user/")
	if !ok {
		writeFailure(w, http.StatusNotFound, "Route not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, err := s.app.GetUser(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "User retrieved successfully",
		Data:    user,
	})
}

type lendingRequest struct {
	UserID string `json:"userId"`
	BookID string `json:"bookId"`
}

func (s *Server) handleIssueBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req lendingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.app.IssueBook(r.Context(), req.UserID, req.BookID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Book issued successfully",
		Data:    res,
	})
}

func (s *Server) handleReturnBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req lendingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.app.ReturnBook(r.Context(), req.UserID, req.BookID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Book returned successfully",
		Data:    res,
	})
}

func (s *Server) withRateLimit(next http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "lending:" + util.ClientIP(r, s.proxies)
		decision, err := s.limiter.Allow(r.Context(), key)
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("rate limiter failed", "key", key, "err", err)
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			secs := int(math.Ceil(decision.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeFailure(w, http.StatusTooManyRequests, "Too many requests. Try again later")
			return
		}
		next(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func parseYear(raw json.Number) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw.String(), 10, 32)
	if err != nil || n <= 0 {
		return 0, false
	}
	return int(n), true
}

func singleSegment(path, prefix string) (string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
}
