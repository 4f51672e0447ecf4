package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"libraryhub/pkg/domain"
)

const migrateLockID int64 = 51734021

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&BookModel{}, &UserModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreFromDB wraps an already-open connection without migrating.
func NewGormStoreFromDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateBook inserts a new book.
func (s *GormStore) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt, b.Version = now, now, 1
	model := bookToModel(b)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Book{}, translateError(err)
	}
	return bookFromModel(model), nil
}

// GetBook retrieves a book by ID.
func (s *GormStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooksByStatus returns books with the given availability flag in creation order.
func (s *GormStore) ListBooksByStatus(ctx context.Context, available bool) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.WithContext(ctx).
		Where("status = ?", available).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// CreateUser inserts a new user.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt, u.Version = now, now, 1
	model, err := userToModel(u)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.User{}, translateError(err)
	}
	return userFromModel(model)
}

// GetUser returns a user by internal ID.
func (s *GormStore) GetUser(ctx context.Context, id string) (domain.User, bool, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByUserID returns a user by business key.
func (s *GormStore) GetUserByUserID(ctx context.Context, userID string) (domain.User, bool, error) {
	return s.getUser(ctx, "user_id = ?", userID)
}

func (s *GormStore) getUser(ctx context.Context, cond string, arg string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	u, err := userFromModel(model)
	if err != nil {
		return domain.User{}, false, err
	}
	return u, true, nil
}

// SaveLoan updates the book and user in a single transaction.
func (s *GormStore) SaveLoan(ctx context.Context, b domain.Book, u domain.User) (domain.Book, domain.User, error) {
	now := time.Now().UTC()
	issued, err := json.Marshal(issuedOrEmpty(u.IssuedBooks))
	if err != nil {
		return domain.Book{}, domain.User{}, fmt.Errorf("encode issued books: %w", err)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&BookModel{}).
			Where("id = ? AND version = ?", b.ID, b.Version).
			Updates(map[string]any{
				"status":     b.Status,
				"user_id":    b.UserID,
				"version":    b.Version + 1,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("book %s: %w", b.ID, ErrVersionConflict)
		}
		res = tx.Model(&UserModel{}).
			Where("id = ? AND version = ?", u.ID, u.Version).
			Updates(map[string]any{
				"issued_books": datatypes.JSON(issued),
				"version":      u.Version + 1,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user %s: %w", u.ID, ErrVersionConflict)
		}
		return nil
	})
	if err != nil {
		return domain.Book{}, domain.User{}, err
	}
	b.Version++
	b.UpdatedAt = now
	u.Version++
	u.UpdatedAt = now
	return b, u, nil
}

func translateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

func issuedOrEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:              b.ID,
		ISBN:            b.ISBN,
		Title:           b.Title,
		Author:          b.Author,
		PublicationYear: b.PublicationYear,
		Status:          b.Status,
		UserID:          b.UserID,
		PersonID:        b.PersonID,
		Version:         b.Version,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:              m.ID,
		ISBN:            m.ISBN,
		Title:           m.Title,
		Author:          m.Author,
		PublicationYear: m.PublicationYear,
		Status:          m.Status,
		UserID:          m.UserID,
		PersonID:        m.PersonID,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func userToModel(u domain.User) (UserModel, error) {
	issued, err := json.Marshal(issuedOrEmpty(u.IssuedBooks))
	if err != nil {
		return UserModel{}, fmt.Errorf("encode issued books: %w", err)
	}
	return UserModel{
		ID:          u.ID,
		UserID:      u.UserID,
		UserName:    u.UserName,
		IssuedBooks: issued,
		Version:     u.Version,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}, nil
}

func userFromModel(m UserModel) (domain.User, error) {
	issued := []string{}
	if len(m.IssuedBooks) > 0 {
		if err := json.Unmarshal(m.IssuedBooks, &issued); err != nil {
			return domain.User{}, fmt.Errorf("decode issued books for user %s: %w", m.ID, err)
		}
	}
	return domain.User{
		ID:          m.ID,
		UserID:      m.UserID,
		UserName:    m.UserName,
		IssuedBooks: issued,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}
