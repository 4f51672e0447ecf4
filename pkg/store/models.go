package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type BookModel struct {
	ID              string    `gorm:"primaryKey"`
	ISBN            string    `gorm:"column:isbn;uniqueIndex;not null"`
	Title           string    `gorm:"not null"`
	Author          string    `gorm:"not null"`
	PublicationYear int       `gorm:"not null"`
	Status          bool      `gorm:"not null;index"`
	UserID          *string   `gorm:"index"`
	PersonID        string    `gorm:"not null"`
	Version         int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (BookModel) TableName() string { return "books" }

type UserModel struct {
	ID          string         `gorm:"primaryKey"`
	UserID      string         `gorm:"uniqueIndex;not null"`
	UserName    string         `gorm:"not null"`
	IssuedBooks datatypes.JSON `gorm:"type:jsonb;not null"`
	Version     int64          `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }
