// Package repository defines the store capability the HTTP layer depends on.
// The postgres subpackage is the production implementation; the memory
// subpackage backs the HTTP tests.
package repository

import (
	"context"
	"errors"

	"github.com/kbamnote/elite-cards-backend/internal/model"
)

var (
	// ErrNotFound covers both a missing row and an ownership mismatch;
	// callers must not be able to tell the two apart.
	ErrNotFound = errors.New("not found")

	ErrEmailTaken = errors.New("email already in use")

	// ErrCardIDTaken signals a public card identifier collision; the
	// caller retries with a fresh identifier.
	ErrCardIDTaken = errors.New("card id already in use")
)

// UserUpdate fields set to nil are left unchanged.
type UserUpdate struct {
	Name         *string
	Email        *string
	Phone        *string
	PasswordHash *string
}

// CardUpdate fields set to nil are left unchanged.
type CardUpdate struct {
	Name            *string
	Email           *string
	Phone           *string
	Company         *string
	Designation     *string
	Website         *string
	SocialLinks     *[]string
	ProfileImage    *string
	BackgroundColor *string
	TextColor       *string
	IsActive        *bool
}

type Store interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	UpdateUser(ctx context.Context, userID string, update UserUpdate) (model.User, error)

	CreateCard(ctx context.Context, card model.Card) error
	ListCardsByOwner(ctx context.Context, userID string) ([]model.Card, error)
	GetCardByPublicID(ctx context.Context, cardID string) (model.Card, error)
	UpdateCard(ctx context.Context, cardID, userID string, update CardUpdate) (model.Card, error)
	DeleteCard(ctx context.Context, cardID, userID string) error

	// LogScan appends the event and increments the card's scan counter as
	// one atomic write, so the counter never drifts from the ledger.
	LogScan(ctx context.Context, scan model.ScanLog) (model.ScanLog, error)
	CountScans(ctx context.Context, cardRowID string) (int64, error)
	RecentScans(ctx context.Context, cardRowID string, limit int) ([]model.ScanLog, error)
	DailyScanCounts(ctx context.Context, cardRowID string) ([]model.DailyScanCount, error)
}
