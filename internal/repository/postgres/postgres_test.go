package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kbamnote/elite-cards-backend/internal/db"
	"github.com/kbamnote/elite-cards-backend/internal/model"
	"github.com/kbamnote/elite-cards-backend/internal/repository"
)

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("ELITE_CARDS_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("ELITE_CARDS_TEST_DB or DATABASE_URL not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	t.Cleanup(pool.Close)
	return pool
}

func seedUser(t *testing.T, store *Store) model.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := model.User{
		ID:           uuid.NewString(),
		Name:         "Ana Marin",
		Email:        uuid.NewString() + "@test.local",
		PasswordHash: "$2a$10$notarealhashnotarealhashnotarealhash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = store.pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID)
	})
	return user
}

func seedCard(t *testing.T, store *Store, userID string) model.Card {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	card := model.Card{
		ID:          uuid.NewString(),
		UserID:      userID,
		CardID:      strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Name:        "Ana Marin",
		SocialLinks: []string{"https://example.com/ana"},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateCard(context.Background(), card); err != nil {
		t.Fatalf("create card: %v", err)
	}
	return card
}

func TestUserRoundTrip(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()
	user := seedUser(t, store)

	byEmail, err := store.GetUserByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Fatalf("id = %q, want %q", byEmail.ID, user.ID)
	}

	if err := store.CreateUser(ctx, user); !errors.Is(err, repository.ErrEmailTaken) {
		t.Fatalf("duplicate insert err = %v, want ErrEmailTaken", err)
	}

	name := "Renamed"
	updated, err := store.UpdateUser(ctx, user.ID, repository.UserUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Renamed" || updated.Email != user.Email {
		t.Fatalf("updated = %+v", updated)
	}
}

func TestCardOwnershipScoping(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()
	owner := seedUser(t, store)
	stranger := seedUser(t, store)
	card := seedCard(t, store, owner.ID)

	name := "Taken over"
	if _, err := store.UpdateCard(ctx, card.CardID, stranger.ID, repository.CardUpdate{Name: &name}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("foreign update err = %v, want ErrNotFound", err)
	}
	if err := store.DeleteCard(ctx, card.CardID, stranger.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("foreign delete err = %v, want ErrNotFound", err)
	}
	if err := store.DeleteCard(ctx, card.CardID, owner.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := store.GetCardByPublicID(ctx, card.CardID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("after delete err = %v, want ErrNotFound", err)
	}
}

func TestScanTransactionKeepsCounterInStep(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()
	user := seedUser(t, store)
	card := seedCard(t, store, user.ID)

	for i := 0; i < 3; i++ {
		scan := model.ScanLog{
			ID:        uuid.NewString(),
			CardID:    card.ID,
			Timestamp: time.Now().UTC(),
		}
		if _, err := store.LogScan(ctx, scan); err != nil {
			t.Fatalf("log scan: %v", err)
		}
	}

	total, err := store.CountScans(ctx, card.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	fresh, err := store.GetCardByPublicID(ctx, card.CardID)
	if err != nil {
		t.Fatalf("get card: %v", err)
	}
	if total != 3 || fresh.ScanCount != 3 {
		t.Fatalf("total = %d, scan_count = %d, want both 3", total, fresh.ScanCount)
	}

	daily, err := store.DailyScanCounts(ctx, card.ID)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	var sum int64
	for _, day := range daily {
		sum += day.Count
	}
	if sum != 3 {
		t.Fatalf("daily sums to %d", sum)
	}

	recent, err := store.RecentScans(ctx, card.ID, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d", len(recent))
	}
	if recent[1].Timestamp.After(recent[0].Timestamp) {
		t.Fatal("recent scans not newest first")
	}
}
