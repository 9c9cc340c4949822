package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kbamnote/elite-cards-backend/internal/model"
	"github.com/kbamnote/elite-cards-backend/internal/repository"
)

const uniqueViolation = "23505"

var _ repository.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, name, email, password_hash, phone, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Phone,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, repository.ErrNotFound
	}
	return user, err
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Phone, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrEmailTaken
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (s *Store) UpdateUser(ctx context.Context, userID string, update repository.UserUpdate) (model.User, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.Phone != nil {
		add("phone", *update.Phone)
	}
	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if len(sets) == 0 {
		return s.GetUserByID(ctx, userID)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, userID)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING `+userColumns,
		strings.Join(sets, ", "), len(args))

	user, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if isUniqueViolation(err) {
		return model.User{}, repository.ErrEmailTaken
	}
	return user, err
}

const cardColumns = `id, user_id, card_id, name, email, phone, company, designation,
	website, social_links, profile_image, background_color, text_color,
	is_active, scan_count, created_at, updated_at`

func scanCard(row pgx.Row) (model.Card, error) {
	var card model.Card
	err := row.Scan(
		&card.ID,
		&card.UserID,
		&card.CardID,
		&card.Name,
		&card.Email,
		&card.Phone,
		&card.Company,
		&card.Designation,
		&card.Website,
		&card.SocialLinks,
		&card.ProfileImage,
		&card.BackgroundColor,
		&card.TextColor,
		&card.IsActive,
		&card.ScanCount,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Card{}, repository.ErrNotFound
	}
	return card, err
}

func (s *Store) CreateCard(ctx context.Context, card model.Card) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cards (id, user_id, card_id, name, email, phone, company, designation,
			website, social_links, profile_image, background_color, text_color,
			is_active, scan_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, card.ID, card.UserID, card.CardID, card.Name, card.Email, card.Phone, card.Company,
		card.Designation, card.Website, card.SocialLinks, card.ProfileImage,
		card.BackgroundColor, card.TextColor, card.IsActive, card.ScanCount,
		card.CreatedAt, card.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrCardIDTaken
	}
	return err
}

func (s *Store) ListCardsByOwner(ctx context.Context, userID string) ([]model.Card, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := make([]model.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *Store) GetCardByPublicID(ctx context.Context, cardID string) (model.Card, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE card_id = $1`, cardID)
	return scanCard(row)
}

func (s *Store) UpdateCard(ctx context.Context, cardID, userID string, update repository.CardUpdate) (model.Card, error) {
	sets := make([]string, 0, 12)
	args := make([]any, 0, 14)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.Phone != nil {
		add("phone", *update.Phone)
	}
	if update.Company != nil {
		add("company", *update.Company)
	}
	if update.Designation != nil {
		add("designation", *update.Designation)
	}
	if update.Website != nil {
		add("website", *update.Website)
	}
	if update.SocialLinks != nil {
		add("social_links", *update.SocialLinks)
	}
	if update.ProfileImage != nil {
		add("profile_image", *update.ProfileImage)
	}
	if update.BackgroundColor != nil {
		add("background_color", *update.BackgroundColor)
	}
	if update.TextColor != nil {
		add("text_color", *update.TextColor)
	}
	if update.IsActive != nil {
		add("is_active", *update.IsActive)
	}
	if len(sets) == 0 {
		return s.getOwnedCard(ctx, cardID, userID)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, cardID, userID)
	query := fmt.Sprintf(`UPDATE cards SET %s WHERE card_id = $%d AND user_id = $%d RETURNING `+cardColumns,
		strings.Join(sets, ", "), len(args)-1, len(args))

	return scanCard(s.pool.QueryRow(ctx, query, args...))
}

func (s *Store) getOwnedCard(ctx context.Context, cardID, userID string) (model.Card, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE card_id = $1 AND user_id = $2
	`, cardID, userID)
	return scanCard(row)
}

func (s *Store) DeleteCard(ctx context.Context, cardID, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cards WHERE card_id = $1 AND user_id = $2`, cardID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) LogScan(ctx context.Context, scan model.ScanLog) (model.ScanLog, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.ScanLog{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO scan_logs (id, card_id, scanned_by, latitude, longitude, device, ip_address, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, scan.ID, scan.CardID, scan.ScannedBy, scan.Latitude, scan.Longitude, scan.Device, scan.IPAddress, scan.Timestamp)
	if err != nil {
		return model.ScanLog{}, err
	}

	tag, err := tx.Exec(ctx, `UPDATE cards SET scan_count = scan_count + 1 WHERE id = $1`, scan.CardID)
	if err != nil {
		return model.ScanLog{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.ScanLog{}, repository.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return model.ScanLog{}, err
	}
	return scan, nil
}

func (s *Store) CountScans(ctx context.Context, cardRowID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM scan_logs WHERE card_id = $1`, cardRowID).Scan(&count)
	return count, err
}

func (s *Store) RecentScans(ctx context.Context, cardRowID string, limit int) ([]model.ScanLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, card_id, scanned_by, latitude, longitude, device, ip_address, timestamp
		FROM scan_logs
		WHERE card_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, cardRowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scans := make([]model.ScanLog, 0, limit)
	for rows.Next() {
		var scan model.ScanLog
		if err := rows.Scan(&scan.ID, &scan.CardID, &scan.ScannedBy, &scan.Latitude,
			&scan.Longitude, &scan.Device, &scan.IPAddress, &scan.Timestamp); err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

func (s *Store) DailyScanCounts(ctx context.Context, cardRowID string) ([]model.DailyScanCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*)
		FROM scan_logs
		WHERE card_id = $1
		GROUP BY day
		ORDER BY day ASC
	`, cardRowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make([]model.DailyScanCount, 0)
	for rows.Next() {
		var day model.DailyScanCount
		if err := rows.Scan(&day.Date, &day.Count); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
