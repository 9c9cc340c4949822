// Package memory is an in-process Store used by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kbamnote/elite-cards-backend/internal/model"
	"github.com/kbamnote/elite-cards-backend/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type Store struct {
	mu    sync.RWMutex
	users map[string]model.User
	cards map[string]model.Card
	scans []model.ScanLog
}

func NewStore() *Store {
	return &Store{
		users: make(map[string]model.User),
		cards: make(map[string]model.Card),
	}
}

func (s *Store) CreateUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, userID string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (s *Store) UpdateUser(_ context.Context, userID string, update repository.UserUpdate) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	if update.Email != nil {
		for id, existing := range s.users {
			if id != userID && existing.Email == *update.Email {
				return model.User{}, repository.ErrEmailTaken
			}
		}
		user.Email = *update.Email
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Phone != nil {
		user.Phone = *update.Phone
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	s.users[userID] = user
	return user, nil
}

func (s *Store) CreateCard(_ context.Context, card model.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.cards {
		if existing.CardID == card.CardID {
			return repository.ErrCardIDTaken
		}
	}
	s.cards[card.ID] = card
	return nil
}

func (s *Store) ListCardsByOwner(_ context.Context, userID string) ([]model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cards := make([]model.Card, 0)
	for _, card := range s.cards {
		if card.UserID == userID {
			cards = append(cards, card)
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		return cards[i].CreatedAt.After(cards[j].CreatedAt)
	})
	return cards, nil
}

func (s *Store) GetCardByPublicID(_ context.Context, cardID string) (model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.findByPublicID(cardID)
	if !ok {
		return model.Card{}, repository.ErrNotFound
	}
	return card, nil
}

func (s *Store) UpdateCard(_ context.Context, cardID, userID string, update repository.CardUpdate) (model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.findByPublicID(cardID)
	if !ok || card.UserID != userID {
		return model.Card{}, repository.ErrNotFound
	}
	if update.Name != nil {
		card.Name = *update.Name
	}
	if update.Email != nil {
		card.Email = *update.Email
	}
	if update.Phone != nil {
		card.Phone = *update.Phone
	}
	if update.Company != nil {
		card.Company = *update.Company
	}
	if update.Designation != nil {
		card.Designation = *update.Designation
	}
	if update.Website != nil {
		card.Website = *update.Website
	}
	if update.SocialLinks != nil {
		card.SocialLinks = append([]string{}, (*update.SocialLinks)...)
	}
	if update.ProfileImage != nil {
		card.ProfileImage = *update.ProfileImage
	}
	if update.BackgroundColor != nil {
		card.BackgroundColor = *update.BackgroundColor
	}
	if update.TextColor != nil {
		card.TextColor = *update.TextColor
	}
	if update.IsActive != nil {
		card.IsActive = *update.IsActive
	}
	s.cards[card.ID] = card
	return card, nil
}

func (s *Store) DeleteCard(_ context.Context, cardID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.findByPublicID(cardID)
	if !ok || card.UserID != userID {
		return repository.ErrNotFound
	}
	delete(s.cards, card.ID)

	kept := s.scans[:0]
	for _, scan := range s.scans {
		if scan.CardID != card.ID {
			kept = append(kept, scan)
		}
	}
	s.scans = kept
	return nil
}

func (s *Store) LogScan(_ context.Context, scan model.ScanLog) (model.ScanLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[scan.CardID]
	if !ok {
		return model.ScanLog{}, repository.ErrNotFound
	}
	s.scans = append(s.scans, scan)
	card.ScanCount++
	s.cards[card.ID] = card
	return scan, nil
}

func (s *Store) CountScans(_ context.Context, cardRowID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, scan := range s.scans {
		if scan.CardID == cardRowID {
			count++
		}
	}
	return count, nil
}

func (s *Store) RecentScans(_ context.Context, cardRowID string, limit int) ([]model.ScanLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scans := make([]model.ScanLog, 0)
	for _, scan := range s.scans {
		if scan.CardID == cardRowID {
			scans = append(scans, scan)
		}
	}
	sort.SliceStable(scans, func(i, j int) bool {
		return scans[i].Timestamp.After(scans[j].Timestamp)
	})
	if len(scans) > limit {
		scans = scans[:limit]
	}
	return scans, nil
}

func (s *Store) DailyScanCounts(_ context.Context, cardRowID string) ([]model.DailyScanCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]int64)
	for _, scan := range s.scans {
		if scan.CardID == cardRowID {
			byDay[scan.Timestamp.UTC().Format("2006-01-02")]++
		}
	}
	days := make([]model.DailyScanCount, 0, len(byDay))
	for date, count := range byDay {
		days = append(days, model.DailyScanCount{Date: date, Count: count})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

func (s *Store) findByPublicID(cardID string) (model.Card, bool) {
	for _, card := range s.cards {
		if card.CardID == cardID {
			return card, true
		}
	}
	return model.Card{}, false
}
