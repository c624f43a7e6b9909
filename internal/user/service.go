// Package user resolves ledger slots for the transports and keeps them in sync with configuration.
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Proton-105/workout-ledger/internal/domain"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/pkg/config"
)

// Ledger is the part of the habit ledger this service relies on.
type Ledger interface {
	EnsureUsers(ctx context.Context, users []domain.User) error
	Users(ctx context.Context) ([]domain.User, error)
	User(ctx context.Context, userID string) (*domain.User, error)
	UserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	Profile(ctx context.Context, userID string) (*domain.Profile, error)
	RenameUser(ctx context.Context, userID, name string) (*domain.User, error)
	LinkTelegram(ctx context.Context, userID string, telegramID int64) (*domain.User, error)
}

// ProfileCache is a read-through cache for profiles.
type ProfileCache interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	Set(ctx context.Context, profile *domain.Profile) error
}

// Service provides user lookups for the web and bot layers.
type Service struct {
	ledger Ledger
	cache  ProfileCache
	log    *slog.Logger
}

// NewService constructs a new Service instance. cache may be nil.
func NewService(ledger Ledger, cache ProfileCache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{ledger: ledger, cache: cache, log: log}
}

// FromConfig converts configured slots into domain users.
func FromConfig(cfgs []config.UserConfig) []domain.User {
	users := make([]domain.User, 0, len(cfgs))
	for _, c := range cfgs {
		name := strings.TrimSpace(c.DisplayName)
		if name == "" {
			name = c.ID
		}
		users = append(users, domain.User{ID: c.ID, DisplayName: name, TelegramID: c.TelegramID})
	}
	return users
}

// Bootstrap creates missing slots and applies configured Telegram mappings.
// Display names already stored are kept since they can be edited at runtime.
func (s *Service) Bootstrap(ctx context.Context, configured []domain.User) error {
	err := apperrors.WithRetry(ctx, func() error {
		return s.ledger.EnsureUsers(ctx, configured)
	})
	if err != nil {
		s.logError("bootstrap.ensure", "", err)
		return fmt.Errorf("ensure users: %w", err)
	}

	stored, err := s.ledger.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	byID := make(map[string]domain.User, len(stored))
	for _, u := range stored {
		byID[u.ID] = u
	}

	for _, want := range configured {
		have, ok := byID[want.ID]
		if !ok || have.TelegramID == want.TelegramID {
			continue
		}
		if _, err := s.ledger.LinkTelegram(ctx, want.ID, want.TelegramID); err != nil {
			s.logError("bootstrap.link_telegram", want.ID, err)
			return fmt.Errorf("link telegram for %s: %w", want.ID, err)
		}
	}

	s.log.Info("users ready", slog.Int("count", len(configured)))
	return nil
}

// Reconcile applies a configuration change. Only fields that changed between previous and
// current are written, so runtime renames survive unrelated reloads.
func (s *Service) Reconcile(ctx context.Context, previous, current []domain.User) error {
	old := make(map[string]domain.User, len(previous))
	for _, u := range previous {
		old[u.ID] = u
	}

	var added []domain.User
	for _, u := range current {
		prev, ok := old[u.ID]
		if !ok {
			added = append(added, u)
			continue
		}

		if prev.DisplayName != u.DisplayName {
			if _, err := s.ledger.RenameUser(ctx, u.ID, u.DisplayName); err != nil {
				return fmt.Errorf("rename %s: %w", u.ID, err)
			}
		}
		if prev.TelegramID != u.TelegramID {
			if _, err := s.ledger.LinkTelegram(ctx, u.ID, u.TelegramID); err != nil {
				return fmt.Errorf("link telegram for %s: %w", u.ID, err)
			}
		}
	}

	if len(added) > 0 {
		if err := s.ledger.EnsureUsers(ctx, added); err != nil {
			return fmt.Errorf("ensure users: %w", err)
		}
	}

	return nil
}

// List returns all slots ordered by id.
func (s *Service) List(ctx context.Context) ([]domain.User, error) {
	return s.ledger.Users(ctx)
}

// Get returns the slot with id or a not-found AppError.
func (s *Service) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.ledger.User(ctx, id)
}

// FindByTelegramID maps a Telegram account to its slot.
func (s *Service) FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	if telegramID == 0 {
		return nil, apperrors.NewNotFoundError("user")
	}
	return s.ledger.UserByTelegramID(ctx, telegramID)
}

// Profile returns the cached profile of id, loading it from the ledger on a miss.
func (s *Service) Profile(ctx context.Context, id string) (*domain.Profile, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logError("profile.cache_get", id, err)
		} else if cached != nil {
			return cached, nil
		}
	}

	profile, err := s.ledger.Profile(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, profile); err != nil {
			s.logError("profile.cache_set", id, err)
		}
	}

	return profile, nil
}

// Profiles returns the profile of every slot ordered by id.
func (s *Service) Profiles(ctx context.Context) ([]domain.Profile, error) {
	users, err := s.ledger.Users(ctx)
	if err != nil {
		return nil, err
	}

	profiles := make([]domain.Profile, 0, len(users))
	for _, u := range users {
		p, err := s.Profile(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}

	return profiles, nil
}

// Rename changes the display name of id.
func (s *Service) Rename(ctx context.Context, id, name string) (*domain.User, error) {
	return s.ledger.RenameUser(ctx, id, name)
}

func (s *Service) logError(operation, userID string, err error) {
	if s == nil || s.log == nil || err == nil {
		return
	}

	s.log.Error("user service operation failed",
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Any("error", err),
	)
}
