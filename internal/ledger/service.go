// Package ledger applies the workout and skip bookkeeping rules to stored user state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/domain"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/repository"
	"github.com/Proton-105/workout-ledger/pkg/metrics"
)

// Outcome reports what a recording call did. Anything but OutcomeRecorded left storage untouched.
type Outcome string

const (
	OutcomeRecorded        Outcome = "recorded"
	OutcomeAlreadyRecorded Outcome = "already_recorded"
	OutcomeNoSkipPoints    Outcome = "no_skip_points"
	OutcomeStateMissing    Outcome = "state_missing"
)

// Changed reports whether the call wrote anything.
func (o Outcome) Changed() bool {
	return o == OutcomeRecorded
}

// MaxDisplayNameLength bounds display names in runes.
const MaxDisplayNameLength = 64

// errAbort rolls back a transaction that decided not to write.
var errAbort = errors.New("ledger: abort")

// Invalidator drops cached views of a user after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Service is the habit ledger.
type Service struct {
	store repository.Store
	cache Invalidator
	log   *slog.Logger
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithInvalidator registers a cache to be invalidated after writes.
func WithInvalidator(cache Invalidator) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithClock overrides the wall clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a ledger over store.
func NewService(store repository.Store, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		store: store,
		log:   log.With(slog.String("component", "ledger")),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// EnsureUsers creates missing user rows and their initial state. Existing rows are left alone.
func (s *Service) EnsureUsers(ctx context.Context, users []domain.User) error {
	now := s.now().UTC()

	err := s.store.WithinTx(ctx, func(q repository.Queries) error {
		for _, user := range users {
			if strings.TrimSpace(user.ID) == "" {
				return apperrors.NewValidationError("user id must not be empty")
			}

			created, err := q.InsertUserIfAbsent(ctx, user)
			if err != nil {
				return err
			}
			if created {
				s.log.Info("user created", slog.String("user_id", user.ID))
			}

			if _, err := q.InsertStateIfAbsent(ctx, domain.InitialState(user.ID, now)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapStorage("ensure users", err)
	}

	return nil
}

// RecordWorkout marks date as a workout for userID and advances the streak.
// Yesterday being a workout extends the streak; anything else restarts it at 1.
// Reaching an even streak earns a skip point while the budget is below the cap.
func (s *Service) RecordWorkout(ctx context.Context, userID string, date civil.Date) (Outcome, error) {
	start := s.now()
	if err := validateTarget(userID, date); err != nil {
		return "", err
	}

	var (
		outcome Outcome
		next    domain.UserState
	)

	err := s.store.WithinTx(ctx, func(q repository.Queries) error {
		state, err := q.GetStateForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				outcome = OutcomeStateMissing
				return errAbort
			}
			return err
		}

		inserted, err := q.InsertDayIfAbsent(ctx, domain.DayRecord{
			UserID:    userID,
			Date:      date,
			Status:    domain.StatusWorkout,
			CreatedAt: start.UTC(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			outcome = OutcomeAlreadyRecorded
			return errAbort
		}

		streak := 1
		prev, err := q.GetDay(ctx, userID, date.Prev())
		switch {
		case err == nil:
			if prev.Status == domain.StatusWorkout {
				streak = state.ConsecWorkout + 1
			}
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		next = *state
		next.ConsecWorkout = streak
		if streak%2 == 0 && next.SkipPoints < domain.MaxSkipPoints {
			next.SkipPoints++
		}
		next.UpdatedAt = s.now().UTC()

		if err := q.UpdateState(ctx, next); err != nil {
			return err
		}

		outcome = OutcomeRecorded
		return nil
	})

	return s.finish(ctx, "workout", userID, date, start, outcome, next, err)
}

// RecordSkip spends one skip point on date for userID and resets the streak.
func (s *Service) RecordSkip(ctx context.Context, userID string, date civil.Date) (Outcome, error) {
	start := s.now()
	if err := validateTarget(userID, date); err != nil {
		return "", err
	}

	var (
		outcome Outcome
		next    domain.UserState
	)

	err := s.store.WithinTx(ctx, func(q repository.Queries) error {
		state, err := q.GetStateForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				outcome = OutcomeStateMissing
				return errAbort
			}
			return err
		}

		if state.SkipPoints <= 0 {
			outcome = OutcomeNoSkipPoints
			return errAbort
		}

		inserted, err := q.InsertDayIfAbsent(ctx, domain.DayRecord{
			UserID:    userID,
			Date:      date,
			Status:    domain.StatusSkip,
			CreatedAt: start.UTC(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			outcome = OutcomeAlreadyRecorded
			return errAbort
		}

		next = *state
		next.SkipPoints--
		next.ConsecWorkout = 0
		next.UpdatedAt = s.now().UTC()

		if err := q.UpdateState(ctx, next); err != nil {
			return err
		}

		outcome = OutcomeRecorded
		return nil
	})

	return s.finish(ctx, "skip", userID, date, start, outcome, next, err)
}

func (s *Service) finish(
	ctx context.Context,
	operation, userID string,
	date civil.Date,
	start time.Time,
	outcome Outcome,
	state domain.UserState,
	err error,
) (Outcome, error) {
	if err != nil && !errors.Is(err, errAbort) {
		metrics.RecordLedgerOperation(operation, "error", s.now().Sub(start))
		return "", wrapStorage("record "+operation, err)
	}

	metrics.RecordLedgerOperation(operation, string(outcome), s.now().Sub(start))

	log := s.log.With(
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.String("date", date.String()),
		slog.String("outcome", string(outcome)),
	)

	if outcome == OutcomeStateMissing {
		log.Warn("user state missing, nothing written")
		return outcome, nil
	}
	if !outcome.Changed() {
		log.Debug("ledger call was a no-op")
		return outcome, nil
	}

	log.Info("day recorded",
		slog.Int("skip_points", state.SkipPoints),
		slog.Int("consec_workout", state.ConsecWorkout),
	)
	metrics.SetUserState(userID, state.SkipPoints, state.ConsecWorkout)
	s.invalidate(ctx, userID)

	return outcome, nil
}

// History returns every recorded day of userID in date order.
func (s *Service) History(ctx context.Context, userID string) ([]domain.DayRecord, error) {
	days, err := s.store.ListDays(ctx, userID)
	if err != nil {
		return nil, wrapStorage("history", err)
	}
	return days, nil
}

// HistoryBetween returns recorded days of userID within [from, to].
func (s *Service) HistoryBetween(ctx context.Context, userID string, from, to civil.Date) ([]domain.DayRecord, error) {
	if to.Before(from) {
		return nil, apperrors.NewValidationError("range end precedes range start")
	}

	days, err := s.store.ListDaysBetween(ctx, userID, from, to)
	if err != nil {
		return nil, wrapStorage("history", err)
	}
	return days, nil
}

// Profile returns the user row together with its counters.
func (s *Service) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return nil, wrapStorage("profile", err)
	}

	state, err := s.store.GetState(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewStateError("user state missing")
		}
		return nil, wrapStorage("profile", err)
	}

	return &domain.Profile{User: *user, State: *state}, nil
}

// User returns the user with userID.
func (s *Service) User(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return nil, wrapStorage("find user", err)
	}
	return user, nil
}

// UserByTelegramID returns the user mapped to telegramID.
func (s *Service) UserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	user, err := s.store.FindUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, wrapStorage("find user by telegram", err)
	}
	return user, nil
}

// Users lists every user ordered by id.
func (s *Service) Users(ctx context.Context) ([]domain.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, wrapStorage("list users", err)
	}
	return users, nil
}

// RenameUser changes the display name of userID.
func (s *Service) RenameUser(ctx context.Context, userID, name string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("display name must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("display name is limited to %d characters", MaxDisplayNameLength))
	}

	return s.updateUser(ctx, "rename user", userID, func(_ repository.Queries, u *domain.User) error {
		u.DisplayName = name
		return nil
	})
}

// LinkTelegram maps a Telegram account to userID; zero removes the mapping.
func (s *Service) LinkTelegram(ctx context.Context, userID string, telegramID int64) (*domain.User, error) {
	var released string

	user, err := s.updateUser(ctx, "link telegram", userID, func(q repository.Queries, u *domain.User) error {
		if telegramID != 0 {
			holder, err := q.FindUserByTelegramID(ctx, telegramID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
			case err != nil:
				return err
			case holder.ID != u.ID:
				// an account maps to one slot; the previous holder loses it
				holder.TelegramID = 0
				if _, err := q.UpdateUser(ctx, *holder); err != nil {
					return err
				}
				released = holder.ID
			}
		}
		u.TelegramID = telegramID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if released != "" {
		s.log.Warn("telegram account moved", slog.String("from", released), slog.String("to", userID))
		s.invalidate(ctx, released)
	}
	return user, nil
}

func (s *Service) updateUser(ctx context.Context, operation, userID string, mutate func(repository.Queries, *domain.User) error) (*domain.User, error) {
	var updated domain.User

	err := s.store.WithinTx(ctx, func(q repository.Queries) error {
		user, err := q.FindUser(ctx, userID)
		if err != nil {
			return err
		}

		if err := mutate(q, user); err != nil {
			return err
		}
		if _, err := q.UpdateUser(ctx, *user); err != nil {
			return err
		}

		updated = *user
		return nil
	})
	if err != nil {
		return nil, wrapStorage(operation, err)
	}

	s.log.Info("user updated", slog.String("operation", operation), slog.String("user_id", userID))
	s.invalidate(ctx, userID)

	return &updated, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("failed to invalidate cached profile", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func validateTarget(userID string, date civil.Date) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.NewValidationError("user id must not be empty")
	}
	if date.IsZero() {
		return apperrors.NewValidationError("date must be YYYY-MM-DD")
	}
	return nil
}

func wrapStorage(operation string, err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFoundError("user")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", operation, err)
	default:
		return fmt.Errorf("%s: %w", operation, apperrors.NewDatabaseError(err))
	}
}
