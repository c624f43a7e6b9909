package handlers

import (
	"context"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/domain"
	"github.com/Proton-105/workout-ledger/internal/i18n"
	"github.com/Proton-105/workout-ledger/internal/ledger"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes inline callback events.
type CallbackHandler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Ledger records days for a slot.
type Ledger interface {
	RecordWorkout(ctx context.Context, userID string, date civil.Date) (ledger.Outcome, error)
	RecordSkip(ctx context.Context, userID string, date civil.Date) (ledger.Outcome, error)
	History(ctx context.Context, userID string) ([]domain.DayRecord, error)
}

// Profiles reads slot counters.
type Profiles interface {
	Profile(ctx context.Context, id string) (*domain.Profile, error)
	Profiles(ctx context.Context) ([]domain.Profile, error)
}

// Env carries what every handler needs.
type Env struct {
	Ledger   Ledger
	Profiles Profiles
	Location *time.Location
	Now      func() time.Time
	Log      *slog.Logger
}

// Today is the current civil date in the deployment timezone.
func (e *Env) Today() civil.Date {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	return civil.Today(now(), loc)
}

func (e *Env) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

const (
	userKey       = "ledger_user"
	translatorKey = "translator"
)

// requestTimeout bounds the storage calls of one update.
const requestTimeout = 10 * time.Second

// SetUser attaches the resolved slot to the update.
func SetUser(c telebot.Context, u *domain.User) {
	c.Set(userKey, u)
}

// CurrentUser returns the slot resolved by the auth middleware, or nil.
func CurrentUser(c telebot.Context) *domain.User {
	u, _ := c.Get(userKey).(*domain.User)
	return u
}

// SetTranslator attaches the sender's translator to the update.
func SetTranslator(c telebot.Context, t i18n.Translator) {
	c.Set(translatorKey, t)
}

// Translator returns the sender's translator; keys are returned untranslated when none is set.
func Translator(c telebot.Context) i18n.Translator {
	if t, ok := c.Get(translatorKey).(i18n.Translator); ok && t != nil {
		return t
	}
	var m *i18n.Manager
	return m.Translator("")
}
