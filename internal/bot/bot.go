// Package bot is the Telegram transport of the ledger.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/workout-ledger/internal/bot/handlers"
	"github.com/Proton-105/workout-ledger/internal/bot/keyboard"
	errors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/i18n"
	"github.com/Proton-105/workout-ledger/internal/idempotency"
	"github.com/Proton-105/workout-ledger/internal/ratelimit"
	"github.com/Proton-105/workout-ledger/pkg/config"
)

const defaultPollTimeout = 10 * time.Second

// Users is the slot directory the bot reads.
type Users interface {
	UserDirectory
	handlers.Profiles
}

// Deps are the collaborators of the bot.
type Deps struct {
	Config       config.BotConfig
	Ledger       handlers.Ledger
	Users        Users
	Translations *i18n.Manager
	Guard        *ratelimit.Guard
	Idempotency  idempotency.Manager
	Errors       *errors.Handler
	Location     *time.Location
	Now          func() time.Time
	Log          *slog.Logger
}

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot      *telebot.Bot
	log          *slog.Logger
	router       *Router
	translations *i18n.Manager
	language     string
}

// New builds a telegram bot instance configured according to the application settings.
func New(deps Deps) (*Bot, error) {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "bot"))

	timeout := deps.Config.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token:  deps.Config.Token,
		Poller: &telebot.LongPoller{Timeout: timeout},
		OnError: func(err error, c telebot.Context) {
			log.Error("telebot error", slog.Any("error", err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	b := &Bot{
		telebot:      tb,
		log:          log,
		router:       newRouter(deps, log),
		translations: deps.Translations,
		language:     deps.Config.Language,
	}

	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnCallback, b.router.Route)

	return b, nil
}

// newRouter wires the middleware chain and every command of the bot.
func newRouter(deps Deps, log *slog.Logger) *Router {
	errHandler := deps.Errors
	if errHandler == nil {
		errHandler = errors.NewHandler(log, false)
	}

	env := &handlers.Env{
		Ledger:   deps.Ledger,
		Profiles: deps.Users,
		Location: deps.Location,
		Now:      deps.Now,
		Log:      log,
	}

	router := NewRouter(log)

	router.Use(RecoveryMiddleware(log, errHandler))
	router.Use(IdempotencyMiddleware(deps.Idempotency, log))
	router.Use(ErrorHandlingMiddleware(errHandler))
	router.Use(LoggingMiddleware(log))
	router.Use(AuthMiddleware(deps.Users, deps.Translations, deps.Config.Language, log))
	router.Use(MetricsMiddleware)
	router.Use(RateLimitMiddleware(deps.Guard, log))

	start := handlers.NewStartHandler()
	router.RegisterCommand(CommandStart, start)
	router.RegisterCommand(CommandWorkout, handlers.NewWorkoutHandler(env))
	router.RegisterCommand(CommandSkip, handlers.NewSkipHandler(env))
	router.RegisterCommand(CommandStatus, handlers.NewStatusHandler(env))
	router.RegisterCommand(CommandHistory, handlers.NewHistoryHandler(env))
	router.SetDefault(start)

	for _, lang := range deps.Translations.Languages() {
		t := deps.Translations.Translator(lang)
		for key, cmd := range menuCommands {
			router.RegisterAlias(t.T(key), cmd)
		}
	}

	router.RegisterCallback(keyboard.CallbackSkipConfirm, handlers.HandleSkipConfirm(env))
	router.RegisterCallback(keyboard.CallbackSkipCancel, handlers.HandleSkipCancel())

	return router
}

// Start runs the telegram bot event loop. It blocks until Stop.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// Notify sends text to a Telegram user together with the main menu.
func (b *Bot) Notify(ctx context.Context, telegramID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	menu := keyboard.MainMenu(b.translations.Translator(b.language))
	if _, err := b.telebot.Send(&telebot.User{ID: telegramID}, text, menu); err != nil {
		return errors.NewExternalAPIError("telegram", err)
	}
	return nil
}
