package bot

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/workout-ledger/internal/bot/handlers"
	"github.com/Proton-105/workout-ledger/internal/bot/keyboard"
	"github.com/Proton-105/workout-ledger/internal/domain"
	errors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/i18n"
	"github.com/Proton-105/workout-ledger/internal/idempotency"
	"github.com/Proton-105/workout-ledger/internal/ratelimit"
	"github.com/Proton-105/workout-ledger/pkg/metrics"
)

const fallbackUserMessage = "⚠️ Something went wrong. Please try again later."

// UserDirectory maps Telegram senders to ledger slots.
type UserDirectory interface {
	FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
}

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *errors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					userMsg := fallbackUserMessage
					if errHandler != nil {
						appErr := errors.NewInternalError(fmt.Errorf("panic recovered: %v", r))
						if msg, _ := errHandler.Handle(context.Background(), appErr); msg != "" {
							userMsg = msg
						}
					}

					if c != nil {
						if sendErr := c.Send(userMsg); sendErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// IdempotencyMiddleware runs a handler at most once per Telegram message or callback.
func IdempotencyMiddleware(manager idempotency.Manager, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := updateKey(c)
			if key == "" {
				return next(c)
			}

			result, err := manager.Execute(context.Background(), key, idempotency.DefaultTTL, func(context.Context) ([]byte, error) {
				return nil, next(c)
			})
			if err != nil {
				if stderrors.Is(err, idempotency.ErrRequestInProgress) {
					log.Debug("duplicate update still in progress", slog.String("key", key))
					return nil
				}
				return err
			}

			if result.FromCache {
				log.Debug("duplicate update skipped", slog.String("key", key))
			}
			return nil
		}
	}
}

func updateKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if cb := c.Callback(); cb != nil {
		if cb.ID != "" {
			return idempotency.GenerateKey("tg", "cb", cb.ID)
		}

		if cb.Message != nil {
			chatID := int64(0)
			if cb.Message.Chat != nil {
				chatID = cb.Message.Chat.ID
			}
			return idempotency.GenerateKey("tg", "cb-msg", fmt.Sprint(chatID), fmt.Sprint(cb.Message.ID))
		}
	}

	if msg := c.Message(); msg != nil {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		if msg.ID != 0 {
			return idempotency.GenerateKey("tg", "msg", fmt.Sprint(chatID), fmt.Sprint(msg.ID))
		}
	}

	return ""
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for handler failures.
func ErrorHandlingMiddleware(errHandler *errors.Handler) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			userMsg := fallbackUserMessage
			if errHandler != nil {
				if msg, _ := errHandler.Handle(context.Background(), err); msg != "" {
					userMsg = msg
				}
			}

			if c != nil {
				_ = c.Send(userMsg)
			}

			return nil
		}
	}
}

// LoggingMiddleware logs basic telemetry about incoming updates.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()
			senderID := int64(0)
			if c.Sender() != nil {
				senderID = c.Sender().ID
			}
			action := actionLabel(c)

			log.Debug("handling update", slog.Int64("telegram_id", senderID), slog.String("action", action))
			err := next(c)
			log.Info("handled update",
				slog.Int64("telegram_id", senderID),
				slog.String("action", action),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// AuthMiddleware resolves the sender to a ledger slot and rejects strangers.
// It also attaches a translator; a non-empty language overrides the sender's locale.
func AuthMiddleware(users UserDirectory, translations *i18n.Manager, language string, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			sender := c.Sender()
			lang := language
			if lang == "" && sender != nil {
				lang = sender.LanguageCode
			}
			t := translations.Translator(lang)
			handlers.SetTranslator(c, t)

			if sender == nil {
				return nil
			}

			u, err := users.FindByTelegramID(context.Background(), sender.ID)
			if err != nil {
				var appErr *errors.AppError
				if stderrors.As(err, &appErr) && appErr.Code == errors.CodeNotFound {
					log.Warn("rejected unknown telegram sender", slog.Int64("telegram_id", sender.ID))
					return c.Send(t.T("start.stranger"))
				}
				return err
			}

			handlers.SetUser(c, u)
			return next(c)
		}
	}
}

// MetricsMiddleware records command counts and durations.
func MetricsMiddleware(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordCommand(actionLabel(c), status, time.Since(start))

		return err
	}
}

// RateLimitMiddleware applies the per-user rule to the resolved slot.
func RateLimitMiddleware(guard *ratelimit.Guard, log *slog.Logger) handlers.Middleware {
	if guard == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			u := handlers.CurrentUser(c)
			if u == nil {
				return next(c)
			}

			_, err := guard.Allow(context.Background(), ratelimit.ScopeUser, "user:"+u.ID)
			switch {
			case stderrors.Is(err, ratelimit.ErrLimitExceeded):
				log.Warn("bot rate limit exceeded", slog.String("user_id", u.ID))
				return c.Send(handlers.Translator(c).T("errors.rate_limited"))
			case err != nil:
				log.Error("bot rate limit check failed", slog.String("user_id", u.ID), slog.Any("error", err))
			}

			return next(c)
		}
	}
}

// actionLabel is a bounded label for logs and metrics.
func actionLabel(c telebot.Context) string {
	if cb := c.Callback(); cb != nil {
		parsed, err := keyboard.ParseCallback(cb.Data)
		if err != nil {
			return "callback"
		}
		return parsed.Action
	}
	if cmd := commandName(c.Text()); cmd != "" {
		return cmd
	}
	return "text"
}
