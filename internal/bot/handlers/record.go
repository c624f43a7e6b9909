package handlers

import (
	"context"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/workout-ledger/internal/bot/keyboard"
	"github.com/Proton-105/workout-ledger/internal/civil"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/ledger"
)

// NewWorkoutHandler records a workout for today or the date given as the first argument.
func NewWorkoutHandler(env *Env) Handler {
	return func(c telebot.Context) error {
		u := CurrentUser(c)
		if u == nil {
			return apperrors.NewNotFoundError("user")
		}
		t := Translator(c)

		date, ok := env.dateArg(c)
		if !ok {
			return c.Send(t.T("errors.invalid_date"))
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		outcome, err := env.Ledger.RecordWorkout(ctx, u.ID, date)
		if err != nil {
			return err
		}

		switch outcome {
		case ledger.OutcomeRecorded:
			profile, err := env.Profiles.Profile(ctx, u.ID)
			if err != nil {
				return err
			}
			return c.Send(t.Tf("workout.recorded", date, profile.State.ConsecWorkout))
		case ledger.OutcomeAlreadyRecorded:
			return c.Send(t.Tf("workout.already", date))
		default:
			return outcomeError(outcome)
		}
	}
}

// NewSkipHandler asks for confirmation before a skip point is spent.
func NewSkipHandler(env *Env) Handler {
	return func(c telebot.Context) error {
		u := CurrentUser(c)
		if u == nil {
			return apperrors.NewNotFoundError("user")
		}
		t := Translator(c)

		date, ok := env.dateArg(c)
		if !ok {
			return c.Send(t.T("errors.invalid_date"))
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		profile, err := env.Profiles.Profile(ctx, u.ID)
		if err != nil {
			return err
		}
		if profile.State.SkipPoints <= 0 {
			return c.Send(t.T("skip.no_points"))
		}

		markup, err := keyboard.SkipConfirm(t, date.String())
		if err != nil {
			return err
		}

		return c.Send(t.Tf("skip.confirm", date, profile.State.SkipPoints), markup)
	}
}

// HandleSkipConfirm spends the point once the sender presses the confirm button.
func HandleSkipConfirm(env *Env) CallbackHandler {
	return func(c telebot.Context) error {
		u := CurrentUser(c)
		if u == nil {
			return apperrors.NewNotFoundError("user")
		}
		t := Translator(c)

		cb, err := keyboard.ParseCallback(c.Callback().Data)
		if err != nil {
			return err
		}
		date, err := civil.Parse(cb.Arg)
		if err != nil || date.After(env.Today()) {
			return respond(c, t.T("errors.invalid_date"))
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		outcome, err := env.Ledger.RecordSkip(ctx, u.ID, date)
		if err != nil {
			return err
		}

		var text string
		switch outcome {
		case ledger.OutcomeRecorded:
			profile, err := env.Profiles.Profile(ctx, u.ID)
			if err != nil {
				return err
			}
			text = t.Tf("skip.recorded", date, profile.State.SkipPoints)
		case ledger.OutcomeAlreadyRecorded:
			text = t.Tf("skip.already", date)
		case ledger.OutcomeNoSkipPoints:
			text = t.T("skip.no_points")
		default:
			return outcomeError(outcome)
		}

		env.logger().Info("skip confirmed",
			slog.String("user_id", u.ID),
			slog.String("date", date.String()),
			slog.String("outcome", string(outcome)),
		)

		return respond(c, text)
	}
}

// HandleSkipCancel withdraws the confirmation prompt.
func HandleSkipCancel() CallbackHandler {
	return func(c telebot.Context) error {
		return respond(c, Translator(c).T("skip.cancelled"))
	}
}

// respond acknowledges the callback and replaces the prompt with text.
func respond(c telebot.Context, text string) error {
	if err := c.Respond(); err != nil {
		return err
	}
	return c.Edit(text)
}

// dateArg reads an optional YYYY-MM-DD argument; future dates are rejected.
func (e *Env) dateArg(c telebot.Context) (civil.Date, bool) {
	today := e.Today()

	fields := strings.Fields(c.Text())
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "/") {
		return today, true
	}

	date, err := civil.Parse(fields[1])
	if err != nil || date.After(today) {
		return civil.Date{}, false
	}
	return date, true
}

func outcomeError(outcome ledger.Outcome) error {
	return apperrors.NewStateError("unexpected ledger outcome " + string(outcome))
}
