package handlers

import (
	"context"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/workout-ledger/internal/domain"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
)

// HistoryDays is how many recent records /history lists.
const HistoryDays = 14

// NewStatusHandler lists the counters of every slot.
func NewStatusHandler(env *Env) Handler {
	return func(c telebot.Context) error {
		t := Translator(c)

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		profiles, err := env.Profiles.Profiles(ctx)
		if err != nil {
			return err
		}

		lines := make([]string, 0, len(profiles))
		for _, p := range profiles {
			lines = append(lines, t.Tf("status.line",
				p.User.DisplayName, p.State.SkipPoints, domain.MaxSkipPoints, p.State.ConsecWorkout))
		}

		return c.Send(strings.Join(lines, "\n"))
	}
}

// NewHistoryHandler lists the sender's most recent days.
func NewHistoryHandler(env *Env) Handler {
	return func(c telebot.Context) error {
		u := CurrentUser(c)
		if u == nil {
			return apperrors.NewNotFoundError("user")
		}
		t := Translator(c)

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		days, err := env.Ledger.History(ctx, u.ID)
		if err != nil {
			return err
		}
		if len(days) == 0 {
			return c.Send(t.T("history.empty"))
		}
		if len(days) > HistoryDays {
			days = days[len(days)-HistoryDays:]
		}

		var b strings.Builder
		b.WriteString(t.Tf("history.header", len(days)))
		for i := len(days) - 1; i >= 0; i-- {
			b.WriteString("\n")
			b.WriteString(days[i].Date.String())
			b.WriteString(" ")
			b.WriteString(t.T("history." + string(days[i].Status)))
		}

		return c.Send(b.String())
	}
}
