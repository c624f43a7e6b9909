package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/workout-ledger/internal/i18n"
)

// MenuKeys are the catalog keys of the reply menu buttons, in display order.
var MenuKeys = []string{"menu.workout", "menu.skip", "menu.status", "menu.history"}

// MainMenu builds a localized reply keyboard for the bot main menu.
func MainMenu(t i18n.Translator) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: false,
	}

	lookup := func(key string) string {
		if t == nil {
			return key
		}
		return t.T(key)
	}

	workoutBtn := markup.Text(lookup("menu.workout"))
	skipBtn := markup.Text(lookup("menu.skip"))
	statusBtn := markup.Text(lookup("menu.status"))
	historyBtn := markup.Text(lookup("menu.history"))

	markup.Reply(
		markup.Row(workoutBtn, skipBtn),
		markup.Row(statusBtn, historyBtn),
	)

	return markup
}
