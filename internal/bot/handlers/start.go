package handlers

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/workout-ledger/internal/bot/keyboard"
)

// NewStartHandler greets the sender and shows the reply menu.
func NewStartHandler() Handler {
	return func(c telebot.Context) error {
		t := Translator(c)

		name := ""
		if u := CurrentUser(c); u != nil {
			name = u.DisplayName
		}

		return c.Send(t.Tf("start.greeting", name), keyboard.MainMenu(t))
	}
}
