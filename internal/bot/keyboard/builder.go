package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/workout-ledger/internal/i18n"
)

// Callback actions understood by the bot router.
const (
	CallbackSkipConfirm = "skip_confirm"
	CallbackSkipCancel  = "skip_cancel"
)

// SkipConfirm asks before a skip point is spent on date.
func SkipConfirm(t i18n.Translator, date string) (*telebot.ReplyMarkup, error) {
	return NewInlineKeyboard().
		AddRow(
			InlineButton{Text: t.T("skip.accept"), Callback: Callback{Action: CallbackSkipConfirm, Arg: date}},
			InlineButton{Text: t.T("skip.decline"), Callback: Callback{Action: CallbackSkipCancel}},
		).
		Build()
}
