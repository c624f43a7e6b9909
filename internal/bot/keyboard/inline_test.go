package keyboard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/internal/bot/keyboard"
)

func TestInlineKeyboardBuilder(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		markup, err := keyboard.NewInlineKeyboard().
			AddRow(
				keyboard.InlineButton{Text: "Yes", Callback: keyboard.Callback{Action: "confirm", Arg: "1"}},
				keyboard.InlineButton{Text: "No", Callback: keyboard.Callback{Action: "cancel"}},
			).
			AddRow().
			AddRow(keyboard.InlineButton{Text: "More", Callback: keyboard.Callback{Action: "more", Arg: "2"}}).
			Build()
		require.NoError(t, err)

		require.Len(t, markup.InlineKeyboard, 2)
		assert.Len(t, markup.InlineKeyboard[0], 2)
		assert.Equal(t, "confirm|1", markup.InlineKeyboard[0][0].Data)
		assert.Equal(t, "cancel", markup.InlineKeyboard[0][1].Data)
		assert.Empty(t, markup.InlineKeyboard[0][0].Unique)
	})

	t.Run("callback data overflow", func(t *testing.T) {
		_, err := keyboard.NewInlineKeyboard().
			AddRow(keyboard.InlineButton{
				Text:     "Too big",
				Callback: keyboard.Callback{Action: "overflow", Arg: strings.Repeat("x", keyboard.CallbackDataLimitBytes)},
			}).
			Build()
		assert.Error(t, err)
	})
}

func TestSkipConfirm(t *testing.T) {
	tr := mockTranslator{"skip.accept": "Yes, skip", "skip.decline": "No"}

	markup, err := keyboard.SkipConfirm(tr, "2025-03-15")
	require.NoError(t, err)

	require.Len(t, markup.InlineKeyboard, 1)
	row := markup.InlineKeyboard[0]
	assert.Equal(t, "Yes, skip", row[0].Text)
	assert.Equal(t, "skip_confirm|2025-03-15", row[0].Data)
	assert.Equal(t, "skip_cancel", row[1].Data)
}
