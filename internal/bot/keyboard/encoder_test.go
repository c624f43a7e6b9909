package keyboard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/internal/bot/keyboard"
)

func TestCallback_Encode(t *testing.T) {
	tests := []struct {
		name      string
		cb        keyboard.Callback
		want      string
		wantError bool
	}{
		{
			name: "with date",
			cb:   keyboard.Callback{Action: keyboard.CallbackSkipConfirm, Arg: "2025-03-15"},
			want: "skip_confirm|2025-03-15",
		},
		{
			name: "action only",
			cb:   keyboard.Callback{Action: keyboard.CallbackSkipCancel},
			want: "skip_cancel",
		},
		{
			name:      "empty action",
			cb:        keyboard.Callback{Arg: "2025-03-15"},
			wantError: true,
		},
		{
			name:      "separator in action",
			cb:        keyboard.Callback{Action: "a|b"},
			wantError: true,
		},
		{
			name:      "exceeds limit",
			cb:        keyboard.Callback{Action: "x", Arg: strings.Repeat("y", keyboard.CallbackDataLimitBytes)},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cb.Encode()
			if tt.wantError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    keyboard.Callback
		wantErr bool
	}{
		{
			name:  "action and date",
			input: "skip_confirm|2025-03-15",
			want:  keyboard.Callback{Action: "skip_confirm", Arg: "2025-03-15"},
		},
		{
			name:  "action only",
			input: "skip_cancel",
			want:  keyboard.Callback{Action: "skip_cancel"},
		},
		{
			name:  "argument keeps later separators",
			input: "action|part1|part2",
			want:  keyboard.Callback{Action: "action", Arg: "part1|part2"},
		},
		{
			name:  "telebot unique marker",
			input: "\fskip_cancel",
			want:  keyboard.Callback{Action: "skip_cancel"},
		},
		{name: "empty input", input: "", wantErr: true},
		{name: "missing action", input: "|2025-03-15", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keyboard.ParseCallback(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
