package keyboard

import (
	"errors"
	"fmt"
	"strings"
)

const (
	callbackSeparator = "|"
	// CallbackDataLimitBytes is Telegram's cap on callback_data.
	CallbackDataLimitBytes = 64
	// uniqueMarker is the prefix telebot adds to data of buttons that carry a Unique.
	uniqueMarker = "\f"
)

var errEmptyCallback = errors.New("callback data is empty")

// Callback is the payload of an inline button: an action and an optional argument, usually a date.
type Callback struct {
	Action string
	Arg    string
}

// Encode renders c as "action" or "action|arg".
func (c Callback) Encode() (string, error) {
	if c.Action == "" || strings.Contains(c.Action, callbackSeparator) {
		return "", fmt.Errorf("invalid callback action %q", c.Action)
	}

	payload := c.Action
	if c.Arg != "" {
		payload += callbackSeparator + c.Arg
	}
	if len(payload) > CallbackDataLimitBytes {
		return "", fmt.Errorf("callback data exceeds %d byte limit: got %d", CallbackDataLimitBytes, len(payload))
	}

	return payload, nil
}

// ParseCallback is the inverse of Encode. Everything after the first separator is the argument.
func ParseCallback(data string) (Callback, error) {
	data = strings.TrimPrefix(data, uniqueMarker)
	if data == "" {
		return Callback{}, errEmptyCallback
	}

	action, arg, _ := strings.Cut(data, callbackSeparator)
	if action == "" {
		return Callback{}, errEmptyCallback
	}
	return Callback{Action: action, Arg: arg}, nil
}
