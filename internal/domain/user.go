package domain

import "time"

// User is one fixed ledger slot.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	TelegramID  int64  `json:"telegram_id,omitempty"`
}

// MaxSkipPoints caps the skip budget.
const MaxSkipPoints = 2

// UserState holds the per-user counters maintained by the ledger.
type UserState struct {
	UserID        string    `json:"user_id"`
	SkipPoints    int       `json:"skip_points"`
	ConsecWorkout int       `json:"consec_workout"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InitialState is the state a freshly created user starts with.
func InitialState(userID string, now time.Time) UserState {
	return UserState{
		UserID:        userID,
		SkipPoints:    MaxSkipPoints,
		ConsecWorkout: 0,
		UpdatedAt:     now,
	}
}

// Profile joins a user with its counters.
type Profile struct {
	User  User      `json:"user"`
	State UserState `json:"state"`
}
