package domain

import (
	"fmt"
	"time"

	"github.com/Proton-105/workout-ledger/internal/civil"
)

// Status marks what happened on a day.
type Status string

const (
	// StatusWorkout records a completed workout.
	StatusWorkout Status = "workout"
	// StatusSkip records a day excused with a skip point.
	StatusSkip Status = "skip"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusWorkout || s == StatusSkip
}

// ParseStatus validates a stored status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown day status %q", raw)
	}
	return s, nil
}

// DayRecord is the immutable entry for one user and one civil date.
type DayRecord struct {
	UserID    string     `json:"user_id"`
	Date      civil.Date `json:"date"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}
