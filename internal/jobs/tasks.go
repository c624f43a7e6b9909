package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskTypeReminder = "reminder:daily"

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// DefaultQueues are the queue priorities of the worker.
var DefaultQueues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// reminderMaxRetry keeps a flaky Telegram from producing a burst of late reminders.
const reminderMaxRetry = 2

// ReminderPayload targets one civil date; empty means today at processing time.
type ReminderPayload struct {
	Date string `json:"date,omitempty"`
}

func NewReminderTask(date string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReminderPayload{Date: date})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeReminder, payload, asynq.Queue(QueueDefault), asynq.MaxRetry(reminderMaxRetry)), nil
}
