package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/domain"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/idempotency"
	"github.com/Proton-105/workout-ledger/internal/jobs"
	"github.com/Proton-105/workout-ledger/internal/testutil"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Users(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]domain.User)
	return users, args.Error(1)
}

func (m *mockLedger) HistoryBetween(ctx context.Context, userID string, from, to civil.Date) ([]domain.DayRecord, error) {
	args := m.Called(ctx, userID, from, to)
	days, _ := args.Get(0).([]domain.DayRecord)
	return days, args.Error(1)
}

type recordingNotifier struct {
	sent []int64
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, telegramID int64, _ string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, telegramID)
	return nil
}

var (
	today   = civil.MustParse("2025-03-15")
	members = []domain.User{
		{ID: "a", DisplayName: "Alex", TelegramID: 100},
		{ID: "b", DisplayName: "Sam", TelegramID: 200},
		{ID: "c", DisplayName: "Offline"},
	}
)

func newHandler(ledger Ledger, notifier Notifier) *ReminderHandler {
	sent := idempotency.NewManager(idempotency.NewMemoryStore(), testutil.Logger())
	h := NewReminderHandler(ledger, notifier, sent, nil, "log your day", time.UTC, testutil.Logger())
	h.now = func() time.Time { return time.Date(2025, 3, 15, 21, 0, 0, 0, time.UTC) }
	return h
}

func reminderTask(t *testing.T, date string) *asynq.Task {
	t.Helper()
	task, err := jobs.NewReminderTask(date)
	require.NoError(t, err)
	return task
}

func TestReminder_NotifiesOnlyUsersWithoutRecord(t *testing.T) {
	ledger := new(mockLedger)
	ledger.On("Users", mock.Anything).Return(members, nil)
	ledger.On("HistoryBetween", mock.Anything, "a", today, today).
		Return([]domain.DayRecord{{UserID: "a", Date: today, Status: domain.StatusWorkout}}, nil)
	ledger.On("HistoryBetween", mock.Anything, "b", today, today).Return(nil, nil)

	notifier := &recordingNotifier{}
	require.NoError(t, newHandler(ledger, notifier).ProcessTask(context.Background(), reminderTask(t, "")))

	assert.Equal(t, []int64{200}, notifier.sent)
	ledger.AssertExpectations(t)
	ledger.AssertNotCalled(t, "HistoryBetween", mock.Anything, "c", mock.Anything, mock.Anything)
}

func TestReminder_ExplicitDate(t *testing.T) {
	day := civil.MustParse("2025-03-10")
	ledger := new(mockLedger)
	ledger.On("Users", mock.Anything).Return(members[:1], nil)
	ledger.On("HistoryBetween", mock.Anything, "a", day, day).Return(nil, nil)

	notifier := &recordingNotifier{}
	require.NoError(t, newHandler(ledger, notifier).ProcessTask(context.Background(), reminderTask(t, "2025-03-10")))
	assert.Equal(t, []int64{100}, notifier.sent)
}

func TestReminder_DeliveryFailureIsNotRetried(t *testing.T) {
	ledger := new(mockLedger)
	ledger.On("Users", mock.Anything).Return(members, nil)
	ledger.On("HistoryBetween", mock.Anything, mock.Anything, today, today).Return(nil, nil)

	notifier := &recordingNotifier{err: apperrors.NewExternalAPIError("telegram", errors.New("bot blocked"))}
	assert.NoError(t, newHandler(ledger, notifier).ProcessTask(context.Background(), reminderTask(t, "")))
}

func TestReminder_LookupFailureDoesNotFailTask(t *testing.T) {
	ledger := new(mockLedger)
	ledger.On("Users", mock.Anything).Return(members[:2], nil)
	ledger.On("HistoryBetween", mock.Anything, "a", today, today).Return(nil, errors.New("db down"))
	ledger.On("HistoryBetween", mock.Anything, "b", today, today).Return(nil, nil)

	notifier := &recordingNotifier{}
	require.NoError(t, newHandler(ledger, notifier).ProcessTask(context.Background(), reminderTask(t, "")))
	assert.Equal(t, []int64{200}, notifier.sent)
}

func TestReminder_RetryAfterMidnightSendsEachUserOnce(t *testing.T) {
	ledger := new(mockLedger)
	ledger.On("Users", mock.Anything).Return(members, nil)
	ledger.On("HistoryBetween", mock.Anything, "a", today, today).Return(nil, errors.New("db down")).Once()
	ledger.On("HistoryBetween", mock.Anything, "a", today, today).Return(nil, nil)
	ledger.On("HistoryBetween", mock.Anything, "b", today, today).Return(nil, nil)

	notifier := &recordingNotifier{}
	h := newHandler(ledger, notifier)
	task := reminderTask(t, today.String())

	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, []int64{200}, notifier.sent)

	h.now = func() time.Time { return time.Date(2025, 3, 16, 0, 30, 0, 0, time.UTC) }
	require.NoError(t, h.ProcessTask(context.Background(), task))

	assert.Equal(t, []int64{200, 100}, notifier.sent)
	ledger.AssertNotCalled(t, "HistoryBetween", mock.Anything, mock.Anything, civil.MustParse("2025-03-16"), mock.Anything)
}

func TestReminder_UsersErrorIsReturned(t *testing.T) {
	ledger := new(mockLedger)
	ledger.On("Users", mock.Anything).Return(nil, errors.New("db down"))

	err := newHandler(ledger, &recordingNotifier{}).ProcessTask(context.Background(), reminderTask(t, ""))
	assert.ErrorContains(t, err, "db down")
}

func TestReminder_BadPayloadSkipsRetry(t *testing.T) {
	h := newHandler(new(mockLedger), &recordingNotifier{})

	err := h.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskTypeReminder, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), reminderTask(t, "15/03/2025"))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
