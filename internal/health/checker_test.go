package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/internal/testutil"
)

func TestChecker_Check(t *testing.T) {
	db, _ := testutil.OpenSQLite(t)

	checker := NewChecker(slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
	checker.AddCheck("database", NewDBChecker(db))
	checker.AddCheck("redis", NewRedisChecker(nil))
	checker.AddCheck("telegram", NewTelegramChecker(nil))
	checker.AddCheck("slow", CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	checker.AddCheck("", CheckFunc(func(context.Context) error { return errors.New("ignored") }))

	report := checker.Check(context.Background())

	require.Len(t, report.Components, 4)
	assert.False(t, report.Healthy)
	assert.Equal(t, StatusOK, report.Components["database"])
	assert.Equal(t, []string{"redis", "slow", "telegram"}, report.Failing())
}

func TestChecker_Healthy(t *testing.T) {
	checker := NewChecker(nil, 0)
	checker.AddCheck("noop", CheckFunc(func(context.Context) error { return nil }))

	report := checker.Check(context.Background())
	assert.True(t, report.Healthy)
	assert.Empty(t, report.Failing())
}
