package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/domain"
)

func TestRange(t *testing.T) {
	// 2025-03-12 is a Wednesday.
	today := civil.MustParse("2025-03-12")

	from, to := Range(today, 2)
	assert.Equal(t, civil.MustParse("2025-03-02"), from)
	assert.Equal(t, civil.MustParse("2025-03-15"), to)
	assert.Equal(t, time.Sunday, from.Weekday())
	assert.Equal(t, time.Saturday, to.Weekday())

	from, _ = Range(today, 0)
	assert.Equal(t, DefaultWeeks*7-1, civil.MustParse("2025-03-15").DaysSince(from))
}

func TestBuild(t *testing.T) {
	today := civil.MustParse("2025-03-12")
	records := []domain.DayRecord{
		{UserID: "a", Date: civil.MustParse("2025-03-02"), Status: domain.StatusWorkout},
		{UserID: "a", Date: civil.MustParse("2025-03-03"), Status: domain.StatusWorkout},
		{UserID: "a", Date: civil.MustParse("2025-03-04"), Status: domain.StatusSkip},
		{UserID: "a", Date: civil.MustParse("2025-03-12"), Status: domain.StatusWorkout},
		{UserID: "a", Date: civil.MustParse("2025-02-20"), Status: domain.StatusWorkout},
	}

	g := Build(today, 2, records)

	require.Len(t, g.Weeks, 2)
	assert.Equal(t, 3, g.Workouts)
	assert.Equal(t, 1, g.Skips)

	first := g.Weeks[0]
	assert.Equal(t, "Mar", first.MonthLabel)
	assert.Equal(t, domain.StatusWorkout, first.Days[0].Status)
	assert.Equal(t, domain.StatusSkip, first.Days[2].Status)
	assert.Empty(t, first.Days[3].Status)

	second := g.Weeks[1]
	assert.Empty(t, second.MonthLabel)
	assert.Equal(t, domain.StatusWorkout, second.Days[3].Status)
	assert.False(t, second.Days[3].Future)
	assert.True(t, second.Days[4].Future)
	assert.True(t, second.Days[6].Future)
}

func TestBuild_MonthLabels(t *testing.T) {
	g := Build(civil.MustParse("2025-03-12"), 6, nil)

	var labels []string
	for _, w := range g.Weeks {
		if w.MonthLabel != "" {
			labels = append(labels, w.MonthLabel)
		}
	}

	assert.Equal(t, []string{"Feb", "Mar"}, labels)
	assert.Zero(t, g.Workouts)
}
