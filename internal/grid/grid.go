// Package grid lays out day records as a contribution calendar: one column per week,
// one row per weekday starting on Sunday.
package grid

import (
	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/domain"
)

// DefaultWeeks is the number of columns rendered when none is configured.
const DefaultWeeks = 20

// Cell is one day of the calendar. An empty Status means nothing was recorded.
type Cell struct {
	Date   civil.Date    `json:"date"`
	Status domain.Status `json:"status,omitempty"`
	Future bool          `json:"future,omitempty"`
}

// Week is a Sunday-first column.
type Week struct {
	// MonthLabel is set on the first column of each month.
	MonthLabel string  `json:"month_label,omitempty"`
	Days       [7]Cell `json:"days"`
}

// Grid is the rendered calendar together with totals over its visible range.
type Grid struct {
	From     civil.Date `json:"from"`
	To       civil.Date `json:"to"`
	Weeks    []Week     `json:"weeks"`
	Workouts int        `json:"workouts"`
	Skips    int        `json:"skips"`
}

// Range returns the first and last date covered by a grid of weeks columns ending with
// the week that contains today.
func Range(today civil.Date, weeks int) (civil.Date, civil.Date) {
	if weeks <= 0 {
		weeks = DefaultWeeks
	}

	sunday := today.AddDays(-int(today.Weekday()))
	from := sunday.AddDays(-7 * (weeks - 1))
	to := sunday.AddDays(6)

	return from, to
}

// Build places records into a grid of weeks columns. Records outside the range are ignored.
func Build(today civil.Date, weeks int, records []domain.DayRecord) Grid {
	from, to := Range(today, weeks)

	byDate := make(map[civil.Date]domain.Status, len(records))
	for _, r := range records {
		if r.Date.Before(from) || r.Date.After(today) {
			continue
		}
		byDate[r.Date] = r.Status
	}

	g := Grid{From: from, To: to}

	lastMonth := from.Month
	for day := from; !day.After(to); day = day.AddDays(7) {
		var week Week
		if len(g.Weeks) == 0 || day.Month != lastMonth {
			week.MonthLabel = day.Month.String()[:3]
			lastMonth = day.Month
		}

		for i := 0; i < 7; i++ {
			d := day.AddDays(i)
			cell := Cell{Date: d, Future: d.After(today)}
			if status, ok := byDate[d]; ok {
				cell.Status = status
				switch status {
				case domain.StatusWorkout:
					g.Workouts++
				case domain.StatusSkip:
					g.Skips++
				}
			}
			week.Days[i] = cell
		}

		g.Weeks = append(g.Weeks, week)
	}

	return g
}
