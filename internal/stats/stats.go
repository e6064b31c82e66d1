// Package stats computes aggregate views over finalized study sessions:
// per-day totals, distribution summaries, and goal streaks.
package stats

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/AMEND09/Razr/internal/session"
)

// DailyTotal is one calendar day's study time in the configured timezone.
type DailyTotal struct {
	Date     string  `json:"date"` // YYYY-MM-DD, local to the configured zone
	Minutes  float64 `json:"minutes"`
	Sessions int     `json:"sessions"`
}

// Summary describes a window of study activity ending today.
type Summary struct {
	Days             int     `json:"days"`
	SessionCount     int     `json:"session_count"`
	TotalMinutes     float64 `json:"total_minutes"`
	MeanMinutes      float64 `json:"mean_minutes"`
	StdDevMinutes    float64 `json:"stddev_minutes"`
	P50Minutes       float64 `json:"p50_minutes"`
	P85Minutes       float64 `json:"p85_minutes"`
	P98Minutes       float64 `json:"p98_minutes"`
	DailyGoalMinutes int     `json:"daily_goal_minutes"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
}

const dateLayout = "2006-01-02"

// DailyTotals buckets sessions into local calendar days over [from, to],
// emitting a zero entry for days with no sessions so charts have a
// continuous axis. from and to are truncated to local midnight.
func DailyTotals(records []session.Record, loc *time.Location, from, to time.Time) []DailyTotal {
	type bucket struct {
		minutes  float64
		sessions int
	}
	byDate := make(map[string]bucket)
	for _, rec := range records {
		date := rec.StartedAt.In(loc).Format(dateLayout)
		b := byDate[date]
		b.minutes += rec.Duration.Minutes()
		b.sessions++
		byDate[date] = b
	}

	start := midnight(from, loc)
	end := midnight(to, loc)

	var totals []DailyTotal
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)
		b := byDate[date]
		totals = append(totals, DailyTotal{
			Date:     date,
			Minutes:  b.minutes,
			Sessions: b.sessions,
		})
	}
	return totals
}

// Summarize computes the distribution and streaks for a window of days
// ending at now. goalMinutes is the per-day target a streak day must meet.
func Summarize(records []session.Record, loc *time.Location, now time.Time, days, goalMinutes int) Summary {
	if days < 1 {
		days = 1
	}
	summary := Summary{
		Days:             days,
		SessionCount:     len(records),
		DailyGoalMinutes: goalMinutes,
	}

	if len(records) > 0 {
		minutes := make([]float64, len(records))
		for i, rec := range records {
			minutes[i] = rec.Duration.Minutes()
			summary.TotalMinutes += minutes[i]
		}
		sort.Float64s(minutes)

		summary.MeanMinutes = stat.Mean(minutes, nil)
		// stat.StdDev divides by n-1 and returns NaN for a single sample,
		// which the JSON encoder rejects.
		if len(minutes) > 1 {
			summary.StdDevMinutes = stat.StdDev(minutes, nil)
		}
		summary.P50Minutes = stat.Quantile(0.50, stat.Empirical, minutes, nil)
		summary.P85Minutes = stat.Quantile(0.85, stat.Empirical, minutes, nil)
		summary.P98Minutes = stat.Quantile(0.98, stat.Empirical, minutes, nil)
	}

	from := midnight(now, loc).AddDate(0, 0, -(days - 1))
	totals := DailyTotals(records, loc, from, now)
	summary.CurrentStreak, summary.LongestStreak = streaks(totals, goalMinutes)

	return summary
}

// streaks walks the daily totals oldest-to-newest. A day counts toward a
// streak when it meets the goal; the current streak is measured from the
// last day of the window backwards, so today breaks it only once it has a
// total below goal.
func streaks(totals []DailyTotal, goalMinutes int) (current, longest int) {
	goal := float64(goalMinutes)
	run := 0
	for _, day := range totals {
		if day.Minutes >= goal && goal > 0 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}

	for i := len(totals) - 1; i >= 0; i-- {
		if goal > 0 && totals[i].Minutes >= goal {
			current++
			continue
		}
		// an unfinished today doesn't break a streak held through yesterday
		if i == len(totals)-1 {
			continue
		}
		break
	}
	return current, longest
}

func midnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
