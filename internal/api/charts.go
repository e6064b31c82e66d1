package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/AMEND09/Razr/internal/stats"
)

// showDailyChart renders a bar chart (HTML) of per-day study minutes using
// go-echarts. This is a quick visual check without any frontend build.
// Query params:
//   - days (optional; default 7)
func (s *Server) showDailyChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	days, err := parseDays(r, defaultStatsDays)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	from := startOfDay(now.In(s.loc).AddDate(0, 0, -(days-1)), s.loc)
	records, err := s.db.SessionsInRange(from, now)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}

	totals := stats.DailyTotals(records, s.loc, from, now)

	x := make([]string, len(totals))
	y := make([]opts.BarData, len(totals))
	for i, day := range totals {
		x[i] = day.Date
		y[i] = opts.BarData{Value: day.Minutes}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Study Minutes", Width: "100%", Height: "540px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Study Minutes Per Day",
			Subtitle: fmt.Sprintf("last %d day(s), goal %d min/day", days, s.dailyGoalMinutes()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("minutes", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		w.Header().Set("Content-Type", "application/json")
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
