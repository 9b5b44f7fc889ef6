package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/claude/romkiosk/internal/storage"
)

// handleResultsChart renders an HTML page of stored angles.
// Query params:
//   - exerciseId (optional) adds a per-attempt line chart for that exercise
func (s *Server) handleResultsChart(w http.ResponseWriter, r *http.Request) {
	exerciseID := r.URL.Query().Get("exerciseId")

	sums, err := s.db.ResultSummaries(r.Context(), exerciseID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	page := components.NewPage()
	page.PageTitle = "Range of motion results"
	page.AddCharts(summaryBar(sums))

	if exerciseID != "" {
		rows, err := s.db.QueryResults(r.Context(), storage.ResultFilter{ExerciseID: exerciseID})
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		x := make([]string, len(rows))
		angles := make([]opts.LineData, len(rows))
		for i, row := range rows {
			x[i] = strconv.Itoa(i + 1)
			angles[i] = opts.LineData{Value: row.AchievedAngle, Name: row.CreatedAt.Format("2006-01-02 15:04")}
		}
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
			charts.WithTitleOpts(opts.Title{Title: exerciseID, Subtitle: fmt.Sprintf("%d attempts", len(rows))}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "attempt"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "angle (deg)"}),
		)
		line.SetXAxis(x).AddSeries("achieved angle", angles)
		page.AddCharts(line)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to render chart: %v", err)})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func summaryBar(sums []storage.ExerciseSummary) *charts.Bar {
	x := make([]string, len(sums))
	maxData := make([]opts.BarData, len(sums))
	avgData := make([]opts.BarData, len(sums))
	for i, sm := range sums {
		x[i] = sm.ExerciseID
		maxData[i] = opts.BarData{Value: sm.MaxAngle}
		avgData[i] = opts.BarData{Value: sm.AvgAngle}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Angle per exercise", Subtitle: fmt.Sprintf("%d exercises", len(sums))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "angle (deg)"}),
	)
	bar.SetXAxis(x).
		AddSeries("max", maxData).
		AddSeries("average", avgData)
	return bar
}
