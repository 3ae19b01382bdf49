package export

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
)

// WriteTimelineReport renders a static HTML report of one annotation version:
// a bar chart of segment durations along the timeline and a pie of per-task
// time share. The report rides along with the exported clip archive.
func WriteTimelineReport(version *entity.AnnotationVersion, outPath string) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Segment timeline: %s (v%d)", version.VideoID, version.Version),
			Subtitle: fmt.Sprintf("%d segments", len(version.Segments)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "duration (s)"}),
	)

	xs := make([]string, 0, len(version.Segments))
	bars := make([]opts.BarData, 0, len(version.Segments))
	taskTotals := make(map[entity.TaskLabel]float64)
	for _, seg := range version.Segments {
		xs = append(xs, fmt.Sprintf("%s @%.0fs", seg.Label, seg.StartSec))
		bars = append(bars, opts.BarData{
			Value:   seg.DurationSec(),
			Tooltip: &opts.Tooltip{Show: opts.Bool(true)},
		})
		taskTotals[seg.Label] += seg.DurationSec()
	}
	bar.SetXAxis(xs).AddSeries("segment duration", bars)

	pie := charts.NewPie()
	pie.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Time share per task"}))
	pieData := make([]opts.PieData, 0, len(taskTotals))
	for _, label := range entity.AllTaskLabels() {
		if total, ok := taskTotals[label]; ok {
			pieData = append(pieData, opts.PieData{Name: label.String(), Value: total})
		}
	}
	pie.AddSeries("time share", pieData)

	page := components.NewPage()
	page.PageTitle = "Segmentation report"
	page.AddCharts(bar, pie)

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
