package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"admissions-go/internal/models"
	"admissions-go/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"
)

const (
	defaultReportDays = 30
	maxReportDays     = 365
)

type ReportHandler struct {
	log  *zap.Logger
	repo *repository.ReportRepository
}

func NewReportHandler(log *zap.Logger, repo *repository.ReportRepository) *ReportHandler {
	return &ReportHandler{log: log, repo: repo}
}

// Overview returns echarts option objects for the dashboard: the status
// funnel, nurture totals and daily submissions.
func (h *ReportHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()
	testType := ""
	if raw := strings.TrimSpace(c.Query("testType")); raw != "" {
		testType = string(models.ParseTestType(raw))
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(defaultReportDays)))
	if err != nil || days <= 0 {
		days = defaultReportDays
	}
	if days > maxReportDays {
		days = maxReportDays
	}

	statuses, err := h.repo.StatusCounts(ctx, testType)
	if err != nil {
		h.log.Error("Failed to get status counts", zap.Error(err), zap.String("test_type", testType))
		respondError(c, h.log, err)
		return
	}
	totals, err := h.repo.NurtureTotals(ctx, testType)
	if err != nil {
		h.log.Error("Failed to get nurture totals", zap.Error(err), zap.String("test_type", testType))
		respondError(c, h.log, err)
		return
	}
	daily, err := h.repo.DailySubmissions(ctx, testType, time.Now().AddDate(0, 0, -days))
	if err != nil {
		h.log.Error("Failed to get daily submissions", zap.Error(err), zap.String("test_type", testType))
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses": statuses,
		"totals":   totals,
		"charts": gin.H{
			"funnel":  generateStatusChart(statuses).JSON(),
			"nurture": generateNurtureChart(totals).JSON(),
			"daily":   generateDailyChart(daily).JSON(),
		},
	})
}

func generateStatusChart(data []repository.StatusCount) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Attendees by status"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	items := make([]opts.PieData, 0, len(data))
	for _, s := range data {
		items = append(items, opts.PieData{Name: s.Status, Value: s.Total})
	}
	pie.AddSeries("Status", items)
	return pie
}

func generateNurtureChart(t repository.NurtureTotals) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Nurture activity"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	bar.SetXAxis([]string{"Emails", "WhatsApp", "Calls", "Registered"}).
		AddSeries("Total", []opts.BarData{
			{Value: t.Emails},
			{Value: t.WhatsApps},
			{Value: t.VoiceCalls},
			{Value: t.Registered},
		})
	return bar
}

func generateDailyChart(data []repository.DailyCount) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Submissions per day"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	days := make([]string, 0, len(data))
	items := make([]opts.LineData, 0, len(data))
	for _, d := range data {
		days = append(days, d.Day)
		items = append(items, opts.LineData{Value: d.Total})
	}
	line.SetXAxis(days).
		AddSeries("Submissions", items).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}
