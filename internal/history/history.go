package history

import (
	"context"
	"time"

	"smart-diet-planner/internal/tracker"
)

// ChartWindow is the number of most recent records plotted.
const ChartWindow = 7

// Chart holds aligned series for the planned vs consumed plot.
type Chart struct {
	Labels   []string
	Dates    []string
	Planned  []int
	Consumed []int
}

// Len returns the number of points in the chart.
func (c Chart) Len() int {
	return len(c.Labels)
}

// Service reads saved daily summaries for the history table and chart.
type Service struct {
	repo *tracker.SummaryRepository
}

// NewService creates a new Service.
func NewService(repo *tracker.SummaryRepository) *Service {
	return &Service{repo: repo}
}

// Records returns every saved summary of userID in ascending date order.
func (s *Service) Records(ctx context.Context, userID string) ([]tracker.Record, error) {
	return s.repo.List(ctx, userID)
}

// BuildChart takes the final ChartWindow records (already in date order) and
// lays them out as series of equal length. Missing dates are not filled.
func BuildChart(records []tracker.Record) Chart {
	if len(records) > ChartWindow {
		records = records[len(records)-ChartWindow:]
	}

	c := Chart{
		Labels:   make([]string, 0, len(records)),
		Dates:    make([]string, 0, len(records)),
		Planned:  make([]int, 0, len(records)),
		Consumed: make([]int, 0, len(records)),
	}
	for _, r := range records {
		c.Labels = append(c.Labels, label(r))
		c.Dates = append(c.Dates, r.Date)
		c.Planned = append(c.Planned, r.Planned)
		c.Consumed = append(c.Consumed, r.Consumed)
	}
	return c
}

// Chart loads the records of userID and builds their chart.
func (s *Service) Chart(ctx context.Context, userID string) (Chart, error) {
	records, err := s.Records(ctx, userID)
	if err != nil {
		return Chart{}, err
	}
	return BuildChart(records), nil
}

func label(r tracker.Record) string {
	t, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		if len(r.Day) >= 3 {
			return r.Day[:3]
		}
		return r.Date
	}
	return t.Format("Mon")
}
