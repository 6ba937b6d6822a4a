package web

import (
	"fmt"
	"strings"

	"smart-diet-planner/internal/history"
)

const (
	chartWidth   = 560
	chartHeight  = 240
	chartPadding = 36
)

type chartPoint struct {
	X         float64
	PlannedY  float64
	ConsumedY float64
	Label     string
}

// chartView is the planned vs consumed line chart laid out in SVG coordinates.
type chartView struct {
	Width    int
	Height   int
	LabelY   int
	Planned  string
	Consumed string
	Points   []chartPoint
}

func newChartView(c history.Chart) chartView {
	v := chartView{
		Width:  chartWidth,
		Height: chartHeight,
		LabelY: chartHeight - chartPadding/3,
	}
	n := c.Len()
	if n == 0 {
		return v
	}

	peak := 1
	for i := 0; i < n; i++ {
		peak = max(peak, c.Planned[i], c.Consumed[i])
	}

	plotW := float64(chartWidth - 2*chartPadding)
	plotH := float64(chartHeight - 2*chartPadding)
	y := func(val int) float64 {
		return float64(chartHeight-chartPadding) - float64(val)/float64(peak)*plotH
	}

	planned := make([]string, 0, n)
	consumed := make([]string, 0, n)
	for i := 0; i < n; i++ {
		x := float64(chartWidth) / 2
		if n > 1 {
			x = chartPadding + float64(i)*plotW/float64(n-1)
		}
		p := chartPoint{
			X:         x,
			PlannedY:  y(c.Planned[i]),
			ConsumedY: y(c.Consumed[i]),
			Label:     c.Labels[i],
		}
		v.Points = append(v.Points, p)
		planned = append(planned, fmt.Sprintf("%.1f,%.1f", p.X, p.PlannedY))
		consumed = append(consumed, fmt.Sprintf("%.1f,%.1f", p.X, p.ConsumedY))
	}
	v.Planned = strings.Join(planned, " ")
	v.Consumed = strings.Join(consumed, " ")
	return v
}
