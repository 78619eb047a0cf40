package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/weatherhub/weatherhub/internal/model"
)

const (
	// ForecastWindow is the number of most recent points the trend is fit on.
	ForecastWindow = 120

	DefaultHorizon = 7
	MaxHorizon     = 30
)

// ForecastPoint is one predicted day.
type ForecastPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// ClampHorizon maps 0 to DefaultHorizon and clamps everything else to
// [1, MaxHorizon].
func ClampHorizon(h int) int {
	switch {
	case h == 0:
		return DefaultHorizon
	case h < 1:
		return 1
	case h > MaxHorizon:
		return MaxHorizon
	}
	return h
}

// Forecast fits a least-squares line through the latest ForecastWindow
// values of metric (by date) and extrapolates it horizon days past the last
// observed date. Values are rounded to two decimals. At least two points are
// required.
func Forecast(records []model.WeatherRecord, metric string, horizon int) ([]ForecastPoint, error) {
	if !model.ValidMetric(metric) {
		return nil, ErrInvalidMetric
	}
	horizon = ClampHorizon(horizon)

	type point struct {
		date time.Time
		v    float64
	}
	pts := make([]point, 0, len(records))
	for i := range records {
		v, ok := records[i].Metric(metric)
		if !ok {
			continue
		}
		d, err := time.Parse(model.DateLayout, records[i].Date)
		if err != nil {
			continue
		}
		pts = append(pts, point{d, v})
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].date.Before(pts[j].date) })
	if len(pts) > ForecastWindow {
		pts = pts[len(pts)-ForecastWindow:]
	}
	if len(pts) < 2 {
		return nil, ErrNotEnoughData
	}

	n := float64(len(pts))
	var meanX, meanY float64
	for i, p := range pts {
		meanX += float64(i)
		meanY += p.v
	}
	meanX /= n
	meanY /= n

	var num, den float64
	for i, p := range pts {
		dx := float64(i) - meanX
		num += dx * (p.v - meanY)
		den += dx * dx
	}
	if den == 0 {
		den = 1
	}
	slope := num / den
	intercept := meanY - slope*meanX

	last := pts[len(pts)-1].date
	out := make([]ForecastPoint, 0, horizon)
	for i := 1; i <= horizon; i++ {
		y := intercept + slope*(n-1+float64(i))
		out = append(out, ForecastPoint{
			Date:  last.AddDate(0, 0, i).Format(model.DateLayout),
			Value: math.Round(y*100) / 100,
		})
	}
	return out, nil
}
