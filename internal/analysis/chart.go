package analysis

import (
	"sort"

	"github.com/weatherhub/weatherhub/internal/model"
)

// Chart types accepted by BuildChartSeries.
const (
	ChartLine  = "line"
	ChartBar   = "bar"
	ChartStack = "stack"
)

// Point is one x/y sample of an input series. A nil Y is a gap.
type Point struct {
	X string   `json:"x"`
	Y *float64 `json:"y"`
}

// SeriesInput is a named list of points.
type SeriesInput struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// ChartSeries is one ECharts series aligned to Chart.XAxis.
type ChartSeries struct {
	Name  string     `json:"name"`
	Type  string     `json:"type"`
	Stack string     `json:"stack,omitempty"`
	Data  []*float64 `json:"data"`
}

// Chart is an ECharts-friendly option fragment.
type Chart struct {
	ChartType string        `json:"chart_type"`
	XAxis     []string      `json:"x_axis"`
	Series    []ChartSeries `json:"series"`
}

// BuildChartSeries aligns the input series on the sorted union of their x
// values. Missing points become null. "stack" renders stacked bars.
func BuildChartSeries(chartType string, inputs []SeriesInput) (*Chart, error) {
	if chartType == "" {
		chartType = ChartLine
	}
	seriesType, stack := chartType, ""
	switch chartType {
	case ChartLine, ChartBar:
	case ChartStack:
		seriesType, stack = ChartBar, "total"
	default:
		return nil, ErrInvalidChartType
	}

	seen := make(map[string]bool)
	var xs []string
	for _, in := range inputs {
		for _, p := range in.Points {
			if !seen[p.X] {
				seen[p.X] = true
				xs = append(xs, p.X)
			}
		}
	}
	sort.Strings(xs)
	index := make(map[string]int, len(xs))
	for i, x := range xs {
		index[x] = i
	}

	chart := &Chart{ChartType: chartType, XAxis: xs, Series: make([]ChartSeries, 0, len(inputs))}
	if chart.XAxis == nil {
		chart.XAxis = []string{}
	}
	for _, in := range inputs {
		data := make([]*float64, len(xs))
		for _, p := range in.Points {
			data[index[p.X]] = p.Y
		}
		chart.Series = append(chart.Series, ChartSeries{Name: in.Name, Type: seriesType, Stack: stack, Data: data})
	}
	return chart, nil
}

// SeriesFromRecords turns records into a date-keyed series of metric.
func SeriesFromRecords(name, metric string, records []model.WeatherRecord) (SeriesInput, error) {
	if !model.ValidMetric(metric) {
		return SeriesInput{}, ErrInvalidMetric
	}
	in := SeriesInput{Name: name, Points: make([]Point, 0, len(records))}
	for i := range records {
		p := Point{X: records[i].Date}
		if v, ok := records[i].Metric(metric); ok {
			v := v
			p.Y = &v
		}
		in.Points = append(in.Points, p)
	}
	return in, nil
}
