// Package analysis computes summary statistics, period aggregates, extreme
// event counts, trend forecasts and chart series over weather records.
//
// Every function is pure: callers load records from the store and pass them
// in. Records without a value for the requested metric are ignored.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/weatherhub/weatherhub/internal/model"
)

var (
	ErrInvalidMetric     = errors.New("metric must be temp_min or temp_max")
	ErrInvalidPeriod     = errors.New("period must be month, season or year")
	ErrInvalidComparison = errors.New("comparison must be one of >, <, >=, <=")
	ErrInvalidChartType  = errors.New("chart_type must be line, bar or stack")
	ErrNotEnoughData     = errors.New("not enough data for forecast")
)

// Summary describes one metric over a set of records. The pointer fields are
// nil when there is nothing to compute them from.
type Summary struct {
	Count  int      `json:"count"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Mean   *float64 `json:"mean"`
	StdDev *float64 `json:"stddev"`
}

// values extracts the metric from records, skipping missing values.
func values(records []model.WeatherRecord, metric string) ([]float64, error) {
	if !model.ValidMetric(metric) {
		return nil, ErrInvalidMetric
	}
	out := make([]float64, 0, len(records))
	for i := range records {
		if v, ok := records[i].Metric(metric); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func summarize(vals []float64) Summary {
	s := Summary{Count: len(vals)}
	if len(vals) == 0 {
		return s
	}
	lo, hi, sum := vals[0], vals[0], 0.0
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}
	mean := sum / float64(len(vals))
	s.Min, s.Max, s.Mean = &lo, &hi, &mean

	// Sample standard deviation, undefined for a single value.
	if len(vals) > 1 {
		var sq float64
		for _, v := range vals {
			sq += (v - mean) * (v - mean)
		}
		sd := math.Sqrt(sq / float64(len(vals)-1))
		s.StdDev = &sd
	}
	return s
}

// Describe summarises metric over records.
func Describe(records []model.WeatherRecord, metric string) (Summary, error) {
	vals, err := values(records, metric)
	if err != nil {
		return Summary{}, err
	}
	return summarize(vals), nil
}

// Period granularities for GroupByPeriod.
const (
	PeriodMonth  = "month"
	PeriodSeason = "season"
	PeriodYear   = "year"
)

// PeriodStat aggregates one period bucket.
type PeriodStat struct {
	Period string   `json:"period"`
	Count  int      `json:"count"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Mean   *float64 `json:"mean"`
}

func periodKey(d time.Time, period string) string {
	switch period {
	case PeriodYear:
		return fmt.Sprintf("%d", d.Year())
	case PeriodSeason:
		return fmt.Sprintf("%d-Q%d", d.Year(), (int(d.Month())-1)/3+1)
	default:
		return d.Format("2006-01")
	}
}

// GroupByPeriod buckets metric values by month ("2024-01"), season
// ("2024-Q1") or year ("2024") and returns the buckets in key order.
// Records with unparseable dates are skipped.
func GroupByPeriod(records []model.WeatherRecord, metric, period string) ([]PeriodStat, error) {
	if !model.ValidMetric(metric) {
		return nil, ErrInvalidMetric
	}
	if period != PeriodMonth && period != PeriodSeason && period != PeriodYear {
		return nil, ErrInvalidPeriod
	}

	buckets := make(map[string][]float64)
	for i := range records {
		v, ok := records[i].Metric(metric)
		if !ok {
			continue
		}
		d, err := time.Parse(model.DateLayout, records[i].Date)
		if err != nil {
			continue
		}
		k := periodKey(d, period)
		buckets[k] = append(buckets[k], v)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]PeriodStat, 0, len(keys))
	for _, k := range keys {
		s := summarize(buckets[k])
		out = append(out, PeriodStat{Period: k, Count: s.Count, Min: s.Min, Max: s.Max, Mean: s.Mean})
	}
	return out, nil
}

// CityStat aggregates one city in CompareCities.
type CityStat struct {
	City  string   `json:"city"`
	Count int      `json:"count"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Mean  *float64 `json:"mean"`
}

// CompareCities aggregates metric per city. Cities with no values are
// omitted; the result is sorted by city name.
func CompareCities(records []model.WeatherRecord, metric string) ([]CityStat, error) {
	if !model.ValidMetric(metric) {
		return nil, ErrInvalidMetric
	}
	byCity := make(map[string][]float64)
	for i := range records {
		if v, ok := records[i].Metric(metric); ok {
			byCity[records[i].City] = append(byCity[records[i].City], v)
		}
	}

	cities := make([]string, 0, len(byCity))
	for c := range byCity {
		cities = append(cities, c)
	}
	sort.Strings(cities)

	out := make([]CityStat, 0, len(cities))
	for _, c := range cities {
		s := summarize(byCity[c])
		out = append(out, CityStat{City: c, Count: s.Count, Min: s.Min, Max: s.Max, Mean: s.Mean})
	}
	return out, nil
}

// Comparison is a threshold predicate.
type Comparison func(v, threshold float64) bool

var comparisons = map[string]Comparison{
	">":             func(v, t float64) bool { return v > t },
	"gt":            func(v, t float64) bool { return v > t },
	"greater":       func(v, t float64) bool { return v > t },
	"<":             func(v, t float64) bool { return v < t },
	"lt":            func(v, t float64) bool { return v < t },
	"less":          func(v, t float64) bool { return v < t },
	">=":            func(v, t float64) bool { return v >= t },
	"gte":           func(v, t float64) bool { return v >= t },
	"ge":            func(v, t float64) bool { return v >= t },
	"greater_equal": func(v, t float64) bool { return v >= t },
	"<=":            func(v, t float64) bool { return v <= t },
	"lte":           func(v, t float64) bool { return v <= t },
	"le":            func(v, t float64) bool { return v <= t },
	"less_equal":    func(v, t float64) bool { return v <= t },
}

// ParseComparison resolves a comparison operator or one of its aliases.
func ParseComparison(s string) (Comparison, error) {
	c, ok := comparisons[s]
	if !ok {
		return nil, ErrInvalidComparison
	}
	return c, nil
}

// CountExtremes counts records whose metric satisfies comparison against
// threshold.
func CountExtremes(records []model.WeatherRecord, metric, comparison string, threshold float64) (int, error) {
	cmp, err := ParseComparison(comparison)
	if err != nil {
		return 0, err
	}
	vals, err := values(records, metric)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range vals {
		if cmp(v, threshold) {
			n++
		}
	}
	return n, nil
}
