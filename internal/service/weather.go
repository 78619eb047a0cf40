package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/weatherhub/weatherhub/internal/analysis"
	"github.com/weatherhub/weatherhub/internal/crawler"
	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/store"
)

// Default row limits for the data tools.
const (
	DefaultRangeLimit  = 500
	DefaultCustomLimit = 200
)

// MaxCoverageDays bounds the span a single coverage report may enumerate.
const MaxCoverageDays = 5 * 366

// RangeCrawler fetches records for a city over an inclusive date range.
type RangeCrawler interface {
	CrawlRange(ctx context.Context, city string, start, end time.Time) ([]model.WeatherRecord, error)
}

// WeatherService answers data and analysis questions over the stored weather
// records and refreshes them from the crawler on demand.
type WeatherService struct {
	store   *store.Store
	crawler RangeCrawler
	logger  *slog.Logger
}

// NewWeatherService creates a WeatherService. crawler may be nil, in which
// case UpdateCityRange fails.
func NewWeatherService(s *store.Store, c RangeCrawler, logger *slog.Logger) *WeatherService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &WeatherService{store: s, crawler: c, logger: logger}
}

// ParseDay validates an optional YYYY-MM-DD value. Empty input is allowed
// unless required is set.
func ParseDay(field, value string, required bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return time.Time{}, fmt.Errorf("%w: %s is required", ErrMalformed, field)
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrMalformed, field)
	}
	return t, nil
}

// dateRange validates a pair of dates and returns them in canonical form.
func dateRange(start, end string, required bool) (string, string, error) {
	s, err := ParseDay("start_date", start, required)
	if err != nil {
		return "", "", err
	}
	e, err := ParseDay("end_date", end, required)
	if err != nil {
		return "", "", err
	}
	if !s.IsZero() && !e.IsZero() && e.Before(s) {
		return "", "", fmt.Errorf("%w: end_date is before start_date", ErrMalformed)
	}
	return dayString(s), dayString(e), nil
}

func dayString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.DateLayout)
}

func requireCity(city string) (string, error) {
	c := crawler.NormalizeCity(city)
	if c == "" {
		return "", fmt.Errorf("%w: city is required", ErrMalformed)
	}
	return c, nil
}

func requireMetric(metric string) error {
	if !model.ValidMetric(metric) {
		return fmt.Errorf("%w: %v", ErrMalformed, analysis.ErrInvalidMetric)
	}
	return nil
}

// Query returns records matching f after normalising the city name.
func (s *WeatherService) Query(ctx context.Context, f model.WeatherFilter) ([]model.WeatherRecord, error) {
	f.City = crawler.NormalizeCity(f.City)
	return s.store.QueryWeather(ctx, f)
}

// Stats summarises the stored data set.
func (s *WeatherService) Stats(ctx context.Context) (*model.WeatherStats, error) {
	return s.store.WeatherStats(ctx)
}

// RangeResult is the answer of GetRange.
type RangeResult struct {
	Count int                   `json:"count"`
	Items []model.WeatherRecord `json:"items"`
}

// GetRange returns up to limit records, newest first. All filters are
// optional; a non-positive limit uses DefaultRangeLimit.
func (s *WeatherService) GetRange(ctx context.Context, city, start, end string, limit int) (*RangeResult, error) {
	lo, hi, err := dateRange(start, end, false)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRangeLimit
	}
	recs, err := s.Query(ctx, model.WeatherFilter{City: city, StartDate: lo, EndDate: hi, Limit: limit})
	if err != nil {
		return nil, err
	}
	return &RangeResult{Count: len(recs), Items: recs}, nil
}

// DateRange is an inclusive span of days. Empty fields mean no data.
type DateRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// Overview describes the whole data set.
type Overview struct {
	TotalRecords int64     `json:"total_records"`
	Cities       []string  `json:"cities"`
	DateRange    DateRange `json:"date_range"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Overview returns totals, the city list and the stored date span.
func (s *WeatherService) Overview(ctx context.Context) (*Overview, error) {
	st, err := s.store.WeatherStats(ctx)
	if err != nil {
		return nil, err
	}
	return &Overview{
		TotalRecords: st.TotalRecords,
		Cities:       st.Cities,
		DateRange:    DateRange{Start: optional(st.EarliestDate), End: optional(st.LatestDate)},
	}, nil
}

// CoverageReport lists the days in a range with no stored record.
type CoverageReport struct {
	City          string   `json:"city"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	TotalDays     int      `json:"total_days"`
	AvailableDays int      `json:"available_days"`
	MissingDays   []string `json:"missing_days"`
}

// Coverage reports which days between start and end inclusive have no
// record for city.
func (s *WeatherService) Coverage(ctx context.Context, city, start, end string) (*CoverageReport, error) {
	c, err := requireCity(city)
	if err != nil {
		return nil, err
	}
	lo, hi, err := dateRange(start, end, true)
	if err != nil {
		return nil, err
	}
	from, _ := time.Parse(model.DateLayout, lo)
	to, _ := time.Parse(model.DateLayout, hi)
	if span := int(to.Sub(from).Hours()/24) + 1; span > MaxCoverageDays {
		return nil, fmt.Errorf("%w: coverage span of %d days exceeds %d", ErrMalformed, span, MaxCoverageDays)
	}

	dates, err := s.store.WeatherDates(ctx, c, lo, hi)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(dates))
	for _, d := range dates {
		have[d] = true
	}

	rep := &CoverageReport{City: c, StartDate: lo, EndDate: hi, AvailableDays: len(dates), MissingDays: []string{}}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		rep.TotalDays++
		if key := d.Format(model.DateLayout); !have[key] {
			rep.MissingDays = append(rep.MissingDays, key)
		}
	}
	return rep, nil
}

// CustomResult is the answer of CustomQuery.
type CustomResult struct {
	Count  int                      `json:"count"`
	Fields []string                 `json:"fields"`
	Rows   []map[string]interface{} `json:"rows"`
}

// CustomQuery projects a whitelisted subset of columns. Unknown field names
// are dropped; if none remain every whitelisted field is returned.
func (s *WeatherService) CustomQuery(ctx context.Context, fields []string, city, start, end string, limit int) (*CustomResult, error) {
	lo, hi, err := dateRange(start, end, false)
	if err != nil {
		return nil, err
	}
	var selected []string
	for _, f := range fields {
		for _, allowed := range store.WeatherFields {
			if f == allowed {
				selected = append(selected, f)
				break
			}
		}
	}
	if len(selected) == 0 {
		selected = store.WeatherFields
	}
	if limit <= 0 {
		limit = DefaultCustomLimit
	}

	rows, err := s.store.CustomWeatherQuery(ctx, selected, model.WeatherFilter{
		City: crawler.NormalizeCity(city), StartDate: lo, EndDate: hi, Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	return &CustomResult{Count: len(rows), Fields: selected, Rows: rows}, nil
}

// UpdateResult reports a crawl-and-replace run.
type UpdateResult struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	City      string `json:"city"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Fetched   int    `json:"fetched"`
	Saved     int    `json:"saved"`
	Replaced  int64  `json:"replaced"`
}

// UpdateCityRange crawls city over [start, end] and atomically replaces the
// stored records for that span. When the crawl yields nothing the stored
// data is left untouched and OK is false.
func (s *WeatherService) UpdateCityRange(ctx context.Context, city, start, end string) (*UpdateResult, error) {
	c, err := requireCity(city)
	if err != nil {
		return nil, err
	}
	if _, ok := crawler.LookupCity(c); !ok {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformed, c, crawler.ErrUnsupportedCity)
	}
	lo, hi, err := dateRange(start, end, true)
	if err != nil {
		return nil, err
	}
	if s.crawler == nil {
		return nil, errors.New("crawler is not configured")
	}

	from, _ := time.Parse(model.DateLayout, lo)
	to, _ := time.Parse(model.DateLayout, hi)
	recs, err := s.crawler.CrawlRange(ctx, c, from, to)
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", c, err)
	}

	res := &UpdateResult{City: c, StartDate: lo, EndDate: hi, Fetched: len(recs)}
	if len(recs) == 0 {
		res.Message = "no data fetched for the given range"
		return res, nil
	}

	replaced, err := s.store.ReplaceWeatherRange(ctx, c, lo, hi, recs)
	if err != nil {
		return nil, err
	}
	res.OK = true
	res.Saved = len(recs)
	res.Replaced = replaced
	res.Message = fmt.Sprintf("updated %d records for %s", len(recs), c)
	s.logger.Info("weather range updated", "city", c, "start", lo, "end", hi, "saved", len(recs), "replaced", replaced)
	return res, nil
}

// cityRecords loads every record of city in [start, end], oldest first.
func (s *WeatherService) cityRecords(ctx context.Context, city, start, end string) ([]model.WeatherRecord, error) {
	return s.store.QueryWeather(ctx, model.WeatherFilter{City: city, StartDate: start, EndDate: end, Ascending: true})
}

// DescribeResult wraps analysis.Describe with its inputs.
type DescribeResult struct {
	City      string `json:"city"`
	Metric    string `json:"metric"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	analysis.Summary
}

// Describe summarises metric for city over [start, end].
func (s *WeatherService) Describe(ctx context.Context, city, metric, start, end string) (*DescribeResult, error) {
	c, lo, hi, err := s.seriesArgs(city, metric, start, end)
	if err != nil {
		return nil, err
	}
	recs, err := s.cityRecords(ctx, c, lo, hi)
	if err != nil {
		return nil, err
	}
	sum, err := analysis.Describe(recs, metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &DescribeResult{City: c, Metric: metric, StartDate: lo, EndDate: hi, Summary: sum}, nil
}

func (s *WeatherService) seriesArgs(city, metric, start, end string) (c, lo, hi string, err error) {
	if err = requireMetric(metric); err != nil {
		return
	}
	if c, err = requireCity(city); err != nil {
		return
	}
	lo, hi, err = dateRange(start, end, true)
	return
}

// PeriodResult wraps analysis.GroupByPeriod with its inputs.
type PeriodResult struct {
	City      string                `json:"city"`
	Metric    string                `json:"metric"`
	Period    string                `json:"period"`
	StartDate string                `json:"start_date"`
	EndDate   string                `json:"end_date"`
	Series    []analysis.PeriodStat `json:"series"`
}

// GroupByPeriod aggregates metric for city by month, season or year.
func (s *WeatherService) GroupByPeriod(ctx context.Context, city, metric, period, start, end string) (*PeriodResult, error) {
	c, lo, hi, err := s.seriesArgs(city, metric, start, end)
	if err != nil {
		return nil, err
	}
	recs, err := s.cityRecords(ctx, c, lo, hi)
	if err != nil {
		return nil, err
	}
	series, err := analysis.GroupByPeriod(recs, metric, period)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &PeriodResult{City: c, Metric: metric, Period: period, StartDate: lo, EndDate: hi, Series: series}, nil
}

// CompareResult wraps analysis.CompareCities with its inputs.
type CompareResult struct {
	Metric    string              `json:"metric"`
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	Results   []analysis.CityStat `json:"results"`
}

func normalizeCities(cities []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, c := range cities {
		n := crawler.NormalizeCity(c)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: cities are required", ErrMalformed)
	}
	return out, nil
}

// CompareCities aggregates metric for each of cities over [start, end].
func (s *WeatherService) CompareCities(ctx context.Context, cities []string, metric, start, end string) (*CompareResult, error) {
	if err := requireMetric(metric); err != nil {
		return nil, err
	}
	names, err := normalizeCities(cities)
	if err != nil {
		return nil, err
	}
	lo, hi, err := dateRange(start, end, true)
	if err != nil {
		return nil, err
	}

	var all []model.WeatherRecord
	for _, c := range names {
		recs, err := s.cityRecords(ctx, c, lo, hi)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	results, err := analysis.CompareCities(all, metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &CompareResult{Metric: metric, StartDate: lo, EndDate: hi, Results: results}, nil
}

// ExtremeResult wraps analysis.CountExtremes with its inputs.
type ExtremeResult struct {
	City       string  `json:"city"`
	Metric     string  `json:"metric"`
	Comparison string  `json:"comparison"`
	Threshold  float64 `json:"threshold"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	EventDays  int     `json:"event_days"`
}

// ExtremeEvents counts the days where metric compares to threshold.
func (s *WeatherService) ExtremeEvents(ctx context.Context, city, metric, comparison string, threshold float64, start, end string) (*ExtremeResult, error) {
	if _, err := analysis.ParseComparison(comparison); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c, lo, hi, err := s.seriesArgs(city, metric, start, end)
	if err != nil {
		return nil, err
	}
	recs, err := s.cityRecords(ctx, c, lo, hi)
	if err != nil {
		return nil, err
	}
	n, err := analysis.CountExtremes(recs, metric, comparison, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &ExtremeResult{
		City: c, Metric: metric, Comparison: comparison, Threshold: threshold,
		StartDate: lo, EndDate: hi, EventDays: n,
	}, nil
}

// ForecastResult wraps analysis.Forecast with its inputs.
type ForecastResult struct {
	City        string                   `json:"city"`
	Metric      string                   `json:"metric"`
	HorizonDays int                      `json:"horizon_days"`
	Method      string                   `json:"method"`
	Forecast    []analysis.ForecastPoint `json:"forecast"`
}

// Forecast extrapolates the recent linear trend of metric for city.
func (s *WeatherService) Forecast(ctx context.Context, city, metric string, horizon int) (*ForecastResult, error) {
	if err := requireMetric(metric); err != nil {
		return nil, err
	}
	c, err := requireCity(city)
	if err != nil {
		return nil, err
	}
	recs, err := s.cityRecords(ctx, c, "", "")
	if err != nil {
		return nil, err
	}
	horizon = analysis.ClampHorizon(horizon)
	points, err := analysis.Forecast(recs, metric, horizon)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &ForecastResult{City: c, Metric: metric, HorizonDays: horizon, Method: "simple_linear_trend", Forecast: points}, nil
}

// CityChart builds a chart with one series of metric per city.
func (s *WeatherService) CityChart(ctx context.Context, chartType string, cities []string, metric, start, end string) (*analysis.Chart, error) {
	if err := requireMetric(metric); err != nil {
		return nil, err
	}
	names, err := normalizeCities(cities)
	if err != nil {
		return nil, err
	}
	lo, hi, err := dateRange(start, end, true)
	if err != nil {
		return nil, err
	}

	inputs := make([]analysis.SeriesInput, 0, len(names))
	for _, c := range names {
		recs, err := s.cityRecords(ctx, c, lo, hi)
		if err != nil {
			return nil, err
		}
		in, err := analysis.SeriesFromRecords(c, metric, recs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		inputs = append(inputs, in)
	}
	return BuildChart(chartType, inputs)
}

// BuildChart aligns caller-supplied series into a chart.
func BuildChart(chartType string, inputs []analysis.SeriesInput) (*analysis.Chart, error) {
	chart, err := analysis.BuildChartSeries(chartType, inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return chart, nil
}
