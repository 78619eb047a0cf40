package model

import "time"

// DateLayout is the canonical day format for WeatherRecord.Date.
const DateLayout = "2006-01-02"

// WeatherRecord is one observed day for one city.
type WeatherRecord struct {
	ID               int64     `json:"id" db:"id"`
	City             string    `json:"city" db:"city"`
	Date             string    `json:"date" db:"date"`
	WeatherCondition string    `json:"weather_condition" db:"weather_condition"`
	TempMin          *float64  `json:"temp_min" db:"temp_min"`
	TempMax          *float64  `json:"temp_max" db:"temp_max"`
	TempRaw          string    `json:"temp_raw" db:"temp_raw"`
	WindInfo         string    `json:"wind_info" db:"wind_info"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Metric returns the named temperature value of the record. ok is false when
// the metric is unknown or the value is missing.
func (r *WeatherRecord) Metric(name string) (v float64, ok bool) {
	var p *float64
	switch name {
	case MetricTempMin:
		p = r.TempMin
	case MetricTempMax:
		p = r.TempMax
	default:
		return 0, false
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Temperature metrics accepted by query and analysis tools.
const (
	MetricTempMin = "temp_min"
	MetricTempMax = "temp_max"
)

// ValidMetric reports whether name is a known temperature metric.
func ValidMetric(name string) bool {
	return name == MetricTempMin || name == MetricTempMax
}

// WeatherFilter narrows weather queries. Empty fields are ignored.
type WeatherFilter struct {
	City      string
	StartDate string
	EndDate   string
	Limit     int
	Ascending bool
}

// WeatherStats summarises the stored weather data set.
type WeatherStats struct {
	TotalRecords int64    `json:"total_records"`
	CitiesCount  int      `json:"cities_count"`
	Cities       []string `json:"cities"`
	EarliestDate string   `json:"earliest_date,omitempty"`
	LatestDate   string   `json:"latest_date,omitempty"`
}
