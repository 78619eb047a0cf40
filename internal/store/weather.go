package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/weatherhub/weatherhub/internal/model"
)

// WeatherFields are the columns that callers may project in CustomWeatherQuery.
var WeatherFields = []string{"city", "date", "weather_condition", "temp_min", "temp_max", "wind_info"}

func isWeatherField(name string) bool {
	for _, f := range WeatherFields {
		if f == name {
			return true
		}
	}
	return false
}

func weatherWhere(f model.WeatherFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.City != "" {
		conds = append(conds, "city = ?")
		args = append(args, f.City)
	}
	if f.StartDate != "" {
		conds = append(conds, "date >= ?")
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		conds = append(conds, "date <= ?")
		args = append(args, f.EndDate)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// QueryWeather returns weather records matching f. Records are ordered by
// date, newest first unless f.Ascending is set. A non-positive limit returns
// every match.
func (s *Store) QueryWeather(ctx context.Context, f model.WeatherFilter) ([]model.WeatherRecord, error) {
	where, args := weatherWhere(f)
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	q := "SELECT * FROM weather_data" + where + " ORDER BY date " + dir + ", id " + dir
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	records := []model.WeatherRecord{}
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("query weather: %w", err)
	}
	return records, nil
}

// CustomWeatherQuery projects the given whitelisted fields for records
// matching f, ordered by date ascending. Unknown fields are rejected.
func (s *Store) CustomWeatherQuery(ctx context.Context, fields []string, f model.WeatherFilter) ([]map[string]interface{}, error) {
	if len(fields) == 0 {
		fields = WeatherFields
	}
	for _, name := range fields {
		if !isWeatherField(name) {
			return nil, fmt.Errorf("unsupported field %q", name)
		}
	}

	where, args := weatherWhere(f)
	q := "SELECT " + strings.Join(fields, ", ") + " FROM weather_data" + where + " ORDER BY date ASC, id ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("custom weather query: %w", err)
	}
	defer rows.Close()

	out := []map[string]interface{}{}
	for rows.Next() {
		row := make(map[string]interface{}, len(fields))
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan weather row: %w", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// WeatherStats summarises the full weather table.
func (s *Store) WeatherStats(ctx context.Context) (*model.WeatherStats, error) {
	var agg struct {
		Total    int64          `db:"total"`
		Earliest sql.NullString `db:"earliest"`
		Latest   sql.NullString `db:"latest"`
	}
	if err := s.db.GetContext(ctx, &agg,
		"SELECT COUNT(*) AS total, MIN(date) AS earliest, MAX(date) AS latest FROM weather_data"); err != nil {
		return nil, fmt.Errorf("weather stats: %w", err)
	}

	cities, err := s.WeatherCities(ctx)
	if err != nil {
		return nil, err
	}

	return &model.WeatherStats{
		TotalRecords: agg.Total,
		CitiesCount:  len(cities),
		Cities:       cities,
		EarliestDate: agg.Earliest.String,
		LatestDate:   agg.Latest.String,
	}, nil
}

// WeatherCities returns the distinct cities with stored records, sorted.
func (s *Store) WeatherCities(ctx context.Context) ([]string, error) {
	cities := []string{}
	if err := s.db.SelectContext(ctx, &cities,
		"SELECT DISTINCT city FROM weather_data ORDER BY city"); err != nil {
		return nil, fmt.Errorf("list weather cities: %w", err)
	}
	return cities, nil
}

// WeatherDates returns the distinct dates stored for city in [start, end].
func (s *Store) WeatherDates(ctx context.Context, city, start, end string) ([]string, error) {
	dates := []string{}
	if err := s.db.SelectContext(ctx, &dates,
		s.db.Rebind("SELECT DISTINCT date FROM weather_data WHERE city = ? AND date >= ? AND date <= ? ORDER BY date"),
		city, start, end); err != nil {
		return nil, fmt.Errorf("list weather dates: %w", err)
	}
	return dates, nil
}

const insertWeatherSQL = `INSERT INTO weather_data
	(city, date, weather_condition, temp_min, temp_max, temp_raw, wind_info, created_at)
	VALUES
	(:city, :date, :weather_condition, :temp_min, :temp_max, :temp_raw, :wind_info, :created_at)`

// InsertWeather appends records in one transaction.
func (s *Store) InsertWeather(ctx context.Context, records []model.WeatherRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert weather: %w", err)
	}
	defer tx.Rollback()

	if err := insertWeatherTx(ctx, tx, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert weather: %w", err)
	}
	return nil
}

// ReplaceWeatherRange deletes the city's records in [start, end] and inserts
// records in their place, atomically. It returns the number of deleted rows.
func (s *Store) ReplaceWeatherRange(ctx context.Context, city, start, end string, records []model.WeatherRecord) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace weather: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		s.db.Rebind("DELETE FROM weather_data WHERE city = ? AND date >= ? AND date <= ?"),
		city, start, end)
	if err != nil {
		return 0, fmt.Errorf("delete weather range: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if err := insertWeatherTx(ctx, tx, records); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit replace weather: %w", err)
	}
	return deleted, nil
}

type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

func insertWeatherTx(ctx context.Context, tx namedExecer, records []model.WeatherRecord) error {
	now := time.Now().UTC()
	for i := range records {
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insertWeatherSQL, &records[i]); err != nil {
			return fmt.Errorf("insert weather %s %s: %w", records[i].City, records[i].Date, err)
		}
	}
	return nil
}
