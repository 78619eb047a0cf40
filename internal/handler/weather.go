package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/server/middleware"
	"github.com/weatherhub/weatherhub/internal/service"
)

const (
	defaultWeatherLimit = 100
	maxWeatherLimit     = 1000
	// statsCityLimit caps the city list returned by Stats.
	statsCityLimit = 20
)

// WeatherHandler serves the API-key protected weather endpoints. Each
// request has already consumed one unit of the caller's quota.
type WeatherHandler struct {
	weather *service.WeatherService
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(weather *service.WeatherService) *WeatherHandler {
	return &WeatherHandler{weather: weather}
}

// validDay returns s when it is a YYYY-MM-DD date and "" otherwise.
func validDay(s string) string {
	if _, err := time.Parse(model.DateLayout, s); err != nil {
		return ""
	}
	return s
}

type weatherItem struct {
	City             string   `json:"city"`
	Date             string   `json:"date"`
	WeatherCondition string   `json:"weather_condition"`
	TempMin          *float64 `json:"temp_min"`
	TempMax          *float64 `json:"temp_max"`
	WindInfo         string   `json:"wind_info"`
}

// Data returns records newest first. Malformed dates are ignored rather than
// rejected; limit must lie in [1, 1000].
// GET /weather/data?city=&start_date=&end_date=&limit=
func (h *WeatherHandler) Data(w http.ResponseWriter, r *http.Request) {
	limit := defaultWeatherLimit
	if raw := queryString(r, "limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxWeatherLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}

	recs, err := h.weather.Query(r.Context(), model.WeatherFilter{
		City:      queryString(r, "city"),
		StartDate: validDay(queryString(r, "start_date")),
		EndDate:   validDay(queryString(r, "end_date")),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query weather data: "+err.Error())
		return
	}

	items := make([]weatherItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, weatherItem{
			City:             rec.City,
			Date:             rec.Date,
			WeatherCondition: rec.WeatherCondition,
			TempMin:          rec.TempMin,
			TempMax:          rec.TempMax,
			WindInfo:         rec.WindInfo,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// Stats summarises the data set together with the caller's key state.
// GET /weather/stats
func (h *WeatherHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.weather.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load weather stats: "+err.Error())
		return
	}

	cities := st.Cities
	if len(cities) > statsCityLimit {
		cities = cities[:statsCityLimit]
	}
	resp := map[string]interface{}{
		"total_records": st.TotalRecords,
		"cities_count":  st.CitiesCount,
		"cities":        cities,
		"date_range": map[string]interface{}{
			"start": nullable(st.EarliestDate),
			"end":   nullable(st.LatestDate),
		},
	}

	info := map[string]interface{}{}
	if u := middleware.GetUser(r.Context()); u != nil {
		info["username"] = u.Username
	}
	if k := middleware.GetAPIKey(r.Context()); k != nil {
		info["remaining_quota"] = k.RemainingQuota
	}
	resp["user_info"] = info

	writeJSON(w, http.StatusOK, resp)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
