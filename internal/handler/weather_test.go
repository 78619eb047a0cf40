package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/store"
)

func seedWeather(t *testing.T, env *testEnv) {
	t.Helper()
	f := func(v float64) *float64 { return &v }
	recs := []model.WeatherRecord{
		{City: "北京", Date: "2024-01-01", WeatherCondition: "晴", TempMin: f(-5), TempMax: f(3), WindInfo: "北风 3-4级"},
		{City: "北京", Date: "2024-01-02", WeatherCondition: "多云", TempMin: f(-4), TempMax: f(5)},
		{City: "上海", Date: "2024-01-01", WeatherCondition: "小雨", TempMin: f(4), TempMax: f(9)},
	}
	if err := env.store.InsertWeather(context.Background(), recs); err != nil {
		t.Fatalf("InsertWeather: %v", err)
	}
}

func TestWeatherData(t *testing.T) {
	env := newTestEnv(t)
	seedWeather(t, env)
	raw, key := env.seedKey(t, env.seedUser(t, "reader", model.RoleUser), 10)

	rr := env.doAPIKey(t, raw, "/weather/data?city=beijing")
	assertStatus(t, rr, http.StatusOK)
	var items []weatherItem
	decodeJSON(t, rr, &items)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Date != "2024-01-02" || items[0].City != "北京" {
		t.Errorf("first item = %+v, want newest Beijing record", items[0])
	}

	// Malformed dates are ignored, not rejected.
	rr = env.doAPIKey(t, raw, "/weather/data?start_date=yesterday&limit=2")
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &items)
	if len(items) != 2 {
		t.Errorf("got %d items, want limit 2", len(items))
	}

	rr = env.doAPIKey(t, raw, "/weather/data?end_date=2024-01-01")
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &items)
	if len(items) != 2 {
		t.Errorf("got %d items on 2024-01-01, want 2", len(items))
	}

	for _, q := range []string{"limit=0", "limit=1001", "limit=abc"} {
		rr = env.doAPIKey(t, raw, "/weather/data?"+q)
		assertStatus(t, rr, http.StatusBadRequest)
	}

	got, err := env.store.GetAPIKey(context.Background(), key.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	// Every request that passed the credential check consumed one unit.
	if got.RemainingQuota != 4 {
		t.Errorf("remaining quota = %d, want 4", got.RemainingQuota)
	}
}

func TestWeatherStats(t *testing.T) {
	env := newTestEnv(t)
	seedWeather(t, env)
	raw, _ := env.seedKey(t, env.seedUser(t, "reader", model.RoleUser), 5)

	rr := env.doAPIKey(t, raw, "/weather/stats")
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		TotalRecords int64    `json:"total_records"`
		CitiesCount  int      `json:"cities_count"`
		Cities       []string `json:"cities"`
		DateRange    struct {
			Start *string `json:"start"`
			End   *string `json:"end"`
		} `json:"date_range"`
		UserInfo struct {
			Username       string `json:"username"`
			RemainingQuota int64  `json:"remaining_quota"`
		} `json:"user_info"`
	}
	decodeJSON(t, rr, &resp)

	if resp.TotalRecords != 3 || resp.CitiesCount != 2 {
		t.Errorf("totals = %d records, %d cities", resp.TotalRecords, resp.CitiesCount)
	}
	if resp.DateRange.Start == nil || *resp.DateRange.Start != "2024-01-01" {
		t.Errorf("start = %v", resp.DateRange.Start)
	}
	if resp.DateRange.End == nil || *resp.DateRange.End != "2024-01-02" {
		t.Errorf("end = %v", resp.DateRange.End)
	}
	if resp.UserInfo.Username != "reader" || resp.UserInfo.RemainingQuota != 4 {
		t.Errorf("user_info = %+v", resp.UserInfo)
	}
}

func TestWeatherStatsEmpty(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, env.seedUser(t, "reader", model.RoleUser), 5)

	rr := env.doAPIKey(t, raw, "/weather/stats")
	assertStatus(t, rr, http.StatusOK)
	var resp map[string]interface{}
	decodeJSON(t, rr, &resp)
	dr := resp["date_range"].(map[string]interface{})
	if dr["start"] != nil || dr["end"] != nil {
		t.Errorf("date_range = %v, want nulls", dr)
	}
}

func TestWeatherCredentialFailures(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser(t, "reader", model.RoleUser)
	ctx := context.Background()

	rr := env.do(t, "GET", "/weather/data", nil)
	assertStatus(t, rr, http.StatusUnauthorized)

	rr = env.doAPIKey(t, "sk-unknown", "/weather/data")
	assertStatus(t, rr, http.StatusUnauthorized)

	raw, _ := env.seedKey(t, owner, 1)
	assertStatus(t, env.doAPIKey(t, raw, "/weather/data"), http.StatusOK)
	rr = env.doAPIKey(t, raw, "/weather/data")
	assertStatus(t, rr, http.StatusTooManyRequests)

	disabledRaw, disabled := env.seedKey(t, owner, 5)
	inactive := false
	if _, err := env.store.UpdateAPIKey(ctx, disabled.ID, store.APIKeyPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateAPIKey: %v", err)
	}
	assertStatus(t, env.doAPIKey(t, disabledRaw, "/weather/stats"), http.StatusForbidden)

	liveRaw, live := env.seedKey(t, owner, 5)
	if _, err := env.store.UpdateUser(ctx, owner.ID, store.UserPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	assertStatus(t, env.doAPIKey(t, liveRaw, "/weather/stats"), http.StatusForbidden)
	got, _ := env.store.GetAPIKey(ctx, live.ID)
	if got.RemainingQuota != 5 {
		t.Errorf("disabled owner consumed quota: %d left", got.RemainingQuota)
	}
}
