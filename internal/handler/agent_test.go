package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/service"
)

func TestAgentConfigs(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedAdmin(t)

	rr := env.doAuth(t, token, "POST", "/agent/configs", toJSON(t, map[string]string{
		"key":         "crawler_interval",
		"value":       "3600",
		"description": "seconds between crawls",
	}))
	assertStatus(t, rr, http.StatusCreated)

	rr = env.doAuth(t, token, "POST", "/agent/configs", toJSON(t, map[string]string{
		"key":   "crawler_interval",
		"value": "60",
	}))
	assertStatus(t, rr, http.StatusConflict)

	rr = env.doAuth(t, token, "POST", "/agent/configs", strings.NewReader(`{"key":"no_value"}`))
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.doAuth(t, token, "POST", "/agent/configs", toJSON(t, map[string]string{
		"key":   strings.Repeat("k", 101),
		"value": "x",
	}))
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.doAuth(t, token, "PUT", "/agent/configs/crawler_interval", strings.NewReader(`{"value":"60"}`))
	assertStatus(t, rr, http.StatusOK)

	rr = env.doAuth(t, token, "GET", "/agent/configs/crawler_interval", nil)
	assertStatus(t, rr, http.StatusOK)
	var st map[string]interface{}
	decodeJSON(t, rr, &st)
	if st["value"] != "60" || st["description"] != "seconds between crawls" {
		t.Errorf("config = %v", st)
	}

	rr = env.doAuth(t, token, "GET", "/agent/configs", nil)
	assertStatus(t, rr, http.StatusOK)
	var list model.ListResponse
	decodeJSON(t, rr, &list)
	if len(list.Resource) != 1 {
		t.Errorf("got %d configs, want 1", len(list.Resource))
	}

	rr = env.doAuth(t, token, "DELETE", "/agent/configs/crawler_interval", nil)
	assertStatus(t, rr, http.StatusOK)
	rr = env.doAuth(t, token, "GET", "/agent/configs/crawler_interval", nil)
	assertStatus(t, rr, http.StatusNotFound)
	rr = env.doAuth(t, token, "PUT", "/agent/configs/crawler_interval", strings.NewReader(`{"value":"1"}`))
	assertStatus(t, rr, http.StatusNotFound)
}

func TestTriggerCrawler(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedAdmin(t)
	tmax := 3.0
	env.crawler.records = []model.WeatherRecord{
		{City: "北京", Date: "2024-01-01", WeatherCondition: "晴", TempMax: &tmax},
		{City: "北京", Date: "2024-01-02", WeatherCondition: "阴", TempMax: &tmax},
	}

	rr := env.doAuth(t, token, "POST", "/agent/trigger-crawler", toJSON(t, map[string]string{
		"city":       "beijing",
		"start_date": "2024-01-01",
		"end_date":   "2024-01-31",
	}))
	assertStatus(t, rr, http.StatusOK)
	var res service.UpdateResult
	decodeJSON(t, rr, &res)
	if !res.OK || res.Saved != 2 || res.City != "北京" {
		t.Errorf("result = %+v", res)
	}

	st, err := env.store.WeatherStats(context.Background())
	if err != nil {
		t.Fatalf("WeatherStats: %v", err)
	}
	if st.TotalRecords != 2 {
		t.Errorf("total records = %d, want 2", st.TotalRecords)
	}
}

func TestTriggerCrawlerErrors(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedAdmin(t)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"unsupported city", map[string]string{"city": "atlantis", "start_date": "2024-01-01", "end_date": "2024-01-31"}, http.StatusBadRequest},
		{"missing dates", map[string]string{"city": "beijing"}, http.StatusBadRequest},
		{"reversed range", map[string]string{"city": "beijing", "start_date": "2024-02-01", "end_date": "2024-01-01"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.doAuth(t, token, "POST", "/agent/trigger-crawler", toJSON(t, tt.body))
			assertStatus(t, rr, tt.want)
		})
	}

	env.crawler.err = errors.New("upstream down")
	rr := env.doAuth(t, token, "POST", "/agent/trigger-crawler", toJSON(t, map[string]string{
		"city": "beijing", "start_date": "2024-01-01", "end_date": "2024-01-31",
	}))
	assertStatus(t, rr, http.StatusInternalServerError)
}
