// Package crawler fetches monthly weather history pages and turns them into
// model.WeatherRecord values.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/telemetry"
)

// Defaults used when Config fields are zero.
const (
	DefaultBaseURL   = "http://www.tianqihoubao.com/lishi"
	DefaultTimeout   = 8 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// maxPageSize bounds a single page body.
const maxPageSize = 4 << 20

// ErrUnsupportedCity is returned for cities missing from Cities.
var ErrUnsupportedCity = errors.New("city not supported by crawler")

// Config configures a Crawler.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Crawler downloads history pages. It is safe for concurrent use.
type Crawler struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *slog.Logger
}

// New creates a Crawler. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Crawler {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Crawler{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

// MonthURL returns the history page URL for a city and month.
func (c *Crawler) MonthURL(pinyin string, year int, month time.Month) string {
	return fmt.Sprintf("%s/%s/month/%04d%02d.html", c.baseURL, pinyin, year, int(month))
}

// FetchMonth downloads and parses one month for city. A non-200 response
// yields no records and no error; transport failures are returned.
func (c *Crawler) FetchMonth(ctx context.Context, city City, year int, month time.Month) ([]model.WeatherRecord, error) {
	url := c.MonthURL(city.Pinyin, year, month)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		telemetry.CrawlerPagesTotal.WithLabelValues(telemetry.ResultError).Inc()
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		telemetry.CrawlerPagesTotal.WithLabelValues("status_" + fmt.Sprint(resp.StatusCode)).Inc()
		c.logger.Debug("history page not available", "url", url, "status", resp.StatusCode)
		return nil, nil
	}

	body := transform.NewReader(io.LimitReader(resp.Body, maxPageSize), simplifiedchinese.GBK.NewDecoder())
	recs, err := ParseMonthPage(body, city.Name)
	if err != nil {
		telemetry.CrawlerPagesTotal.WithLabelValues(telemetry.ResultMalformed).Inc()
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	telemetry.CrawlerPagesTotal.WithLabelValues(telemetry.ResultOK).Inc()
	telemetry.CrawlerRecordsTotal.Add(float64(len(recs)))
	return recs, nil
}

// CrawlRange fetches every month overlapping [start, end] for city (pinyin or
// display name) and returns the records dated inside the range, in page
// order. Pages that fail are logged and skipped; only context cancellation
// aborts the crawl.
func (c *Crawler) CrawlRange(ctx context.Context, city string, start, end time.Time) ([]model.WeatherRecord, error) {
	ct, ok := LookupCity(city)
	if !ok {
		return nil, fmt.Errorf("%q: %w", city, ErrUnsupportedCity)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			end.Format(model.DateLayout), start.Format(model.DateLayout))
	}

	lo := start.Format(model.DateLayout)
	hi := end.Format(model.DateLayout)

	var out []model.WeatherRecord
	for _, m := range Months(start, end) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		recs, err := c.FetchMonth(ctx, ct, m.Year(), m.Month())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			c.logger.Warn("skipping history page", "city", ct.Name, "month", m.Format("2006-01"), "error", err)
			continue
		}
		for _, r := range recs {
			if r.Date >= lo && r.Date <= hi {
				out = append(out, r)
			}
		}
	}

	c.logger.Info("crawl finished", "city", ct.Name, "start", lo, "end", hi, "records", len(out))
	return out, nil
}

// Months returns the first day of each month from start's month through
// end's month, inclusive.
func Months(start, end time.Time) []time.Time {
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	var out []time.Time
	for !cur.After(last) {
		out = append(out, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}
