package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestMetricsDescribe(t *testing.T) {
	cases := []struct {
		name string
		c    prometheus.Collector
	}{
		{"weatherhub_http_requests_total", HTTPRequestsTotal},
		{"weatherhub_http_request_duration_seconds", HTTPRequestDuration},
		{"weatherhub_credential_verifications_total", CredentialVerificationsTotal},
		{"weatherhub_session_token_verifications_total", TokenVerificationsTotal},
		{"weatherhub_quota_consumed_total", QuotaConsumedTotal},
		{"weatherhub_crawler_pages_total", CrawlerPagesTotal},
		{"weatherhub_crawler_records_total", CrawlerRecordsTotal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 4)
			tc.c.Describe(ch)
			close(ch)
			desc := <-ch
			require.NotNil(t, desc)
			assert.Contains(t, desc.String(), `"`+tc.name+`"`)
		})
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(CredentialVerificationsTotal.WithLabelValues(ResultQuotaExceeded))
	CredentialVerificationsTotal.WithLabelValues(ResultQuotaExceeded).Inc()
	after := testutil.ToFloat64(CredentialVerificationsTotal.WithLabelValues(ResultQuotaExceeded))
	assert.Equal(t, before+1, after)
}

func TestHandlerExposesMetrics(t *testing.T) {
	QuotaConsumedTotal.Add(0)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "weatherhub_quota_consumed_total"))
}

func TestRegisterDBStatsIdempotent(t *testing.T) {
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RegisterDBStats(db.DB, "telemetry_test"))
	require.NoError(t, RegisterDBStats(db.DB, "telemetry_test"))
}
