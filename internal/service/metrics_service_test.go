package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceExposesLeaveCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordLeaveTransition("approve")
	m.RecordLeaveTransition("approve")
	m.RecordNotificationFailure("leave_rejected")
	m.RecordCacheOperation(true, time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/leave/types", http.StatusOK, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `leave_transitions_total{action="approve"} 2`))
	assert.Contains(t, body, `leave_notification_failures_total{kind="leave_rejected"} 1`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordLeaveTransition("create")
	m.RecordNotificationFailure("leave_request")
	m.TrackLiveSubscription(1)
	m.RecordCacheOperation(false, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
