package refund

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTrafficReporter(t *testing.T) {
	var got successCountRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/keyword/success-count-duration", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(successCountResponse{TrafficCount: 42})
	}))
	defer server.Close()

	reporter := NewHTTPTrafficReporter(server.URL)
	count, err := reporter.CompletedTraffic(context.Background(),
		11,
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.Equal(t, int64(11), got.KeywordID)
	assert.Equal(t, "2024-04-01", got.TimeStart)
	assert.Equal(t, "2024-05-09", got.TimeEnd)
}

func TestHTTPTrafficReporterNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collector down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	reporter := NewHTTPTrafficReporter(server.URL)
	_, err := reporter.CompletedTraffic(context.Background(), 11, time.Now(), time.Now())
	assert.Error(t, err)
}

func TestHTTPTrafficReporterMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	reporter := NewHTTPTrafficReporter(server.URL)
	_, err := reporter.CompletedTraffic(context.Background(), 11, time.Now(), time.Now())
	assert.Error(t, err)
}
