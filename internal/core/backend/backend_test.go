package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/idscout/idscout/internal/config"
)

func TestOpenSQL(t *testing.T) {
	cfg := &config.Config{
		Account: config.AccountConfig{APIType: "SQL", Endpoint: "https://acct.example:443/", Key: testKey},
		Scan:    config.ScanConfig{ComputedProperty: "cp_len"},
		HTTP:    config.HTTPConfig{Timeout: 5 * time.Second, RequestsPerSecond: 20, Burst: 5},
	}

	client, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	sql, ok := client.(*SQLClient)
	require.True(t, ok)
	require.Equal(t, "https://acct.example:443", sql.BaseURL)
	require.Equal(t, "cp_len", sql.ComputedProperty)
	require.Equal(t, 5*time.Second, sql.Client.Timeout)
	require.InDelta(t, 20, sql.Pacer.Limit(), 0.001)
}

func TestOpenRejectsUnknownAPI(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Account: config.AccountConfig{APIType: "cassandra"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cassandra")

	_, err = Open(context.Background(), nil)
	require.Error(t, err)
}

func TestOpenSQLBadKey(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{
		Account: config.AccountConfig{APIType: config.APITypeSQL, Endpoint: "https://acct.example", Key: "%%%"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "open sql backend")
}

func TestRetryAfterHeader(t *testing.T) {
	cases := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{"milliseconds", http.Header{"X-Ms-Retry-After-Ms": {"250"}}, 250 * time.Millisecond},
		{"fractional milliseconds", http.Header{"X-Ms-Retry-After-Ms": {"1.5"}}, 1500 * time.Microsecond},
		{"seconds", http.Header{"Retry-After": {"3"}}, 3 * time.Second},
		{"milliseconds win", http.Header{"X-Ms-Retry-After-Ms": {"10"}, "Retry-After": {"3"}}, 10 * time.Millisecond},
		{"garbage", http.Header{"Retry-After": {"soon"}}, 0},
		{"absent", http.Header{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := retryAfterHeader(&http.Response{Header: tc.header})
			require.Equal(t, tc.want, got)
		})
	}

	got, _ := retryAfterHeader(nil)
	require.Zero(t, got)
}

func TestRetryAfterHTTPDate(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Retry-After", time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat))
	got, extra := retryAfterHeader(rec.Result())
	require.Zero(t, got, "a date in the past means retry now")
	require.Contains(t, extra, "retry_after")
}

func TestPacer(t *testing.T) {
	require.Nil(t, NewPacer(0, 10))
	require.NoError(t, (*Pacer)(nil).Wait(context.Background()))
	require.Zero(t, (*Pacer)(nil).Limit())

	pacer := NewPacer(1000, 0)
	require.NotNil(t, pacer)
	require.NoError(t, pacer.Wait(context.Background()))

	slow := NewPacer(0.001, 1)
	require.NoError(t, slow.Wait(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, slow.Wait(ctx), "second token is far in the future")
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Operation: "probe", StatusCode: http.StatusServiceUnavailable}
	require.Equal(t, "probe: unexpected status 503: Service Unavailable", err.Error())
}
