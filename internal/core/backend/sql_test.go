package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/idscout/idscout/internal/core"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("super-secret-master-key"))

type recordedRequest struct {
	Method  string
	Path    string
	Header  http.Header
	Payload queryRequest
}

type fakeAccount struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request, call int)
}

func (f *fakeAccount) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Header: r.Header.Clone()}
	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		if len(body) > 0 {
			_ = json.Unmarshal(body, &rec.Payload)
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	call := len(f.requests)
	f.mu.Unlock()

	f.handler(w, r, call)
}

func (f *fakeAccount) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestSQLClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, call int)) (*SQLClient, *fakeAccount) {
	t.Helper()
	account := &fakeAccount{handler: handler}
	server := httptest.NewServer(account)
	t.Cleanup(server.Close)

	client, err := NewSQLClient(server.URL+"/", testKey, server.Client(), nil)
	require.NoError(t, err)
	client.Clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return client, account
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

var probeTarget = core.ScanTarget{Database: "shop", Container: "orders"}

func TestSQLListDatabasesFollowsContinuation(t *testing.T) {
	client, account := newTestSQLClient(t, func(w http.ResponseWriter, r *http.Request, call int) {
		if r.Header.Get(headerContinuation) == "" {
			w.Header().Set(headerContinuation, "page-2")
			writeJSON(w, http.StatusOK, map[string]any{"Databases": []map[string]string{{"id": "shop"}}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"Databases": []map[string]string{{"id": "hr"}}})
	})

	names, err := client.ListDatabases(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"shop", "hr"}, names)

	reqs := account.recorded()
	require.Len(t, reqs, 2)
	require.Equal(t, "/dbs", reqs[0].Path)
	require.Equal(t, "page-2", reqs[1].Header.Get(headerContinuation))
	require.Equal(t, apiVersion, reqs[0].Header.Get("x-ms-version"))
	require.Equal(t, "Sun, 01 Mar 2026 12:00:00 GMT", reqs[0].Header.Get("x-ms-date"))
	require.True(t, strings.HasPrefix(reqs[0].Header.Get("Authorization"), "type%3Dmaster%26ver%3D1.0%26sig%3D"))
}

func TestSQLListContainers(t *testing.T) {
	client, account := newTestSQLClient(t, func(w http.ResponseWriter, r *http.Request, call int) {
		writeJSON(w, http.StatusOK, map[string]any{"DocumentCollections": []map[string]string{{"id": "orders"}, {"id": "lines"}}})
	})

	names, err := client.ListContainers(context.Background(), "my shop")
	require.NoError(t, err)
	require.Equal(t, []string{"orders", "lines"}, names)
	require.Equal(t, "/dbs/my%20shop/colls", account.recorded()[0].Path)
}

func TestSQLProbeFindsViolation(t *testing.T) {
	client, account := newTestSQLClient(t, func(w http.ResponseWriter, r *http.Request, call int) {
		switch call {
		case 1:
			w.Header().Set(headerContinuation, "next")
			writeJSON(w, http.StatusOK, map[string]any{"Documents": []any{}, "_count": 0})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"Documents": []any{map[string]string{"id": strings.Repeat("x", 991)}}, "_count": 1})
		}
	})

	found, err := client.ProbeOnce(context.Background(), probeTarget, 250, false)
	require.NoError(t, err)
	require.True(t, found)

	reqs := account.recorded()
	require.Len(t, reqs, 2)
	require.Equal(t, http.MethodPost, reqs[0].Method)
	require.Equal(t, "/dbs/shop/colls/orders/docs", reqs[0].Path)
	require.Equal(t, "application/query+json", reqs[0].Header.Get("Content-Type"))
	require.Equal(t, "True", reqs[0].Header.Get("x-ms-documentdb-query-enablecrosspartition"))
	require.Equal(t, "250", reqs[0].Header.Get(headerMaxItemCount))
	require.Equal(t, "SELECT TOP 1 c.id FROM c WHERE LENGTH(c.id) > 990", reqs[0].Payload.Query)
	require.Equal(t, "next", reqs[1].Header.Get(headerContinuation))
}

func TestSQLProbeCleanWithIndexAssist(t *testing.T) {
	client, account := newTestSQLClient(t, func(w http.ResponseWriter, r *http.Request, call int) {
		writeJSON(w, http.StatusOK, map[string]any{"Documents": []any{}, "_count": 0})
	})
	client.ComputedProperty = "cp_len"

	found, err := client.ProbeOnce(context.Background(), probeTarget, 0, true)
	require.NoError(t, err)
	require.False(t, found)

	req := account.recorded()[0]
	require.Equal(t, "SELECT TOP 1 c.id FROM c WHERE c.cp_len > 990", req.Payload.Query)
	require.Empty(t, req.Header.Get(headerMaxItemCount), "zero batch leaves the page size to the service")
}

func TestSQLThrottleBecomesRateLimitedError(t *testing.T) {
	client, _ := newTestSQLClient(t, func(w http.ResponseWriter, r *http.Request, call int) {
		w.Header().Set(headerRetryAfterMs, "150")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"code": "TooManyRequests", "message": "Request rate is large"})
	})

	_, err := client.ProbeOnce(context.Background(), probeTarget, 0, false)
	rl, ok := core.IsRateLimited(err)
	require.True(t, ok)
	require.Equal(t, 150*time.Millisecond, rl.RetryAfter)
	require.Contains(t, rl.Message, "Request rate is large")
}

func TestSQLProbeResumesAfterThrottledPage(t *testing.T) {
	client, account := newTestSQLClient(t, func(w http.ResponseWriter, r *http.Request, call int) {
		switch call {
		case 1:
			w.Header().Set(headerContinuation, "page-2")
			writeJSON(w, http.StatusOK, map[string]any{"Documents": []any{}, "_count": 0})
		case 2:
			w.Header().Set(headerRetryAfterMs, "5")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"code": "TooManyRequests"})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"Documents": []any{}, "_count": 0})
		}
	})

	_, err := client.ProbeOnce(context.Background(), probeTarget, 500, false)
	_, limited := core.IsRateLimited(err)
	require.True(t, limited)

	found, err := client.ProbeOnce(context.Background(), probeTarget, 250, false)
	require.NoError(t, err)
	require.False(t, found)

	found, err = client.ProbeOnce(context.Background(), probeTarget, 250, false)
	require.NoError(t, err)
	require.False(t, found)

	reqs := account.recorded()
	require.Len(t, reqs, 4)
	require.Equal(t, "page-2", reqs[1].Header.Get(headerContinuation))
	require.Equal(t, "page-2", reqs[2].Header.Get(headerContinuation), "retry resumes at the throttled page")
	require.Equal(t, "250", reqs[2].Header.Get(headerMaxItemCount))
	require.Empty(t, reqs[3].Header.Get(headerContinuation), "a finished probe starts from the first page")
}

func TestSQLOtherStatusIsStatusError(t *testing.T) {
	client, _ := newTestSQLClient(t, func(w http.ResponseWriter, r *http.Request, call int) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "Unauthorized", "message": "bad signature"})
	})

	_, err := client.ListDatabases(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	require.Equal(t, "Unauthorized", statusErr.Code)
	require.Contains(t, err.Error(), "bad signature")

	_, ok := core.IsRateLimited(err)
	require.False(t, ok)
}

func TestSQLCountRecordsReadsQuotaHeader(t *testing.T) {
	client, account := newTestSQLClient(t, func(w http.ResponseWriter, r *http.Request, call int) {
		w.Header().Set(headerResourceUse, "documentSize=12;documentsSize=4096;documentsCount=1000;collectionSize=9000")
		writeJSON(w, http.StatusOK, map[string]string{"id": "orders"})
	})

	count, err := client.CountRecords(context.Background(), probeTarget)
	require.NoError(t, err)
	require.Equal(t, int64(1000), count)

	req := account.recorded()[0]
	require.Equal(t, http.MethodGet, req.Method)
	require.Equal(t, "/dbs/shop/colls/orders", req.Path)
	require.Equal(t, "true", req.Header.Get("x-ms-documentdb-populatequotainfo"))
}

func TestSQLCountRecordsMissingHeader(t *testing.T) {
	client, _ := newTestSQLClient(t, func(w http.ResponseWriter, r *http.Request, call int) {
		writeJSON(w, http.StatusOK, map[string]string{"id": "orders"})
	})

	_, err := client.CountRecords(context.Background(), probeTarget)
	require.Error(t, err)
	require.Contains(t, err.Error(), "documentsCount")
}

func TestSQLRequestHonoursCancellation(t *testing.T) {
	client, _ := newTestSQLClient(t, func(w http.ResponseWriter, r *http.Request, call int) {
		writeJSON(w, http.StatusOK, map[string]any{"Databases": []any{}})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListDatabases(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewSQLClientValidation(t *testing.T) {
	_, err := NewSQLClient("", testKey, nil, nil)
	require.Error(t, err)

	_, err = NewSQLClient("https://acct.example", "not base64!", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "account key")
}

func TestParseResourceUsage(t *testing.T) {
	value, ok := parseResourceUsage("a=1; documentsCount = 42 ;b=3", "documentsCount")
	require.True(t, ok)
	require.Equal(t, int64(42), value)

	_, ok = parseResourceUsage("documentsCount=lots", "documentsCount")
	require.False(t, ok)

	_, ok = parseResourceUsage("", "documentsCount")
	require.False(t, ok)
}
