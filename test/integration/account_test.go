package integration

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

var testAccountKey = base64.StdEncoding.EncodeToString([]byte("integration-test-master-key"))

// fakeAccount serves the subset of the document SQL API a scan touches:
// database and container listing plus the length query on each container.
type fakeAccount struct {
	mu         sync.Mutex
	containers map[string][]string
	violators  map[string]bool
	forbidden  map[string]bool
	probes     int
}

func (f *fakeAccount) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" || r.Header.Get("x-ms-date") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "dbs":
		var dbs []map[string]string
		for name := range f.containers {
			dbs = append(dbs, map[string]string{"id": name})
		}
		writeJSON(w, map[string]any{"Databases": dbs})
	case len(parts) == 3 && parts[2] == "colls":
		if f.forbidden[parts[1]] {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var colls []map[string]string
		for _, name := range f.containers[parts[1]] {
			colls = append(colls, map[string]string{"id": name})
		}
		writeJSON(w, map[string]any{"DocumentCollections": colls})
	case len(parts) == 5 && parts[4] == "docs" && r.Method == http.MethodPost:
		f.mu.Lock()
		f.probes++
		f.mu.Unlock()
		docs := []any{}
		if f.violators[parts[1]+"/"+parts[3]] {
			docs = append(docs, map[string]string{"id": strings.Repeat("x", 991)})
		}
		writeJSON(w, map[string]any{"Documents": docs, "_count": len(docs)})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

// startAccount binds the fake account to IPv4 loopback and skips when the
// sandbox refuses sockets.
func startAccount(t *testing.T, account *fakeAccount) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping: loopback sockets unavailable: %v", err)
		}
		require.NoError(t, err)
	}
	ts := &httptest.Server{Listener: listener, Config: &http.Server{Handler: account}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
