package backend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMasterKeySignature(t *testing.T) {
	signer, err := newMasterKeySigner(testKey)
	require.NoError(t, err)

	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := signer.sign("GET", "colls", "dbs/shop/colls/orders", date)

	decoded, err := url.QueryUnescape(token)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("super-secret-master-key"))
	_, _ = mac.Write([]byte("get\ncolls\ndbs/shop/colls/orders\nsun, 01 mar 2026 12:00:00 gmt\n\n"))
	want := "type=master&ver=1.0&sig=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	require.Equal(t, want, decoded)
}

func TestMasterKeySignatureDependsOnVerb(t *testing.T) {
	signer, err := newMasterKeySigner(testKey)
	require.NoError(t, err)

	date := time.Now()
	require.NotEqual(t,
		signer.sign("GET", "docs", "dbs/a/colls/b", date),
		signer.sign("POST", "docs", "dbs/a/colls/b", date),
	)
}

func TestMasterKeySignerRejectsEmptyKey(t *testing.T) {
	_, err := newMasterKeySigner("")
	require.Error(t, err)
}

func TestHTTPDateIsUTC(t *testing.T) {
	local := time.Date(2026, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
	require.Equal(t, "Sun, 01 Mar 2026 12:00:00 GMT", httpDate(local))
}
