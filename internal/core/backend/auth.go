package backend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	apiVersion = "2018-12-31"

	// Resource types named in the signature and request paths.
	resourceDatabases   = "dbs"
	resourceCollections = "colls"
	resourceDocuments   = "docs"
)

// masterKeySigner builds master-key authorization tokens.
type masterKeySigner struct {
	key []byte
}

func newMasterKeySigner(encodedKey string) (*masterKeySigner, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("decode account key: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("decode account key: key is empty")
	}
	return &masterKeySigner{key: key}, nil
}

// sign returns the URL-encoded Authorization header value for one request.
// resourceLink is the path of the addressed resource without a leading
// slash, empty when listing databases.
func (s *masterKeySigner) sign(verb, resourceType, resourceLink string, date time.Time) string {
	payload := strings.ToLower(verb) + "\n" +
		strings.ToLower(resourceType) + "\n" +
		resourceLink + "\n" +
		strings.ToLower(httpDate(date)) + "\n" +
		"\n"

	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write([]byte(payload))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return url.QueryEscape("type=master&ver=1.0&sig=" + sig)
}

func httpDate(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
}
