package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/idscout/idscout/internal/core"
	"github.com/idscout/idscout/internal/metrics"
)

const (
	sqlBackendName = "sql"

	headerContinuation = "x-ms-continuation"
	headerMaxItemCount = "x-ms-max-item-count"
	headerResourceUse  = "x-ms-resource-usage"

	// DefaultComputedProperty holds the precomputed identifier length when
	// index assist is enabled.
	DefaultComputedProperty = "cp_idLength"

	maxErrorBody = 64 << 10
)

// SQLClient talks to the document SQL API over signed HTTP requests.
type SQLClient struct {
	Client           *http.Client
	Pacer            *Pacer
	BaseURL          string
	ComputedProperty string
	Clock            func() time.Time

	signer *masterKeySigner
	// resume holds the continuation a throttled probe stopped at, keyed by
	// target and query, so the retry skips pages already seen clean.
	resume *xsync.Map[string, string]
}

// NewSQLClient builds a client for endpoint authenticated with the base64
// master key.
func NewSQLClient(endpoint string, key string, client *http.Client, pacer *Pacer) (*SQLClient, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("sql endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse sql endpoint: %w", err)
	}

	signer, err := newMasterKeySigner(key)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &SQLClient{
		Client:  client,
		Pacer:   pacer,
		BaseURL: endpoint,
		signer:  signer,
		resume:  xsync.NewMap[string, string](),
	}, nil
}

type resourceID struct {
	ID string `json:"id"`
}

type databaseList struct {
	Databases []resourceID `json:"Databases"`
}

type collectionList struct {
	DocumentCollections []resourceID `json:"DocumentCollections"`
}

type queryPage struct {
	Documents []json.RawMessage `json:"Documents"`
	Count     int               `json:"_count"`
}

type queryParameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type queryRequest struct {
	Query      string           `json:"query"`
	Parameters []queryParameter `json:"parameters"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListDatabases returns the id of every database in the account.
func (c *SQLClient) ListDatabases(ctx context.Context) ([]string, error) {
	var names []string
	err := c.paginate(ctx, "list_databases", "/dbs", resourceDatabases, "", func(body []byte) error {
		var page databaseList
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("decode database list: %w", err)
		}
		for _, db := range page.Databases {
			names = append(names, db.ID)
		}
		return nil
	})
	return names, err
}

// ListContainers returns the id of every collection in database.
func (c *SQLClient) ListContainers(ctx context.Context, database string) ([]string, error) {
	link := "dbs/" + database
	var names []string
	err := c.paginate(ctx, "list_containers", "/"+escapeLink(link)+"/colls", resourceCollections, link, func(body []byte) error {
		var page collectionList
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("decode collection list: %w", err)
		}
		for _, coll := range page.DocumentCollections {
			names = append(names, coll.ID)
		}
		return nil
	})
	return names, err
}

// ProbeOnce runs the oversized-identifier query across every physical
// partition of target, following continuations until one document matches.
// A throttled page leaves its continuation behind and the next call for the
// same target resumes from it.
func (c *SQLClient) ProbeOnce(ctx context.Context, target core.ScanTarget, batchSize int64, indexAssist bool) (bool, error) {
	link := collectionLink(target)
	query := c.probeQuery(indexAssist)
	payload, err := json.Marshal(queryRequest{
		Query:      query,
		Parameters: []queryParameter{},
	})
	if err != nil {
		return false, err
	}

	key := target.ID() + "\x00" + query
	continuation := c.takeResume(key)
	for {
		headers := http.Header{}
		headers.Set("Content-Type", "application/query+json")
		headers.Set("x-ms-documentdb-isquery", "True")
		headers.Set("x-ms-documentdb-query-enablecrosspartition", "True")
		if batchSize > 0 {
			headers.Set(headerMaxItemCount, strconv.FormatInt(batchSize, 10))
		}
		if continuation != "" {
			headers.Set(headerContinuation, continuation)
		}

		resp, body, err := c.do(ctx, "probe", http.MethodPost, "/"+escapeLink(link)+"/docs", resourceDocuments, link, headers, payload)
		if err != nil {
			if _, limited := core.IsRateLimited(err); limited {
				c.keepResume(key, continuation)
			}
			return false, err
		}

		var page queryPage
		if err := json.Unmarshal(body, &page); err != nil {
			return false, fmt.Errorf("decode query page: %w", err)
		}
		if len(page.Documents) > 0 || page.Count > 0 {
			return true, nil
		}

		continuation = resp.Header.Get(headerContinuation)
		if continuation == "" {
			return false, nil
		}
	}
}

func (c *SQLClient) takeResume(key string) string {
	if c.resume == nil {
		return ""
	}
	token, _ := c.resume.LoadAndDelete(key)
	return token
}

func (c *SQLClient) keepResume(key, continuation string) {
	if c.resume == nil || continuation == "" {
		return
	}
	c.resume.Store(key, continuation)
}

// CountRecords reads the document count from the collection's quota info.
func (c *SQLClient) CountRecords(ctx context.Context, target core.ScanTarget) (int64, error) {
	link := collectionLink(target)
	headers := http.Header{}
	headers.Set("x-ms-documentdb-populatequotainfo", "true")

	resp, _, err := c.do(ctx, "count", http.MethodGet, "/"+escapeLink(link), resourceCollections, link, headers, nil)
	if err != nil {
		return 0, err
	}

	count, ok := parseResourceUsage(resp.Header.Get(headerResourceUse), "documentsCount")
	if !ok {
		return 0, fmt.Errorf("count %s: response carries no documentsCount", target.ID())
	}
	return count, nil
}

// Close releases idle connections.
func (c *SQLClient) Close(ctx context.Context) error {
	if c != nil && c.Client != nil {
		c.Client.CloseIdleConnections()
	}
	return nil
}

func (c *SQLClient) probeQuery(indexAssist bool) string {
	if indexAssist {
		property := strings.TrimSpace(c.ComputedProperty)
		if property == "" {
			property = DefaultComputedProperty
		}
		return fmt.Sprintf("SELECT TOP 1 c.id FROM c WHERE c.%s > %d", property, core.MaxIDLength)
	}
	return fmt.Sprintf("SELECT TOP 1 c.id FROM c WHERE LENGTH(c.id) > %d", core.MaxIDLength)
}

func (c *SQLClient) paginate(ctx context.Context, operation, path, resourceType, link string, handle func([]byte) error) error {
	continuation := ""
	for {
		headers := http.Header{}
		if continuation != "" {
			headers.Set(headerContinuation, continuation)
		}
		resp, body, err := c.do(ctx, operation, http.MethodGet, path, resourceType, link, headers, nil)
		if err != nil {
			return err
		}
		if err := handle(body); err != nil {
			return err
		}
		continuation = resp.Header.Get(headerContinuation)
		if continuation == "" {
			return nil
		}
	}
}

// do sends one signed request and returns the response with its body read.
// Throttling becomes *core.RateLimitedError; any other non-2xx becomes
// *StatusError.
func (c *SQLClient) do(ctx context.Context, operation, method, path, resourceType, link string, headers http.Header, payload []byte) (*http.Response, []byte, error) {
	if c == nil || c.signer == nil {
		return nil, nil, errors.New("sql client is not configured")
	}
	if err := c.Pacer.Wait(ctx); err != nil {
		return nil, nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}

	date := c.now()
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-ms-date", httpDate(date))
	req.Header.Set("x-ms-version", apiVersion)
	req.Header.Set("Authorization", c.signer.sign(method, resourceType, link, date))

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read response: %w", operation, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait, _ := retryAfterHeader(resp)
		return nil, nil, &core.RateLimitedError{RetryAfter: wait, Message: errorMessage(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordBackendError(sqlBackendName, operation, resp.StatusCode)
		statusErr := &StatusError{Operation: operation, StatusCode: resp.StatusCode}
		var parsed errorBody
		if len(body) > 0 && json.Unmarshal(limitBody(body), &parsed) == nil {
			statusErr.Code = parsed.Code
			statusErr.Message = parsed.Message
		}
		return nil, nil, statusErr
	}

	return resp, body, nil
}

func (c *SQLClient) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func collectionLink(target core.ScanTarget) string {
	return "dbs/" + target.Database + "/colls/" + target.Container
}

// escapeLink escapes each segment of a resource link for use in a URL path.
// The signature is computed over the unescaped link.
func escapeLink(link string) string {
	segments := strings.Split(link, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// parseResourceUsage extracts one key from a "k1=v1;k2=v2" usage header.
func parseResourceUsage(header string, key string) (int64, bool) {
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, key) {
			continue
		}
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func errorMessage(body []byte) string {
	var parsed errorBody
	if len(body) > 0 && json.Unmarshal(limitBody(body), &parsed) == nil {
		return parsed.Message
	}
	return ""
}

func limitBody(body []byte) []byte {
	if len(body) > maxErrorBody {
		return body[:maxErrorBody]
	}
	return body
}
