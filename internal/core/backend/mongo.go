package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/idscout/idscout/internal/core"
	"github.com/idscout/idscout/internal/metrics"
)

const (
	mongoBackendName = "mongo"

	// codeRequestRateTooLarge is returned when the account throttles a request.
	codeRequestRateTooLarge = 16500

	defaultMongoRetryAfter = time.Second
)

var (
	systemDatabases = map[string]bool{"admin": true, "local": true, "config": true}
	retryAfterMsRe  = regexp.MustCompile(`RetryAfterMs=(\d+)`)
)

// MongoClient scans an account through the MongoDB wire protocol.
type MongoClient struct {
	client *mongo.Client
	pacer  *Pacer
}

// NewMongoClient connects to the account described by connectionString.
func NewMongoClient(ctx context.Context, connectionString string, timeout time.Duration, pacer *Pacer) (*MongoClient, error) {
	uri := strings.TrimSpace(connectionString)
	if uri == "" {
		return nil, errors.New("mongo connection string is required")
	}

	opts := options.Client().ApplyURI(uri).SetRetryReads(false)
	if timeout > 0 {
		opts.SetConnectTimeout(timeout)
		opts.SetServerSelectionTimeout(timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &MongoClient{client: client, pacer: pacer}, nil
}

// ListDatabases returns every user database, skipping system databases.
func (m *MongoClient) ListDatabases(ctx context.Context) ([]string, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	names, err := m.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, classifyMongoError("list_databases", err)
	}

	filtered := names[:0]
	for _, name := range names {
		if systemDatabases[name] {
			continue
		}
		filtered = append(filtered, name)
	}
	return filtered, nil
}

// ListContainers returns every collection in database.
func (m *MongoClient) ListContainers(ctx context.Context, database string) ([]string, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	names, err := m.client.Database(database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, classifyMongoError("list_containers", err)
	}
	return names, nil
}

// ProbeOnce looks for a single document whose _id is longer than
// core.MaxIDLength.
func (m *MongoClient) ProbeOnce(ctx context.Context, target core.ScanTarget, batchSize int64, indexAssist bool) (bool, error) {
	if err := m.wait(ctx); err != nil {
		return false, err
	}

	opts := options.Find().
		SetLimit(1).
		SetProjection(bson.D{{Key: "_id", Value: 1}})
	if size, ok := batchSize32(batchSize); ok {
		opts.SetBatchSize(size)
	}

	coll := m.client.Database(target.Database).Collection(target.Container)
	cursor, err := coll.Find(ctx, probeFilter(indexAssist), opts)
	if err != nil {
		return false, classifyMongoError("probe", err)
	}
	defer cursor.Close(ctx) // nolint:errcheck // best-effort cursor cleanup

	found := cursor.Next(ctx)
	if err := cursor.Err(); err != nil {
		return false, classifyMongoError("probe", err)
	}
	return found, nil
}

// CountRecords returns the collection's estimated document count.
func (m *MongoClient) CountRecords(ctx context.Context, target core.ScanTarget) (int64, error) {
	if err := m.wait(ctx); err != nil {
		return 0, err
	}
	coll := m.client.Database(target.Database).Collection(target.Container)
	count, err := coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, classifyMongoError("count", err)
	}
	return count, nil
}

// Close disconnects the client.
func (m *MongoClient) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

func (m *MongoClient) wait(ctx context.Context) error {
	if m == nil || m.client == nil {
		return errors.New("mongo client is not configured")
	}
	return m.pacer.Wait(ctx)
}

// probeFilter matches identifiers longer than core.MaxIDLength. The index
// assisted form is an _id regex that the _id index can answer; the default
// form computes the length of every _id rendered as a string. Ids with no
// string form (documents, arrays) convert to "" and never match.
func probeFilter(indexAssist bool) bson.D {
	if indexAssist {
		return bson.D{{Key: "_id", Value: primitive.Regex{
			Pattern: fmt.Sprintf(`^[\s\S]{%d}`, core.MaxIDLength+1),
		}}}
	}
	return bson.D{{Key: "$expr", Value: bson.D{{Key: "$gt", Value: bson.A{
		bson.D{{Key: "$strLenCP", Value: bson.D{{Key: "$convert", Value: bson.D{
			{Key: "input", Value: "$_id"},
			{Key: "to", Value: "string"},
			{Key: "onError", Value: ""},
			{Key: "onNull", Value: ""},
		}}}}},
		core.MaxIDLength,
	}}}}}
}

// classifyMongoError maps request-rate errors to *core.RateLimitedError.
func classifyMongoError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(codeRequestRateTooLarge) {
		return &core.RateLimitedError{
			RetryAfter: mongoRetryAfter(err.Error()),
			Message:    err.Error(),
		}
	}

	if serverErr != nil {
		metrics.RecordBackendError(mongoBackendName, operation, 0)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func mongoRetryAfter(message string) time.Duration {
	match := retryAfterMsRe.FindStringSubmatch(message)
	if len(match) != 2 {
		return defaultMongoRetryAfter
	}
	ms, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return defaultMongoRetryAfter
	}
	return time.Duration(ms) * time.Millisecond
}

func batchSize32(batchSize int64) (int32, bool) {
	if batchSize <= 0 {
		return 0, false
	}
	if batchSize > math.MaxInt32 {
		return math.MaxInt32, true
	}
	return int32(batchSize), true
}
