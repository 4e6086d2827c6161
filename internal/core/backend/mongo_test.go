package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/idscout/idscout/internal/core"
)

func TestProbeFilterToleratesNonStringIDs(t *testing.T) {
	filter := probeFilter(false)
	require.Len(t, filter, 1)
	require.Equal(t, "$expr", filter[0].Key)

	raw, err := bson.MarshalExtJSON(filter, false, false)
	require.NoError(t, err)
	require.JSONEq(t, `{"$expr":{"$gt":[{"$strLenCP":{"$convert":{"input":"$_id","to":"string","onError":"","onNull":""}}},990]}}`, string(raw))
}

func TestProbeFilterIndexAssistUsesRegex(t *testing.T) {
	filter := probeFilter(true)
	require.Len(t, filter, 1)
	require.Equal(t, "_id", filter[0].Key)

	regex, ok := filter[0].Value.(primitive.Regex)
	require.True(t, ok)
	require.Equal(t, `^[\s\S]{991}`, regex.Pattern)
}

func TestClassifyMongoThrottle(t *testing.T) {
	err := classifyMongoError("probe", mongo.CommandError{
		Code:    16500,
		Message: "Error=16500, RetryAfterMs=120, Details='Request rate is large'",
	})

	rl, ok := core.IsRateLimited(err)
	require.True(t, ok)
	require.Equal(t, 120*time.Millisecond, rl.RetryAfter)
}

func TestClassifyMongoThrottleWithoutHint(t *testing.T) {
	err := classifyMongoError("probe", fmt.Errorf("wrapped: %w", mongo.CommandError{Code: 16500, Message: "throttled"}))

	rl, ok := core.IsRateLimited(err)
	require.True(t, ok)
	require.Equal(t, time.Second, rl.RetryAfter)
}

func TestClassifyMongoOtherErrors(t *testing.T) {
	cmdErr := mongo.CommandError{Code: 13, Message: "unauthorized"}
	err := classifyMongoError("list_databases", cmdErr)
	require.Error(t, err)
	_, ok := core.IsRateLimited(err)
	require.False(t, ok)
	require.Contains(t, err.Error(), "list_databases")

	var target mongo.CommandError
	require.True(t, errors.As(err, &target))
	require.Equal(t, int32(13), target.Code)

	require.NoError(t, classifyMongoError("probe", nil))
}

func TestMongoRetryAfter(t *testing.T) {
	require.Equal(t, 5*time.Millisecond, mongoRetryAfter("RetryAfterMs=5"))
	require.Equal(t, time.Second, mongoRetryAfter("no hint"))
}

func TestBatchSize32(t *testing.T) {
	_, ok := batchSize32(0)
	require.False(t, ok)

	size, ok := batchSize32(500)
	require.True(t, ok)
	require.Equal(t, int32(500), size)

	size, ok = batchSize32(math.MaxInt64)
	require.True(t, ok)
	require.Equal(t, int32(math.MaxInt32), size)
}

func TestNewMongoClientRequiresConnectionString(t *testing.T) {
	_, err := NewMongoClient(context.Background(), "  ", time.Second, nil)
	require.Error(t, err)
}

func TestUnconfiguredMongoClient(t *testing.T) {
	var m *MongoClient
	require.NoError(t, m.Close(context.Background()))

	_, err := (&MongoClient{}).ListDatabases(context.Background())
	require.Error(t, err)
}
