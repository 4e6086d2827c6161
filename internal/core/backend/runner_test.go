package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idscout/idscout/internal/config"
	"github.com/idscout/idscout/internal/core"
)

type fakeClient struct {
	containers map[string][]string
	violator   string
	closed     bool
}

func (f *fakeClient) ListDatabases(ctx context.Context) ([]string, error) {
	var names []string
	for name := range f.containers {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeClient) ListContainers(ctx context.Context, database string) ([]string, error) {
	return f.containers[database], nil
}

func (f *fakeClient) ProbeOnce(ctx context.Context, target core.ScanTarget, batchSize int64, indexAssist bool) (bool, error) {
	return target.ID() == f.violator, nil
}

func (f *fakeClient) CountRecords(ctx context.Context, target core.ScanTarget) (int64, error) {
	return 0, nil
}

func (f *fakeClient) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func TestRunnerRunsScanAndClosesBackend(t *testing.T) {
	client := &fakeClient{
		containers: map[string][]string{"sales": {"orders", "invoices"}},
		violator:   "sales/orders",
	}
	runner := &Runner{
		Config: &config.Config{},
		open:   func(ctx context.Context, cfg *config.Config) (Client, error) { return client, nil },
	}

	report, err := runner.RunScan(context.Background(), core.ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.VerdictViolationFound, report.Verdict)
	assert.Equal(t, 2, report.Targets)
	assert.True(t, client.closed)
}

func TestRunnerOpenFailure(t *testing.T) {
	openErr := errors.New("dial tcp: connection refused")
	runner := &Runner{
		open: func(ctx context.Context, cfg *config.Config) (Client, error) { return nil, openErr },
	}

	report, err := runner.RunScan(context.Background(), core.ScanOptions{})
	require.ErrorIs(t, err, openErr)
	assert.Nil(t, report)
}

func TestNewRunnerRejectsUnknownAPIType(t *testing.T) {
	runner := NewRunner(&config.Config{Account: config.AccountConfig{APIType: "cassandra"}}, nil)

	_, err := runner.RunScan(context.Background(), core.ScanOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported api type")
}
