// Package backend implements the transports a scan runs against: the
// document SQL API over signed HTTP and the MongoDB API through the official
// driver.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/idscout/idscout/internal/config"
	"github.com/idscout/idscout/internal/core/engine"
)

// Client is a scan backend that holds connections until closed.
type Client interface {
	engine.Backend
	Close(ctx context.Context) error
}

var (
	_ Client = (*SQLClient)(nil)
	_ Client = (*MongoClient)(nil)
)

// Open builds the backend selected by cfg.Account.APIType.
func Open(ctx context.Context, cfg *config.Config) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("open backend: config is nil")
	}

	pacer := NewPacer(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst)

	switch strings.ToLower(strings.TrimSpace(cfg.Account.APIType)) {
	case config.APITypeSQL:
		client, err := NewSQLClient(cfg.Account.Endpoint, cfg.Account.Key, &http.Client{Timeout: cfg.HTTP.Timeout}, pacer)
		if err != nil {
			return nil, fmt.Errorf("open sql backend: %w", err)
		}
		client.ComputedProperty = cfg.Scan.ComputedProperty
		return client, nil
	case config.APITypeMongo:
		client, err := NewMongoClient(ctx, cfg.Account.ConnectionString, cfg.HTTP.Timeout, pacer)
		if err != nil {
			return nil, fmt.Errorf("open mongo backend: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("open backend: unsupported api type %q", cfg.Account.APIType)
	}
}
