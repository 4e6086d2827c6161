package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/idscout/idscout/internal/core"
)

// DiscoverTargets lists every container of every database reachable through
// backend. Databases are listed first, then containers are listed with one
// concurrent lookup per database. Any failure cancels the sibling lookups and
// is returned as a single *core.DiscoveryError; a partial list is never
// returned.
func DiscoverTargets(ctx context.Context, backend Backend, maxConcurrency int) ([]core.ScanTarget, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	databases, err := backend.ListDatabases(ctx)
	if err != nil {
		return nil, &core.DiscoveryError{Err: err}
	}

	p := pool.NewWithResults[[]core.ScanTarget]().WithContext(ctx).WithCancelOnError()
	if maxConcurrency > 0 {
		p = p.WithMaxGoroutines(maxConcurrency)
	}

	for _, database := range databases {
		database := strings.TrimSpace(database)
		if database == "" {
			continue
		}
		p.Go(func(ctx context.Context) ([]core.ScanTarget, error) {
			containers, err := backend.ListContainers(ctx, database)
			if err != nil {
				return nil, &core.DiscoveryError{Database: database, Err: err}
			}
			targets := make([]core.ScanTarget, 0, len(containers))
			for _, container := range containers {
				if strings.TrimSpace(container) == "" {
					continue
				}
				targets = append(targets, core.ScanTarget{Database: database, Container: container})
			}
			return targets, nil
		})
	}

	groups, err := p.Wait()
	if err != nil {
		return nil, &core.DiscoveryError{Err: err}
	}

	targets := make([]core.ScanTarget, 0)
	for _, group := range groups {
		targets = append(targets, group...)
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].ID() < targets[j].ID()
	})

	return targets, nil
}
