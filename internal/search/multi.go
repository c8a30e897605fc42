package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/grounder/internal/cache"
	"github.com/FranksOps/grounder/internal/model"
)

// Multi queries several providers concurrently and merges their results in
// provider order, dropping URLs already seen. It fails only when every
// provider fails.
type Multi struct {
	providers []Provider
	limit     int
	logger    *slog.Logger
}

// NewMulti combines providers. limit caps the merged list; zero means no cap.
func NewMulti(limit int, logger *slog.Logger, providers ...Provider) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{providers: providers, limit: limit, logger: logger}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m *Multi) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	if len(m.providers) == 0 {
		return nil, ErrNoProviders
	}

	results := make([][]model.Candidate, len(m.providers))
	errs := make([]error, len(m.providers))
	var g errgroup.Group
	for i, p := range m.providers {
		g.Go(func() error {
			results[i], errs[i] = p.Search(ctx, query)
			return nil
		})
	}
	_ = g.Wait()

	var (
		out    []model.Candidate
		failed []error
	)
	seen := make(map[string]struct{})
	for i, p := range m.providers {
		if errs[i] != nil {
			m.logger.Warn("search provider failed", "provider", p.Name(), "err", errs[i])
			failed = append(failed, fmt.Errorf("%s: %w", p.Name(), errs[i]))
			continue
		}
		for _, c := range results[i] {
			key := cache.NormalizeURL(c.URL)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			c.Index = len(out)
			out = append(out, c)
			if m.limit > 0 && len(out) >= m.limit {
				return out, nil
			}
		}
	}

	if len(failed) == len(m.providers) {
		return nil, errors.Join(failed...)
	}
	return out, nil
}
