package views

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

// Source provides the raw rows a projection reads. billing.Repository satisfies it.
type Source interface {
	ListDefinitions(ctx context.Context) ([]billing.BillingDefinition, error)
	ListInstallments(ctx context.Context, filter billing.InstallmentFilter) ([]billing.Installment, error)
	ListClientNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Service serves projections, optionally through the Redis cache.
type Service struct {
	source Source
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs the read service. cache may be nil.
func NewService(source Source, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger}
}

// ProjectViews returns the projection for scope and mode with filters applied.
func (s *Service) ProjectViews(ctx context.Context, scope Scope, mode Mode, filters Filters) ([]VirtualBillingView, error) {
	key, err := s.cache.Key(ctx, scope, mode, filters)
	if err != nil {
		s.logger.WarnContext(ctx, "billing views cache unavailable", slog.Any("error", err))
		return s.project(ctx, scope, mode, filters)
	}
	return s.cache.Fetch(ctx, key, func(ctx context.Context) ([]VirtualBillingView, error) {
		return s.project(ctx, scope, mode, filters)
	})
}

func (s *Service) project(ctx context.Context, scope Scope, mode Mode, filters Filters) ([]VirtualBillingView, error) {
	input, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return Project(input, scope, mode, filters), nil
}

func (s *Service) load(ctx context.Context) (ProjectionInput, error) {
	var input ProjectionInput
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defs, err := s.source.ListDefinitions(gctx)
		if err != nil {
			return fmt.Errorf("list definitions: %w", err)
		}
		input.Definitions = defs
		return nil
	})
	g.Go(func() error {
		rows, err := s.source.ListInstallments(gctx, billing.InstallmentFilter{})
		if err != nil {
			return fmt.Errorf("list installments: %w", err)
		}
		input.Installments = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return ProjectionInput{}, err
	}

	seen := make(map[int64]struct{})
	var ids []int64
	collect := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, def := range input.Definitions {
		collect(def.ClientID)
	}
	for _, row := range input.Installments {
		collect(row.ClientID)
	}
	names, err := s.source.ListClientNames(ctx, ids)
	if err != nil {
		return ProjectionInput{}, fmt.Errorf("list client names: %w", err)
	}
	input.ClientNames = names
	return input, nil
}
