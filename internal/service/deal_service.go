package service

import (
	"context"
	"log/slog"

	"github.com/launchforge/launchpad/internal/domain"
)

// DealService is the read surface over deals, with an optional read-through
// cache absorbing hot-deal read bursts.
type DealService struct {
	deals  domain.DealStore
	cache  domain.DealCache
	logger *slog.Logger
}

// NewDealService creates a DealService.
func NewDealService(deals domain.DealStore, logger *slog.Logger) *DealService {
	return &DealService{
		deals:  deals,
		logger: logger.With(slog.String("component", "deal_service")),
	}
}

// WithCache attaches a read-through deal cache.
func (s *DealService) WithCache(cache domain.DealCache) *DealService {
	s.cache = cache
	return s
}

// Get returns one deal by ID, serving from the cache when possible.
func (s *DealService) Get(ctx context.Context, id string) (domain.Deal, error) {
	if s.cache != nil {
		deal, hit, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "deal cache read failed",
				slog.String("deal_id", id),
				slog.String("error", err.Error()),
			)
		} else if hit {
			return deal, nil
		}
	}

	deal, err := s.deals.GetByID(ctx, id)
	if err != nil {
		return domain.Deal{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, deal); err != nil {
			s.logger.WarnContext(ctx, "deal cache write failed",
				slog.String("deal_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return deal, nil
}

// List returns deals with pagination. List queries bypass the cache.
func (s *DealService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Deal, error) {
	return s.deals.List(ctx, opts)
}
