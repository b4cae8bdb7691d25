package history

import (
	"context"
	"fmt"
	"slices"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/cache"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/database"
)

const (
	DefaultLimit = database.DefaultHistoryLimit
	MaxLimit     = 100
)

// Store persists and lists score records
type Store interface {
	InsertScore(ctx context.Context, s *database.ScoreRecord) error
	ListScores(ctx context.Context, farmerID string, limit int) ([]database.ScoreRecord, error)
}

// Service records scores and serves a farmer's recent history through a
// read-through cache. Recording a score drops that farmer's cached pages.
type Service struct {
	store Store
	cache *cache.Cache[[]database.ScoreRecord]
}

// NewService wraps store. A nil cache disables caching.
func NewService(store Store, c *cache.Cache[[]database.ScoreRecord]) *Service {
	return &Service{store: store, cache: c}
}

func key(farmerID string, limit int) string {
	return fmt.Sprintf("%s|%d", farmerID, limit)
}

// ClampLimit applies the default to non-positive limits and caps the rest
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Record appends a score and invalidates the farmer's cached history
func (s *Service) Record(ctx context.Context, rec *database.ScoreRecord) error {
	if err := s.store.InsertScore(ctx, rec); err != nil {
		return err
	}
	s.Invalidate(rec.FarmerID)
	return nil
}

// History returns up to limit scores for farmerID, newest first
func (s *Service) History(ctx context.Context, farmerID string, limit int) ([]database.ScoreRecord, error) {
	limit = ClampLimit(limit)
	k := key(farmerID, limit)

	if s.cache != nil {
		if records, ok := s.cache.Get(k); ok {
			return slices.Clone(records), nil
		}
	}

	records, err := s.store.ListScores(ctx, farmerID, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(k, records)
	}
	return slices.Clone(records), nil
}

// Invalidate drops every cached page for farmerID
func (s *Service) Invalidate(farmerID string) {
	if s.cache != nil {
		s.cache.DeletePrefix(farmerID + "|")
	}
}
