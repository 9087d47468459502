package mocks

import (
	"context"
	"time"

	"github.com/HadesArchitect/killrvideo-web/pkg/services/ratings"
)

// slowRatingsService is a proxy to the actual service except the lookups are delayed by lookupDelay,
// or until the context is done.
// This allows simulating a backend that does not answer before the caller gives up.
type slowRatingsService struct {
	lookupDelay time.Duration
	ratings.Service
}

// NewMockSlowRatingsService returns a wrapper of a ratings service that adds artificial delays into its lookups.
func NewMockSlowRatingsService(svc ratings.Service, lookupDelay time.Duration) ratings.Service {
	return &slowRatingsService{
		lookupDelay: lookupDelay,
		Service:     svc,
	}
}

func (m *slowRatingsService) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.lookupDelay):
		return nil
	}
}

func (m *slowRatingsService) GetRating(ctx context.Context, req *ratings.GetRatingRequest) (*ratings.GetRatingResponse, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.Service.GetRating(ctx, req)
}

func (m *slowRatingsService) GetUserRating(ctx context.Context, req *ratings.GetUserRatingRequest) (*ratings.GetUserRatingResponse, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.Service.GetUserRating(ctx, req)
}
