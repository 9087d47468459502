package ratings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HadesArchitect/killrvideo-web/internal/build"
)

var (
	ratingsCacheTotalCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "ratings_cache_total_count",
		Help:      "The total number of ratings lookups going through the cache.",
	})

	ratingsCacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "ratings_cache_hit_count",
		Help:      "The total number of ratings lookups answered by the cache.",
	})
)

// CachedService answers lookups from a bounded in-memory cache before asking the wrapped
// service. RateVideo invalidates the entries it affects, and a lookup that overlapped
// any RateVideo does not fill the cache.
type CachedService struct {
	Service
	totals *theine.Cache[string, GetRatingResponse]
	users  *theine.Cache[string, GetUserRatingResponse]
	ttl    time.Duration

	mu         sync.Mutex
	generation uint64
}

var _ Service = (*CachedService)(nil)

// NewCachedService caches up to limit entries of each lookup kind for ttl.
func NewCachedService(inner Service, limit int64, ttl time.Duration) (*CachedService, error) {
	totals, err := theine.NewBuilder[string, GetRatingResponse](limit).Build()
	if err != nil {
		return nil, fmt.Errorf("initialize ratings cache: %w", err)
	}
	users, err := theine.NewBuilder[string, GetUserRatingResponse](limit).Build()
	if err != nil {
		totals.Close()
		return nil, fmt.Errorf("initialize user ratings cache: %w", err)
	}

	return &CachedService{
		Service: inner,
		totals:  totals,
		users:   users,
		ttl:     ttl,
	}, nil
}

func (s *CachedService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// fill runs set unless a write was invalidated since generation was read.
func (s *CachedService) fill(generation uint64, set func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == generation {
		set()
	}
}

func (s *CachedService) invalidate(videoID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.totals.Delete(videoID)
	s.users.Delete(userCacheKey(videoID, userID))
}

func userCacheKey(videoID, userID string) string {
	return videoID + "/" + userID
}

func (s *CachedService) GetRating(ctx context.Context, req *GetRatingRequest) (*GetRatingResponse, error) {
	ratingsCacheTotalCounter.Inc()
	if cached, ok := s.totals.Get(req.VideoID.Value); ok {
		ratingsCacheHitCounter.Inc()
		return &cached, nil
	}

	generation := s.currentGeneration()
	res, err := s.Service.GetRating(ctx, req)
	if err != nil {
		return nil, err
	}
	s.fill(generation, func() {
		s.totals.SetWithTTL(req.VideoID.Value, *res, 1, s.ttl)
	})
	return res, nil
}

func (s *CachedService) GetUserRating(ctx context.Context, req *GetUserRatingRequest) (*GetUserRatingResponse, error) {
	key := userCacheKey(req.VideoID.Value, req.UserID.Value)

	ratingsCacheTotalCounter.Inc()
	if cached, ok := s.users.Get(key); ok {
		ratingsCacheHitCounter.Inc()
		return &cached, nil
	}

	generation := s.currentGeneration()
	res, err := s.Service.GetUserRating(ctx, req)
	if err != nil {
		return nil, err
	}
	s.fill(generation, func() {
		s.users.SetWithTTL(key, *res, 1, s.ttl)
	})
	return res, nil
}

func (s *CachedService) RateVideo(ctx context.Context, req *RateVideoRequest) (*RateVideoResponse, error) {
	res, err := s.Service.RateVideo(ctx, req)
	s.invalidate(req.VideoID.Value, req.UserID.Value)
	return res, err
}

func (s *CachedService) Close() {
	s.totals.Close()
	s.users.Close()
	s.Service.Close()
}
