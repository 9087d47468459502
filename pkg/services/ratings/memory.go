package ratings

import (
	"context"
	"sync"
)

type videoTotals struct {
	count int64
	total int64
}

type userRatingKey struct {
	videoID string
	userID  string
}

// MemoryService keeps ratings in process memory. It is meant for development and tests.
type MemoryService struct {
	mu      sync.RWMutex
	totals  map[string]videoTotals
	byUsers map[userRatingKey]int32
}

var _ Service = (*MemoryService)(nil)

func NewMemoryService() *MemoryService {
	return &MemoryService{
		totals:  make(map[string]videoTotals),
		byUsers: make(map[userRatingKey]int32),
	}
}

func (s *MemoryService) GetRating(ctx context.Context, req *GetRatingRequest) (*GetRatingResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.totals[req.VideoID.Value]
	return &GetRatingResponse{
		VideoID:      req.VideoID,
		RatingsCount: t.count,
		RatingsTotal: t.total,
	}, nil
}

func (s *MemoryService) GetUserRating(ctx context.Context, req *GetUserRatingRequest) (*GetUserRatingResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return &GetUserRatingResponse{
		VideoID: req.VideoID,
		UserID:  req.UserID,
		Rating:  s.byUsers[userRatingKey{videoID: req.VideoID.Value, userID: req.UserID.Value}],
	}, nil
}

func (s *MemoryService) RateVideo(ctx context.Context, req *RateVideoRequest) (*RateVideoResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateRating(req.Rating); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := userRatingKey{videoID: req.VideoID.Value, userID: req.UserID.Value}
	t := s.totals[req.VideoID.Value]
	if previous, ok := s.byUsers[key]; ok {
		t.total += int64(req.Rating - previous)
	} else {
		t.count++
		t.total += int64(req.Rating)
	}
	s.totals[req.VideoID.Value] = t
	s.byUsers[key] = req.Rating

	return &RateVideoResponse{}, nil
}

func (s *MemoryService) Close() {}
