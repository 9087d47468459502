//go:generate mockgen -source ratings.go -destination ../../../internal/mocks/mock_ratings.go -package mocks ratings

// Package ratings defines the contract of the video ratings backend and the wrappers
// shared by its implementations.
package ratings

import (
	"context"
	"errors"
	"fmt"

	"github.com/HadesArchitect/killrvideo-web/pkg/ids"
)

const (
	MinRating = 1
	MaxRating = 5
)

var ErrInvalidRating = errors.New("invalid rating")

type GetRatingRequest struct {
	VideoID ids.UUID `json:"videoId"`
}

type GetRatingResponse struct {
	VideoID      ids.UUID `json:"videoId"`
	RatingsCount int64    `json:"ratingsCount"`
	RatingsTotal int64    `json:"ratingsTotal"`
}

type GetUserRatingRequest struct {
	VideoID ids.UUID `json:"videoId"`
	UserID  ids.UUID `json:"userId"`
}

// GetUserRatingResponse carries a Rating of 0 when the user never rated the video.
type GetUserRatingResponse struct {
	VideoID ids.UUID `json:"videoId"`
	UserID  ids.UUID `json:"userId"`
	Rating  int32    `json:"rating"`
}

type RateVideoRequest struct {
	VideoID ids.UUID `json:"videoId"`
	UserID  ids.UUID `json:"userId"`
	Rating  int32    `json:"rating"`
}

type RateVideoResponse struct{}

// Service is the ratings backend. Implementations must be safe for concurrent use.
type Service interface {
	// GetRating returns the rating totals of a video. A video nobody rated has zero totals.
	GetRating(ctx context.Context, req *GetRatingRequest) (*GetRatingResponse, error)

	// GetUserRating returns the rating a user gave a video.
	GetUserRating(ctx context.Context, req *GetUserRatingRequest) (*GetUserRatingResponse, error)

	// RateVideo records the rating of a user for a video. Rating the same video again replaces
	// the previous rating of that user.
	RateVideo(ctx context.Context, req *RateVideoRequest) (*RateVideoResponse, error)

	Close()
}

// ValidateRating checks that rating lies within [MinRating, MaxRating].
func ValidateRating(rating int32) error {
	if rating < MinRating || rating > MaxRating {
		return fmt.Errorf("%w: %d is not between %d and %d", ErrInvalidRating, rating, MinRating, MaxRating)
	}
	return nil
}
