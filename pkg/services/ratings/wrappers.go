package ratings

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type timeoutService struct {
	Service
	timeout time.Duration
}

// WithTimeout bounds every call to inner by timeout. A timeout <= 0 returns inner as is.
func WithTimeout(inner Service, timeout time.Duration) Service {
	if timeout <= 0 {
		return inner
	}
	return &timeoutService{Service: inner, timeout: timeout}
}

func (s *timeoutService) GetRating(ctx context.Context, req *GetRatingRequest) (*GetRatingResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.Service.GetRating(ctx, req)
}

func (s *timeoutService) GetUserRating(ctx context.Context, req *GetUserRatingRequest) (*GetUserRatingResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.Service.GetUserRating(ctx, req)
}

func (s *timeoutService) RateVideo(ctx context.Context, req *RateVideoRequest) (*RateVideoResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.Service.RateVideo(ctx, req)
}

type retryService struct {
	Service
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// WithRetry retries failed lookups up to maxRetries times with exponential backoff.
// RateVideo is never retried since it is not idempotent for the rating totals.
func WithRetry(inner Service, maxRetries uint64) Service {
	if maxRetries == 0 {
		return inner
	}
	return &retryService{
		Service:    inner,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = 50 * time.Millisecond
			policy.MaxInterval = time.Second
			return policy
		},
	}
}

func (s *retryService) policy(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.maxRetries), ctx)
}

// permanent stops retrying on errors another attempt cannot fix. A deadline only counts
// when it is the caller's own; an attempt that timed out on its own may be retried.
func permanent(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRating), errors.Is(err, context.Canceled):
		return backoff.Permanent(err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		return backoff.Permanent(err)
	}
	return err
}

func (s *retryService) GetRating(ctx context.Context, req *GetRatingRequest) (*GetRatingResponse, error) {
	var res *GetRatingResponse
	err := backoff.Retry(func() error {
		var err error
		res, err = s.Service.GetRating(ctx, req)
		return permanent(ctx, err)
	}, s.policy(ctx))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *retryService) GetUserRating(ctx context.Context, req *GetUserRatingRequest) (*GetUserRatingResponse, error) {
	var res *GetUserRatingResponse
	err := backoff.Retry(func() error {
		var err error
		res, err = s.Service.GetUserRating(ctx, req)
		return permanent(ctx, err)
	}, s.policy(ctx))
	if err != nil {
		return nil, err
	}
	return res, nil
}
