// Package routes declares the graph routes served by the web tier.
package routes

import (
	"context"

	"github.com/HadesArchitect/killrvideo-web/pkg/ids"
	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
	"github.com/HadesArchitect/killrvideo-web/pkg/pipeline"
	"github.com/HadesArchitect/killrvideo-web/pkg/router"
	"github.com/HadesArchitect/killrvideo-web/pkg/services/ratings"
)

const (
	VideoRatingRoute = `videosById[{keys:videoIds}].rating["count","total"]`
	UserRatingRoute  = `usersById[{keys:userIds}].ratings[{keys:videoIds}]["rating"]`
	RateVideoRoute   = `videosById[{keys:videoIds}].rating.rate`
)

type options struct {
	maxConcurrentRequests int
	logger                logger.Logger
}

type Option func(o *options)

// WithMaxConcurrentRequests bounds how many backend requests one route issues at once.
func WithMaxConcurrentRequests(n int) Option {
	return func(o *options) {
		o.maxConcurrentRequests = n
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func (o *options) executorOptions(name string) []pipeline.ExecutorOption {
	return []pipeline.ExecutorOption{
		pipeline.WithName(name),
		pipeline.WithMaxConcurrency(o.maxConcurrentRequests),
		pipeline.WithLogger(o.logger),
	}
}

var ratingsPicker = pipeline.ResponsePicker(map[string]func(*ratings.GetRatingResponse) any{
	"count": func(r *ratings.GetRatingResponse) any { return r.RatingsCount },
	"total": func(r *ratings.GetRatingResponse) any { return r.RatingsTotal },
})

// RatingsRoutes returns the routes served by the ratings service. Rating a video is
// declared but has no call handler yet, so calls on it report not_implemented.
func RatingsRoutes(svc ratings.Service, opts ...Option) []router.Route {
	o := &options{logger: logger.NewNoopLogger()}
	for _, opt := range opts {
		opt(o)
	}

	videoRating := pipeline.CreateGetPipeline(
		pipeline.CreateRequestsFromPaths(2, func(path jsongraph.Path) (*ratings.GetRatingRequest, error) {
			videoID, err := ids.KeyToUUID(path[1])
			if err != nil {
				return nil, err
			}
			return &ratings.GetRatingRequest{VideoID: videoID}, nil
		}),
		pipeline.DoRequests(svc,
			func(ctx context.Context, req *ratings.GetRatingRequest, client ratings.Service) (*ratings.GetRatingResponse, error) {
				return client.GetRating(ctx, req)
			},
			o.executorOptions("ratings.GetRating")...),
		pipeline.MapProps(2, ratingsPicker),
	)

	userRating := pipeline.CreateGetPipeline(
		pipeline.CreateRequestsFromPaths(4, func(path jsongraph.Path) (*ratings.GetUserRatingRequest, error) {
			userID, err := ids.KeyToUUID(path[1])
			if err != nil {
				return nil, err
			}
			videoID, err := ids.KeyToUUID(path[3])
			if err != nil {
				return nil, err
			}
			return &ratings.GetUserRatingRequest{VideoID: videoID, UserID: userID}, nil
		}),
		pipeline.DoRequests(svc,
			func(ctx context.Context, req *ratings.GetUserRatingRequest, client ratings.Service) (int32, error) {
				res, err := client.GetUserRating(ctx, req)
				if err != nil {
					return 0, err
				}
				return res.Rating, nil
			},
			o.executorOptions("ratings.GetUserRating")...),
		pipeline.MapProps(4, pipeline.DefaultResponsePicker[int32]()),
	)

	return []router.Route{
		{Pattern: VideoRatingRoute, Get: videoRating},
		{Pattern: UserRatingRoute, Get: userRating},
		// TODO: wire ratings.Service.RateVideo once clients call rating.rate with a
		// user id and a rating as arguments.
		{Pattern: RateVideoRoute},
	}
}
