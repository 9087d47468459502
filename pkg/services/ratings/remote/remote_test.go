package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HadesArchitect/killrvideo-web/pkg/ids"
	"github.com/HadesArchitect/killrvideo-web/pkg/services/ratings"
)

const (
	videoID = "8a6a7a21-5b2c-4b4c-9e3f-1d2a4c6e8f00"
	userID  = "3f1c2b4a-6d5e-4f70-8a9b-0c1d2e3f4a5b"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(srv.URL+"/", WithMaxRetries(2), WithRetryWait(time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestNew(t *testing.T) {
	_, err := New("ftp://ratings")
	require.ErrorContains(t, err, "scheme must be http or https")

	_, err = New("http://ratings:8080/api")
	require.NoError(t, err)
}

func TestGetRating(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/ratings/"+videoID, r.URL.Path)
		_, _ = w.Write([]byte(`{"ratingsCount": 3, "ratingsTotal": 11}`))
	}))

	res, err := client.GetRating(context.Background(), &ratings.GetRatingRequest{VideoID: ids.UUID{Value: videoID}})
	require.NoError(t, err)
	require.Equal(t, &ratings.GetRatingResponse{VideoID: ids.UUID{Value: videoID}, RatingsCount: 3, RatingsTotal: 11}, res)
}

func TestGetUserRating(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ratings/"+videoID+"/users/"+userID, r.URL.Path)
		_, _ = w.Write([]byte(`{"rating": 4}`))
	}))

	res, err := client.GetUserRating(context.Background(), &ratings.GetUserRatingRequest{
		VideoID: ids.UUID{Value: videoID},
		UserID:  ids.UUID{Value: userID},
	})
	require.NoError(t, err)
	require.Equal(t, int32(4), res.Rating)
	require.Equal(t, userID, res.UserID.Value)
}

func TestRateVideo(t *testing.T) {
	var body rateVideoBody
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))

	req := &ratings.RateVideoRequest{VideoID: ids.UUID{Value: videoID}, UserID: ids.UUID{Value: userID}, Rating: 5}
	_, err := client.RateVideo(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int32(5), body.Rating)

	req.Rating = 0
	_, err = client.RateVideo(context.Background(), req)
	require.ErrorIs(t, err, ratings.ErrInvalidRating)
}

func TestRetries(t *testing.T) {
	t.Run("reads_are_retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"ratingsCount": 1, "ratingsTotal": 5}`))
		}))

		res, err := client.GetRating(context.Background(), &ratings.GetRatingRequest{VideoID: ids.UUID{Value: videoID}})
		require.NoError(t, err)
		require.Equal(t, int64(1), res.RatingsCount)
		require.Equal(t, int32(2), calls.Load())
	})

	t.Run("writes_are_not_retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))

		req := &ratings.RateVideoRequest{VideoID: ids.UUID{Value: videoID}, UserID: ids.UUID{Value: userID}, Rating: 3}
		_, err := client.RateVideo(context.Background(), req)

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		require.Equal(t, "unavailable", statusErr.Body)
		require.Equal(t, int32(1), calls.Load())
	})
}

func TestStatusError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := client.GetRating(context.Background(), &ratings.GetRatingRequest{VideoID: ids.UUID{Value: videoID}})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Contains(t, err.Error(), "unexpected status 404")
}
