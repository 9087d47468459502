// Package remote implements the ratings service as a client of a ratings HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/HadesArchitect/killrvideo-web/pkg/services/ratings"
)

// StatusError is returned when the ratings API answers with a non 2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client talks to a ratings API rooted at baseURL:
//
//	GET  {baseURL}/ratings/{videoId}
//	GET  {baseURL}/ratings/{videoId}/users/{userId}
//	POST {baseURL}/ratings/{videoId}/users/{userId}  {"rating": n}
type Client struct {
	baseURL *url.URL
	// reads retries on connection errors and 5xx responses, writes never retries.
	reads  *http.Client
	writes *http.Client
}

var _ ratings.Service = (*Client)(nil)

type Option func(*retryablehttp.Client)

// WithMaxRetries sets how many times an idempotent request is retried on connection errors
// and 5xx responses.
func WithMaxRetries(n int) Option {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = minWait
		c.RetryWaitMax = maxWait
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *retryablehttp.Client) {
		c.HTTPClient.Transport = rt
	}
}

// New returns a Client for the ratings API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ratings api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid ratings api url '%s': scheme must be http or https", baseURL)
	}

	newClient := func() *retryablehttp.Client {
		client := retryablehttp.NewClient()
		client.Logger = nil
		client.RetryMax = 3
		client.ErrorHandler = retryablehttp.PassthroughErrorHandler
		for _, opt := range opts {
			opt(client)
		}
		client.HTTPClient.Transport = otelhttp.NewTransport(client.HTTPClient.Transport)
		return client
	}

	writes := newClient()
	writes.RetryMax = 0

	return &Client{
		baseURL: u,
		reads:   newClient().StandardClient(),
		writes:  writes.StandardClient(),
	}, nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return c.baseURL.String() + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.reads
	if method != http.MethodGet {
		client = c.writes
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, target, err)
	}
	return nil
}

// GetRating see [ratings.Service].GetRating.
func (c *Client) GetRating(ctx context.Context, req *ratings.GetRatingRequest) (*ratings.GetRatingResponse, error) {
	res := &ratings.GetRatingResponse{}
	if err := c.do(ctx, http.MethodGet, c.endpoint("ratings", req.VideoID.Value), nil, res); err != nil {
		return nil, err
	}
	res.VideoID = req.VideoID
	return res, nil
}

// GetUserRating see [ratings.Service].GetUserRating.
func (c *Client) GetUserRating(ctx context.Context, req *ratings.GetUserRatingRequest) (*ratings.GetUserRatingResponse, error) {
	res := &ratings.GetUserRatingResponse{}
	target := c.endpoint("ratings", req.VideoID.Value, "users", req.UserID.Value)
	if err := c.do(ctx, http.MethodGet, target, nil, res); err != nil {
		return nil, err
	}
	res.VideoID, res.UserID = req.VideoID, req.UserID
	return res, nil
}

type rateVideoBody struct {
	Rating int32 `json:"rating"`
}

// RateVideo see [ratings.Service].RateVideo.
func (c *Client) RateVideo(ctx context.Context, req *ratings.RateVideoRequest) (*ratings.RateVideoResponse, error) {
	if err := ratings.ValidateRating(req.Rating); err != nil {
		return nil, err
	}

	target := c.endpoint("ratings", req.VideoID.Value, "users", req.UserID.Value)
	if err := c.do(ctx, http.MethodPost, target, &rateVideoBody{Rating: req.Rating}, nil); err != nil {
		return nil, err
	}
	return &ratings.RateVideoResponse{}, nil
}

// Close see [ratings.Service].Close.
func (c *Client) Close() {
	c.reads.CloseIdleConnections()
	c.writes.CloseIdleConnections()
}
