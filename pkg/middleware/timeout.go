package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
)

// TimeoutHandler sets the timeout in each request
type TimeoutHandler struct {
	timeout time.Duration
	logger  logger.Logger
}

// NewTimeoutHandler returns new TimeoutHandler that timeouts request if it
// exceeds the timeout value
func NewTimeoutHandler(timeout time.Duration, logger logger.Logger) *TimeoutHandler {
	return &TimeoutHandler{
		timeout: timeout,
		logger:  logger,
	}
}

// Handler bounds the context of every request passed to next. Backend calls still in
// flight when the deadline passes are cancelled and the router reports the request as
// failed instead of hanging.
func (h *TimeoutHandler) Handler(next http.Handler) http.Handler {
	if h.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		next.ServeHTTP(w, r.WithContext(ctx))

		if ctx.Err() == context.DeadlineExceeded {
			h.logger.WarnWithContext(ctx, "request exceeded timeout",
				logger.String("path", r.URL.Path),
				logger.Duration("timeout", h.timeout))
		}
	})
}
