package recovery

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
	"github.com/HadesArchitect/killrvideo-web/pkg/logger"
)

// InternalServerErrorMsg is the message returned to clients when a handler panics.
const InternalServerErrorMsg = "internal server error"

// HTTPPanicRecoveryHandler recover from panic for http services.
func HTTPPanicRecoveryHandler(next http.Handler, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				l.ErrorWithContext(r.Context(), "HTTPPanicRecoveryHandler has recovered a panic",
					logger.Error(fmt.Errorf("%v", err)),
					logger.ByteString("stacktrace", debug.Stack()),
				)
				w.Header().Set("content-type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)

				responseBody, err := json.Marshal(&jsongraph.ErrorAtom{
					Code:    jsongraph.CodeInternalError,
					Message: InternalServerErrorMsg,
				})
				if err != nil {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}

				_, _ = w.Write(responseBody)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
