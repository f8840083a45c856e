package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// withRequestLogger tags each request with an id and a child logger, then
// writes one access log line.
func withRequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get(requestIDHeader)
			if rid == "" || len(rid) > 64 {
				rid = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, rid)

			l := base.With(logger.RequestID(rid))
			ctx := logger.ToContext(r.Context(), l)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			l.Info("http request",
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.Status(rec.code()),
				logger.Duration(time.Since(start)),
				zap.Int("bytes", rec.bytes),
			)
		})
	}
}
