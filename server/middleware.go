package server

import (
	"log/slog"
	"net/http"
	"time"

	"agrofin/finsync/appcontext"

	"github.com/go-chi/chi/v5/middleware"
)

// requestLogger attaches a request-scoped logger to the context and logs each completed request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, logger := appcontext.With(req.Context(), slog.String("request_id", middleware.GetReqID(req.Context())))
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, req.WithContext(ctx))

		logger.InfoContext(ctx, "HTTP request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
