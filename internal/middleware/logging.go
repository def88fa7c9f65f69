package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// healthPath はDockerのヘルスチェックが定期的に叩くパス。
const healthPath = "/health"

// responseRecorder はステータスコードと書き込んだバイト数を記録する。
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

func (rr *responseRecorder) statusCode() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// requestAnnotations はハンドラーがアクセスログに追加する値。
type requestAnnotations struct {
	runID string
}

type annotationsKey struct{}

// AnnotateRunID はこのリクエストが関係するディスカバリー実行のIDをアクセスログに残す。
// ロギングミドルウェアの外で呼ばれた場合は何もしない。
func AnnotateRunID(ctx context.Context, runID string) {
	if a, ok := ctx.Value(annotationsKey{}).(*requestAnnotations); ok {
		a.runID = runID
	}
}

// NewLoggingMiddleware はアクセスログをJSONで出力するミドルウェアを返す。
// 5xxはERROR、4xxはWARNで記録する。成功した /health はヘルスチェックのたびに出るためDEBUGに落とす。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			notes := &requestAnnotations{}
			rec := &responseRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), annotationsKey{}, notes)))

			status := rec.statusCode()
			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("client_ip", ClientIP(r)),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					args = append(args, slog.String("route", pattern))
				}
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				args = append(args, slog.String("request_id", reqID))
			}
			if notes.runID != "" {
				args = append(args, slog.String("run_id", notes.runID))
			}

			logger.Log(r.Context(), accessLogLevel(r.URL.Path, status), "http_request", args...)
		})
	}
}

func accessLogLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case path == healthPath:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
