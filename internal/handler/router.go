// Package handler はserveモードのHTTP APIを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Stratos888/Bocholt-Erleben/internal/metrics"
	"github.com/Stratos888/Bocholt-Erleben/internal/middleware"
	"github.com/Stratos888/Bocholt-Erleben/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	// 監視
	Pinger   Pinger
	Gatherer prometheus.Gatherer

	// Inbox
	Inbox    repository.QueueReader
	Archiver InboxArchiver

	// Source Health
	Health repository.HealthReader

	// ディスカバリー
	Runs *RunManager
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	healthHandler := NewHealthHandler(deps.Pinger, deps.Health)
	inboxHandler := NewInboxHandler(deps.Inbox, deps.Archiver)
	discoveryHandler := NewDiscoveryHandler(deps.Runs)

	// --- 監視用のルート ---
	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/inbox", inboxHandler.ListInbox)
		r.Post("/inbox/archive", inboxHandler.ArchiveInbox)

		r.Get("/sources/health", healthHandler.SourceHealth)

		r.Route("/discovery/runs", func(r chi.Router) {
			// POST /api/discovery/runs - 起動専用のレート制限を追加
			r.With(deps.RateLimiter.RunTriggerMiddleware()).Post("/", discoveryHandler.TriggerRun)
			r.Get("/latest", discoveryHandler.RunStatus)
		})
	})

	return r
}
