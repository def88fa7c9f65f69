package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Stratos888/Bocholt-Erleben/internal/middleware"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/repository"
)

// Pinger はデータベースの疎通確認を行う。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェックとSource HealthのHTTPハンドラー。
type HealthHandler struct {
	pinger Pinger
	health repository.HealthReader
}

// NewHealthHandler はHealthHandlerを生成する。pingerがnilの場合は疎通確認を省略する。
func NewHealthHandler(pinger Pinger, health repository.HealthReader) *HealthHandler {
	return &HealthHandler{pinger: pinger, health: health}
}

// sourceHealthResponse はSource Health一覧のレスポンス。
type sourceHealthResponse struct {
	Sources []model.SourceHealth `json:"sources"`
}

// Health はプロセスとデータベースの状態を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.PingContext(r.Context()); err != nil {
			slog.Warn("ヘルスチェックでデータベースに接続できません", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SourceHealth はソースごとの最新の実行結果を返す。
// GET /api/sources/health
func (h *HealthHandler) SourceHealth(w http.ResponseWriter, r *http.Request) {
	rows, err := h.health.LatestPerSource(r.Context())
	if err != nil {
		slog.Error("Source Healthの取得に失敗しました", slog.String("error", err.Error()))
		apiErr := model.NewStoreFailedError()
		middleware.WriteAPIError(w, r, apiErr)
		return
	}
	if rows == nil {
		rows = []model.SourceHealth{}
	}
	writeJSON(w, http.StatusOK, sourceHealthResponse{Sources: rows})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
