package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Stratos888/Bocholt-Erleben/internal/discovery"
	"github.com/Stratos888/Bocholt-Erleben/internal/middleware"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// DiscoveryRunner はディスカバリーを1回実行する。
type DiscoveryRunner interface {
	Run(ctx context.Context, opts discovery.RunOptions) (*discovery.Summary, error)
}

// RunManager はバックグラウンドで起動したディスカバリー実行を管理する。
// 同時に実行できるのは1件まで。
type RunManager struct {
	runner  DiscoveryRunner
	timeout time.Duration
	logger  *slog.Logger
	newID   func() string

	mu      sync.Mutex
	active  string
	last    *discovery.Summary
	lastErr string
	wg      sync.WaitGroup
}

// NewRunManager はRunManagerを生成する。timeoutは1回の実行の上限時間。
func NewRunManager(runner DiscoveryRunner, timeout time.Duration, logger *slog.Logger) *RunManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunManager{
		runner:  runner,
		timeout: timeout,
		logger:  logger,
		newID:   func() string { return uuid.New().String() },
	}
}

// Start は実行中の処理がなければ新しい実行をバックグラウンドで開始し、そのrun idとtrueを返す。
// 実行中の処理がある場合はそのrun idとfalseを返す。
// 実行はparentのキャンセルを引き継がず、timeoutで打ち切られる。
func (m *RunManager) Start(parent context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != "" {
		return m.active, false
	}

	runID := m.newID()
	m.active = runID
	m.wg.Add(1)

	ctx := context.WithoutCancel(parent)
	var cancel context.CancelFunc
	if m.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	go func() {
		defer m.wg.Done()
		defer cancel()

		summary, err := m.runner.Run(ctx, discovery.RunOptions{RunID: runID})

		m.mu.Lock()
		defer m.mu.Unlock()
		m.active = ""
		if err != nil {
			m.lastErr = err.Error()
			m.logger.Error("バックグラウンドのディスカバリー実行に失敗しました",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
			return
		}
		m.last = summary
		m.lastErr = ""
	}()

	return runID, true
}

// Active は実行中のrun idを返す。実行中でなければ空文字列。
func (m *RunManager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Last は最後に完了した実行のサマリーと、直近の失敗メッセージを返す。
func (m *RunManager) Last() (*discovery.Summary, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.lastErr
}

// Wait は実行中の処理の終了を待つ。
func (m *RunManager) Wait() {
	m.wg.Wait()
}

// DiscoveryHandler はディスカバリー実行のHTTPハンドラー。
type DiscoveryHandler struct {
	runs *RunManager
}

// NewDiscoveryHandler はDiscoveryHandlerを生成する。
func NewDiscoveryHandler(runs *RunManager) *DiscoveryHandler {
	return &DiscoveryHandler{runs: runs}
}

// runStartedResponse は実行開始時のレスポンス。
type runStartedResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// runStatusResponse は実行状況のレスポンス。
type runStatusResponse struct {
	ActiveRunID string             `json:"active_run_id,omitempty"`
	Last        *discovery.Summary `json:"last,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
}

// TriggerRun はディスカバリー実行をバックグラウンドで開始する。
// POST /api/discovery/runs
func (h *DiscoveryHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	runID, started := h.runs.Start(r.Context())
	middleware.AnnotateRunID(r.Context(), runID)
	if !started {
		apiErr := model.NewRunInProgressError(runID)
		middleware.WriteAPIError(w, r, apiErr)
		return
	}
	writeJSON(w, http.StatusAccepted, runStartedResponse{RunID: runID, Status: "started"})
}

// RunStatus は実行中のrun idと最後の実行結果を返す。
// GET /api/discovery/runs/latest
func (h *DiscoveryHandler) RunStatus(w http.ResponseWriter, r *http.Request) {
	last, lastErr := h.runs.Last()
	writeJSON(w, http.StatusOK, runStatusResponse{
		ActiveRunID: h.runs.Active(),
		Last:        last,
		LastError:   lastErr,
	})
}
