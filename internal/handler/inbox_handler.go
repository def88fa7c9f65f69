package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Stratos888/Bocholt-Erleben/internal/middleware"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/repository"
)

// maxStatusLength はstatusクエリパラメータの最大文字数。
const maxStatusLength = 32

// InboxArchiver は終端ステータスのInbox行をアーカイブする。
type InboxArchiver interface {
	Run(ctx context.Context) (int64, error)
}

// InboxHandler はInboxのHTTPハンドラー。
type InboxHandler struct {
	reader   repository.QueueReader
	archiver InboxArchiver
}

// NewInboxHandler はInboxHandlerを生成する。
func NewInboxHandler(reader repository.QueueReader, archiver InboxArchiver) *InboxHandler {
	return &InboxHandler{reader: reader, archiver: archiver}
}

// inboxResponse はInbox一覧のレスポンス。
type inboxResponse struct {
	Items []model.QueueItem `json:"items"`
	Count int               `json:"count"`
}

// archiveResponse はアーカイブ結果のレスポンス。
type archiveResponse struct {
	Archived int64 `json:"archived"`
}

// validStatus はstatusパラメータが文字、数字、'_'、'-' だけからなるかを判定する。
func validStatus(s string) bool {
	if utf8.RuneCountInString(s) > maxStatusLength {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

// ListInbox はInbox行を返す。statusを指定すると大文字小文字を区別せずに絞り込む。
// GET /api/inbox?status=review
func (h *InboxHandler) ListInbox(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if !validStatus(status) {
		apiErr := model.NewInvalidStatusError(status)
		middleware.WriteAPIError(w, r, apiErr)
		return
	}

	items, err := h.reader.ListByStatus(r.Context(), status)
	if err != nil {
		slog.Error("Inboxの取得に失敗しました",
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
		apiErr := model.NewStoreFailedError()
		middleware.WriteAPIError(w, r, apiErr)
		return
	}
	if items == nil {
		items = []model.QueueItem{}
	}

	writeJSON(w, http.StatusOK, inboxResponse{Items: items, Count: len(items)})
}

// ArchiveInbox は終端ステータスのInbox行をアーカイブする。
// POST /api/inbox/archive
func (h *InboxHandler) ArchiveInbox(w http.ResponseWriter, r *http.Request) {
	n, err := h.archiver.Run(r.Context())
	if err != nil {
		apiErr := model.NewArchiveFailedError()
		middleware.WriteAPIError(w, r, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, archiveResponse{Archived: n})
}
