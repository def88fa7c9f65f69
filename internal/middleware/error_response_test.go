package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-cmp/cmp"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
	}
	return body
}

func TestWriteAPIError_StatusFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    *model.APIError
		status int
	}{
		{"無効なステータス", model.NewInvalidStatusError("offen"), http.StatusBadRequest},
		{"実行中", model.NewRunInProgressError("run-7"), http.StatusConflict},
		{"レート制限", model.NewRateLimitedError(), http.StatusTooManyRequests},
		{"ストア失敗", model.NewStoreFailedError(), http.StatusInternalServerError},
		{"アーカイブ失敗", model.NewArchiveFailedError(), http.StatusInternalServerError},
		{"ステータス未設定", &model.APIError{Code: "X", Message: "x"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteAPIError(w, httptest.NewRequest(http.MethodGet, "/api/inbox", nil), tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			if body := decodeErrorBody(t, w); body.Code != tt.err.Code {
				t.Errorf("code = %q, want %q", body.Code, tt.err.Code)
			}
		})
	}
}

func TestWriteAPIError_RunInProgressCarriesRunID(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAPIError(w, httptest.NewRequest(http.MethodPost, "/api/discovery/runs", nil), model.NewRunInProgressError("run-7"))

	want := ErrorResponseBody{
		Code:     model.ErrCodeRunInProgress,
		Message:  "ディスカバリーは既に実行中です: run-7",
		Category: "discovery",
		Action:   "実行中の処理が終わってから再度お試しください。",
		RunID:    "run-7",
	}
	if diff := cmp.Diff(want, decodeErrorBody(t, w)); diff != "" {
		t.Errorf("ボディが一致しません (-want +got):\n%s", diff)
	}
}

func TestWriteAPIError_IncludesRequestID(t *testing.T) {
	h := chimw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteAPIError(w, r, model.NewStoreFailedError())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sources/health", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	body := decodeErrorBody(t, w)
	if body.RequestID != "req-42" {
		t.Errorf("request_id = %q, want %q", body.RequestID, "req-42")
	}
	if body.RunID != "" {
		t.Errorf("run_id = %q, want empty", body.RunID)
	}
}

func TestWriteAPIError_OmitsEmptyIDs(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAPIError(w, nil, model.NewArchiveFailedError())

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("%s がありません", field)
		}
	}
	for _, field := range []string{"run_id", "request_id"} {
		if _, ok := raw[field]; ok {
			t.Errorf("%s は空のとき省略されるべき", field)
		}
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w, httptest.NewRequest(http.MethodGet, "/api/inbox", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeErrorBody(t, w)
	if body.Code != model.ErrCodeInternal || body.Category != "system" || body.Action == "" {
		t.Errorf("unexpected body: %+v", body)
	}
}
