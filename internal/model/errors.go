// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnsupportedSourceType は未対応のソース種別を表す。
var ErrUnsupportedSourceType = errors.New("unsupported source type")

// FetchError はソース取得の失敗を表す。
// StatusCodeはHTTPレスポンスを受け取れなかった場合は0になる。
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP Error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s failed", e.URL)
}

// Unwrap は元のエラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError はソース内容の解析失敗を表す。
type ParseError struct {
	SourceType SourceType
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.SourceType, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError はParseErrorを生成する。errがnilの場合はnilを返す。
func NewParseError(st SourceType, err error) error {
	if err == nil {
		return nil
	}
	return &ParseError{SourceType: st, Err: err}
}

// APIError は統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, discovery, system
	Action   string // 利用者向け対処方法
	Status   int    // HTTPステータス
	RunID    string // 関連するディスカバリー実行のID（あれば）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidStatus = "INVALID_STATUS"
	ErrCodeRunInProgress = "RUN_IN_PROGRESS"
	ErrCodeRateLimited   = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeArchiveFailed = "ARCHIVE_FAILED"
	ErrCodeStoreFailed   = "STORE_FAILED"
)

// NewInvalidStatusError は無効なステータス指定のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "status には review、übernommen、verworfen などInboxで使われている値を指定してください。",
		Status:   http.StatusBadRequest,
	}
}

// NewRunInProgressError は実行中のディスカバリーがある場合のエラーを生成する。
func NewRunInProgressError(runID string) *APIError {
	return &APIError{
		Code:     ErrCodeRunInProgress,
		Message:  fmt.Sprintf("ディスカバリーは既に実行中です: %s", runID),
		Category: "discovery",
		Action:   "実行中の処理が終わってから再度お試しください。",
		Status:   http.StatusConflict,
		RunID:    runID,
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Status:   http.StatusTooManyRequests,
	}
}

// NewStoreFailedError はストア読み書き失敗のエラーを生成する。
func NewStoreFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreFailed,
		Message:  "データの読み込みに失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Status:   http.StatusInternalServerError,
	}
}

// NewArchiveFailedError はアーカイブ失敗のエラーを生成する。
func NewArchiveFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeArchiveFailed,
		Message:  "Inboxのアーカイブに失敗しました。",
		Category: "system",
		Action:   "ログを確認し、再度お試しください。",
		Status:   http.StatusInternalServerError,
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Status:   http.StatusInternalServerError,
	}
}
