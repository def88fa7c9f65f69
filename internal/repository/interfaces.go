// Package repository はディスカバリーが依存する永続化のインターフェースと実装を定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// SourceRegistry は有効なディスカバリー対象ソースを提供する。
type SourceRegistry interface {
	// ListEnabled は有効なソースを登録順に返す。
	ListEnabled(ctx context.Context) ([]model.Source, error)
}

// LiveEventStore は公開済みイベントを提供する。ディスカバリーからは読み取り専用。
type LiveEventStore interface {
	ListLive(ctx context.Context) ([]model.LiveEvent, error)
}

// QueueStore はInboxの読み込みと書き込みを行う。
type QueueStore interface {
	// ListQueue は現在のInbox行を返す。RowIDは更新時の位置指定に使う。
	ListQueue(ctx context.Context) ([]model.QueueItem, error)

	// Commit は新規行の追加と既存行の空フィールド補完を1トランザクションで書き込む。
	Commit(ctx context.Context, newItems []model.QueueItem, updates []model.QueueUpdate) error
}

// QueueArchiver は終端ステータスのInbox行をアーカイブに移す。
type QueueArchiver interface {
	// ArchiveByStatus は指定ステータス（大文字小文字を区別しない）の行を移動し、件数を返す。
	ArchiveByStatus(ctx context.Context, statuses []string) (int64, error)
}

// QueueReader はAPI向けにInbox行を取得する。
type QueueReader interface {
	// ListByStatus はステータスで絞り込んだInbox行を返す。statusが空なら全件。
	ListByStatus(ctx context.Context, status string) ([]model.QueueItem, error)
}

// AuditSink は処理した候補の監査ログを受け取る。書き込み失敗は実行を止めない。
type AuditSink interface {
	WriteAudit(ctx context.Context, entries []model.AuditEntry) error
}

// HealthSink はソースごとの実行結果を受け取る。書き込み失敗は実行を止めない。
type HealthSink interface {
	WriteHealth(ctx context.Context, rows []model.SourceHealth) error
}

// HealthReader はソースごとの最新の実行結果を返す。
type HealthReader interface {
	LatestPerSource(ctx context.Context) ([]model.SourceHealth, error)
}

// ScoutRepository はソーススカウトの候補を保存する。
type ScoutRepository interface {
	// KnownURLs は記録済みの候補URLを正規化キーの集合で返す。
	KnownURLs(ctx context.Context) (map[string]bool, error)

	// InsertCandidates は候補を追加し、追加件数を返す。既存URLは無視する。
	InsertCandidates(ctx context.Context, candidates []model.ScoutCandidate) (int, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
