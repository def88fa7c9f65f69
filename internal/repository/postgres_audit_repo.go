package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// auditColumns はdiscovery_auditテーブルの列。SQLiteの監査ログも同じ列を使う。
var auditColumns = []string{
	"run_id",
	"run_at",
	"source_name",
	"source_type",
	"source_url",
	"disposition",
	"reason",
	"already_live",
	"already_queued",
	"backfilled",
	"written",
	"match_score",
	"matched_event_id",
	"title",
	"date",
	"end_date",
	"time",
	"location",
	"url",
	"description",
	"notes",
}

// auditValues はauditColumnsの順に監査ログ1件の値を並べる。
func auditValues(e model.AuditEntry) []interface{} {
	c := e.Candidate
	return []interface{}{
		e.RunID, e.RunAt, e.SourceName, string(e.SourceType), e.SourceURL,
		string(e.Disposition), string(e.Reason),
		e.AlreadyLive, e.AlreadyQueued, e.Backfilled, e.Written,
		e.MatchScore, e.MatchedEventID,
		c.Title, c.Date, c.EndDate, c.Time, c.Location, c.URL, c.Description, c.Notes,
	}
}

func insertAuditQuery(b sq.StatementBuilderType, entries []model.AuditEntry) sq.InsertBuilder {
	ib := b.Insert("discovery_audit").Columns(auditColumns...)
	for _, e := range entries {
		ib = ib.Values(auditValues(e)...)
	}
	return ib
}

// writeAudit は監査ログを1トランザクションでまとめて追加する。
func writeAudit(ctx context.Context, db *sql.DB, b sq.StatementBuilderType, batchSize int, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, span := range batches(len(entries), batchSize) {
		query, args, err := insertAuditQuery(b, entries[span[0]:span[1]]).ToSql()
		if err != nil {
			return fmt.Errorf("監査ログ追加クエリの組み立てに失敗しました: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("監査ログの書き込みに失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// PostgresAuditRepo はPostgreSQLに監査ログを書き込む。
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo はPostgresAuditRepoを生成する。
func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// WriteAudit は監査ログを追加する。
func (r *PostgresAuditRepo) WriteAudit(ctx context.Context, entries []model.AuditEntry) error {
	return writeAudit(ctx, r.db, psql, insertBatchSize, entries)
}

// compile-time interface check
var _ AuditSink = (*PostgresAuditRepo)(nil)
