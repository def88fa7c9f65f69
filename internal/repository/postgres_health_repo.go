package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

var healthColumns = []string{
	"run_id",
	"source_name",
	"type",
	"url",
	"status",
	"http_status",
	"error",
	"last_checked_at",
	"candidates_count",
	"new_rows_written",
}

// PostgresHealthRepo はPostgreSQLを使用したSource Healthリポジトリ。
// 実行ごとに行を追加し、履歴を残す。
type PostgresHealthRepo struct {
	db *sql.DB
}

// NewPostgresHealthRepo はPostgresHealthRepoを生成する。
func NewPostgresHealthRepo(db *sql.DB) *PostgresHealthRepo {
	return &PostgresHealthRepo{db: db}
}

func insertHealthQuery(rows []model.SourceHealth) sq.InsertBuilder {
	b := psql.Insert("source_health").Columns(healthColumns...)
	for _, h := range rows {
		b = b.Values(
			h.RunID, h.SourceName, string(h.Type), h.URL, string(h.Status),
			nullInt(h.HTTPStatus), h.Error, h.LastCheckedAt, h.CandidatesCount, h.NewRowsWritten,
		)
	}
	return b
}

// WriteHealth は1回の実行分のSource Health行を追加する。
func (r *PostgresHealthRepo) WriteHealth(ctx context.Context, rows []model.SourceHealth) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, span := range batches(len(rows), insertBatchSize) {
		query, args, err := insertHealthQuery(rows[span[0]:span[1]]).ToSql()
		if err != nil {
			return fmt.Errorf("Source Health追加クエリの組み立てに失敗しました: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("Source Healthの書き込みに失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

func latestHealthQuery() sq.SelectBuilder {
	return psql.Select(healthColumns...).
		Options("DISTINCT ON (source_name)").
		From("source_health").
		OrderBy("source_name", "last_checked_at DESC", "id DESC")
}

// LatestPerSource はソースごとに最新のSource Health行を返す。
func (r *PostgresHealthRepo) LatestPerSource(ctx context.Context) ([]model.SourceHealth, error) {
	query, args, err := latestHealthQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("Source Health取得クエリの組み立てに失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Source Healthの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var out []model.SourceHealth
	for rows.Next() {
		var h model.SourceHealth
		var typ, status string
		var httpStatus sql.NullInt64
		if err := rows.Scan(
			&h.RunID, &h.SourceName, &typ, &h.URL, &status,
			&httpStatus, &h.Error, &h.LastCheckedAt, &h.CandidatesCount, &h.NewRowsWritten,
		); err != nil {
			return nil, fmt.Errorf("Source Healthのスキャンに失敗しました: %w", err)
		}
		h.Type = model.SourceType(typ)
		h.Status = model.HealthStatus(status)
		if httpStatus.Valid {
			h.HTTPStatus = int(httpStatus.Int64)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Source Healthの走査に失敗しました: %w", err)
	}
	return out, nil
}

// compile-time interface check
var (
	_ HealthSink   = (*PostgresHealthRepo)(nil)
	_ HealthReader = (*PostgresHealthRepo)(nil)
)
