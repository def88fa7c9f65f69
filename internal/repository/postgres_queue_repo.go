package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// inboxColumns はinboxテーブルの列（row_idを除く）をInboxの固定列順序で並べたもの。
var inboxColumns = func() []string {
	cols := make([]string, len(model.QueueColumns))
	for i, c := range model.QueueColumns {
		cols[i] = dbColumn(c)
	}
	return cols
}()

// dbColumn はInboxの列名をinboxテーブルの列名に変換する。
func dbColumn(col string) string {
	if col == model.ColEndDate {
		return "end_date"
	}
	return col
}

// PostgresQueueRepo はPostgreSQLを使用したInboxリポジトリ。
type PostgresQueueRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresQueueRepo はPostgresQueueRepoを生成する。
func NewPostgresQueueRepo(db *sql.DB) *PostgresQueueRepo {
	return &PostgresQueueRepo{db: db, now: time.Now}
}

func listQueueQuery(status string) sq.SelectBuilder {
	b := psql.Select(append([]string{"row_id"}, inboxColumns...)...).
		From("inbox").
		OrderBy("row_id")
	if status = strings.TrimSpace(status); status != "" {
		b = b.Where(sq.Expr("lower(status) = lower(?)", status))
	}
	return b
}

// ListQueue は現在のInbox行を追加順に返す。
func (r *PostgresQueueRepo) ListQueue(ctx context.Context) ([]model.QueueItem, error) {
	return r.list(ctx, "")
}

// ListByStatus はステータス（大文字小文字を区別しない）で絞り込んだInbox行を返す。
func (r *PostgresQueueRepo) ListByStatus(ctx context.Context, status string) ([]model.QueueItem, error) {
	return r.list(ctx, status)
}

func (r *PostgresQueueRepo) list(ctx context.Context, status string) ([]model.QueueItem, error) {
	query, args, err := listQueueQuery(status).ToSql()
	if err != nil {
		return nil, fmt.Errorf("Inbox取得クエリの組み立てに失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Inboxの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []model.QueueItem
	for rows.Next() {
		var q model.QueueItem
		if err := rows.Scan(
			&q.RowID, &q.Status, &q.IDSuggestion, &q.Title, &q.Date, &q.EndDate, &q.Time,
			&q.City, &q.Location, &q.KategorieSuggestion, &q.URL, &q.Description,
			&q.SourceName, &q.SourceURL, &q.MatchScore, &q.MatchedEventID, &q.Notes, &q.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("Inbox行のスキャンに失敗しました: %w", err)
		}
		items = append(items, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Inboxの走査に失敗しました: %w", err)
	}
	return items, nil
}

func insertQueueQuery(items []model.QueueItem, now time.Time) sq.InsertBuilder {
	b := psql.Insert("inbox").Columns(inboxColumns...)
	for _, q := range items {
		created := q.CreatedAt
		if created.IsZero() {
			created = now
		}
		b = b.Values(
			q.Status, q.IDSuggestion, q.Title, q.Date, q.EndDate, q.Time,
			q.City, q.Location, q.KategorieSuggestion, q.URL, q.Description,
			q.SourceName, q.SourceURL, q.MatchScore, q.MatchedEventID,
			model.TruncateNotes(q.Notes), created,
		)
	}
	return b
}

// updateQueueQuery は既存行の補完用UPDATEを組み立てる。補完対象外の列はエラーになる。
func updateQueueQuery(u model.QueueUpdate) (sq.UpdateBuilder, error) {
	b := psql.Update("inbox").Where(sq.Eq{"row_id": u.RowID})
	for _, f := range u.Fields {
		var probe model.QueueItem
		if !probe.SetField(f.Column, f.Value) {
			return b, fmt.Errorf("補完できない列です: %s", f.Column)
		}
		value := f.Value
		if f.Column == model.ColNotes {
			value = model.TruncateNotes(value)
		}
		b = b.Set(dbColumn(f.Column), value)
	}
	return b, nil
}

// Commit は新規行の追加と既存行の補完を1トランザクションで書き込む。
// いずれかの書き込みに失敗した場合はすべてロールバックする。
func (r *PostgresQueueRepo) Commit(ctx context.Context, newItems []model.QueueItem, updates []model.QueueUpdate) error {
	if len(newItems) == 0 && len(updates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	for _, span := range batches(len(newItems), insertBatchSize) {
		query, args, err := insertQueueQuery(newItems[span[0]:span[1]], now).ToSql()
		if err != nil {
			return fmt.Errorf("Inbox追加クエリの組み立てに失敗しました: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("Inbox行の追加に失敗しました: %w", err)
		}
	}

	for _, u := range updates {
		if len(u.Fields) == 0 {
			continue
		}
		b, err := updateQueueQuery(u)
		if err != nil {
			return err
		}
		query, args, err := b.ToSql()
		if err != nil {
			return fmt.Errorf("Inbox更新クエリの組み立てに失敗しました: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("Inbox行 %d の更新に失敗しました: %w", u.RowID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// statusFilter はステータスを小文字化して比較する条件を返す。
func statusFilter(statuses []string) sq.Sqlizer {
	lowered := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			lowered = append(lowered, s)
		}
	}
	return sq.Expr("lower(status) = ANY(?)", pq.Array(lowered))
}

func archiveCopyQuery(statuses []string) sq.InsertBuilder {
	cols := append([]string{"row_id"}, inboxColumns...)
	return psql.Insert("inbox_archive").
		Columns(cols...).
		Select(sq.Select(cols...).From("inbox").Where(statusFilter(statuses)))
}

func archiveDeleteQuery(statuses []string) sq.DeleteBuilder {
	return psql.Delete("inbox").Where(statusFilter(statuses))
}

// ArchiveByStatus は指定ステータスの行をinbox_archiveへ移し、移動した件数を返す。
// コピーと削除は1トランザクションで行う。
func (r *PostgresQueueRepo) ArchiveByStatus(ctx context.Context, statuses []string) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	query, args, err := archiveCopyQuery(statuses).ToSql()
	if err != nil {
		return 0, fmt.Errorf("アーカイブクエリの組み立てに失敗しました: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("Inbox行のアーカイブに失敗しました: %w", err)
	}

	query, args, err = archiveDeleteQuery(statuses).ToSql()
	if err != nil {
		return 0, fmt.Errorf("削除クエリの組み立てに失敗しました: %w", err)
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("アーカイブ済みInbox行の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return n, nil
}

// compile-time interface check
var (
	_ QueueStore    = (*PostgresQueueRepo)(nil)
	_ QueueReader   = (*PostgresQueueRepo)(nil)
	_ QueueArchiver = (*PostgresQueueRepo)(nil)
)
