package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用した公開済みイベントの読み取りリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

func listLiveQuery() sq.SelectBuilder {
	return psql.Select("id", "title", "date", "end_date", "time", "city", "location", "kategorie", "url", "description").
		From("events").
		OrderBy("date", "id")
}

// ListLive は公開済みイベントをすべて返す。
func (r *PostgresEventRepo) ListLive(ctx context.Context) ([]model.LiveEvent, error) {
	query, args, err := listLiveQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("イベント取得クエリの組み立てに失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("公開済みイベントの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []model.LiveEvent
	for rows.Next() {
		var e model.LiveEvent
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Date, &e.EndDate, &e.Time,
			&e.City, &e.Location, &e.Kategorie, &e.URL, &e.Description,
		); err != nil {
			return nil, fmt.Errorf("イベントのスキャンに失敗しました: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("公開済みイベントの走査に失敗しました: %w", err)
	}
	return events, nil
}

// compile-time interface check
var _ LiveEventStore = (*PostgresEventRepo)(nil)
