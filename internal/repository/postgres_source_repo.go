package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// PostgresSourceRepo はPostgreSQLを使用したソースレジストリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

func listEnabledSourcesQuery() sq.SelectBuilder {
	return psql.Select("name", "type", "url", "default_city", "default_category", "enabled").
		From("sources").
		Where(sq.Eq{"enabled": true}).
		OrderBy("position", "id")
}

// ListEnabled は有効なソースを登録順に返す。
func (r *PostgresSourceRepo) ListEnabled(ctx context.Context) ([]model.Source, error) {
	query, args, err := listEnabledSourcesQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("ソース取得クエリの組み立てに失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var s model.Source
		var typ string
		if err := rows.Scan(&s.Name, &typ, &s.URL, &s.DefaultCity, &s.DefaultCategory, &s.Enabled); err != nil {
			return nil, fmt.Errorf("ソースのスキャンに失敗しました: %w", err)
		}
		s.Type = model.ParseSourceType(typ)
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ソース一覧の走査に失敗しました: %w", err)
	}
	return sources, nil
}

// compile-time interface check
var _ SourceRegistry = (*PostgresSourceRepo)(nil)
