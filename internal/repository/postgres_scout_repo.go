package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// PostgresScoutRepo はPostgreSQLを使用したソース候補リポジトリ。
type PostgresScoutRepo struct {
	db *sql.DB
}

// NewPostgresScoutRepo はPostgresScoutRepoを生成する。
func NewPostgresScoutRepo(db *sql.DB) *PostgresScoutRepo {
	return &PostgresScoutRepo{db: db}
}

// KnownURLs は記録済みの候補URLを正規化キーの集合で返す。
func (r *PostgresScoutRepo) KnownURLs(ctx context.Context) (map[string]bool, error) {
	query, args, err := psql.Select("url").From("source_candidates").ToSql()
	if err != nil {
		return nil, fmt.Errorf("候補URL取得クエリの組み立てに失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("候補URLの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("候補URLのスキャンに失敗しました: %w", err)
		}
		known[textnorm.NormKey(u)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("候補URLの走査に失敗しました: %w", err)
	}
	return known, nil
}

func insertScoutQuery(candidates []model.ScoutCandidate) sq.InsertBuilder {
	b := psql.Insert("source_candidates").
		Columns("url", "found_on", "domain", "type", "link_text", "hint", "confidence", "found_at").
		Suffix("ON CONFLICT (url) DO NOTHING")
	for _, c := range candidates {
		b = b.Values(c.URL, c.SeedURL, c.Domain, string(c.Type), c.LinkText, c.Hint, c.Confidence, c.FoundAt)
	}
	return b
}

// InsertCandidates は候補を追加し、追加件数を返す。既存URLは無視する。
func (r *PostgresScoutRepo) InsertCandidates(ctx context.Context, candidates []model.ScoutCandidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var inserted int64
	for _, span := range batches(len(candidates), insertBatchSize) {
		query, args, err := insertScoutQuery(candidates[span[0]:span[1]]).ToSql()
		if err != nil {
			return 0, fmt.Errorf("候補追加クエリの組み立てに失敗しました: %w", err)
		}
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("ソース候補の追加に失敗しました: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("追加件数の取得に失敗しました: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return int(inserted), nil
}

// compile-time interface check
var _ ScoutRepository = (*PostgresScoutRepo)(nil)
