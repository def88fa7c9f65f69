package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

//go:embed sqlite/*.sql
var sqliteMigrations embed.FS

// sqliteBatchSize はSQLiteの1回のINSERTでまとめる行数。
const sqliteBatchSize = 200

// SQLiteAuditSink は監査ログをローカルのSQLiteファイルに書き込む。
// データベースに接続できない環境でも実行履歴を残すために使う。
type SQLiteAuditSink struct {
	db *sql.DB
}

// OpenSQLiteAuditSink はSQLiteファイルを開き、スキーマを最新にしてSQLiteAuditSinkを返す。
func OpenSQLiteAuditSink(path string) (*SQLiteAuditSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("監査ログDBのオープンに失敗しました: %w", err)
	}
	// 書き込みは1接続に限定する
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("監査ログDBの設定に失敗しました: %w", err)
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteAuditSink{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	goose.SetBaseFS(sqliteMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("マイグレーション方言の設定に失敗しました: %w", err)
	}
	if err := goose.Up(db, "sqlite"); err != nil {
		return fmt.Errorf("監査ログDBのマイグレーションに失敗しました: %w", err)
	}
	return nil
}

// WriteAudit は監査ログを追加する。
func (s *SQLiteAuditSink) WriteAudit(ctx context.Context, entries []model.AuditEntry) error {
	return writeAudit(ctx, s.db, sq.StatementBuilder, sqliteBatchSize, entries)
}

// Close はSQLiteファイルを閉じる。
func (s *SQLiteAuditSink) Close() error {
	return s.db.Close()
}

// MultiAuditSink は1回の書き込みを複数のシンクに配る。
// 一部のシンクが失敗しても残りには書き込み、失敗はまとめて返す。
type MultiAuditSink []AuditSink

// WriteAudit はすべてのシンクに監査ログを書き込む。
func (m MultiAuditSink) WriteAudit(ctx context.Context, entries []model.AuditEntry) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.WriteAudit(ctx, entries); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// compile-time interface check
var (
	_ AuditSink = (*SQLiteAuditSink)(nil)
	_ AuditSink = MultiAuditSink(nil)
)
