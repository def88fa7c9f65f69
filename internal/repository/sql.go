package repository

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
)

// psql はPostgreSQL用のプレースホルダー（$1, $2, ...）でクエリを組み立てる。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// insertBatchSize は1回のINSERTでまとめる行数。
// PostgreSQLのパラメータ上限（65535）を超えないようにする。
const insertBatchSize = 500

// nullInt は0をNULLとして扱うsql.NullInt64を返す。
func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

// batches はn件をsize件ずつに区切った [start, end) の組を返す。
func batches(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
