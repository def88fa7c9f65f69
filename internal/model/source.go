package model

import (
	"strings"
	"time"
)

// SourceType はソースの形式を表す。
type SourceType string

const (
	SourceTypeICS  SourceType = "ics"
	SourceTypeRSS  SourceType = "rss"
	SourceTypeJSON SourceType = "json"
	SourceTypeHTML SourceType = "html"
)

// ParseSourceType は登録値をSourceTypeに変換する。"ical" は "ics" として扱う。
func ParseSourceType(s string) SourceType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ics", "ical":
		return SourceTypeICS
	case "rss", "atom":
		return SourceTypeRSS
	case "json":
		return SourceTypeJSON
	case "html":
		return SourceTypeHTML
	}
	return SourceType(strings.ToLower(strings.TrimSpace(s)))
}

// Source はソースレジストリに登録されたディスカバリー対象を表す。
type Source struct {
	Name            string     `yaml:"name"`
	Type            SourceType `yaml:"type"`
	URL             string     `yaml:"url"`
	DefaultCity     string     `yaml:"default_city"`
	DefaultCategory string     `yaml:"default_category"`
	Enabled         bool       `yaml:"enabled"`
}

// HealthStatus はソースごとの実行結果を表す。
type HealthStatus string

const (
	HealthOK          HealthStatus = "ok"
	HealthFetchError  HealthStatus = "fetch_error"
	HealthParseError  HealthStatus = "parse_error"
	HealthUnsupported HealthStatus = "unsupported"
)

// MaxHealthErrorLength はSource Healthに保存するエラー文の最大文字数。
const MaxHealthErrorLength = 180

// SourceHealthColumns はSource Health行の固定列順序。
var SourceHealthColumns = []string{
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

// SourceHealth は1回の実行における1ソースの状態を表す。
type SourceHealth struct {
	RunID           string       `json:"run_id"`
	SourceName      string       `json:"source_name"`
	Type            SourceType   `json:"type"`
	URL             string       `json:"url"`
	Status          HealthStatus `json:"status"`
	HTTPStatus      int          `json:"http_status,omitempty"`
	Error           string       `json:"error"`
	LastCheckedAt   time.Time    `json:"last_checked_at"`
	CandidatesCount int          `json:"candidates_count"`
	NewRowsWritten  int          `json:"new_rows_written"`
}

// ScoutCandidate はソーススカウトが見つけたソース候補URLを表す。
// Confidenceはキーワードの一致数とカレンダー・フィードらしさから求めた0.0〜1.0の目安。
type ScoutCandidate struct {
	SeedURL    string     `yaml:"found_on" json:"found_on"`
	URL        string     `yaml:"url" json:"url"`
	Domain     string     `yaml:"domain" json:"domain"`
	Type       SourceType `yaml:"type" json:"type"`
	LinkText   string     `yaml:"link_text,omitempty" json:"link_text,omitempty"`
	Hint       string     `yaml:"hint" json:"hint"`
	Confidence float64    `yaml:"confidence" json:"confidence"`
	FoundAt    time.Time  `yaml:"found_at" json:"found_at"`
}
