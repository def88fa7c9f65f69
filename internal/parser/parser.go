// Package parser はソースから取得した本文をイベント候補に変換する。
//
// 各パーサーは ([]model.Candidate, error) を返す。エラーと候補が同時に返る場合は部分的な解析で、
// 呼び出し側は候補を使いつつ parse_error として記録する。タイトルのない候補は返さない。
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/policy"
)

// DefaultMaxHTMLEvents は1つのHTMLソースから返す候補の上限。
const DefaultMaxHTMLEvents = 80

// DefaultCivicMaxPages は催し物カレンダーで追加取得するページ数の上限。
const DefaultCivicMaxPages = 5

// Fetcher は追加のページやフィードを取得するインターフェース。fetch.Clientが実装する。
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (string, error)
	PostForm(ctx context.Context, rawURL string, values url.Values) (string, error)
}

// DetailFetcher は予算付きで詳細ページを取得するインターフェース。fetch.Budgetが実装する。
type DetailFetcher interface {
	FetchDetail(ctx context.Context, rawURL string) (string, bool)
}

// Options はパーサーの調整値。
type Options struct {
	MaxHTMLEvents int
	CivicMaxPages int
	Policies      *policy.Table
}

// Parser はソース種別に応じて解析処理を振り分ける。
type Parser struct {
	fetcher Fetcher
	opts    Options
	now     func() time.Time
	logger  *slog.Logger
}

// New はParserの新しいインスタンスを生成する。
func New(fetcher Fetcher, opts Options, logger *slog.Logger) *Parser {
	if opts.MaxHTMLEvents <= 0 {
		opts.MaxHTMLEvents = DefaultMaxHTMLEvents
	}
	if opts.CivicMaxPages <= 0 {
		opts.CivicMaxPages = DefaultCivicMaxPages
	}
	if opts.Policies == nil {
		opts.Policies = policy.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		fetcher: fetcher,
		opts:    opts,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock は基準時刻の取得関数を差し替える。テスト用。
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// Parse はソースの本文を候補に変換する。budgetは詳細ページの取得に使い、nilでもよい。
// 未対応の種別は model.ErrUnsupportedSourceType を返す。
func (p *Parser) Parse(ctx context.Context, src model.Source, content string, budget DetailFetcher) ([]model.Candidate, error) {
	now := p.now()
	switch src.Type {
	case model.SourceTypeICS:
		return ParseICS(content, now)
	case model.SourceTypeRSS:
		return ParseFeed(content, now)
	case model.SourceTypeJSON:
		return ParseJSON(content, src.URL)
	case model.SourceTypeHTML:
		return p.parseHTML(ctx, content, src.URL, budget)
	}
	return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedSourceType, src.Type)
}

// withTitle はタイトルのない候補を取り除く。
func withTitle(cands []model.Candidate) []model.Candidate {
	out := cands[:0]
	for _, c := range cands {
		if c.Title != "" {
			out = append(out, c)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
