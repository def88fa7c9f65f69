package fetch

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/Stratos888/Bocholt-Erleben/internal/metrics"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// Getter はURLの本文を取得するインターフェース。Clientが実装する。
type Getter interface {
	Get(ctx context.Context, rawURL string) (string, error)
}

// BudgetStats は1回の実行における詳細ページ取得の内訳。
type BudgetStats struct {
	Fetched      int `json:"fetched"`
	Failed       int `json:"failed"`
	Cached       int `json:"cached"`
	DeniedGlobal int `json:"denied_global"`
	DeniedHost   int `json:"denied_host"`
}

// Used は実際にネットワークへ出た取得回数を返す。
func (s BudgetStats) Used() int {
	return s.Fetched + s.Failed
}

// Budget は詳細ページ取得の予算を管理する。
// 全体上限とホスト別上限を持ち、同じURLは実行中にキャッシュから返す。
// 1回のディスカバリー実行の中で逐次的に使う。
type Budget struct {
	getter     Getter
	maxTotal   int
	maxPerHost int
	hostCap    func(host string) int
	cache      map[string]string
	perHost    map[string]int
	stats      BudgetStats
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// BudgetOption はBudgetの任意設定。
type BudgetOption func(*Budget)

// WithHostCap はホスト別上限をホスト名ごとに上書きする関数を設定する。
// 関数が0以下を返した場合は既定のホスト別上限を使う。
func WithHostCap(fn func(host string) int) BudgetOption {
	return func(b *Budget) { b.hostCap = fn }
}

// WithBudgetMetrics はメトリクスの記録先を設定する。
func WithBudgetMetrics(m metrics.MetricsCollector) BudgetOption {
	return func(b *Budget) { b.metrics = m }
}

// WithBudgetLogger はロガーを設定する。
func WithBudgetLogger(l *slog.Logger) BudgetOption {
	return func(b *Budget) { b.logger = l }
}

// NewBudget はBudgetの新しいインスタンスを生成する。
func NewBudget(getter Getter, maxTotal, maxPerHost int, opts ...BudgetOption) *Budget {
	b := &Budget{
		getter:     getter,
		maxTotal:   maxTotal,
		maxPerHost: maxPerHost,
		cache:      make(map[string]string),
		perHost:    make(map[string]int),
		metrics:    metrics.Nop{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FetchDetail は詳細ページを予算内で取得する。
// 予算切れ・取得失敗の場合はokがfalseになる。失敗も同一URLの再試行を防ぐためキャッシュする。
func (b *Budget) FetchDetail(ctx context.Context, rawURL string) (string, bool) {
	key := textnorm.CanonicalizeURL(rawURL)
	if key == "" {
		return "", false
	}

	if body, ok := b.cache[key]; ok {
		b.stats.Cached++
		b.metrics.RecordDetailFetch("cached")
		return body, body != ""
	}

	if b.stats.Used() >= b.maxTotal {
		b.stats.DeniedGlobal++
		b.metrics.RecordDetailFetch("denied_global")
		return "", false
	}

	hostname := hostOf(key)
	hostKey := HostKey(hostname)
	limit := b.maxPerHost
	if b.hostCap != nil {
		if n := b.hostCap(hostname); n > 0 {
			limit = n
		}
	}
	if b.perHost[hostKey] >= limit {
		b.stats.DeniedHost++
		b.metrics.RecordDetailFetch("denied_host")
		return "", false
	}

	b.perHost[hostKey]++
	body, err := b.getter.Get(ctx, key)
	if err != nil {
		b.stats.Failed++
		b.cache[key] = ""
		b.metrics.RecordDetailFetch("error")
		b.logger.Debug("詳細ページの取得に失敗しました",
			slog.String("url", key),
			slog.String("error", err.Error()),
		)
		return "", false
	}

	b.stats.Fetched++
	b.cache[key] = body
	b.metrics.RecordDetailFetch("ok")
	return body, body != ""
}

// Stats は現在までの取得内訳を返す。
func (b *Budget) Stats() BudgetStats {
	return b.stats
}

// HostKey はホスト名を登録可能ドメイン（eTLD+1）に丸める。
// www.bocholt.de と veranstaltungen.bocholt.de は同じ予算を共有する。
func HostKey(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return ""
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	return host
}

// HostKeyOfURL はURLのホストをHostKeyで丸める。
func HostKeyOfURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return HostKey(u.Hostname())
}
