// Package discovery は登録済みソースを1件ずつ巡回し、候補を分類・重複判定して
// Inboxに書き込むディスカバリー実行を提供する。
//
// Inbox・監査ログ・Source Healthへの書き込みは実行の最後にまとめて行う。
// 途中で失敗した実行は外部の状態を変更しない。
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Stratos888/Bocholt-Erleben/internal/classify"
	"github.com/Stratos888/Bocholt-Erleben/internal/dedupe"
	"github.com/Stratos888/Bocholt-Erleben/internal/logger"
	"github.com/Stratos888/Bocholt-Erleben/internal/metrics"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/parser"
	"github.com/Stratos888/Bocholt-Erleben/internal/policy"
	"github.com/Stratos888/Bocholt-Erleben/internal/repository"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
	"github.com/Stratos888/Bocholt-Erleben/internal/worker/fetch"
)

// EventDateMissingNote は日付のない行のnotesに付ける目印。
const EventDateMissingNote = "⚠️ event_date_missing"

// SourceParser はソース本文を候補に変換するインターフェース。parser.Parserが実装する。
type SourceParser interface {
	Parse(ctx context.Context, src model.Source, content string, budget parser.DetailFetcher) ([]model.Candidate, error)
}

// Options はディスカバリー実行の調整値。
type Options struct {
	// DefaultCity はソースに既定の市が登録されていない場合に使う。
	DefaultCity string
	// SourceDelay はソース間に空ける最小間隔。
	SourceDelay time.Duration
	// DetailMaxTotal は1回の実行での詳細ページ取得の全体上限。
	DetailMaxTotal int
	// DetailMaxPerHost は詳細ページ取得のホスト別上限。
	DetailMaxPerHost int
	// Policies はホスト別上限の上書きに使う。nilなら組み込みの表。
	Policies *policy.Table
}

// Deps はPipelineが依存するコンポーネント。AuditとHealthはnilでもよい。
type Deps struct {
	Sources    repository.SourceRegistry
	Live       repository.LiveEventStore
	Queue      repository.QueueStore
	Audit      repository.AuditSink
	Health     repository.HealthSink
	Fetcher    parser.Fetcher
	Parser     SourceParser
	Classifier *classify.Classifier
	Metrics    metrics.MetricsCollector
	Logger     *slog.Logger
}

// RunOptions は1回の実行の指定。
type RunOptions struct {
	// RunID が空の場合は新しく採番する。
	RunID string
	// DryRun の場合はすべての処理を行うが、何も書き込まない。
	DryRun bool
}

// Summary は1回の実行結果の集計。
type Summary struct {
	RunID            string               `json:"run_id"`
	DryRun           bool                 `json:"dry_run"`
	StartedAt        time.Time            `json:"started_at"`
	DurationSeconds  float64              `json:"duration_seconds"`
	SourcesProcessed int                  `json:"sources_processed"`
	CandidatesParsed int                  `json:"candidates_parsed"`
	NewRowsWritten   int                  `json:"new_rows_written"`
	RowsBackfilled   int                  `json:"rows_backfilled"`
	Rejected         int                  `json:"rejected"`
	Duplicates       int                  `json:"duplicates"`
	DetailFetches    int                  `json:"detail_fetches_used"`
	Sources          []model.SourceHealth `json:"sources"`
}

// Pipeline はディスカバリー実行を行う。実行は逐次的で、同時に呼び出してはならない。
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New はPipelineの新しいインスタンスを生成する。
func New(deps Deps, opts Options) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New(classify.DefaultWindow)
	}
	if opts.Policies == nil {
		opts.Policies = policy.Default()
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// WithClock は実行時刻の取得関数を差し替える。テスト用。
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// run は1回の実行の間だけ存在する状態。
type run struct {
	id      string
	at      time.Time
	logger  *slog.Logger
	dedupe  *dedupe.Deduplicator
	budget  *fetch.Budget
	audit   []model.AuditEntry
	health  []model.SourceHealth
	summary *Summary
}

// Run は有効なソースをすべて処理し、結果をまとめて書き込む。
// ソース単位の失敗はSource Healthに記録して続行する。返すエラーは
// ソース一覧・公開済みイベント・Inboxの読み込みとInboxへの書き込みの失敗に限る。
func (p *Pipeline) Run(ctx context.Context, ro RunOptions) (*Summary, error) {
	runID := ro.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	startedAt := p.now()
	log := logger.WithRun(p.deps.Logger, runID)

	sources, err := p.deps.Sources.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗: %w", err)
	}
	live, err := p.deps.Live.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("公開済みイベントの取得に失敗: %w", err)
	}
	queued, err := p.deps.Queue.ListQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("Inboxの取得に失敗: %w", err)
	}

	log.Info("ディスカバリーを開始しました",
		slog.Int("sources", len(sources)),
		slog.Int("live_events", len(live)),
		slog.Int("queue_rows", len(queued)),
		slog.Bool("dry_run", ro.DryRun),
	)

	r := &run{
		id:     runID,
		at:     startedAt,
		logger: log,
		dedupe: dedupe.New(live, queued),
		budget: fetch.NewBudget(p.deps.Fetcher, p.opts.DetailMaxTotal, p.opts.DetailMaxPerHost,
			fetch.WithHostCap(func(host string) int { return p.opts.Policies.Lookup(host).MaxDetailFetches }),
			fetch.WithBudgetMetrics(p.deps.Metrics),
			fetch.WithBudgetLogger(log),
		),
		summary: &Summary{RunID: runID, DryRun: ro.DryRun, StartedAt: startedAt},
	}

	pacer := rate.NewLimiter(rate.Inf, 1)
	if p.opts.SourceDelay > 0 {
		pacer = rate.NewLimiter(rate.Every(p.opts.SourceDelay), 1)
	}
	for _, src := range sources {
		if err := pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("ディスカバリーが中断されました: %w", err)
		}
		p.processSource(ctx, r, src)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ディスカバリーが中断されました: %w", err)
	}

	newItems := r.dedupe.NewItems()
	updates := r.dedupe.Updates()
	r.summary.NewRowsWritten = len(newItems)
	r.summary.RowsBackfilled = len(updates)
	r.summary.DetailFetches = r.budget.Stats().Used()
	fillWrittenCounts(r.health, newItems)

	if !ro.DryRun {
		if len(newItems) > 0 || len(updates) > 0 {
			if err := p.deps.Queue.Commit(ctx, newItems, updates); err != nil {
				return nil, fmt.Errorf("Inboxへの書き込みに失敗: %w", err)
			}
		}
		p.deps.Metrics.RecordQueueWrites("new", len(newItems))
		p.deps.Metrics.RecordQueueWrites("backfill", len(updates))
		p.writeSinks(ctx, r)
	}

	r.summary.Sources = r.health
	elapsed := p.now().Sub(startedAt)
	r.summary.DurationSeconds = elapsed.Seconds()
	p.deps.Metrics.RecordRunDuration(elapsed)

	log.Info("ディスカバリーが完了しました",
		slog.Int("sources_processed", r.summary.SourcesProcessed),
		slog.Int("candidates_parsed", r.summary.CandidatesParsed),
		slog.Int("new_rows_written", r.summary.NewRowsWritten),
		slog.Int("rows_backfilled", r.summary.RowsBackfilled),
		slog.Int("rejected", r.summary.Rejected),
		slog.Int("duplicates", r.summary.Duplicates),
		slog.Int("detail_fetches_used", r.summary.DetailFetches),
		slog.Duration("duration", elapsed),
	)
	return r.summary, nil
}

// writeSinks は監査ログとSource Healthを書き込む。失敗しても実行は成功とする。
func (p *Pipeline) writeSinks(ctx context.Context, r *run) {
	if p.deps.Audit != nil && len(r.audit) > 0 {
		if err := p.deps.Audit.WriteAudit(ctx, r.audit); err != nil {
			r.logger.Warn("監査ログの書き込みに失敗しました",
				slog.Int("entries", len(r.audit)),
				slog.String("error", err.Error()),
			)
		}
	}
	if p.deps.Health != nil && len(r.health) > 0 {
		if err := p.deps.Health.WriteHealth(ctx, r.health); err != nil {
			r.logger.Warn("Source Healthの書き込みに失敗しました",
				slog.Int("rows", len(r.health)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// processSource は1ソースを取得・解析し、候補を処理してSource Health行を記録する。
func (p *Pipeline) processSource(ctx context.Context, r *run, src model.Source) {
	health := model.SourceHealth{
		RunID:         r.id,
		SourceName:    src.Name,
		Type:          src.Type,
		URL:           src.URL,
		Status:        model.HealthOK,
		LastCheckedAt: r.at,
	}

	cands, err := p.collect(ctx, r, src)
	if err != nil {
		health.Status, health.HTTPStatus, health.Error = describeSourceError(src, err)
		r.logger.Warn("ソースの処理に失敗しました",
			slog.String("source", src.Name),
			slog.String("url", src.URL),
			slog.String("status", string(health.Status)),
			slog.String("error", err.Error()),
		)
	}

	health.CandidatesCount = len(cands)
	r.summary.SourcesProcessed++
	r.summary.CandidatesParsed += len(cands)
	p.deps.Metrics.RecordSourceHealth(string(health.Status))
	p.deps.Metrics.RecordCandidates(string(src.Type), len(cands))

	for _, c := range cands {
		p.processCandidate(ctx, r, src, c)
	}

	r.health = append(r.health, health)
	r.logger.Info("ソースを処理しました",
		slog.String("source", src.Name),
		slog.String("type", string(src.Type)),
		slog.String("status", string(health.Status)),
		slog.Int("candidates", len(cands)),
	)
}

// collect はソース本文を取得して候補に変換する。
// 解析エラーと候補が同時に返った場合は候補を使う。
func (p *Pipeline) collect(ctx context.Context, r *run, src model.Source) ([]model.Candidate, error) {
	if !isSupported(src.Type) {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedSourceType, src.Type)
	}
	content, err := p.deps.Fetcher.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return p.deps.Parser.Parse(ctx, src, content, r.budget)
}

func isSupported(t model.SourceType) bool {
	switch t {
	case model.SourceTypeICS, model.SourceTypeRSS, model.SourceTypeJSON, model.SourceTypeHTML:
		return true
	}
	return false
}

// describeSourceError はソース単位のエラーをSource Healthの状態・HTTPステータス・エラー文に変換する。
func describeSourceError(src model.Source, err error) (model.HealthStatus, int, string) {
	status := model.HealthParseError
	httpStatus := 0
	msg := err.Error()

	var fe *model.FetchError
	switch {
	case errors.Is(err, model.ErrUnsupportedSourceType):
		status = model.HealthUnsupported
		msg = "unsupported type: " + string(src.Type)
	case errors.As(err, &fe):
		status = model.HealthFetchError
		httpStatus = fe.StatusCode
		msg = fe.Error()
	}
	return status, httpStatus, textnorm.Truncate(textnorm.CleanText(msg), model.MaxHealthErrorLength)
}

// fillWrittenCounts はソースごとの新規行数をSource Health行に設定する。
func fillWrittenCounts(health []model.SourceHealth, written []model.QueueItem) {
	counts := make(map[string]int, len(health))
	for _, it := range written {
		counts[it.SourceURL+"\x00"+it.SourceName]++
	}
	for i := range health {
		health[i].NewRowsWritten = counts[health[i].URL+"\x00"+health[i].SourceName]
	}
}

// trimmedNotes はnotesの区切りを整える。
func trimmedNotes(parts ...string) string {
	return model.TruncateNotes(model.JoinNotes(parts...))
}

// sameURL は2つのURLが正規化後に同じかを返す。
func sameURL(a, b string) bool {
	ka := textnorm.NormKey(textnorm.CanonicalizeURL(a))
	return ka != "" && ka == textnorm.NormKey(textnorm.CanonicalizeURL(b))
}

// cityFor はソースの既定の市、なければ全体の既定値を返す。
func (p *Pipeline) cityFor(src model.Source) string {
	if c := strings.TrimSpace(src.DefaultCity); c != "" {
		return c
	}
	return p.opts.DefaultCity
}
