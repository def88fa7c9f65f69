package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Stratos888/Bocholt-Erleben/internal/classify"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/parser"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

// --- モック ---

type mockSourceRegistry struct {
	sources []model.Source
	err     error
}

func (m *mockSourceRegistry) ListEnabled(_ context.Context) ([]model.Source, error) {
	return m.sources, m.err
}

type mockLiveStore struct {
	events []model.LiveEvent
}

func (m *mockLiveStore) ListLive(_ context.Context) ([]model.LiveEvent, error) {
	return m.events, nil
}

type mockQueueStore struct {
	items     []model.QueueItem
	commitErr error
	commits   int
	newItems  []model.QueueItem
	updates   []model.QueueUpdate
}

func (m *mockQueueStore) ListQueue(_ context.Context) ([]model.QueueItem, error) {
	return m.items, nil
}

func (m *mockQueueStore) Commit(_ context.Context, newItems []model.QueueItem, updates []model.QueueUpdate) error {
	m.commits++
	if m.commitErr != nil {
		return m.commitErr
	}
	m.newItems = newItems
	m.updates = updates
	return nil
}

type mockAuditSink struct {
	err     error
	entries []model.AuditEntry
}

func (m *mockAuditSink) WriteAudit(_ context.Context, entries []model.AuditEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entries...)
	return nil
}

type mockHealthSink struct {
	rows []model.SourceHealth
}

func (m *mockHealthSink) WriteHealth(_ context.Context, rows []model.SourceHealth) error {
	m.rows = append(m.rows, rows...)
	return nil
}

type mockFetcher struct {
	pages map[string]string
	errs  map[string]error
	gets  []string
}

func (m *mockFetcher) Get(_ context.Context, rawURL string) (string, error) {
	m.gets = append(m.gets, rawURL)
	if err, ok := m.errs[rawURL]; ok {
		return "", err
	}
	body, ok := m.pages[rawURL]
	if !ok {
		return "", &model.FetchError{URL: rawURL, StatusCode: 404}
	}
	return body, nil
}

func (m *mockFetcher) PostForm(_ context.Context, rawURL string, _ url.Values) (string, error) {
	return "", &model.FetchError{URL: rawURL, StatusCode: 405}
}

type mockMetrics struct {
	health       map[string]int
	dispositions map[string]int
	duplicates   map[string]int
	writes       map[string]int
	runs         int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		health:       map[string]int{},
		dispositions: map[string]int{},
		duplicates:   map[string]int{},
		writes:       map[string]int{},
	}
}

func (m *mockMetrics) RecordSourceHealth(status string) { m.health[status]++ }
func (m *mockMetrics) RecordCandidates(string, int) {}
func (m *mockMetrics) RecordDisposition(reason string) { m.dispositions[reason]++ }
func (m *mockMetrics) RecordQueueWrites(kind string, count int) { m.writes[kind] += count }
func (m *mockMetrics) RecordDuplicate(kind string) { m.duplicates[kind]++ }
func (m *mockMetrics) RecordFetch(string) {}
func (m *mockMetrics) RecordHTTPStatus(int) {}
func (m *mockMetrics) RecordFetchLatency(time.Duration) {}
func (m *mockMetrics) RecordDetailFetch(string) {}
func (m *mockMetrics) RecordRunDuration(time.Duration) { m.runs++ }

// --- フィクスチャ ---

const calendarICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Test//DE\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:1@cal\r\n" +
	"SUMMARY:Martinsumzug\r\n" +
	"DTSTART:20261111T170000\r\n" +
	"LOCATION:Marktplatz\r\n" +
	"DESCRIPTION:Laternenumzug durch die Innenstadt\r\n" +
	"URL:https://cal.example/martin?utm_source=feed\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:2@cal\r\n" +
	"SUMMARY:Jahreshauptversammlung\r\n" +
	"DTSTART:20261120T190000\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:3@cal\r\n" +
	"SUMMARY:Orgelnacht\r\n" +
	"DTSTART:20261120T200000\r\n" +
	"URL:https://kirche.example/orgel\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

const vereinJSON = `{"events": [
	{"title": "Martinsumzug", "date": "2026-11-11"},
	{"title": "Repair Café", "url": "/repair"},
	{"title": "Lesung mit Autorin", "url": "https://verein.example/lesung"},
	{"title": "Weinfest", "date": "2026-10-30", "url": "https://verein.example/weinfest"}
]}`

const repairDetail = `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"Event","name":"Repair Café",
"startDate":"2026-11-07T14:00:00","location":{"@type":"Place","name":"Stadtteilhaus"}}</script>
</head><body><main><p>Reparieren statt wegwerfen</p></main></body></html>`

var testSources = []model.Source{
	{Name: "Stadtkalender", Type: model.SourceTypeICS, URL: "https://cal.example/events.ics"},
	{Name: "Heimatverein", Type: model.SourceTypeJSON, URL: "https://verein.example/api/events", DefaultCity: "Rhede", DefaultCategory: "Kultur"},
	{Name: "Kaputt", Type: model.SourceTypeHTML, URL: "https://down.example/"},
	{Name: "Tabelle", Type: model.SourceType("csv"), URL: "https://csv.example/termine.csv"},
	{Name: "Defekt", Type: model.SourceTypeJSON, URL: "https://broken.example/api"},
}

type testEnv struct {
	queue   *mockQueueStore
	audit   *mockAuditSink
	health  *mockHealthSink
	fetcher *mockFetcher
	metrics *mockMetrics
	deps    Deps
}

func newTestEnv() *testEnv {
	env := &testEnv{
		queue: &mockQueueStore{items: []model.QueueItem{{
			RowID:       4,
			Status:      "review",
			Title:       "Weinfest",
			URL:         "https://verein.example/weinfest",
			Description: "Wein und Musik",
			SourceName:  "Heimatverein",
			SourceURL:   "https://verein.example/api/events",
		}}},
		audit:  &mockAuditSink{},
		health: &mockHealthSink{},
		fetcher: &mockFetcher{
			pages: map[string]string{
				"https://cal.example/events.ics":    calendarICS,
				"https://verein.example/api/events": vereinJSON,
				"https://verein.example/repair":     repairDetail,
				"https://broken.example/api":        `{broken`,
			},
			errs: map[string]error{
				"https://down.example/": &model.FetchError{URL: "https://down.example/", StatusCode: 503},
			},
		},
		metrics: newMockMetrics(),
	}
	env.deps = Deps{
		Sources:    &mockSourceRegistry{sources: testSources},
		Live:       &mockLiveStore{events: []model.LiveEvent{{ID: "ev-9", Title: "Nacht der Orgel", Date: "2026-11-21", URL: "https://kirche.example/orgel?utm_source=newsletter"}}},
		Queue:      env.queue,
		Audit:      env.audit,
		Health:     env.health,
		Fetcher:    env.fetcher,
		Parser:     parser.New(env.fetcher, parser.Options{}, nil).WithClock(func() time.Time { return testNow }),
		Classifier: classify.New(classify.DefaultWindow).WithClock(func() time.Time { return testNow }),
		Metrics:    env.metrics,
	}
	return env
}

func (e *testEnv) pipeline() *Pipeline {
	return New(e.deps, Options{
		DefaultCity:      "Bocholt",
		DetailMaxTotal:   10,
		DetailMaxPerHost: 5,
	}).WithClock(func() time.Time { return testNow })
}

// --- テスト ---

func TestRun_Summary(t *testing.T) {
	env := newTestEnv()

	sum, err := env.pipeline().Run(context.Background(), RunOptions{RunID: "run-1"})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	want := Summary{
		RunID:            "run-1",
		StartedAt:        testNow,
		SourcesProcessed: 5,
		CandidatesParsed: 7,
		NewRowsWritten:   3,
		RowsBackfilled:   1,
		Rejected:         1,
		Duplicates:       3,
		DetailFetches:    2,
	}
	got := *sum
	got.Sources = nil
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("集計 (-期待 +結果):\n%s", diff)
	}
	if env.queue.commits != 1 {
		t.Errorf("書き込み 期待: 1回, 結果: %d回", env.queue.commits)
	}
}

func TestRun_NewRows(t *testing.T) {
	env := newTestEnv()
	if _, err := env.pipeline().Run(context.Background(), RunOptions{RunID: "run-1"}); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	rows := env.queue.newItems
	if len(rows) != 3 {
		t.Fatalf("新規行 期待: 3件, 結果: %d件 %+v", len(rows), rows)
	}

	wantFirst := model.QueueItem{
		Status:       "review",
		IDSuggestion: textnorm.MakeIDSuggestion("Martinsumzug", "2026-11-11", "17:00", "https://cal.example/events.ics"),
		Title:        "Martinsumzug",
		Date:         "2026-11-11",
		Time:         "17:00",
		City:         "Bocholt",
		Location:     "Marktplatz",
		URL:          "https://cal.example/martin",
		Description:  "Laternenumzug durch die Innenstadt",
		SourceName:   "Stadtkalender",
		SourceURL:    "https://cal.example/events.ics",
		Notes:        "public_event",
		CreatedAt:    testNow,
	}
	if diff := cmp.Diff(wantFirst, rows[0]); diff != "" {
		t.Errorf("ICSの行 (-期待 +結果):\n%s", diff)
	}

	repair := rows[1]
	if repair.Title != "Repair Café" || repair.Date != "2026-11-07" || repair.Time != "14:00" || repair.Location != "Stadtteilhaus" {
		t.Errorf("詳細ページからの補完 結果: %+v", repair)
	}
	if repair.City != "Rhede" || repair.KategorieSuggestion != "Kultur" {
		t.Errorf("ソースの既定値 期待: Rhede/Kultur, 結果: %s/%s", repair.City, repair.KategorieSuggestion)
	}
	if repair.Notes != "event_date:detail | public_event" {
		t.Errorf("notes 結果: %q", repair.Notes)
	}
	if repair.Description == "" {
		t.Error("説明文が空です")
	}

	lesung := rows[2]
	if lesung.Date != "" || lesung.Status != "review" {
		t.Errorf("日付なしはレビュー 結果: %+v", lesung)
	}
	if lesung.Notes != "missing_date | "+EventDateMissingNote {
		t.Errorf("notes 期待: %q, 結果: %q", "missing_date | "+EventDateMissingNote, lesung.Notes)
	}
	if !strings.HasPrefix(lesung.IDSuggestion, "lesung-mit-autorin-00000000-") {
		t.Errorf("日付なしのID 結果: %s", lesung.IDSuggestion)
	}
}

func TestRun_BackfillUpdates(t *testing.T) {
	env := newTestEnv()
	if _, err := env.pipeline().Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	want := []model.QueueUpdate{{
		RowID:  4,
		Fields: []model.FieldValue{{Column: model.ColDate, Value: "2026-10-30"}},
	}}
	if diff := cmp.Diff(want, env.queue.updates); diff != "" {
		t.Errorf("補完 (-期待 +結果):\n%s", diff)
	}
	if env.metrics.writes["backfill"] != 1 || env.metrics.writes["new"] != 3 {
		t.Errorf("書き込みメトリクス 結果: %v", env.metrics.writes)
	}
}

func TestRun_SourceHealth(t *testing.T) {
	env := newTestEnv()
	if _, err := env.pipeline().Run(context.Background(), RunOptions{RunID: "run-7"}); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	rows := env.health.rows
	if len(rows) != len(testSources) {
		t.Fatalf("Source Health 期待: %d行, 結果: %d行", len(testSources), len(rows))
	}

	type brief struct {
		Name       string
		Status     model.HealthStatus
		HTTPStatus int
		Count      int
		Written    int
	}
	var got []brief
	for _, r := range rows {
		got = append(got, brief{r.SourceName, r.Status, r.HTTPStatus, r.CandidatesCount, r.NewRowsWritten})
		if r.RunID != "run-7" || !r.LastCheckedAt.Equal(testNow) {
			t.Errorf("run_id/last_checked_at 結果: %s %v", r.RunID, r.LastCheckedAt)
		}
	}
	want := []brief{
		{"Stadtkalender", model.HealthOK, 0, 3, 1},
		{"Heimatverein", model.HealthOK, 0, 4, 2},
		{"Kaputt", model.HealthFetchError, 503, 0, 0},
		{"Tabelle", model.HealthUnsupported, 0, 0, 0},
		{"Defekt", model.HealthParseError, 0, 0, 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Source Health (-期待 +結果):\n%s", diff)
	}

	if rows[2].Error != "HTTP Error 503: Service Unavailable" {
		t.Errorf("取得エラー文 結果: %q", rows[2].Error)
	}
	if rows[3].Error != "unsupported type: csv" {
		t.Errorf("未対応エラー文 結果: %q", rows[3].Error)
	}
	if !strings.HasPrefix(rows[4].Error, "parse json:") {
		t.Errorf("解析エラー文 結果: %q", rows[4].Error)
	}
	for _, u := range env.fetcher.gets {
		if u == "https://csv.example/termine.csv" {
			t.Error("未対応のソースは取得しない")
		}
	}
	if env.metrics.health["ok"] != 2 || env.metrics.health["fetch_error"] != 1 {
		t.Errorf("ヘルスメトリクス 結果: %v", env.metrics.health)
	}
}

func TestRun_Audit(t *testing.T) {
	env := newTestEnv()
	if _, err := env.pipeline().Run(context.Background(), RunOptions{RunID: "run-1"}); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	entries := env.audit.entries
	if len(entries) != 7 {
		t.Fatalf("監査ログ 期待: 7件, 結果: %d件", len(entries))
	}

	byTitle := map[string][]model.AuditEntry{}
	for _, e := range entries {
		byTitle[e.Candidate.Title] = append(byTitle[e.Candidate.Title], e)
	}

	jhv := byTitle["Jahreshauptversammlung"][0]
	if jhv.Disposition != model.DispositionRejected || jhv.Reason != model.ReasonNotPublic || jhv.Written {
		t.Errorf("非公開の集まり 結果: %+v", jhv)
	}

	orgel := byTitle["Orgelnacht"][0]
	if !orgel.AlreadyLive || orgel.MatchScore != 1.0 || orgel.MatchedEventID != "ev-9" || orgel.Written {
		t.Errorf("公開済みのURL一致 結果: %+v", orgel)
	}

	martin := byTitle["Martinsumzug"]
	if len(martin) != 2 || !martin[0].Written || !martin[1].AlreadyQueued || martin[1].Written {
		t.Errorf("2つのソースからの同じイベント 結果: %+v", martin)
	}

	wein := byTitle["Weinfest"][0]
	if !wein.AlreadyQueued || !wein.Backfilled {
		t.Errorf("既存行の補完 結果: %+v", wein)
	}
	if env.metrics.duplicates["live"] != 1 || env.metrics.duplicates["queue"] != 2 {
		t.Errorf("重複メトリクス 結果: %v", env.metrics.duplicates)
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	env := newTestEnv()

	sum, err := env.pipeline().Run(context.Background(), RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if env.queue.commits != 0 || len(env.audit.entries) != 0 || len(env.health.rows) != 0 {
		t.Errorf("ドライランで書き込みが発生しました: commits=%d audit=%d health=%d",
			env.queue.commits, len(env.audit.entries), len(env.health.rows))
	}
	if !sum.DryRun || sum.NewRowsWritten != 3 || len(sum.Sources) != 5 {
		t.Errorf("ドライランの集計 結果: %+v", sum)
	}
	if sum.RunID == "" {
		t.Error("実行IDが採番されていません")
	}
}

func TestRun_AuditFailureIsNotFatal(t *testing.T) {
	env := newTestEnv()
	env.audit.err = errors.New("disk full")

	if _, err := env.pipeline().Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("監査ログの失敗で実行が失敗しました: %v", err)
	}
	if len(env.health.rows) != 5 {
		t.Errorf("Source Healthは書き込まれる 結果: %d行", len(env.health.rows))
	}
}

func TestRun_CommitFailure(t *testing.T) {
	env := newTestEnv()
	env.queue.commitErr = errors.New("connection reset")

	_, err := env.pipeline().Run(context.Background(), RunOptions{})
	if err == nil {
		t.Fatal("エラーが返されませんでした")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("元のエラーを含むこと 結果: %v", err)
	}
	if len(env.health.rows) != 0 || len(env.audit.entries) != 0 {
		t.Error("Inboxの書き込みに失敗した実行はほかのログも書き込まない")
	}
}

func TestRun_RegistryFailure(t *testing.T) {
	env := newTestEnv()
	env.deps.Sources = &mockSourceRegistry{err: errors.New("permission denied")}

	if _, err := env.pipeline().Run(context.Background(), RunOptions{}); err == nil {
		t.Fatal("エラーが返されませんでした")
	}
	if len(env.fetcher.gets) != 0 {
		t.Errorf("ソースを取得しない 結果: %v", env.fetcher.gets)
	}
}

func TestRun_Cancelled(t *testing.T) {
	env := newTestEnv()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.pipeline().Run(ctx, RunOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期待: context.Canceled, 結果: %v", err)
	}
	if env.queue.commits != 0 {
		t.Error("中断した実行は書き込まない")
	}
}

func TestRun_DetailBudgetExhausted(t *testing.T) {
	env := newTestEnv()
	p := New(env.deps, Options{DefaultCity: "Bocholt", DetailMaxTotal: 0, DetailMaxPerHost: 5}).
		WithClock(func() time.Time { return testNow })

	sum, err := p.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if sum.DetailFetches != 0 {
		t.Errorf("予算0では詳細ページを取得しない 結果: %d", sum.DetailFetches)
	}
	for _, it := range env.queue.newItems {
		if it.Title == "Repair Café" && it.Date != "" {
			t.Errorf("詳細ページなしでは日付は埋まらない 結果: %+v", it)
		}
	}
}

func TestDescribeSourceError(t *testing.T) {
	src := model.Source{Type: model.SourceType("xml")}
	long := strings.Repeat("x", 300)

	tests := []struct {
		name       string
		err        error
		wantStatus model.HealthStatus
		wantHTTP   int
		wantMsg    string
	}{
		{
			name:       "HTTPエラー",
			err:        fmt.Errorf("取得: %w", &model.FetchError{URL: "https://a.example", StatusCode: 404}),
			wantStatus: model.HealthFetchError,
			wantHTTP:   404,
			wantMsg:    "HTTP Error 404: Not Found",
		},
		{
			name:       "ネットワークエラー",
			err:        &model.FetchError{URL: "https://a.example", Err: errors.New("timeout")},
			wantStatus: model.HealthFetchError,
			wantMsg:    "fetch https://a.example: timeout",
		},
		{
			name:       "未対応の種別",
			err:        fmt.Errorf("%w: xml", model.ErrUnsupportedSourceType),
			wantStatus: model.HealthUnsupported,
			wantMsg:    "unsupported type: xml",
		},
		{
			name:       "その他は解析エラーで180文字に切り詰める",
			err:        errors.New(long),
			wantStatus: model.HealthParseError,
			wantMsg:    long[:model.MaxHealthErrorLength],
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, httpStatus, msg := describeSourceError(src, tt.err)
			if status != tt.wantStatus || httpStatus != tt.wantHTTP || msg != tt.wantMsg {
				t.Errorf("期待: (%s, %d, %q), 結果: (%s, %d, %q)", tt.wantStatus, tt.wantHTTP, tt.wantMsg, status, httpStatus, msg)
			}
		})
	}
}
