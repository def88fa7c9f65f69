// Package app はCLIのサブコマンドと依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Stratos888/Bocholt-Erleben/internal/classify"
	"github.com/Stratos888/Bocholt-Erleben/internal/config"
	"github.com/Stratos888/Bocholt-Erleben/internal/database"
	"github.com/Stratos888/Bocholt-Erleben/internal/discovery"
	"github.com/Stratos888/Bocholt-Erleben/internal/feed"
	"github.com/Stratos888/Bocholt-Erleben/internal/handler"
	"github.com/Stratos888/Bocholt-Erleben/internal/logger"
	"github.com/Stratos888/Bocholt-Erleben/internal/metrics"
	"github.com/Stratos888/Bocholt-Erleben/internal/middleware"
	"github.com/Stratos888/Bocholt-Erleben/internal/parser"
	"github.com/Stratos888/Bocholt-Erleben/internal/policy"
	"github.com/Stratos888/Bocholt-Erleben/internal/repository"
	"github.com/Stratos888/Bocholt-Erleben/internal/security"
	"github.com/Stratos888/Bocholt-Erleben/internal/worker/cleanup"
	"github.com/Stratos888/Bocholt-Erleben/internal/worker/fetch"
	"github.com/Stratos888/Bocholt-Erleben/internal/worker/schedule"
)

// shutdownTimeout はserveモード終了時にリクエストと実行中のディスカバリーを待つ上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定エラーもJSONログで出力できるようにする
		logger.SetupDefault(w, "info")
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMを受信するとコマンドのcontextをキャンセルする。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newFetchClient はConfigからソース取得用のクライアントを生成する。
// FETCH_ALLOW_PRIVATEが有効な場合はSSRF検証を行わない。
func newFetchClient(cfg *config.Config, collector metrics.MetricsCollector) *fetch.Client {
	var guard fetch.SSRFValidator
	if !cfg.FetchAllowPrivate {
		guard = security.NewSSRFGuard()
	}
	return fetch.NewClient(guard, fetch.Options{
		Timeout:        cfg.FetchTimeout,
		MaxBodySize:    cfg.FetchMaxSize,
		MaxRetries:     cfg.FetchMaxRetries,
		BackoffInitial: cfg.FetchBackoffInitial,
		UserAgent:      cfg.FetchUserAgent,
		HostInterval:   cfg.HostDelay,
	}, collector, slog.Default())
}

// newSourceRegistry はSOURCES_FILEが指定されていればYAMLファイルを、なければsourcesテーブルを使う。
func newSourceRegistry(cfg *config.Config, db *sql.DB) repository.SourceRegistry {
	if cfg.SourcesFile != "" {
		slog.Info("using source registry file", slog.String("path", cfg.SourcesFile))
		return repository.NewYAMLSourceRegistry(cfg.SourcesFile)
	}
	return repository.NewPostgresSourceRepo(db)
}

// openAuditSink は監査ログの書き込み先を返す。
// AUDIT_SQLITE_PATHが指定されている場合はPostgreSQLとSQLiteの両方に書き込む。
// 返すcloseは必ず呼び出すこと。
func openAuditSink(cfg *config.Config, db *sql.DB) (repository.AuditSink, func(), error) {
	pg := repository.NewPostgresAuditRepo(db)
	if cfg.AuditSQLitePath == "" {
		return pg, func() {}, nil
	}

	local, err := repository.OpenSQLiteAuditSink(cfg.AuditSQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit sqlite: %w", err)
	}
	closeFn := func() {
		if err := local.Close(); err != nil {
			slog.Warn("failed to close audit sqlite", slog.String("error", err.Error()))
		}
	}
	return repository.MultiAuditSink{pg, local}, closeFn, nil
}

// buildPipeline はディスカバリー実行に必要なコンポーネントをワイヤリングする。
func buildPipeline(cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector, audit repository.AuditSink) (*discovery.Pipeline, error) {
	policies, err := policy.Load(cfg.HostPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load host policy: %w", err)
	}

	client := newFetchClient(cfg, collector)
	sourceParser := parser.New(client, parser.Options{
		MaxHTMLEvents: cfg.MaxHTMLEvents,
		CivicMaxPages: cfg.CivicMaxPages,
		Policies:      policies,
	}, slog.Default())
	classifier := classify.New(classify.Window{
		FutureDays: cfg.DateWindowFutureDays,
		PastDays:   cfg.DateWindowPastDays,
	})

	queueRepo := repository.NewPostgresQueueRepo(db)

	return discovery.New(discovery.Deps{
		Sources:    newSourceRegistry(cfg, db),
		Live:       repository.NewPostgresEventRepo(db),
		Queue:      queueRepo,
		Audit:      audit,
		Health:     repository.NewPostgresHealthRepo(db),
		Fetcher:    client,
		Parser:     sourceParser,
		Classifier: classifier,
		Metrics:    collector,
		Logger:     slog.Default(),
	}, discovery.Options{
		DefaultCity:      cfg.DefaultCity,
		SourceDelay:      cfg.SourceDelay,
		DetailMaxTotal:   cfg.DetailFetchMaxTotal,
		DetailMaxPerHost: cfg.DetailFetchMaxPerHost,
		Policies:         policies,
	}), nil
}

// runDiscover はディスカバリーを1回実行し、サマリーをJSONでoutに出力する。
// METRICS_TEXTFILEが指定されている場合は実行後のメトリクスを書き出す。
func runDiscover(ctx context.Context, w, out io.Writer, dryRun bool) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting discovery", slog.Bool("dry_run", dryRun))

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	audit, closeAudit, err := openAuditSink(cfg, db)
	if err != nil {
		return err
	}
	defer closeAudit()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	pipeline, err := buildPipeline(cfg, db, collector, audit)
	if err != nil {
		return err
	}

	summary, err := pipeline.Run(ctx, discovery.RunOptions{DryRun: dryRun})
	if err != nil {
		return fmt.Errorf("discovery run failed: %w", err)
	}

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(registry, cfg.MetricsTextfile); err != nil {
			slog.Warn("failed to write metrics textfile",
				slog.String("path", cfg.MetricsTextfile),
				slog.String("error", err.Error()),
			)
		}
	}

	return writeSummary(out, summary)
}

// writeSummary は実行サマリーを整形済みJSONで書き出す。
func writeSummary(out io.Writer, summary *discovery.Summary) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行い、実行中のディスカバリーの終了を待つ。
func runServe(ctx context.Context, w io.Writer) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(CommandServe)),
		slog.String("port", cfg.ServerPort),
	)

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. ディスカバリー
	audit, closeAudit, err := openAuditSink(cfg, db)
	if err != nil {
		return err
	}
	defer closeAudit()

	pipeline, err := buildPipeline(cfg, db, collector, audit)
	if err != nil {
		return err
	}
	runs := handler.NewRunManager(pipeline, cfg.RunTimeout, slog.Default())

	// 4. ルーターの構築
	queueRepo := repository.NewPostgresQueueRepo(db)
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitRunTrigger),
	)
	defer rateLimiter.Stop()

	archiveJob := cleanup.NewArchiveJob(queueRepo, slog.Default())

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:      slog.Default(),
		RateLimiter: rateLimiter,
		Pinger:      db,
		Gatherer:    registry,
		Inbox:       queueRepo,
		Archiver:    archiveJob,
		Health:      repository.NewPostgresHealthRepo(db),
		Runs:        runs,
	})

	// 5. 定期実行
	scheduler, err := newScheduler(cfg, runs, archiveJob)
	if err != nil {
		return err
	}
	scheduler.Start()

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopped := scheduler.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	select {
	case <-stopped.Done():
	case <-shutdownCtx.Done():
	}
	waitRuns(shutdownCtx, runs)

	slog.Info("API server stopped gracefully")
	return nil
}

// newScheduler はDISCOVERY_SCHEDULEとARCHIVE_SCHEDULEに従う定期実行を登録する。
// ディスカバリーはHTTPからの起動と同じRunManagerを通すため、同時に実行されることはない。
func newScheduler(cfg *config.Config, runs *handler.RunManager, archiver handler.InboxArchiver) (*schedule.Scheduler, error) {
	s := schedule.New(slog.Default())

	err := s.Add("discover", cfg.DiscoverySchedule, func(ctx context.Context) {
		runID, started := runs.Start(ctx)
		if !started {
			slog.Warn("scheduled discovery skipped: run already active", slog.String("run_id", runID))
		}
	})
	if err != nil {
		return nil, err
	}

	err = s.Add("archive", cfg.ArchiveSchedule, func(ctx context.Context) {
		if _, err := archiver.Run(ctx); err != nil {
			slog.Error("scheduled archive failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// waitRuns は実行中のディスカバリーの終了をctxの期限まで待つ。
func waitRuns(ctx context.Context, runs *handler.RunManager) {
	done := make(chan struct{})
	go func() {
		runs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("discovery run still active at shutdown", slog.String("run_id", runs.Active()))
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(w io.Writer) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runArchive は終端ステータスのInbox行をinbox_archiveへ移す。
func runArchive(ctx context.Context, w io.Writer) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewArchiveJob(repository.NewPostgresQueueRepo(db), slog.Default())
	if _, err := job.Run(ctx); err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}
	return nil
}

// runScout はシードページからソース候補を集め、新しい候補をsource_candidatesに記録する。
// 候補はソースレジストリ形式のYAMLとしてoutに出力する。
func runScout(ctx context.Context, w, out io.Writer, seeds []string) error {
	if len(seeds) == 0 {
		return fmt.Errorf("at least one --seed URL is required")
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	client := newFetchClient(cfg, metrics.Nop{})
	service := feed.NewScoutService(client, repository.NewPostgresScoutRepo(db), cfg.SourceDelay, slog.Default())

	candidates, err := service.Scout(ctx, seeds)
	if err != nil {
		return fmt.Errorf("scout failed: %w", err)
	}

	data, err := feed.MarshalYAML(candidates)
	if err != nil {
		return fmt.Errorf("failed to encode candidates: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// healthcheckPort はヘルスチェック対象のポートを環境変数から決める。
// healthcheckはフル初期化をスキップするため、Configを経由しない。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
