// Package schedule はserveモードで定期実行するジョブをcron式で管理する。
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc は定期実行される処理。ctxはScheduler停止時にキャンセルされる。
type JobFunc func(ctx context.Context)

// Scheduler はcron式に従ってジョブを起動する。
// 前回の実行が終わっていないジョブは次の時刻をスキップする。
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New は新しいSchedulerを生成する。
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add はジョブを登録する。specは5フィールドの標準cron式、または "@every 6h" などの記述子。
// specが空の場合は何もしない。
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if spec == "" {
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.logger.Info("scheduled job started", slog.String("job", name))
		fn(s.ctx)
		s.logger.Info("scheduled job finished",
			slog.String("job", name),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule for %s (%q): %w", name, spec, err)
	}
	s.logger.Info("job scheduled", slog.String("job", name), slog.String("spec", spec))
	return nil
}

// Len は登録済みのジョブ数を返す。
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start はバックグラウンドでスケジューラを開始する。
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop はスケジューラを停止し、実行中のジョブのctxをキャンセルする。
// 返すcontextは実行中のジョブがすべて終了するとDoneになる。
func (s *Scheduler) Stop() context.Context {
	done := s.cron.Stop()
	s.cancel()
	return done
}

// cronLogger はcron.Loggerをslogに橋渡しする。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err.Error())...)
}
