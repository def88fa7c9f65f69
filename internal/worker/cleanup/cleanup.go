// Package cleanup はInboxの整理ジョブを提供する。
// 終端ステータス（übernommen、verworfen）の行をinbox_archiveへ移し、
// モデレーション待ちの行だけをInboxに残す。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/repository"
)

// ArchiveJob は終端ステータスのInbox行をアーカイブするジョブ。
// 対象がなければ何もしないため、何度実行してもよい。
type ArchiveJob struct {
	archiver repository.QueueArchiver
	logger   *slog.Logger
	Statuses []string // アーカイブ対象のステータス（デフォルト: model.FinalStatuses）
}

// NewArchiveJob は新しいArchiveJobを生成する。
func NewArchiveJob(archiver repository.QueueArchiver, logger *slog.Logger) *ArchiveJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveJob{
		archiver: archiver,
		logger:   logger,
		Statuses: append([]string(nil), model.FinalStatuses...),
	}
}

// Run は対象ステータスの行をアーカイブし、移動した件数を返す。
func (j *ArchiveJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	moved, err := j.archiver.ArchiveByStatus(ctx, j.Statuses)
	if err != nil {
		j.logger.Error("Inboxアーカイブジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Any("statuses", j.Statuses),
		)
		return 0, fmt.Errorf("Inboxアーカイブの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("Inboxアーカイブジョブが完了しました",
		slog.Int64("archived_count", moved),
		slog.Any("statuses", j.Statuses),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return moved, nil
}
