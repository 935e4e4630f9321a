// Package jobs はダウンロードジョブの作成、実行、状態管理を提供します。
package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tmdgh9898/yt-dlp-server/internal/ytdlp"
)

// work は1ジョブ分のダウンロードを実行し、終端状態を記録します。
// ジョブの失敗はこの関数の外に伝播させない。
func (m *Manager) work(jobID string, params ytdlp.Params) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.fail(jobID, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	logger := m.logger.With(zap.String("job_id", jobID))

	// リクエストのキャンセルとは切り離して最後まで実行する。
	code, err := m.runner.Run(context.Background(), params, func(line string) {
		percent, ok := m.parser.Parse(line)
		if !ok {
			return
		}
		if err := m.store.UpdateProgress(jobID, percent); err != nil {
			logger.Warn("failed to update progress", zap.Error(err))
		}
	})
	if err != nil {
		m.fail(jobID, err.Error())
		return
	}
	if code != 0 {
		m.fail(jobID, fmt.Sprintf("%s exited with %d", m.runner.Name(), code))
		return
	}
	m.complete(jobID)
}

func (m *Manager) complete(jobID string) {
	if err := m.store.MarkDone(jobID); err != nil {
		m.logger.Error("failed to mark job done", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	m.metrics.JobFinished(string(StatusCompleted))
	m.logger.Info("job completed", zap.String("job_id", jobID))
}

func (m *Manager) fail(jobID, message string) {
	if err := m.store.MarkFailed(jobID, message); err != nil {
		m.logger.Error("failed to mark job failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	m.metrics.JobFinished(string(StatusError))
	m.logger.Warn("job failed", zap.String("job_id", jobID), zap.String("error", message))
}
