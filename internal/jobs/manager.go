package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tmdgh9898/yt-dlp-server/internal/config"
	"github.com/tmdgh9898/yt-dlp-server/internal/metrics"
	"github.com/tmdgh9898/yt-dlp-server/internal/progress"
	"github.com/tmdgh9898/yt-dlp-server/internal/storage"
	"github.com/tmdgh9898/yt-dlp-server/internal/ytdlp"
)

// Runner は外部ダウンロードツールを実行します。
type Runner interface {
	Name() string
	Run(ctx context.Context, p ytdlp.Params, onLine ytdlp.LineHandler) (int, error)
}

// Manager はジョブの作成と状態管理を担います。
type Manager struct {
	cfg     *config.Config
	runner  Runner
	files   *storage.Local
	store   *Store
	parser  progress.Parser
	metrics *metrics.Jobs
	logger  *zap.Logger
	newID   func() string

	wg sync.WaitGroup
}

// Option は Manager の任意設定です。
type Option func(*Manager)

// WithParser は進捗の抽出方法を差し替えます。
func WithParser(p progress.Parser) Option {
	return func(m *Manager) {
		if p != nil {
			m.parser = p
		}
	}
}

// WithMetrics はジョブのメトリクス出力先を設定します。
func WithMetrics(jm *metrics.Jobs) Option {
	return func(m *Manager) {
		m.metrics = jm
	}
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, runner Runner, files *storage.Local, store *Store, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if files == nil {
		return nil, errors.New("files is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		cfg:    cfg,
		runner: runner,
		files:  files,
		store:  store,
		parser: progress.Default,
		logger: logger.Named("jobs"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CreateJob はジョブを登録し、ダウンロードをバックグラウンドで開始します。
// 呼び出し元はダウンロードの完了を待たずにジョブIDを受け取ります。
func (m *Manager) CreateJob(ctx context.Context, referer, videoID, filename string) (string, error) {
	if strings.TrimSpace(referer) == "" || strings.TrimSpace(videoID) == "" || strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("%w: referer, video_id and filename are required", ErrInvalidInput)
	}
	if err := storage.ValidateName(filename); err != nil {
		return "", fmt.Errorf("%w: filename must be a plain file name", ErrInvalidInput)
	}

	target := storage.ArtifactName(filename)
	outputPath, err := m.files.Path(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	record := &Record{
		JobID:     m.newID(),
		Referer:   referer,
		VideoID:   videoID,
		SourceURL: m.SourceURL(videoID),
		Filename:  target,
		Status:    StatusDownloading,
		Progress:  0,
	}
	if err := m.store.Insert(record); err != nil {
		return "", err
	}
	m.metrics.JobStarted()

	m.logger.Info("job created",
		zap.String("job_id", record.JobID),
		zap.String("video_id", videoID),
		zap.String("filename", target),
	)

	m.wg.Add(1)
	go m.work(record.JobID, ytdlp.Params{
		SourceURL:  record.SourceURL,
		OutputPath: outputPath,
		Referer:    referer,
	})

	return record.JobID, nil
}

// GetStatus はジョブのスナップショットを返します。未知のIDには ErrJobNotFound を返します。
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*View, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, ErrJobNotFound
	}
	record, err := m.store.Get(jobID)
	if err != nil {
		return nil, err
	}

	view := &View{
		JobID:    record.JobID,
		Status:   record.Status,
		Progress: record.Progress,
		Filename: record.Filename,
	}
	switch record.Status {
	case StatusCompleted:
		view.DownloadURL = m.DownloadURL(record.Filename)
	case StatusError:
		view.Error = record.Error
	}
	return view, nil
}

// SourceURL は動画IDから HLS プレイリストのURLを組み立てます。
func (m *Manager) SourceURL(videoID string) string {
	return fmt.Sprintf("https://%s.b-cdn.net/%s/playlist.m3u8", m.cfg.CDNPrefix, url.PathEscape(videoID))
}

// DownloadURL は成果物を取得するためのURLを返します。
func (m *Manager) DownloadURL(filename string) string {
	base := strings.TrimRight(m.cfg.DownloadURLPrefix, "/")
	return fmt.Sprintf("%s/%s", base, url.PathEscape(filename))
}

// Wait は実行中のジョブがすべて終わるまで待ちます。
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown は実行中のジョブの終了を ctx の期限まで待ちます。ジョブは中断しません。
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
}
