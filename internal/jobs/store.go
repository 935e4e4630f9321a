package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/tmdgh9898/yt-dlp-server/internal/progress"
)

// 完了前に到達できる最大値。100 は完了時にのみ設定する。
const maxRunningProgress = 99

// Store はジョブ状態をプロセス内のメモリに保持します。
// 各ジョブの書き込みはそのジョブのワーカーのみが行い、読み取りは並行に行えます。
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	active  map[string]string // 保存ファイル名 -> 実行中のジョブID
	now     func() time.Time
}

// NewStore は Store を作成します。
func NewStore() *Store {
	return &Store{
		records: make(map[string]*Record),
		active:  make(map[string]string),
		now:     time.Now,
	}
}

// Insert は新しいジョブを保存します。
// 同じ保存ファイル名を持つ実行中ジョブがある場合は ErrFilenameInUse を返します。
func (s *Store) Insert(record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.JobID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, record.JobID)
	}
	if owner, ok := s.active[record.Filename]; ok {
		return fmt.Errorf("%w: %s (job %s)", ErrFilenameInUse, record.Filename, owner)
	}

	now := s.now().UTC()
	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = StatusDownloading
	}
	s.records[stored.JobID] = &stored
	if !stored.Status.Terminal() {
		s.active[stored.Filename] = stored.JobID
	}
	return nil
}

// Get はジョブ情報のコピーを返します。
func (s *Store) Get(jobID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	snapshot := *record
	return &snapshot, nil
}

// Len は保持しているジョブ数を返します。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// UpdateProgress は進捗を更新します。
// 値は [0, 99] に丸め、現在値より小さい値は無視します。
func (s *Store) UpdateProgress(jobID string, percent int) error {
	percent = progress.Clamp(percent, 0, maxRunningProgress)
	return s.updatePartial(jobID, func(record *Record) {
		if percent > record.Progress {
			record.Progress = percent
		}
	})
}

// MarkDone はジョブを完了状態にします。
func (s *Store) MarkDone(jobID string) error {
	return s.updatePartial(jobID, func(record *Record) {
		record.Status = StatusCompleted
		record.Progress = 100
		record.Error = ""
		record.FinishedAt = s.now().UTC()
	})
}

// MarkFailed はジョブを失敗状態にします。message が空の場合は既定の文言を使います。
func (s *Store) MarkFailed(jobID string, message string) error {
	if message == "" {
		message = "download failed"
	}
	return s.updatePartial(jobID, func(record *Record) {
		record.Status = StatusError
		record.Error = message
		record.FinishedAt = s.now().UTC()
	})
}

// updatePartial は実行中のジョブにのみ mutate を適用します。
func (s *Store) updatePartial(jobID string, mutate func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if record.Status.Terminal() {
		return fmt.Errorf("%w: %s (%s)", ErrJobFinished, jobID, record.Status)
	}
	mutate(record)
	record.UpdatedAt = s.now().UTC()
	if record.Status.Terminal() && s.active[record.Filename] == jobID {
		delete(s.active, record.Filename)
	}
	return nil
}
