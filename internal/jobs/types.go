package jobs

import (
	"errors"
	"time"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// Terminal は終端状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrJobNotFound   = errors.New("job not found")
	ErrJobExists     = errors.New("job already exists")
	ErrFilenameInUse = errors.New("filename is in use by an active job")
	ErrJobFinished   = errors.New("job already finished")
)

// Record はジョブの現在状態を表します。
type Record struct {
	JobID      string    `json:"jobId"`
	Referer    string    `json:"referer"`
	VideoID    string    `json:"videoId"`
	SourceURL  string    `json:"sourceUrl"`
	Filename   string    `json:"filename"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// View はステータス問い合わせに返すスナップショットです。
type View struct {
	JobID       string `json:"job_id"`
	Status      Status `json:"status"`
	Progress    int    `json:"progress"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url,omitempty"`
	Error       string `json:"error,omitempty"`
}
