package jobs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertJob(t *testing.T, s *Store, id, filename string) {
	t.Helper()
	require.NoError(t, s.Insert(&Record{JobID: id, Filename: filename, Status: StatusDownloading}))
}

func TestStoreInsertAndGet(t *testing.T) {
	s := NewStore()
	insertJob(t, s, "job-1", "clip1.mp4")

	record, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, record.Status)
	assert.Equal(t, 0, record.Progress)
	assert.False(t, record.CreatedAt.IsZero())
	assert.Equal(t, 1, s.Len())

	// 返り値はコピーであり、変更しても保存内容に影響しない
	record.Progress = 80
	again, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Progress)
}

func TestStoreInsertDefaultsStatus(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(&Record{JobID: "job-1", Filename: "a.mp4"}))

	record, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, record.Status)
}

func TestStoreInsertRejects(t *testing.T) {
	s := NewStore()
	assert.Error(t, s.Insert(nil))
	assert.Error(t, s.Insert(&Record{Filename: "a.mp4"}))

	insertJob(t, s, "job-1", "a.mp4")
	assert.ErrorIs(t, s.Insert(&Record{JobID: "job-1", Filename: "b.mp4"}), ErrJobExists)
	assert.ErrorIs(t, s.Insert(&Record{JobID: "job-2", Filename: "a.mp4"}), ErrFilenameInUse)
}

func TestStoreFilenameReleasedAfterTerminal(t *testing.T) {
	s := NewStore()
	insertJob(t, s, "job-1", "a.mp4")
	require.NoError(t, s.MarkFailed("job-1", "boom"))

	insertJob(t, s, "job-2", "a.mp4")
	require.NoError(t, s.MarkDone("job-2"))

	insertJob(t, s, "job-3", "a.mp4")
}

func TestStoreGetNotFound(t *testing.T) {
	_, err := NewStore().Get("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStoreUpdateProgress(t *testing.T) {
	s := NewStore()
	insertJob(t, s, "job-1", "a.mp4")

	steps := []struct {
		percent int
		want    int
	}{
		{percent: 10, want: 10},
		{percent: 55, want: 55},
		{percent: 20, want: 55},
		{percent: 100, want: 99},
		{percent: -3, want: 99},
	}
	for _, step := range steps {
		require.NoError(t, s.UpdateProgress("job-1", step.percent))
		record, err := s.Get("job-1")
		require.NoError(t, err)
		assert.Equal(t, step.want, record.Progress, "after %d", step.percent)
		assert.Equal(t, StatusDownloading, record.Status)
	}

	assert.ErrorIs(t, s.UpdateProgress("missing", 10), ErrJobNotFound)
}

func TestStoreMarkDone(t *testing.T) {
	s := NewStore()
	insertJob(t, s, "job-1", "a.mp4")
	require.NoError(t, s.UpdateProgress("job-1", 40))
	require.NoError(t, s.MarkDone("job-1"))

	record, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, record.Status)
	assert.Equal(t, 100, record.Progress)
	assert.Empty(t, record.Error)
	assert.False(t, record.FinishedAt.IsZero())
}

func TestStoreMarkFailed(t *testing.T) {
	s := NewStore()
	insertJob(t, s, "job-1", "a.mp4")
	insertJob(t, s, "job-2", "b.mp4")

	require.NoError(t, s.MarkFailed("job-1", "yt-dlp exited with 1"))
	require.NoError(t, s.MarkFailed("job-2", ""))

	first, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, first.Status)
	assert.Equal(t, "yt-dlp exited with 1", first.Error)

	second, err := s.Get("job-2")
	require.NoError(t, err)
	assert.Equal(t, "download failed", second.Error)
}

func TestStoreTerminalIsFinal(t *testing.T) {
	s := NewStore()
	insertJob(t, s, "done", "a.mp4")
	insertJob(t, s, "failed", "b.mp4")
	require.NoError(t, s.MarkDone("done"))
	require.NoError(t, s.MarkFailed("failed", "boom"))

	assert.ErrorIs(t, s.MarkFailed("done", "late"), ErrJobFinished)
	assert.ErrorIs(t, s.UpdateProgress("done", 10), ErrJobFinished)
	assert.ErrorIs(t, s.MarkDone("failed"), ErrJobFinished)

	done, _ := s.Get("done")
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)

	failed, _ := s.Get("failed")
	assert.Equal(t, StatusError, failed.Status)
	assert.Equal(t, "boom", failed.Error)
}

func TestStoreConcurrentReadersAndWriter(t *testing.T) {
	s := NewStore()
	insertJob(t, s, "job-1", "a.mp4")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for p := 0; p <= 99; p++ {
			_ = s.UpdateProgress("job-1", p)
		}
		_ = s.MarkDone("job-1")
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for j := 0; j < 200; j++ {
				record, err := s.Get("job-1")
				if err != nil {
					t.Error(err)
					return
				}
				if record.Progress < last {
					t.Errorf("progress went backwards: %d -> %d", last, record.Progress)
					return
				}
				last = record.Progress
			}
		}()
	}
	wg.Wait()

	record, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, record.Status)
}
