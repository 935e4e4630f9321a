package ytdlp

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestArgs(t *testing.T) {
	args := Args(Params{
		SourceURL:  "https://cdn.example/abc/playlist.m3u8",
		OutputPath: "downloads/clip1.mp4",
		Referer:    "https://example.com/watch",
	})

	assert.Equal(t, []string{
		"-o", "downloads/clip1.mp4",
		"--referer", "https://example.com/watch",
		"--hls-use-mpegts",
		"--newline",
		"https://cdn.example/abc/playlist.m3u8",
	}, args)
}

func TestRunnerName(t *testing.T) {
	assert.Equal(t, "yt-dlp", NewRunner("", nil).Name())
	assert.Equal(t, "yt-dlp", NewRunner("/usr/local/bin/yt-dlp", nil).Name())
}

func TestRunLinesOrderAndExitCode(t *testing.T) {
	var lines []string
	code, err := runLines(context.Background(), "sh",
		[]string{"-c", `printf '[download]  10.0%%\n\n[download]  55.0%%\r[download] 100%%\n'; echo oops >&2; exit 0`},
		func(line string) { lines = append(lines, line) },
	)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{
		"[download]  10.0%",
		"[download]  55.0%",
		"[download] 100%",
		"oops",
	}, lines)
}

func TestRunLinesNonZeroExit(t *testing.T) {
	var lines []string
	code, err := runLines(context.Background(), "sh",
		[]string{"-c", "echo 'ERROR: unable to download'; exit 3"},
		func(line string) { lines = append(lines, line) },
	)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, []string{"ERROR: unable to download"}, lines)
}

func TestRunLinesTrailingLineWithoutNewline(t *testing.T) {
	var lines []string
	_, err := runLines(context.Background(), "sh",
		[]string{"-c", "printf 'last 42%%'"},
		func(line string) { lines = append(lines, line) },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"last 42%"}, lines)
}

func TestRunMissingBinary(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-yt-dlp")
	r := NewRunner(missing, zap.NewNop())

	code, err := r.Run(context.Background(), Params{
		SourceURL:  "https://cdn.example/x/playlist.m3u8",
		OutputPath: filepath.Join(t.TempDir(), "x.mp4"),
		Referer:    "https://example.com",
	}, nil)
	require.Error(t, err)
	assert.Equal(t, -1, code)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to start no-such-yt-dlp"), err.Error())
}

func TestSplitLines(t *testing.T) {
	advance, token, err := splitLines([]byte("abc\rdef"), false)
	require.NoError(t, err)
	assert.Equal(t, 4, advance)
	assert.Equal(t, "abc", string(token))

	advance, token, err = splitLines([]byte("partial"), false)
	require.NoError(t, err)
	assert.Equal(t, 0, advance)
	assert.Nil(t, token)

	advance, token, err = splitLines([]byte("partial"), true)
	require.NoError(t, err)
	assert.Equal(t, 7, advance)
	assert.Equal(t, "partial", string(token))
}

func TestRunLinesHandlerPanicStopsProcess(t *testing.T) {
	type result struct {
		code int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, err := runLines(context.Background(), "sh",
			[]string{"-c", "while true; do echo '[download] 10%'; done"},
			func(line string) { panic("bad parser") },
		)
		done <- result{code: code, err: err}
	}()

	select {
	case res := <-done:
		require.Error(t, res.err)
		assert.Equal(t, -1, res.code)
		assert.Contains(t, res.err.Error(), "bad parser")
	case <-time.After(10 * time.Second):
		t.Fatal("runLines did not return after the line handler panicked")
	}
}

func TestScanLinesSkipsOversizedLine(t *testing.T) {
	input := strings.Repeat("x", 2*maxLineBytes) + "99%\n[download]  50.0%\n"

	var lines []string
	err := scanLines(strings.NewReader(input), func(line string) { lines = append(lines, line) })
	require.NoError(t, err)
	assert.Equal(t, []string{"[download]  50.0%"}, lines)
}

func TestScanLinesOversizedTrailingLine(t *testing.T) {
	input := "first\n" + strings.Repeat("x", maxLineBytes+10)

	var lines []string
	err := scanLines(strings.NewReader(input), func(line string) { lines = append(lines, line) })
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, lines)
}
