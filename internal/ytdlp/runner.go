// Package ytdlp は yt-dlp をサブプロセスとして起動し、出力を行単位で受け渡します。
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultBinary は既定の実行ファイル名です。
const DefaultBinary = "yt-dlp"

// 1行あたりの最大長。これを超える行は読み捨てる。
const maxLineBytes = 1024 * 1024

// Params はダウンロード1件分の入力です。
type Params struct {
	SourceURL  string
	OutputPath string
	Referer    string
}

// LineHandler は出力行ごとに呼ばれます。呼び出し順は出力順と一致します。
type LineHandler func(line string)

// Runner は yt-dlp を起動するための設定を保持します。
type Runner struct {
	binary string
	logger *zap.Logger
}

// NewRunner は Runner を作成します。binary が空の場合は DefaultBinary を使います。
func NewRunner(binary string, logger *zap.Logger) *Runner {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{binary: binary, logger: logger.Named("ytdlp")}
}

// Name はエラーメッセージに使うツール名を返します。
func (r *Runner) Name() string {
	return filepath.Base(r.binary)
}

// Args は yt-dlp に渡す引数を組み立てます。
func Args(p Params) []string {
	return []string{
		"-o", p.OutputPath,
		"--referer", p.Referer,
		"--hls-use-mpegts",
		"--newline",
		p.SourceURL,
	}
}

// Run は yt-dlp を起動し、終了するまで出力を onLine に渡します。
// プロセスが起動できなかった場合や出力の読み取りに失敗した場合は error を返し、
// それ以外は終了コードを返します。
func (r *Runner) Run(ctx context.Context, p Params, onLine LineHandler) (int, error) {
	r.logger.Debug("starting download",
		zap.String("source", p.SourceURL),
		zap.String("output", p.OutputPath),
	)
	return runLines(ctx, r.binary, Args(p), func(line string) {
		r.logger.Debug("output", zap.String("line", line))
		if onLine != nil {
			onLine(line)
		}
	})
}

// runLines は任意のコマンドを標準出力・標準エラーをまとめた状態で実行します。
func runLines(ctx context.Context, name string, args []string, onLine LineHandler) (int, error) {
	pr, pw := io.Pipe()
	defer pr.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return -1, errors.Wrapf(err, "failed to start %s", filepath.Base(name))
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waitErr <- err
	}()

	scanErr := scanLines(pr, onLine)
	if scanErr != nil {
		// 以降の出力は読まない。書き込み側は EPIPE で終了する。
		pr.CloseWithError(scanErr)
	}

	err := <-waitErr

	if scanErr != nil {
		return -1, errors.Wrapf(scanErr, "failed to read %s output", filepath.Base(name))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, errors.Wrapf(err, "%s did not exit cleanly", filepath.Base(name))
	}
	return 0, nil
}

// scanLines は r を行ごとに onLine へ渡します。onLine の panic は error として返します。
func scanLines(r io.Reader, onLine LineHandler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("line handler panicked: %v", rec)
		}
	}()

	var splitter lineSplitter
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	scanner.Split(splitter.split)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		onLine(line)
	}
	return scanner.Err()
}

// splitLines は "\n" と "\r" のどちらでも行を区切ります。
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lineSplitter は splitLines に加えて maxLineBytes を超える行を読み捨てます。
// 読み捨てた部分は空行として返します。
type lineSplitter struct {
	discarding bool
}

func (s *lineSplitter) split(data []byte, atEOF bool) (int, []byte, error) {
	if s.discarding {
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			s.discarding = false
			return i + 1, data[:0], nil
		}
		if len(data) == 0 {
			return 0, nil, nil
		}
		return len(data), data[:0], nil
	}

	advance, token, err := splitLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= maxLineBytes {
		s.discarding = true
		return len(data), data[:0], nil
	}
	return advance, token, err
}
