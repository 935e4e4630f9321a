// Package storage はダウンロード成果物を置くローカルディレクトリを扱います。
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactExt は成果物ファイルの拡張子です。
const ArtifactExt = ".mp4"

// ErrInvalidName はパス要素として使えない名前を表します。
var ErrInvalidName = errors.New("invalid file name")

// Local はダウンロードディレクトリ配下のファイルを管理します。
type Local struct {
	dir string
}

// NewLocal はディレクトリを作成したうえで Local を返します。
func NewLocal(dir string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("download directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Dir はダウンロードディレクトリを返します。
func (l *Local) Dir() string {
	return l.dir
}

// ArtifactName は利用者が指定した名前から保存ファイル名を作ります。
func ArtifactName(name string) string {
	return name + ArtifactExt
}

// ValidateName は name が単一のパス要素であることを確認します。
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == "." || trimmed == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return ErrInvalidName
	}
	return nil
}

// Path は保存ファイル名に対応するダウンロードディレクトリ内のパスを返します。
func (l *Local) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(l.dir, name), nil
}

// Open は成果物ファイルを開きます。存在しない場合は fs.ErrNotExist を返します。
func (l *Local) Open(name string) (*os.File, fs.FileInfo, error) {
	path, err := l.Path(name)
	if err != nil {
		return nil, nil, fs.ErrNotExist
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, nil, fs.ErrNotExist
	}
	return file, info, nil
}
