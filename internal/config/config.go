// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // ログレベル (debug, info, warn, error)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ダウンロード設定
	DownloadDir       string // 成果物の保存先ディレクトリ
	DownloadURLPrefix string // 成果物を公開するURLパス
	YtDlpPath         string // yt-dlp 実行ファイルのパス
	CDNPrefix         string // HLS 配信元 CDN のホスト名プレフィックス

	// 静的ファイル
	StaticDir string // トップページと /static を配信するディレクトリ（空なら無効）

	ShutdownTimeoutSeconds int // 終了時に実行中ジョブを待つ秒数
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		DownloadDir:       getEnv("DOWNLOAD_DIR", "./downloads"),
		DownloadURLPrefix: getEnv("DOWNLOAD_URL_PREFIX", "/downloads"),
		YtDlpPath:         getEnv("YTDLP_PATH", "yt-dlp"),
		CDNPrefix:         getEnv("CDN_PREFIX", "vz-f9765c3e-82b"),

		StaticDir: getEnv("STATIC_DIR", ""),

		ShutdownTimeoutSeconds: getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 30),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// reservedPathSegments は API が使う先頭パスです。
var reservedPathSegments = []string{"download", "status", "video", "static", "health", "metrics"}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DownloadDir) == "" {
		return fmt.Errorf("DOWNLOAD_DIR is required")
	}
	if strings.TrimSpace(c.YtDlpPath) == "" {
		return fmt.Errorf("YTDLP_PATH is required")
	}
	if !strings.HasPrefix(c.DownloadURLPrefix, "/") {
		return fmt.Errorf("DOWNLOAD_URL_PREFIX must start with '/' (got %q)", c.DownloadURLPrefix)
	}
	// API のルートと重なるとルーター登録時に panic する
	segment, _, _ := strings.Cut(strings.Trim(c.DownloadURLPrefix, "/"), "/")
	if segment == "" {
		return fmt.Errorf("DOWNLOAD_URL_PREFIX must not be the root path")
	}
	for _, reserved := range reservedPathSegments {
		if segment == reserved {
			return fmt.Errorf("DOWNLOAD_URL_PREFIX %q conflicts with the /%s route", c.DownloadURLPrefix, reserved)
		}
	}
	if c.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SECONDS must not be negative")
	}

	// 本番環境では CORS の全許可を禁止する
	if c.GinMode == "release" && strings.TrimSpace(c.CORSAllowedOrigins) == "*" {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must list explicit origins in release mode")
	}

	return nil
}

// ShutdownTimeout は終了待ち時間を返します。
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
