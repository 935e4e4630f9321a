package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tmdgh9898/yt-dlp-server/internal/config"
	"github.com/tmdgh9898/yt-dlp-server/internal/jobs"
	"github.com/tmdgh9898/yt-dlp-server/internal/metrics"
	"github.com/tmdgh9898/yt-dlp-server/internal/storage"
	"github.com/tmdgh9898/yt-dlp-server/internal/ytdlp"
)

const defaultVideoContentType = "video/mp4"

// jobService はハンドラーが利用するジョブ操作です。
type jobService interface {
	CreateJob(ctx context.Context, referer, videoID, filename string) (string, error)
	GetStatus(ctx context.Context, jobID string) (*jobs.View, error)
}

func setupJobs(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*jobs.Manager, *storage.Local, error) {
	files, err := storage.NewLocal(cfg.DownloadDir)
	if err != nil {
		return nil, nil, err
	}

	runner := ytdlp.NewRunner(cfg.YtDlpPath, logger)
	manager, err := jobs.NewManager(cfg, runner, files, jobs.NewStore(), logger,
		jobs.WithMetrics(metrics.NewJobs(reg)),
	)
	if err != nil {
		return nil, nil, err
	}
	return manager, files, nil
}

type downloadRequest struct {
	Referer  string `json:"referer" form:"referer" binding:"required"`
	VideoID  string `json:"video_id" form:"video_id" binding:"required"`
	Filename string `json:"filename" form:"filename" binding:"required"`
}

// downloadHandler は POST /download のハンドラーです。ダウンロードの完了は待ちません。
func downloadHandler(svc jobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req downloadRequest
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "referer, video_id and filename are required",
			})
			return
		}

		jobID, err := svc.CreateJob(c.Request.Context(), req.Referer, req.VideoID, req.Filename)
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrInvalidInput):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, jobs.ErrFilenameInUse):
				c.JSON(http.StatusConflict, gin.H{"error": "another download is already writing this file"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start download"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"job_id": jobID})
	}
}

// jobStatusHandler は GET /status/:job_id のハンドラーです。
func jobStatusHandler(svc jobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := svc.GetStatus(c.Request.Context(), c.Param("job_id"))
		if err != nil {
			if errors.Is(err, jobs.ErrJobNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Invalid job_id"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
			return
		}

		payload := gin.H{
			"status":   view.Status,
			"progress": view.Progress,
			"filename": view.Filename,
		}
		if view.DownloadURL != "" {
			payload["download_url"] = view.DownloadURL
		}
		if view.Error != "" {
			payload["error"] = view.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}

// videoHandler は GET /video/:filename のハンドラーです。
func videoHandler(files *storage.Local) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("filename")

		file, info, err := files.Open(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
			return
		}
		defer file.Close()

		contentType, err := detectVideoType(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
			return
		}

		c.Header("Cache-Control", "no-store")
		c.DataFromReader(http.StatusOK, info.Size(), contentType, file, map[string]string{
			"Content-Disposition": contentDisposition(name),
		})
	}
}

// contentDisposition はユーザー指定のファイル名を引用符付きで安全に埋め込みます。
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

// detectVideoType はファイル先頭から種別を判定し、読み取り位置を先頭に戻します。
// 動画と判定できない場合は video/mp4 とみなします。
func detectVideoType(file io.ReadSeeker) (string, error) {
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if strings.HasPrefix(mtype.String(), "video/") {
		return mtype.String(), nil
	}
	return defaultVideoContentType, nil
}
