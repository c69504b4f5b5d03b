package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"subtitle-flow/app/logger"
)

// 下载格式限制：优先 720p 以内的 mp4，避免无谓地拉高清大文件
const ytdlpFormat = "bestvideo[height<=720]+bestaudio/best[height<=720]/best"

// Downloader 远程视频下载器，包装外部 yt-dlp
type Downloader struct {
	ytdlp string
	log   *logger.Logger
}

// NewDownloader 创建下载器
func NewDownloader(ytdlpBinary string, log *logger.Logger) *Downloader {
	if ytdlpBinary == "" {
		ytdlpBinary = "yt-dlp"
	}
	return &Downloader{ytdlp: ytdlpBinary, log: log}
}

// Download 把远程视频下载到 outputDir 下，文件名以任务 ID 开头，
// 返回实际落盘的文件路径
func (d *Downloader) Download(ctx context.Context, url, outputDir, taskID string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建下载目录失败: %w", err)
	}

	template := filepath.Join(outputDir, taskID+".%(ext)s")
	cmd := exec.CommandContext(ctx, d.ytdlp,
		"--no-playlist",
		"--format", ytdlpFormat,
		"--merge-output-format", "mp4",
		"--output", template,
		url,
	)

	d.log.Infof("开始下载视频: %s", url)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("下载视频失败: %w: %s", err, lastLine(output))
	}

	// yt-dlp 自己决定扩展名，按任务 ID 前缀找到实际文件
	matches, err := filepath.Glob(filepath.Join(outputDir, taskID+".*"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("下载完成但找不到输出文件: %s", taskID)
	}
	// 跳过 yt-dlp 的中间产物
	for _, m := range matches {
		if !strings.HasSuffix(m, ".part") && !strings.HasSuffix(m, ".ytdl") {
			d.log.Infof("视频下载完成: %s", m)
			return m, nil
		}
	}
	return "", fmt.Errorf("下载目录中只有未完成的临时文件: %s", taskID)
}
