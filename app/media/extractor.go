package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Extractor 音频提取器，调用外部 ffmpeg 把视频里的音轨抽成 wav
type Extractor struct {
	ffmpeg string
}

// NewExtractor 创建音频提取器
func NewExtractor(ffmpegBinary string) *Extractor {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Extractor{ffmpeg: ffmpegBinary}
}

// ExtractAudio 把视频的音轨提取为 16kHz 单声道 wav，转写引擎要求这个采样格式
func (e *Extractor) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("视频文件不存在: %s", videoPath)
	}
	if err := os.MkdirAll(filepath.Dir(audioPath), 0755); err != nil {
		return fmt.Errorf("创建音频输出目录失败: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.ffmpeg,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		audioPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// 失败时清掉可能的半成品
		os.Remove(audioPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("提取音频失败: %w: %s", err, lastLine(output))
	}
	return nil
}

// lastLine 取命令输出的最后一行非空内容，ffmpeg 的错误原因通常在结尾
func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
