package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"subtitle-flow/app/config"
	"subtitle-flow/app/logger"

	"github.com/disintegration/imaging"
)

// Analyzer 视频帧 OCR 分析器。按固定间隔抽帧，预处理后交给外部
// tesseract 识别。整条链路是尽力而为的，任何一帧失败都只是跳过。
type Analyzer struct {
	ffmpeg    string
	tesseract string
	maxFrames int
	interval  int
	log       *logger.Logger
}

// NewAnalyzer 创建 OCR 分析器
func NewAnalyzer(ffmpegBinary string, cfg config.OCRConfig, log *logger.Logger) *Analyzer {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	tesseract := cfg.TesseractBinary
	if tesseract == "" {
		tesseract = "tesseract"
	}
	maxFrames := cfg.MaxFrames
	if maxFrames <= 0 {
		maxFrames = 20
	}
	interval := cfg.FrameInterval
	if interval <= 0 {
		interval = 30
	}
	return &Analyzer{
		ffmpeg:    ffmpegBinary,
		tesseract: tesseract,
		maxFrames: maxFrames,
		interval:  interval,
		log:       log,
	}
}

// AnalyzeFrames 抽帧并识别画面中的文字，返回拼接后的识别结果。
// 画面里没有可识别文字时返回空串，不算错误。
func (a *Analyzer) AnalyzeFrames(ctx context.Context, videoPath string) (string, error) {
	frameDir, err := os.MkdirTemp("", "subtitle-flow-ocr-*")
	if err != nil {
		return "", fmt.Errorf("创建抽帧目录失败: %w", err)
	}
	defer os.RemoveAll(frameDir)

	// 按 interval 秒一帧抽样
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%d", a.interval),
		"-frames:v", fmt.Sprintf("%d", a.maxFrames),
		filepath.Join(frameDir, "frame_%03d.png"),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("抽帧失败: %w: %s", err, tailOf(output))
	}

	frames, err := filepath.Glob(filepath.Join(frameDir, "frame_*.png"))
	if err != nil || len(frames) == 0 {
		return "", fmt.Errorf("没有抽到任何帧: %s", videoPath)
	}
	sort.Strings(frames)

	var texts []string
	seen := make(map[string]struct{})
	for _, frame := range frames {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		text, err := a.recognizeFrame(ctx, frame)
		if err != nil {
			a.log.Warnf("识别帧失败，已跳过: %s: %v", filepath.Base(frame), err)
			continue
		}
		// 相邻帧常常是同一画面，去重
		if text == "" {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		texts = append(texts, text)
	}

	return strings.Join(texts, "\n"), nil
}

// recognizeFrame 预处理单帧后交给 tesseract 识别
func (a *Analyzer) recognizeFrame(ctx context.Context, framePath string) (string, error) {
	img, err := imaging.Open(framePath)
	if err != nil {
		return "", fmt.Errorf("打开帧图片失败: %w", err)
	}

	// 灰度化并放大到固定宽度，提升小字的识别率
	processed := imaging.Grayscale(img)
	if processed.Bounds().Dx() < 1280 {
		processed = imaging.Resize(processed, 1280, 0, imaging.Lanczos)
	}
	if err := imaging.Save(processed, framePath); err != nil {
		return "", fmt.Errorf("保存预处理帧失败: %w", err)
	}

	// tesseract 输出到 stdout
	cmd := exec.CommandContext(ctx, a.tesseract, framePath, "stdout")
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("tesseract 执行失败: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// tailOf 截取命令输出末尾
func tailOf(output []byte) string {
	s := strings.TrimSpace(string(output))
	const limit = 256
	if len(s) > limit {
		return "..." + s[len(s)-limit:]
	}
	return s
}
