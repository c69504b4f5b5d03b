package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subtitle-flow/app/config"
	"subtitle-flow/app/logger"
	"subtitle-flow/app/model"
)

// whisper CLI 认识的模型规格，未知规格回退到 base
var whisperModelSizes = map[string]struct{}{
	"tiny": {}, "base": {}, "small": {}, "medium": {},
	"large": {}, "large-v2": {}, "large-v3": {},
}

// WhisperTranscriber 本地 whisper 引擎，通过外部 whisper 命令行转写，
// 解析其 JSON 输出得到词级时间戳
type WhisperTranscriber struct {
	binary       string
	defaultModel string
	log          *logger.Logger
}

// NewWhisperTranscriber 创建本地 whisper 引擎
func NewWhisperTranscriber(cfg config.TranscribeConfig, log *logger.Logger) *WhisperTranscriber {
	return &WhisperTranscriber{
		binary:       cfg.WhisperBinary,
		defaultModel: cfg.DefaultModelSize,
		log:          log,
	}
}

// Transcribe 调用 whisper 命令行转写音频
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("音频文件不存在: %s", audioPath)
	}

	modelSize := opts.ModelSize
	if modelSize == "" {
		modelSize = w.defaultModel
	}
	if _, ok := whisperModelSizes[modelSize]; !ok {
		w.log.Warnf("未知的模型规格 %s，回退到 base", modelSize)
		modelSize = "base"
	}

	outDir, err := os.MkdirTemp("", "subtitle-flow-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		audioPath,
		"--model", modelSize,
		"--output_format", "json",
		"--output_dir", outDir,
		"--word_timestamps", "True",
		"--verbose", "False",
	}
	if lang := NormalizeLanguage(opts.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if opts.Translate {
		args = append(args, "--task", "translate")
	}

	w.log.Infof("whisper 转写开始: %s (模型 %s)", audioPath, modelSize)
	if _, err := runCommand(ctx, w.binary, args...); err != nil {
		return nil, fmt.Errorf("whisper 执行失败: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("读取 whisper 输出失败: %w", err)
	}

	result, err := parseWhisperOutput(data)
	if err != nil {
		return nil, err
	}
	if opts.Translate {
		result.Language = "en"
	}
	w.log.Infof("whisper 转写完成: 语言 %s, %d 个词", result.Language, len(result.Tokens))
	return result, nil
}

// whisper CLI 的 JSON 输出结构
type whisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []whisperWord `json:"words"`
}

type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// parseWhisperOutput 解析 whisper 的 JSON 输出。优先使用词级时间戳，
// 模型没给出词级信息时退化为每个段落一个词
func parseWhisperOutput(data []byte) (*Result, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("解析 whisper 输出失败: %w", err)
	}

	result := &Result{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
	}
	for _, seg := range out.Segments {
		if len(seg.Words) == 0 {
			if text := strings.TrimSpace(seg.Text); text != "" {
				result.Tokens = append(result.Tokens, model.Token{
					Text:  text,
					Start: seg.Start,
					End:   seg.End,
				})
			}
			continue
		}
		for _, word := range seg.Words {
			if text := strings.TrimSpace(word.Word); text != "" {
				result.Tokens = append(result.Tokens, model.Token{
					Text:  text,
					Start: word.Start,
					End:   word.End,
				})
			}
		}
	}
	return result, nil
}
