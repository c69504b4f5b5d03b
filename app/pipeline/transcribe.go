package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"subtitle-flow/app/engine"
	"subtitle-flow/app/subtitle"
)

// TranscribeOptions 转写流水线的请求参数
type TranscribeOptions struct {
	Engine           string `json:"engine"`             // whisper 或 assemblyai，空值用配置默认
	ModelSize        string `json:"model_size"`         // whisper 模型规格
	Language         string `json:"language"`           // 语言覆盖，空值自动检测
	SubtitleFormat   string `json:"subtitle_format"`    // srt、json 或 txt
	TranslateEnglish bool   `json:"translate_english"`  // 是否额外产出英文字幕
	AssemblyAIKey    string `json:"assemblyai_api_key"` // 远端引擎凭据
}

// Transcription 转写流水线：提取音频 → 转写 → 收尾 →（可选）英文翻译。
// 外部协作方以函数字段注入，测试时可以整体替换。
type Transcription struct {
	OutputDir string

	// ExtractAudio 把视频的音轨提取为 wav
	ExtractAudio func(ctx context.Context, videoPath, audioPath string) error
	// NewEngine 按请求参数创建转写引擎
	NewEngine func(opts TranscribeOptions) (engine.Transcriber, error)
	// FetchSource 从 HTTP 直链下载源视频到指定路径
	FetchSource func(ctx context.Context, url, savePath string) error
}

// StepsWithFetch 在标准转写步骤前插入一步远程下载，
// 用于源视频还不在本地的直链转写任务。
func (p *Transcription) StepsWithFetch(url, savePath string, opts TranscribeOptions) []Step {
	fetch := Step{
		Name:     "fetch-source",
		Progress: 5,
		Message:  "Fetching source video...",
		Run: func(ctx context.Context, st *State) error {
			if err := p.FetchSource(ctx, url, savePath); err != nil {
				return err
			}
			st.InputPath = savePath
			st.AddIntermediate(savePath)
			return nil
		},
	}
	return append([]Step{fetch}, p.Steps(opts)...)
}

// Steps 按请求参数装配转写流水线的步骤序列。
// 进度检查点固定为 10/30/80（可选 90），观察者可以渲染确定性进度条。
func (p *Transcription) Steps(opts TranscribeOptions) []Step {
	steps := []Step{
		{
			Name:     "extract-audio",
			Progress: 10,
			Message:  "Extracting audio...",
			Run: func(ctx context.Context, st *State) error {
				audioPath := filepath.Join(p.OutputDir, st.TaskID+".wav")
				if err := p.ExtractAudio(ctx, st.InputPath, audioPath); err != nil {
					return err
				}
				st.AudioPath = audioPath
				st.AddIntermediate(audioPath)
				return nil
			},
		},
		{
			Name:     "transcribe",
			Progress: 30,
			Message:  "Generating subtitles...",
			Run: func(ctx context.Context, st *State) error {
				eng, err := p.NewEngine(opts)
				if err != nil {
					return err
				}
				result, err := eng.Transcribe(ctx, st.AudioPath, engine.Options{
					Language:  opts.Language,
					ModelSize: opts.ModelSize,
				})
				if err != nil {
					return err
				}
				st.Transcription = result
				st.Segments = subtitle.WindowSegments(result.Tokens, subtitle.DefaultGapThreshold)
				return nil
			},
		},
		{
			Name:     "finalize",
			Progress: 80,
			Message:  "Finalizing...",
			Run: func(ctx context.Context, st *State) error {
				name := st.TaskID + "." + opts.SubtitleFormat
				doc := &subtitle.Document{
					Text:     st.Transcription.Text,
					Language: st.Transcription.Language,
					Segments: st.Segments,
				}
				if err := subtitle.Write(filepath.Join(p.OutputDir, name), opts.SubtitleFormat, doc); err != nil {
					return err
				}
				st.Result = map[string]any{"subtitle": name}
				return nil
			},
		},
	}

	// 源语言已经是英文时翻译没有意义，跳过
	if opts.TranslateEnglish && engine.NormalizeLanguage(opts.Language) != "en" {
		steps = append(steps, Step{
			Name:     "translate-english",
			Progress: 90,
			Message:  "Translating to English...",
			Run: func(ctx context.Context, st *State) error {
				eng, err := p.NewEngine(opts)
				if err != nil {
					return err
				}
				result, err := eng.Transcribe(ctx, st.AudioPath, engine.Options{
					ModelSize: opts.ModelSize,
					Translate: true,
				})
				if err != nil {
					return err
				}

				name := st.TaskID + ".en.srt"
				doc := &subtitle.Document{
					Text:     result.Text,
					Language: "en",
					Segments: subtitle.WindowSegments(result.Tokens, subtitle.DefaultGapThreshold),
				}
				if err := subtitle.Write(filepath.Join(p.OutputDir, name), subtitle.FormatSRT, doc); err != nil {
					return err
				}
				st.Result["english_subtitle"] = name
				return nil
			},
		})
	}

	return steps
}

// Normalize 校验并补全转写请求参数
func (o *TranscribeOptions) Normalize(defaultEngine string) error {
	if o.Engine == "" {
		o.Engine = defaultEngine
	}
	switch o.Engine {
	case engine.EngineWhisper, engine.EngineAssemblyAI:
	default:
		return fmt.Errorf("未知的转写引擎: %s", o.Engine)
	}

	if o.SubtitleFormat == "" {
		o.SubtitleFormat = subtitle.FormatSRT
	}
	if !subtitle.ValidFormat(o.SubtitleFormat) {
		return fmt.Errorf("不支持的字幕格式: %s", o.SubtitleFormat)
	}
	return nil
}
