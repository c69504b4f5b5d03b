package engine

import (
	"context"
	"fmt"
	"strings"

	"subtitle-flow/app/config"
	"subtitle-flow/app/logger"
	"subtitle-flow/app/model"

	"golang.org/x/text/language"
)

// 引擎名称
const (
	EngineWhisper    = "whisper"
	EngineAssemblyAI = "assemblyai"
)

// Options 一次转写请求的参数
type Options struct {
	Language  string // 语言代码，空值表示自动检测
	ModelSize string // whisper 模型规格，空值使用配置默认
	Translate bool   // 翻译为英文而不是原文转写
}

// Result 转写结果：全文、检测到的语言和带时间戳的词序列
type Result struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Tokens   []model.Token `json:"tokens"`
}

// Transcriber 语音转文本引擎，音频文件进、词序列出
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
}

// New 按名称创建转写引擎。assemblyai 引擎优先使用请求携带的凭据，
// 其次回退到配置文件中的默认凭据。
func New(name, apiKey string, cfg *config.Config, log *logger.Logger) (Transcriber, error) {
	switch name {
	case EngineWhisper, "":
		return NewWhisperTranscriber(cfg.Transcribe, log), nil
	case EngineAssemblyAI:
		if apiKey == "" {
			apiKey = cfg.Transcribe.AssemblyAIKey
		}
		return NewAssemblyAITranscriber(apiKey, log)
	default:
		return nil, fmt.Errorf("未知的转写引擎: %s", name)
	}
}

// NormalizeLanguage 把用户提供的语言标记规范化为小写的 ISO-639 基础码，
// 无法解析时原样返回小写结果
func NormalizeLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}
