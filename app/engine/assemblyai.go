package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"subtitle-flow/app/logger"
	"subtitle-flow/app/model"

	"resty.dev/v3"
)

const (
	assemblyAIBaseURL      = "https://api.assemblyai.com/v2"
	assemblyAIPollInterval = 3 * time.Second
)

// AssemblyAITranscriber 远端转写引擎，走 AssemblyAI 的上传-提交-轮询流程
type AssemblyAITranscriber struct {
	client       *resty.Client
	pollInterval time.Duration
	log          *logger.Logger
}

// NewAssemblyAITranscriber 创建远端引擎。凭据为空时尝试
// ASSEMBLYAI_API_KEY 环境变量，仍然没有则返回错误。
func NewAssemblyAITranscriber(apiKey string, log *logger.Logger) (*AssemblyAITranscriber, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ASSEMBLYAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("缺少 AssemblyAI API 密钥")
	}

	client := resty.New()
	client.SetBaseURL(assemblyAIBaseURL)
	client.SetHeader("Authorization", apiKey)

	return &AssemblyAITranscriber{
		client:       client,
		pollInterval: assemblyAIPollInterval,
		log:          log,
	}, nil
}

// assemblyAI 接口的响应结构
type assemblyAIUpload struct {
	UploadURL string `json:"upload_url"`
}

type assemblyAIWord struct {
	Text  string `json:"text"`
	Start int64  `json:"start"` // 毫秒
	End   int64  `json:"end"`
}

type assemblyAITranscript struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	Text         string           `json:"text"`
	LanguageCode string           `json:"language_code"`
	Error        string           `json:"error"`
	Words        []assemblyAIWord `json:"words"`
}

// Transcribe 上传音频、提交转写请求并轮询到终态
func (a *AssemblyAITranscriber) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("读取音频文件失败: %w", err)
	}

	// 第一步：上传音频
	var upload assemblyAIUpload
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		SetResult(&upload).
		Post("/upload")
	if err != nil {
		return nil, fmt.Errorf("上传音频失败: %w", err)
	}
	if resp.StatusCode() != 200 || upload.UploadURL == "" {
		return nil, fmt.Errorf("上传音频失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	// 第二步：提交转写请求
	lang := NormalizeLanguage(opts.Language)
	if opts.Translate {
		// 远端引擎没有翻译任务，按原始实现退化为按英文转写
		lang = "en"
	}
	body := map[string]any{
		"audio_url":   upload.UploadURL,
		"punctuate":   true,
		"format_text": true,
	}
	if lang == "" {
		body["language_detection"] = true
	} else {
		body["language_code"] = lang
	}

	var submitted assemblyAITranscript
	resp, err = a.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&submitted).
		Post("/transcript")
	if err != nil {
		return nil, fmt.Errorf("提交转写请求失败: %w", err)
	}
	if resp.StatusCode() != 200 || submitted.ID == "" {
		return nil, fmt.Errorf("提交转写请求失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	a.log.Infof("AssemblyAI 转写任务已提交: %s", submitted.ID)

	// 第三步：轮询直到完成或出错
	transcript, err := a.poll(ctx, submitted.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Text:     transcript.Text,
		Language: transcript.LanguageCode,
	}
	if result.Language == "" {
		result.Language = lang
	}
	for _, word := range transcript.Words {
		result.Tokens = append(result.Tokens, model.Token{
			Text:  word.Text,
			Start: float64(word.Start) / 1000,
			End:   float64(word.End) / 1000,
		})
	}
	return result, nil
}

// poll 轮询转写任务状态
func (a *AssemblyAITranscriber) poll(ctx context.Context, id string) (*assemblyAITranscript, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var transcript assemblyAITranscript
		resp, err := a.client.R().
			SetContext(ctx).
			SetResult(&transcript).
			Get("/transcript/" + id)
		if err != nil {
			return nil, fmt.Errorf("查询转写状态失败: %w", err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("查询转写状态失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
		}

		switch transcript.Status {
		case "completed":
			return &transcript, nil
		case "error":
			return nil, fmt.Errorf("转写失败: %s", transcript.Error)
		}
	}
}
