package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"subtitle-flow/app/database"
	"subtitle-flow/app/engine"
	"subtitle-flow/app/model"
	"subtitle-flow/app/youtube"
)

// 单个视频最多收录的评论样本数
const maxDatasetItems = 10

// DatasetOptions 数据集流水线的请求参数
type DatasetOptions struct {
	YouTubeURL string `json:"youtube_url" binding:"required"`
	APIKey     string `json:"youtube_api_key"` // 评论收集凭据，缺省时评论为空
	UseOCR     bool   `json:"use_ocr"`
	ModelSize  string `json:"model_size"`
}

// Normalize 补全数据集请求参数
func (o *DatasetOptions) Normalize() {
	if o.ModelSize == "" {
		o.ModelSize = "base"
	}
}

// Dataset 数据集装配流水线：元数据 → 评论（尽力而为）→ 下载 →
// 提取并转写 →（可选）OCR（尽力而为）→ 装配样本并落盘。
// 外部协作方以函数字段注入，测试时可以整体替换。
type Dataset struct {
	OutputDir   string
	DownloadDir string

	FetchMetadata func(ctx context.Context, url string) (*youtube.Metadata, error)
	TopComments   func(ctx context.Context, videoID, apiKey string) ([]youtube.Comment, error)
	Download      func(ctx context.Context, url, outputDir, taskID string) (string, error)
	ExtractAudio  func(ctx context.Context, videoPath, audioPath string) error
	NewEngine     func(opts TranscribeOptions) (engine.Transcriber, error)
	AnalyzeOCR    func(ctx context.Context, videoPath string) (string, error)
}

// Steps 按请求参数装配数据集流水线的步骤序列。
// 进度检查点固定为 10/20/30/40/60/（可选 80）/90。
func (p *Dataset) Steps(opts DatasetOptions) []Step {
	var eng engine.Transcriber

	steps := []Step{
		{
			Name:     "init",
			Progress: 10,
			Message:  "Initializing analyzers...",
			Run: func(ctx context.Context, st *State) error {
				var err error
				eng, err = p.NewEngine(TranscribeOptions{
					Engine:    engine.EngineWhisper,
					ModelSize: opts.ModelSize,
				})
				return err
			},
		},
		{
			Name:     "fetch-metadata",
			Progress: 20,
			Message:  "Collecting metadata...",
			Run: func(ctx context.Context, st *State) error {
				meta, err := p.FetchMetadata(ctx, opts.YouTubeURL)
				if err != nil {
					return err
				}
				st.Metadata = meta
				return nil
			},
		},
		{
			Name:       "fetch-comments",
			Progress:   30,
			Message:    "Collecting comments...",
			BestEffort: true, // 评论失败只意味着数据集为空
			Run: func(ctx context.Context, st *State) error {
				comments, err := p.TopComments(ctx, st.Metadata.VideoID, opts.APIKey)
				if err != nil {
					return err
				}
				st.Comments = comments
				return nil
			},
		},
		{
			Name:     "download-source",
			Progress: 40,
			Message:  "Downloading video...",
			Run: func(ctx context.Context, st *State) error {
				path, err := p.Download(ctx, opts.YouTubeURL, p.DownloadDir, st.TaskID)
				if err != nil {
					return err
				}
				st.InputPath = path
				st.AddIntermediate(path)
				return nil
			},
		},
		{
			Name:     "transcribe",
			Progress: 60,
			Message:  "Extracting audio and transcribing...",
			Run: func(ctx context.Context, st *State) error {
				audioPath := filepath.Join(p.DownloadDir, st.TaskID+".wav")
				if err := p.ExtractAudio(ctx, st.InputPath, audioPath); err != nil {
					return err
				}
				st.AudioPath = audioPath
				st.AddIntermediate(audioPath)

				result, err := eng.Transcribe(ctx, audioPath, engine.Options{ModelSize: opts.ModelSize})
				if err != nil {
					return err
				}
				st.Transcription = result
				return nil
			},
		},
	}

	if opts.UseOCR {
		steps = append(steps, Step{
			Name:       "ocr",
			Progress:   80,
			Message:    "Analyzing video frames with OCR...",
			BestEffort: true, // OCR 失败只是少一份画面文本
			Run: func(ctx context.Context, st *State) error {
				text, err := p.AnalyzeOCR(ctx, st.InputPath)
				if err != nil {
					return err
				}
				st.OCRText = text
				return nil
			},
		})
	}

	steps = append(steps, Step{
		Name:     "format",
		Progress: 90,
		Message:  "Formatting dataset...",
		Run: func(ctx context.Context, st *State) error {
			return p.assemble(st)
		},
	})

	return steps
}

// assemble 装配数据集样本，写出 jsonl 文件并归档到数据库
func (p *Dataset) assemble(st *State) error {
	analysis := buildAnalysisText(st)

	// 取点赞最高的若干评论作为样本输出
	comments := make([]youtube.Comment, len(st.Comments))
	copy(comments, st.Comments)
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Likes > comments[j].Likes
	})
	if len(comments) > maxDatasetItems {
		comments = comments[:maxDatasetItems]
	}

	items := make([]model.DatasetItem, 0, len(comments))
	for _, comment := range comments {
		items = append(items, model.DatasetItem{
			Input:  analysis,
			Output: comment.Text,
			Metadata: model.DatasetMetadata{
				VideoID:      st.Metadata.VideoID,
				Title:        st.Metadata.Title,
				Channel:      st.Metadata.Channel,
				Views:        st.Metadata.Views,
				Duration:     st.Metadata.Duration,
				Language:     st.Transcription.Language,
				CommentLikes: comment.Likes,
			},
		})
	}

	name := st.TaskID + "_dataset.jsonl"
	if err := writeJSONL(filepath.Join(p.OutputDir, name), items); err != nil {
		return err
	}
	persistDatasetItems(st.TaskID, items)

	st.Result = map[string]any{
		"dataset_file":   name,
		"items_count":    len(items),
		"video_title":    st.Metadata.Title,
		"video_duration": st.Metadata.Duration,
	}
	return nil
}

// buildAnalysisText 拼装样本的 input 文本：元数据摘要加转写节选
func buildAnalysisText(st *State) string {
	transcript := st.Transcription.Text
	if runes := []rune(transcript); len(runes) > 500 {
		transcript = string(runes[:500]) + "..."
	}

	text := fmt.Sprintf(`Title: %s
Channel: %s
Views: %d
Duration: %d seconds

Transcript:
%s

Language: %s`,
		st.Metadata.Title,
		st.Metadata.Channel,
		st.Metadata.Views,
		st.Metadata.Duration,
		transcript,
		st.Transcription.Language,
	)

	if st.OCRText != "" {
		text += "\n\nOn-screen text:\n" + st.OCRText
	}
	return text
}

// writeJSONL 一行一个 JSON 对象写出数据集文件
func writeJSONL(path string, items []model.DatasetItem) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建数据集文件失败: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("序列化数据集样本失败: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// persistDatasetItems 把样本同步归档到数据库，失败不影响流水线
func persistDatasetItems(taskID string, items []model.DatasetItem) {
	db := database.GetDB()
	if db == nil {
		return
	}
	for _, item := range items {
		record := model.DatasetRecord{
			TaskID:   taskID,
			VideoID:  item.Metadata.VideoID,
			Input:    item.Input,
			Output:   item.Output,
			Likes:    item.Metadata.CommentLikes,
			Language: item.Metadata.Language,
		}
		db.Create(&record)
	}
}
