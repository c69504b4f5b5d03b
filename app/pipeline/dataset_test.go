package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subtitle-flow/app/engine"
	"subtitle-flow/app/model"
	"subtitle-flow/app/youtube"
)

func newFakeDataset(t *testing.T, fake *fakeTranscriber) *Dataset {
	dir := t.TempDir()
	return &Dataset{
		OutputDir:   dir,
		DownloadDir: dir,
		FetchMetadata: func(ctx context.Context, url string) (*youtube.Metadata, error) {
			return &youtube.Metadata{
				VideoID:  "abc123",
				Title:    "Test Video",
				Channel:  "Test Channel",
				Views:    1000,
				Duration: 60,
			}, nil
		},
		TopComments: func(ctx context.Context, videoID, apiKey string) ([]youtube.Comment, error) {
			return []youtube.Comment{
				{Text: "low", Likes: 1},
				{Text: "high", Likes: 100},
				{Text: "mid", Likes: 10},
			}, nil
		},
		Download: func(ctx context.Context, url, outputDir, taskID string) (string, error) {
			path := filepath.Join(outputDir, taskID+".mp4")
			return path, os.WriteFile(path, []byte("video"), 0644)
		},
		ExtractAudio: func(ctx context.Context, videoPath, audioPath string) error {
			return os.WriteFile(audioPath, []byte("pcm"), 0644)
		},
		NewEngine: func(opts TranscribeOptions) (engine.Transcriber, error) {
			return fake, nil
		},
		AnalyzeOCR: func(ctx context.Context, videoPath string) (string, error) {
			return "", errors.New("no frames")
		},
	}
}

func TestDatasetPipelineProducesJSONL(t *testing.T) {
	fake := &fakeTranscriber{result: engine.Result{
		Text:     "spoken words",
		Language: "en",
		Tokens:   []model.Token{{Text: "spoken", Start: 0, End: 0.5}, {Text: "words", Start: 0.6, End: 1.0}},
	}}
	p := newFakeDataset(t, fake)

	runner, reg, _ := newTestRunner()
	reg.Create("t1")

	opts := DatasetOptions{YouTubeURL: "https://youtube.com/watch?v=abc123"}
	opts.Normalize()

	runner.Execute(context.Background(), &State{TaskID: "t1", Kind: model.TaskKindDataset}, p.Steps(opts))

	task, _ := reg.Get("t1")
	if task.Status != model.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", task.Status, task.Message)
	}
	if task.Result["dataset_file"] != "t1_dataset.jsonl" {
		t.Fatalf("unexpected result: %v", task.Result)
	}
	if task.Result["items_count"] != 3 {
		t.Errorf("expected 3 items, got %v", task.Result["items_count"])
	}
	if task.Result["video_title"] != "Test Video" {
		t.Errorf("unexpected title: %v", task.Result["video_title"])
	}

	file, err := os.Open(filepath.Join(p.OutputDir, "t1_dataset.jsonl"))
	if err != nil {
		t.Fatalf("dataset file missing: %v", err)
	}
	defer file.Close()

	var items []model.DatasetItem
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var item model.DatasetItem
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
			t.Fatalf("invalid jsonl line: %v", err)
		}
		items = append(items, item)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 jsonl lines, got %d", len(items))
	}

	// 样本按点赞数降序
	if items[0].Output != "high" || items[1].Output != "mid" || items[2].Output != "low" {
		t.Errorf("items not ordered by likes: %v %v %v", items[0].Output, items[1].Output, items[2].Output)
	}

	// input 文本携带元数据和转写
	if !strings.Contains(items[0].Input, "Title: Test Video") {
		t.Errorf("input missing metadata:\n%s", items[0].Input)
	}
	if !strings.Contains(items[0].Input, "spoken words") {
		t.Errorf("input missing transcript:\n%s", items[0].Input)
	}
	if items[0].Metadata.CommentLikes != 100 {
		t.Errorf("unexpected likes: %d", items[0].Metadata.CommentLikes)
	}
}

func TestDatasetPipelineCommentsBestEffort(t *testing.T) {
	fake := &fakeTranscriber{result: engine.Result{Text: "x", Language: "en"}}
	p := newFakeDataset(t, fake)
	p.TopComments = func(ctx context.Context, videoID, apiKey string) ([]youtube.Comment, error) {
		return nil, errors.New("quota exceeded")
	}

	runner, reg, _ := newTestRunner()
	reg.Create("t1")

	opts := DatasetOptions{YouTubeURL: "https://youtube.com/watch?v=abc123"}
	opts.Normalize()

	runner.Execute(context.Background(), &State{TaskID: "t1", Kind: model.TaskKindDataset}, p.Steps(opts))

	task, _ := reg.Get("t1")
	if task.Status != model.TaskStatusCompleted {
		t.Fatalf("comment failure must not fail the task, got %s (%s)", task.Status, task.Message)
	}
	if task.Result["items_count"] != 0 {
		t.Errorf("expected empty dataset, got %v", task.Result["items_count"])
	}
}

func TestDatasetPipelineOCRBestEffort(t *testing.T) {
	fake := &fakeTranscriber{result: engine.Result{Text: "x", Language: "en"}}
	p := newFakeDataset(t, fake)

	runner, reg, _ := newTestRunner()
	reg.Create("t1")

	// AnalyzeOCR 固定失败，流水线仍应完成
	opts := DatasetOptions{YouTubeURL: "https://youtube.com/watch?v=abc123", UseOCR: true}
	opts.Normalize()

	runner.Execute(context.Background(), &State{TaskID: "t1", Kind: model.TaskKindDataset}, p.Steps(opts))

	task, _ := reg.Get("t1")
	if task.Status != model.TaskStatusCompleted {
		t.Fatalf("ocr failure must not fail the task, got %s (%s)", task.Status, task.Message)
	}
}

func TestDatasetPipelineCapsItems(t *testing.T) {
	fake := &fakeTranscriber{result: engine.Result{Text: "x", Language: "en"}}
	p := newFakeDataset(t, fake)
	p.TopComments = func(ctx context.Context, videoID, apiKey string) ([]youtube.Comment, error) {
		comments := make([]youtube.Comment, 25)
		for i := range comments {
			comments[i] = youtube.Comment{Text: fmt.Sprintf("c%d", i), Likes: int64(i)}
		}
		return comments, nil
	}

	runner, reg, _ := newTestRunner()
	reg.Create("t1")

	opts := DatasetOptions{YouTubeURL: "https://youtube.com/watch?v=abc123"}
	opts.Normalize()

	runner.Execute(context.Background(), &State{TaskID: "t1", Kind: model.TaskKindDataset}, p.Steps(opts))

	task, _ := reg.Get("t1")
	if task.Result["items_count"] != maxDatasetItems {
		t.Errorf("expected %d items, got %v", maxDatasetItems, task.Result["items_count"])
	}
}
