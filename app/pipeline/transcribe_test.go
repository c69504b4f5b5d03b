package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subtitle-flow/app/engine"
	"subtitle-flow/app/model"
	"subtitle-flow/app/subtitle"
)

// fakeTranscriber 返回固定结果的转写引擎
type fakeTranscriber struct {
	result engine.Result
	calls  []engine.Options
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string, opts engine.Options) (*engine.Result, error) {
	f.calls = append(f.calls, opts)
	result := f.result
	return &result, nil
}

func newFakeTranscription(t *testing.T, fake *fakeTranscriber) *Transcription {
	dir := t.TempDir()
	return &Transcription{
		OutputDir: dir,
		ExtractAudio: func(ctx context.Context, videoPath, audioPath string) error {
			return os.WriteFile(audioPath, []byte("pcm"), 0644)
		},
		NewEngine: func(opts TranscribeOptions) (engine.Transcriber, error) {
			return fake, nil
		},
	}
}

func TestTranscriptionPipelineProducesSubtitle(t *testing.T) {
	fake := &fakeTranscriber{result: engine.Result{
		Text:     "hi there bye",
		Language: "en",
		Tokens: []model.Token{
			{Text: "hi", Start: 0.0, End: 0.5},
			{Text: "there", Start: 0.6, End: 1.0},
			{Text: "bye", Start: 5.0, End: 5.4},
		},
	}}
	p := newFakeTranscription(t, fake)

	runner, reg, _ := newTestRunner()
	reg.Create("t1")

	opts := TranscribeOptions{}
	if err := opts.Normalize(engine.EngineWhisper); err != nil {
		t.Fatal(err)
	}

	input := filepath.Join(p.OutputDir, "t1_video.mp4")
	if err := os.WriteFile(input, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
	st := &State{TaskID: "t1", Kind: model.TaskKindTranscribe, InputPath: input}
	st.AddIntermediate(input)

	runner.Execute(context.Background(), st, p.Steps(opts))

	task, _ := reg.Get("t1")
	if task.Status != model.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", task.Status, task.Message)
	}
	if task.Result["subtitle"] != "t1.srt" {
		t.Fatalf("unexpected result: %v", task.Result)
	}

	data, err := os.ReadFile(filepath.Join(p.OutputDir, "t1.srt"))
	if err != nil {
		t.Fatalf("subtitle file missing: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "hi there") || !strings.Contains(content, "bye") {
		t.Errorf("unexpected srt content:\n%s", content)
	}

	// 成功后源视频与中间音频都被清理
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Error("input should be cleaned up on success")
	}
	if _, err := os.Stat(filepath.Join(p.OutputDir, "t1.wav")); !os.IsNotExist(err) {
		t.Error("audio should be cleaned up on success")
	}
}

func TestTranscriptionPipelineTranslation(t *testing.T) {
	fake := &fakeTranscriber{result: engine.Result{
		Text:     "hola mundo",
		Language: "es",
		Tokens: []model.Token{
			{Text: "hola", Start: 0.0, End: 0.5},
			{Text: "mundo", Start: 0.6, End: 1.0},
		},
	}}
	p := newFakeTranscription(t, fake)

	runner, reg, _ := newTestRunner()
	reg.Create("t1")

	opts := TranscribeOptions{TranslateEnglish: true}
	if err := opts.Normalize(engine.EngineWhisper); err != nil {
		t.Fatal(err)
	}

	runner.Execute(context.Background(), &State{TaskID: "t1"}, p.Steps(opts))

	task, _ := reg.Get("t1")
	if task.Status != model.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", task.Status, task.Message)
	}
	if task.Result["english_subtitle"] != "t1.en.srt" {
		t.Fatalf("expected english subtitle in result: %v", task.Result)
	}
	if _, err := os.Stat(filepath.Join(p.OutputDir, "t1.en.srt")); err != nil {
		t.Errorf("english subtitle file missing: %v", err)
	}

	// 第二次转写必须带翻译标记
	if len(fake.calls) != 2 {
		t.Fatalf("expected 2 engine calls, got %d", len(fake.calls))
	}
	if !fake.calls[1].Translate {
		t.Error("second call should request translation")
	}
}

func TestTranscriptionSkipsTranslationForEnglish(t *testing.T) {
	p := newFakeTranscription(t, &fakeTranscriber{})

	opts := TranscribeOptions{Language: "en", TranslateEnglish: true}
	if err := opts.Normalize(engine.EngineWhisper); err != nil {
		t.Fatal(err)
	}

	steps := p.Steps(opts)
	for _, step := range steps {
		if step.Name == "translate-english" {
			t.Error("translation step should be skipped for English sources")
		}
	}
}

func TestTranscribeOptionsNormalize(t *testing.T) {
	opts := TranscribeOptions{}
	if err := opts.Normalize(engine.EngineWhisper); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if opts.Engine != engine.EngineWhisper {
		t.Errorf("expected default engine, got %q", opts.Engine)
	}
	if opts.SubtitleFormat != subtitle.FormatSRT {
		t.Errorf("expected default format srt, got %q", opts.SubtitleFormat)
	}

	bad := TranscribeOptions{Engine: "siri"}
	if err := bad.Normalize(engine.EngineWhisper); err == nil {
		t.Error("expected error for unknown engine")
	}

	badFormat := TranscribeOptions{SubtitleFormat: "vtt"}
	if err := badFormat.Normalize(engine.EngineWhisper); err == nil {
		t.Error("expected error for unknown format")
	}
}
