package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"subtitle-flow/app/config"
	"subtitle-flow/app/logger"
	"subtitle-flow/app/model"
	"subtitle-flow/app/notify"
	"subtitle-flow/app/pipeline"
	"subtitle-flow/app/registry"

	"github.com/gin-gonic/gin"
)

func newTestTaskHandler(t *testing.T) (*TaskHandler, *registry.Registry, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.OutputDir = filepath.Join(dir, "outputs")
	cfg.Transcribe.DefaultEngine = "whisper"
	for _, d := range []string{cfg.Storage.UploadDir, cfg.Storage.OutputDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}

	log := logger.New(config.LogConfig{Level: "error"})
	reg := registry.New()
	hub := notify.NewHub(reg)
	runner := pipeline.NewRunner(reg, hub, log)
	transcription := &pipeline.Transcription{OutputDir: cfg.Storage.OutputDir}

	h := NewTaskHandler(cfg, log, reg, hub, runner, transcription)

	router := gin.New()
	router.POST("/api/upload", h.Upload)
	router.GET("/api/status/:task_id", h.Status)
	router.GET("/api/download/:filename", h.Download)
	return h, reg, router
}

func multipartBody(t *testing.T, filename string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("fake video bytes"))
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestUploadCreatesTask(t *testing.T) {
	h, reg, router := newTestTaskHandler(t)

	body, contentType := multipartBody(t, "clip.mp4")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ApiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	data := resp.Data.(map[string]any)
	taskID, _ := data["task_id"].(string)
	if taskID == "" {
		t.Fatal("expected task_id in response")
	}

	task, ok := reg.Get(taskID)
	if !ok {
		t.Fatal("upload should create a registry task")
	}
	if task.Status != model.TaskStatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}

	// 上传文件按任务 ID 前缀落盘
	matches, _ := filepath.Glob(filepath.Join(h.config.Storage.UploadDir, taskID+"_*"))
	if len(matches) != 1 {
		t.Errorf("expected 1 saved upload, got %d", len(matches))
	}
}

func TestUploadRejectsBadExtension(t *testing.T) {
	_, _, router := newTestTaskHandler(t)

	body, contentType := multipartBody(t, "malware.exe")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStatusNotFound(t *testing.T) {
	_, _, router := newTestTaskHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status/ghost", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStatusReturnsSnapshot(t *testing.T) {
	_, reg, router := newTestTaskHandler(t)
	reg.Create("t1")
	reg.Update("t1", registry.Fields{
		Status:   registry.StatusPtr(model.TaskStatusProcessing),
		Progress: registry.IntPtr(30),
		Message:  registry.StringPtr("Generating subtitles..."),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status/t1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var task model.Task
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if task.ID != "t1" || task.Progress != 30 || task.Status != model.TaskStatusProcessing {
		t.Errorf("unexpected snapshot: %+v", task)
	}
}

func TestDownload(t *testing.T) {
	h, _, router := newTestTaskHandler(t)

	content := "1\n00:00:00,000 --> 00:00:01,000\nhello\n\n"
	if err := os.WriteFile(filepath.Join(h.config.Storage.OutputDir, "t1.srt"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/download/t1.srt", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != content {
		t.Errorf("unexpected body: %q", w.Body.String())
	}
}

func TestDownloadMissingFile(t *testing.T) {
	_, _, router := newTestTaskHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/download/nope.srt", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDownloadRejectsTraversal(t *testing.T) {
	_, _, router := newTestTaskHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/download/..", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSafeFilename(t *testing.T) {
	valid := []string{"t1.srt", "t1.en.srt", "t1_dataset.jsonl"}
	for _, name := range valid {
		if !safeFilename(name) {
			t.Errorf("expected %q to be accepted", name)
		}
	}
	invalid := []string{"", ".", "..", "../secret", "a/b.srt", "/etc/passwd"}
	for _, name := range invalid {
		if safeFilename(name) {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}
