package handler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"subtitle-flow/app/config"
	"subtitle-flow/app/database"
	"subtitle-flow/app/logger"
	"subtitle-flow/app/model"
	"subtitle-flow/app/notify"
	"subtitle-flow/app/pipeline"
	"subtitle-flow/app/registry"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 允许上传的视频扩展名
var allowedVideoExts = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {},
	".webm": {}, ".flv": {}, ".wmv": {},
}

// TaskHandler 转写任务处理器
type TaskHandler struct {
	config        *config.Config
	log           *logger.Logger
	registry      *registry.Registry
	hub           *notify.Hub
	runner        *pipeline.Runner
	transcription *pipeline.Transcription
}

// NewTaskHandler 创建转写任务处理器
func NewTaskHandler(
	cfg *config.Config,
	log *logger.Logger,
	reg *registry.Registry,
	hub *notify.Hub,
	runner *pipeline.Runner,
	transcription *pipeline.Transcription,
) *TaskHandler {
	return &TaskHandler{
		config:        cfg,
		log:           log,
		registry:      reg,
		hub:           hub,
		runner:        runner,
		transcription: transcription,
	}
}

// 创建成功响应
func (h *TaskHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// 创建错误响应
func (h *TaskHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{
		Code:    errorCode,
		Message: message,
		Data:    nil,
	})
}

// Upload 接收视频上传，创建任务并返回任务 ID。
// 文件类型在任务创建之前同步校验，不合法的上传不会留下任务记录。
func (h *TaskHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "缺少上传文件: "+err.Error())
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := allowedVideoExts[ext]; !ok {
		h.error(c, http.StatusBadRequest, 400, "不支持的视频格式: "+ext)
		return
	}

	taskID := uuid.NewString()
	savePath := filepath.Join(h.config.Storage.UploadDir, taskID+"_"+filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, savePath); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "保存上传文件失败")
		return
	}

	if err := h.registry.Create(taskID); err != nil {
		os.Remove(savePath)
		h.error(c, http.StatusInternalServerError, 500, "创建任务失败: "+err.Error())
		return
	}

	h.log.Infof("收到上传: 任务 %s, 文件 %s (%d 字节)", taskID, file.Filename, file.Size)
	h.success(c, gin.H{
		"task_id":  taskID,
		"filename": file.Filename,
		"size":     file.Size,
	}, "上传成功")
}

// Process 为已上传的视频启动转写流水线，立即返回不等待执行
func (h *TaskHandler) Process(c *gin.Context) {
	taskID := c.Param("task_id")

	var opts pipeline.TranscribeOptions
	if err := c.ShouldBindJSON(&opts); err != nil && err != io.EOF {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}
	if err := opts.Normalize(h.config.Transcribe.DefaultEngine); err != nil {
		h.error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	if _, ok := h.registry.Get(taskID); !ok {
		h.error(c, http.StatusNotFound, 404, "任务不存在")
		return
	}

	// 按任务 ID 前缀找到上传的视频
	matches, _ := filepath.Glob(filepath.Join(h.config.Storage.UploadDir, taskID+"_*"))
	if len(matches) == 0 {
		h.error(c, http.StatusNotFound, 404, "视频文件不存在")
		return
	}
	inputPath := matches[0]

	st := &pipeline.State{
		TaskID:    taskID,
		Kind:      model.TaskKindTranscribe,
		InputPath: inputPath,
	}
	st.AddIntermediate(inputPath)

	// 流水线在独立协程中运行，请求立即返回
	go h.runner.Execute(context.Background(), st, h.transcription.Steps(opts))

	h.success(c, gin.H{"task_id": taskID}, "Processing started")
}

// FetchRequest 远程直链转写请求
type FetchRequest struct {
	URL string `json:"url" binding:"required"`
	pipeline.TranscribeOptions
}

// Fetch 从 HTTP 直链获取视频并启动转写流水线，下载本身是流水线的第一步
func (h *TaskHandler) Fetch(c *gin.Context) {
	var req FetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}
	if err := req.Normalize(h.config.Transcribe.DefaultEngine); err != nil {
		h.error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		h.error(c, http.StatusBadRequest, 400, "无效的下载地址")
		return
	}
	ext := strings.ToLower(filepath.Ext(parsed.Path))
	if _, ok := allowedVideoExts[ext]; !ok {
		h.error(c, http.StatusBadRequest, 400, "不支持的视频格式: "+ext)
		return
	}

	taskID := uuid.NewString()
	if err := h.registry.Create(taskID); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "创建任务失败: "+err.Error())
		return
	}

	st := &pipeline.State{
		TaskID: taskID,
		Kind:   model.TaskKindTranscribe,
	}
	savePath := filepath.Join(h.config.Storage.UploadDir, taskID+"_"+filepath.Base(parsed.Path))
	steps := h.transcription.StepsWithFetch(req.URL, savePath, req.TranscribeOptions)

	go h.runner.Execute(context.Background(), st, steps)

	h.success(c, gin.H{"task_id": taskID}, "Processing started")
}

// Status 查询任务当前状态
func (h *TaskHandler) Status(c *gin.Context) {
	taskID := c.Param("task_id")
	task, ok := h.registry.Get(taskID)
	if !ok {
		h.error(c, http.StatusNotFound, 404, "任务不存在")
		return
	}
	c.JSON(http.StatusOK, task)
}

// Subscribe 以 SSE 订阅任务进度流。任务存在时先收到一次当前快照，
// 之后每个流水线检查点推送一次；连接断开即自动退订。
func (h *TaskHandler) Subscribe(c *gin.Context) {
	taskID := c.Param("task_id")

	ch := h.hub.Subscribe(taskID)
	defer h.hub.Unsubscribe(taskID, ch)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case task, ok := <-ch:
			if !ok {
				// 被新订阅者替换
				return false
			}
			c.SSEvent("task", task)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// safeFilename 拒绝一切可能逃出输出目录的文件名
func safeFilename(filename string) bool {
	if filename == "" || filename == "." || filename == ".." {
		return false
	}
	return filename == filepath.Base(filename)
}

// Download 下载输出目录下的产物文件
func (h *TaskHandler) Download(c *gin.Context) {
	filename := c.Param("filename")
	if !safeFilename(filename) {
		h.error(c, http.StatusBadRequest, 400, "无效的文件名")
		return
	}

	path := filepath.Join(h.config.Storage.OutputDir, filename)
	if _, err := os.Stat(path); err != nil {
		h.error(c, http.StatusNotFound, 404, "文件不存在")
		return
	}

	c.FileAttachment(path, filename)
}

// List 返回数据库归档中的历史任务
func (h *TaskHandler) List(c *gin.Context) {
	db := database.GetDB()
	if db == nil {
		h.success(c, []model.TaskRecord{}, "获取成功")
		return
	}

	var records []model.TaskRecord
	if err := db.Order("finished_at desc").Limit(100).Find(&records).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询历史任务失败")
		return
	}
	h.success(c, records, "获取成功")
}

// Health 健康检查
func (h *TaskHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
