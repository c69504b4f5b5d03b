package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"subtitle-flow/app/config"
	"subtitle-flow/app/logger"
	"subtitle-flow/app/model"
	"subtitle-flow/app/pipeline"
	"subtitle-flow/app/registry"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DatasetHandler 数据集生成处理器
type DatasetHandler struct {
	config   *config.Config
	log      *logger.Logger
	registry *registry.Registry
	runner   *pipeline.Runner
	dataset  *pipeline.Dataset
}

// NewDatasetHandler 创建数据集生成处理器
func NewDatasetHandler(
	cfg *config.Config,
	log *logger.Logger,
	reg *registry.Registry,
	runner *pipeline.Runner,
	dataset *pipeline.Dataset,
) *DatasetHandler {
	return &DatasetHandler{
		config:   cfg,
		log:      log,
		registry: reg,
		runner:   runner,
		dataset:  dataset,
	}
}

// 创建成功响应
func (h *DatasetHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// 创建错误响应
func (h *DatasetHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, ApiResponse{
		Code:    errorCode,
		Message: message,
		Data:    nil,
	})
}

// Create 从 YouTube 视频启动数据集生成流水线
func (h *DatasetHandler) Create(c *gin.Context) {
	var opts pipeline.DatasetOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}
	opts.Normalize()

	taskID := uuid.NewString()
	if err := h.registry.Create(taskID); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "创建任务失败: "+err.Error())
		return
	}

	st := &pipeline.State{
		TaskID: taskID,
		Kind:   model.TaskKindDataset,
	}

	h.log.Infof("启动数据集生成: 任务 %s, 视频 %s", taskID, opts.YouTubeURL)
	go h.runner.Execute(context.Background(), st, h.dataset.Steps(opts))

	h.success(c, gin.H{"task_id": taskID}, "Dataset creation started")
}

// Download 下载生成的数据集文件，仅允许 .jsonl 产物
func (h *DatasetHandler) Download(c *gin.Context) {
	filename := c.Param("filename")
	if !safeFilename(filename) {
		h.error(c, http.StatusBadRequest, 400, "无效的文件名")
		return
	}
	if !strings.HasSuffix(filename, ".jsonl") {
		h.error(c, http.StatusBadRequest, 400, "无效的数据集文件")
		return
	}

	path := filepath.Join(h.config.Storage.OutputDir, filename)
	if _, err := os.Stat(path); err != nil {
		h.error(c, http.StatusNotFound, 404, "文件不存在")
		return
	}

	c.FileAttachment(path, filename)
}
