package server

import (
	"context"
	"net/http"
	"os"

	"subtitle-flow/app/config"
	"subtitle-flow/app/database"
	"subtitle-flow/app/engine"
	"subtitle-flow/app/handler"
	"subtitle-flow/app/logger"
	"subtitle-flow/app/media"
	"subtitle-flow/app/middleware"
	"subtitle-flow/app/notify"
	"subtitle-flow/app/ocr"
	"subtitle-flow/app/pipeline"
	"subtitle-flow/app/registry"
	"subtitle-flow/app/service"
	"subtitle-flow/app/youtube"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	cleanupService *service.CleanupService
	inboxService   *service.InboxService
}

// New 创建一个新的 Server 实例，装配全部依赖
func New(cfg *config.Config, log *logger.Logger) *Server {
	router := gin.Default()
	router.MaxMultipartMemory = 32 << 20

	// 确保存储目录存在
	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.OutputDir, cfg.Storage.DownloadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建存储目录失败: %s, 错误: %v", dir, err)
		}
	}

	// 核心组件
	reg := registry.New()
	hub := notify.NewHub(reg)
	runner := pipeline.NewRunner(reg, hub, log)

	// 外部协作方
	extractor := media.NewExtractor(cfg.Transcribe.FFmpegBinary)
	downloader := media.NewDownloader(cfg.YouTube.YtdlpBinary, log)
	ytClient := youtube.NewClient(cfg.YouTube, log)
	ocrAnalyzer := ocr.NewAnalyzer(cfg.Transcribe.FFmpegBinary, cfg.OCR, log)

	newEngine := func(opts pipeline.TranscribeOptions) (engine.Transcriber, error) {
		return engine.New(opts.Engine, opts.AssemblyAIKey, cfg, log)
	}

	transcription := &pipeline.Transcription{
		OutputDir:    cfg.Storage.OutputDir,
		ExtractAudio: extractor.ExtractAudio,
		NewEngine:    newEngine,
		FetchSource: func(ctx context.Context, url, savePath string) error {
			_, err := media.FetchFromURL(url, savePath, media.DefaultFetchConfig())
			return err
		},
	}

	dataset := &pipeline.Dataset{
		OutputDir:     cfg.Storage.OutputDir,
		DownloadDir:   cfg.Storage.DownloadDir,
		FetchMetadata: ytClient.FetchMetadata,
		TopComments:   ytClient.TopComments,
		Download:      downloader.Download,
		ExtractAudio:  extractor.ExtractAudio,
		NewEngine:     newEngine,
		AnalyzeOCR:    ocrAnalyzer.AnalyzeFrames,
	}

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:         cfg,
		Logger:         log,
		cleanupService: service.NewCleanupService(cfg, log),
		inboxService:   service.NewInboxService(cfg, log, reg, runner, transcription),
	}

	s.setupRoutes(reg, hub, runner, transcription, dataset)

	return s
}

// Start 启动服务器
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)

	if err := s.cleanupService.Start(); err != nil {
		return err
	}
	if err := s.inboxService.Start(); err != nil {
		return err
	}

	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.inboxService.Stop()
	s.cleanupService.Stop()

	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes(
	reg *registry.Registry,
	hub *notify.Hub,
	runner *pipeline.Runner,
	transcription *pipeline.Transcription,
	dataset *pipeline.Dataset,
) {
	authHandler := handler.NewAuthHandler(s.Config)
	taskHandler := handler.NewTaskHandler(s.Config, s.Logger, reg, hub, runner, transcription)
	datasetHandler := handler.NewDatasetHandler(s.Config, s.Logger, reg, runner, dataset)

	api := s.gin.Group("/api")

	// 不需要JWT验证的路由
	api.GET("/health", taskHandler.Health)
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		protected.GET("/me", authHandler.Me)

		protected.POST("/upload", taskHandler.Upload)
		protected.POST("/fetch", taskHandler.Fetch)
		protected.POST("/process/:task_id", taskHandler.Process)
		protected.GET("/status/:task_id", taskHandler.Status)
		protected.GET("/tasks", taskHandler.List)

		protected.POST("/dataset/create", datasetHandler.Create)
	}

	// 支持以查询参数携带令牌的路由（SSE 与浏览器直接下载）
	tokenized := api.Group("/")
	tokenized.Use(middleware.OptionalJWTAuth(s.Config))
	{
		tokenized.GET("/subscribe/:task_id", taskHandler.Subscribe)
		tokenized.GET("/download/:filename", taskHandler.Download)
		tokenized.GET("/dataset/download/:filename", datasetHandler.Download)
	}
}
