package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"subtitle-flow/app/config"
	"subtitle-flow/app/logger"
	"subtitle-flow/app/model"
	"subtitle-flow/app/pipeline"
	"subtitle-flow/app/registry"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// 等待写入稳定的轮询间隔与上限
const (
	inboxStableInterval = 2 * time.Second
	inboxStableChecks   = 30
)

// 收件目录接受的视频扩展名
var inboxVideoExts = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {},
	".webm": {}, ".flv": {}, ".wmv": {},
}

// InboxService 收件目录监控服务。放入目录的视频文件会被自动认领，
// 用默认参数创建转写任务并启动流水线，无需走上传接口。
type InboxService struct {
	config        *config.Config
	logger        *logger.Logger
	registry      *registry.Registry
	runner        *pipeline.Runner
	transcription *pipeline.Transcription

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
	watching bool
	mu       sync.Mutex
}

// NewInboxService 创建收件目录监控服务
func NewInboxService(
	cfg *config.Config,
	log *logger.Logger,
	reg *registry.Registry,
	runner *pipeline.Runner,
	transcription *pipeline.Transcription,
) *InboxService {
	return &InboxService{
		config:        cfg,
		logger:        log,
		registry:      reg,
		runner:        runner,
		transcription: transcription,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动收件目录监控
func (s *InboxService) Start() error {
	if !s.config.Inbox.Enabled {
		s.logger.Info("收件目录监控未启用")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watching {
		return nil
	}

	if err := os.MkdirAll(s.config.Inbox.Dir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.config.Inbox.Dir); err != nil {
		watcher.Close()
		return err
	}

	s.watcher = watcher
	s.watching = true
	s.wg.Add(1)
	go s.watchLoop()

	s.logger.Infof("收件目录监控已启动: %s", s.config.Inbox.Dir)

	// 启动后补扫一次已存在的文件
	go s.scanExisting()

	return nil
}

// Stop 停止收件目录监控
func (s *InboxService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.watching {
		return
	}

	close(s.stopChan)
	s.watcher.Close()
	s.wg.Wait()
	s.watching = false

	s.logger.Info("收件目录监控已停止")
}

// watchLoop 监控事件循环
func (s *InboxService) watchLoop() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				go s.claim(event.Name)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Errorf("收件目录监控错误: %v", err)

		case <-s.stopChan:
			return
		}
	}
}

// scanExisting 处理监控启动前已经在目录中的文件
func (s *InboxService) scanExisting() {
	entries, err := os.ReadDir(s.config.Inbox.Dir)
	if err != nil {
		s.logger.Warnf("扫描收件目录失败: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		s.claim(filepath.Join(s.config.Inbox.Dir, entry.Name()))
	}
}

// claim 认领一个收件文件：等写入稳定后移入上传目录并启动转写
func (s *InboxService) claim(path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := inboxVideoExts[ext]; !ok {
		return
	}

	if !s.waitStable(path) {
		s.logger.Warnf("收件文件写入未稳定, 跳过: %s", path)
		return
	}

	taskID := uuid.NewString()
	dest := filepath.Join(s.config.Storage.UploadDir, taskID+"_"+filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		// 可能已被另一次事件认领
		s.logger.Warnf("移动收件文件失败: %s, 错误: %v", path, err)
		return
	}

	if err := s.registry.Create(taskID); err != nil {
		s.logger.Errorf("创建收件任务失败: %v", err)
		os.Remove(dest)
		return
	}

	opts := pipeline.TranscribeOptions{}
	if err := opts.Normalize(s.config.Transcribe.DefaultEngine); err != nil {
		s.logger.Errorf("收件任务参数错误: %v", err)
		return
	}

	st := &pipeline.State{
		TaskID:    taskID,
		Kind:      model.TaskKindTranscribe,
		InputPath: dest,
	}
	st.AddIntermediate(dest)

	s.logger.Infof("收件文件已认领: %s, 任务 %s", filepath.Base(path), taskID)
	go s.runner.Execute(context.Background(), st, s.transcription.Steps(opts))
}

// waitStable 轮询文件大小直到连续两次一致，认为写入完成
func (s *InboxService) waitStable(path string) bool {
	var lastSize int64 = -1
	for i := 0; i < inboxStableChecks; i++ {
		select {
		case <-s.stopChan:
			return false
		case <-time.After(inboxStableInterval):
		}

		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize && info.Size() > 0 {
			return true
		}
		lastSize = info.Size()
	}
	return false
}
