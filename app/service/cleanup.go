package service

import (
	"os"
	"path/filepath"
	"time"

	"subtitle-flow/app/config"
	"subtitle-flow/app/logger"

	"github.com/robfig/cron/v3"
)

// CleanupService 过期产物清理服务，按计划扫描存储目录，
// 删除超过保留期的上传、输出和下载文件
type CleanupService struct {
	config *config.Config
	logger *logger.Logger
	cron   *cron.Cron
}

// NewCleanupService 创建清理服务
func NewCleanupService(cfg *config.Config, log *logger.Logger) *CleanupService {
	return &CleanupService{
		config: cfg,
		logger: log,
		cron:   cron.New(),
	}
}

// Start 启动清理服务
func (s *CleanupService) Start() error {
	if !s.config.Cleanup.Enabled {
		s.logger.Info("清理服务未启用")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Cleanup.Schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Infof("清理服务已启动, 计划: %s, 保留 %d 天",
		s.config.Cleanup.Schedule, s.config.Cleanup.RetentionDays)
	return nil
}

// Stop 停止清理服务，等待进行中的扫描完成
func (s *CleanupService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("清理服务已停止")
}

// sweep 扫描所有存储目录并删除过期文件
func (s *CleanupService) sweep() {
	cutoff := time.Now().AddDate(0, 0, -s.config.Cleanup.RetentionDays)
	dirs := []string{
		s.config.Storage.UploadDir,
		s.config.Storage.OutputDir,
		s.config.Storage.DownloadDir,
	}

	total := 0
	for _, dir := range dirs {
		total += s.sweepDir(dir, cutoff)
	}
	if total > 0 {
		s.logger.Infof("清理完成, 共删除 %d 个过期文件", total)
	}
}

// sweepDir 删除目录下修改时间早于 cutoff 的文件，返回删除数量
func (s *CleanupService) sweepDir(dir string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warnf("读取目录失败: %s, 错误: %v", dir, err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warnf("删除过期文件失败: %s, 错误: %v", path, err)
			continue
		}
		s.logger.Debugf("已删除过期文件: %s", path)
		removed++
	}
	return removed
}
