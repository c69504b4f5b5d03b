package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Transcribe TranscribeConfig `mapstructure:"transcribe"`
	YouTube    YouTubeConfig    `mapstructure:"youtube"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	Inbox      InboxConfig      `mapstructure:"inbox"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

type StorageConfig struct {
	UploadDir    string `mapstructure:"upload_dir"`    // 上传视频存放目录
	OutputDir    string `mapstructure:"output_dir"`    // 字幕和数据集输出目录
	DownloadDir  string `mapstructure:"download_dir"`  // 远程视频下载目录
	DatabasePath string `mapstructure:"database_path"` // sqlite 数据库文件
}

type TranscribeConfig struct {
	DefaultEngine    string `mapstructure:"default_engine"`     // whisper 或 assemblyai
	DefaultModelSize string `mapstructure:"default_model_size"` // whisper 模型规格
	WhisperBinary    string `mapstructure:"whisper_binary"`     // whisper 可执行文件
	FFmpegBinary     string `mapstructure:"ffmpeg_binary"`      // ffmpeg 可执行文件
	AssemblyAIKey    string `mapstructure:"assemblyai_key"`     // AssemblyAI 默认凭据
}

type YouTubeConfig struct {
	YtdlpBinary string `mapstructure:"ytdlp_binary"` // yt-dlp 可执行文件
	APIKey      string `mapstructure:"api_key"`      // YouTube Data API 密钥
	MaxComments int    `mapstructure:"max_comments"` // 评论拉取上限
	CacheTTL    int    `mapstructure:"cache_ttl"`    // 元数据缓存有效期（分钟）
}

type OCRConfig struct {
	TesseractBinary string `mapstructure:"tesseract_binary"` // tesseract 可执行文件
	MaxFrames       int    `mapstructure:"max_frames"`       // 抽帧数量上限
	FrameInterval   int    `mapstructure:"frame_interval"`   // 抽帧间隔（秒）
}

type CleanupConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Schedule      string `mapstructure:"schedule"`       // cron 表达式
	RetentionDays int    `mapstructure:"retention_days"` // 工件保留天数
}

type InboxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"` // 监听的收件目录
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "8000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "subtitle-flow")

	// 存储默认配置
	viper.SetDefault("storage.upload_dir", "uploads")
	viper.SetDefault("storage.output_dir", "outputs")
	viper.SetDefault("storage.download_dir", "downloads")
	viper.SetDefault("storage.database_path", "data/subtitle-flow.db")

	// 转写默认配置
	viper.SetDefault("transcribe.default_engine", "whisper")
	viper.SetDefault("transcribe.default_model_size", "base")
	viper.SetDefault("transcribe.whisper_binary", "whisper")
	viper.SetDefault("transcribe.ffmpeg_binary", "ffmpeg")

	// YouTube 默认配置
	viper.SetDefault("youtube.ytdlp_binary", "yt-dlp")
	viper.SetDefault("youtube.max_comments", 50)
	viper.SetDefault("youtube.cache_ttl", 10)

	// OCR 默认配置
	viper.SetDefault("ocr.tesseract_binary", "tesseract")
	viper.SetDefault("ocr.max_frames", 20)
	viper.SetDefault("ocr.frame_interval", 30)

	// 清理默认配置
	viper.SetDefault("cleanup.enabled", true)
	viper.SetDefault("cleanup.schedule", "0 3 * * *")
	viper.SetDefault("cleanup.retention_days", 7)

	// 收件目录默认配置
	viper.SetDefault("inbox.enabled", false)
	viper.SetDefault("inbox.dir", "data/inbox")
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	switch config.Transcribe.DefaultEngine {
	case "whisper", "assemblyai":
	default:
		return fmt.Errorf("未知的默认转写引擎: %s", config.Transcribe.DefaultEngine)
	}
	return nil
}
