package media

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// FetchConfig 直链下载配置
type FetchConfig struct {
	UserAgent     string        // User-Agent
	Timeout       time.Duration // 超时时间
	UseTemp       bool          // 是否先写临时文件再改名
	OverwriteFile bool          // 是否覆盖已存在的文件
}

// DefaultFetchConfig 默认直链下载配置
func DefaultFetchConfig() *FetchConfig {
	return &FetchConfig{
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Timeout:       time.Minute * 30,
		UseTemp:       true,
		OverwriteFile: false,
	}
}

// FetchResult 直链下载结果
type FetchResult struct {
	Size     int64         // 下载的文件大小
	Duration time.Duration // 下载耗时
	Path     string        // 保存的文件路径
}

// FetchFromURL 从 HTTP 直链下载媒体文件到指定路径。
// 先写 .tmp 临时文件，完成后改名，避免半成品被后续流程捡走。
func FetchFromURL(url, savePath string, config *FetchConfig) (*FetchResult, error) {
	if config == nil {
		config = DefaultFetchConfig()
	}

	// 检查文件是否已存在
	if !config.OverwriteFile {
		if _, err := os.Stat(savePath); err == nil {
			return nil, fmt.Errorf("文件已存在: %s", savePath)
		}
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("User-Agent", config.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity") // 禁用压缩，避免 Content-Length 不匹配

	client := &http.Client{
		Timeout: config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("重定向次数过多")
			}
			req.Header.Set("User-Agent", config.UserAgent)
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("HTTP请求失败，状态码: %d, 响应: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return nil, fmt.Errorf("创建保存目录失败: %w", err)
	}

	targetPath := savePath
	if config.UseTemp {
		targetPath = savePath + ".tmp"
	}

	file, err := os.Create(targetPath)
	if err != nil {
		return nil, fmt.Errorf("创建文件失败: %w", err)
	}

	start := time.Now()
	size, err := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(targetPath)
		return nil, fmt.Errorf("写入文件失败: %w", err)
	}

	if config.UseTemp {
		if err := os.Rename(targetPath, savePath); err != nil {
			os.Remove(targetPath)
			return nil, fmt.Errorf("重命名临时文件失败: %w", err)
		}
	}

	return &FetchResult{
		Size:     size,
		Duration: time.Since(start),
		Path:     savePath,
	}, nil
}
