package subtitle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subtitle-flow/app/model"
)

// 支持的字幕输出格式
const (
	FormatSRT  = "srt"
	FormatJSON = "json"
	FormatText = "txt"
)

// ValidFormat 判断是否为支持的输出格式
func ValidFormat(format string) bool {
	switch format {
	case FormatSRT, FormatJSON, FormatText:
		return true
	}
	return false
}

// Document 一次转写的完整产物，JSON 格式原样落盘
type Document struct {
	Text     string          `json:"text"`
	Language string          `json:"language"`
	Segments []model.Segment `json:"segments"`
}

// Write 按指定格式把转写产物写入文件
func Write(path, format string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	switch format {
	case FormatSRT:
		return os.WriteFile(path, []byte(ComposeSRT(doc.Segments)), 0644)
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("序列化转写结果失败: %w", err)
		}
		return os.WriteFile(path, data, 0644)
	case FormatText:
		return os.WriteFile(path, []byte(doc.Text), 0644)
	default:
		return fmt.Errorf("不支持的字幕格式: %s", format)
	}
}

// ComposeSRT 把字幕段编排成 SRT 文本
func ComposeSRT(segments []model.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(seg.Start), srtTimestamp(seg.End), seg.Text)
	}
	return b.String()
}

// srtTimestamp 把秒数格式化为 SRT 时间戳 HH:MM:SS,mmm
func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	h := millis / 3600000
	m := millis % 3600000 / 60000
	s := millis % 60000 / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
