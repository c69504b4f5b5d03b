package subtitle

import (
	"strings"

	"subtitle-flow/app/model"
)

// DefaultGapThreshold 相邻词与段首词的起始间隔超过该值时切段（秒）
const DefaultGapThreshold = 3.0

// WindowSegments 把按起始时间有序的词序列切分成字幕段。
// 单遍扫描，无前瞻：当前词与段首词的起始间隔超过 gapThreshold 时结束当前段
// （段尾取触发词的起始时间），并以触发词作为新段的第一个词；扫描结束后
// 剩余的缓冲用最后一个词的结束时间收尾。产出的段按起始时间有序且互不重叠。
func WindowSegments(tokens []model.Token, gapThreshold float64) []model.Segment {
	if len(tokens) == 0 {
		return nil
	}

	segments := make([]model.Segment, 0, 4)
	parts := make([]string, 0, 16)
	var segStart float64

	for _, tok := range tokens {
		if len(parts) > 0 && tok.Start-segStart > gapThreshold {
			segments = append(segments, model.Segment{
				Start: segStart,
				End:   tok.Start,
				Text:  joinTokens(parts),
			})
			parts = parts[:0]
		}
		if len(parts) == 0 {
			segStart = tok.Start
		}
		parts = append(parts, tok.Text)
	}

	last := tokens[len(tokens)-1]
	segments = append(segments, model.Segment{
		Start: segStart,
		End:   last.End,
		Text:  joinTokens(parts),
	})
	return segments
}

// joinTokens 用单个空格拼接词文本并去掉首尾空白
func joinTokens(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, " "))
}
