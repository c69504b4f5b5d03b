package model

// Token 转写引擎输出的单个带时间戳的词，时间单位为秒
type Token struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment 字幕显示用的一段连续语音
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
