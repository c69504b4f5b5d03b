package model

import (
	"time"
)

// DatasetMetadata 单条样本的溯源信息
type DatasetMetadata struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	Channel      string `json:"channel"`
	Views        int64  `json:"views"`
	Duration     int64  `json:"duration"`
	Language     string `json:"language"`
	CommentLikes int64  `json:"comment_likes"`
}

// DatasetItem 数据集单条样本，对应 jsonl 文件中的一行
type DatasetItem struct {
	Input    string          `json:"input"`
	Output   string          `json:"output"`
	Metadata DatasetMetadata `json:"metadata"`
}

// DatasetRecord 数据集样本的数据库归档
type DatasetRecord struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	TaskID    string    `json:"task_id" gorm:"index;not null"`
	VideoID   string    `json:"video_id" gorm:"index"`
	Input     string    `json:"input" gorm:"type:text"`
	Output    string    `json:"output" gorm:"type:text"`
	Likes     int64     `json:"likes"`
	Language  string    `json:"language" gorm:"size:20"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (DatasetRecord) TableName() string {
	return "dataset_records"
}
