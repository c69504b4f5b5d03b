package model

import (
	"time"
)

// 任务类别
const (
	TaskKindTranscribe = "transcribe"
	TaskKindDataset    = "dataset"
)

// TaskRecord 终态任务的持久化归档，进程重启后仍可查询历史
type TaskRecord struct {
	ID         uint       `json:"id" gorm:"primarykey"`
	TaskID     string     `json:"task_id" gorm:"uniqueIndex;not null"`
	Kind       string     `json:"kind" gorm:"size:20;index"`
	Status     TaskStatus `json:"status" gorm:"size:20;index"`
	Message    string     `json:"message"`
	ResultJSON string     `json:"result_json" gorm:"type:text"`
	ErrorMsg   string     `json:"error_msg" gorm:"type:text"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// TableName 指定表名
func (TaskRecord) TableName() string {
	return "task_records"
}
