package model

import (
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal 判断状态是否为终态，终态之后不再变化
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task 一次流水线运行的跟踪状态，由内存注册表独占持有
type Task struct {
	ID        string         `json:"id"`
	Status    TaskStatus     `json:"status"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
	Result    map[string]any `json:"result"`
	Error     string         `json:"error"`
}
