package registry

import (
	"errors"
	"sync"
	"time"

	"subtitle-flow/app/model"
)

// 任务创建后的初始提示
const defaultWaitingMessage = "Waiting to start..."

var (
	// ErrTaskNotFound 查询了不存在的任务
	ErrTaskNotFound = errors.New("任务不存在")
	// ErrDuplicateTask 用已存在的 ID 重复创建任务
	ErrDuplicateTask = errors.New("任务ID已存在")
)

// Fields Update 的部分字段集合，nil 字段保持原值不动
type Fields struct {
	Status   *model.TaskStatus
	Progress *int
	Message  *string
	Result   map[string]any
	Error    *string
}

// Registry 内存任务注册表，进程内唯一共享可变结构。
// 记录从创建存活到进程退出，终态（completed/failed）一经写入不再变化。
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
}

// New 创建任务注册表
func New() *Registry {
	return &Registry{
		tasks: make(map[string]*model.Task),
	}
}

// Create 插入一条新任务记录，ID 重复时返回 ErrDuplicateTask
func (r *Registry) Create(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; ok {
		return ErrDuplicateTask
	}

	r.tasks[id] = &model.Task{
		ID:        id,
		Status:    model.TaskStatusPending,
		Progress:  0,
		Message:   defaultWaitingMessage,
		CreatedAt: time.Now(),
	}
	return nil
}

// Update 把给定字段合并进已有记录。ID 不存在时静默忽略（尽力而为语义，
// 更新可能与进程重启或从未创建的 ID 竞争）。终态记录整体冻结，迟到的
// 并发更新不会让任务复活；非终态期间进度只增不减。
func (r *Registry) Update(id string, fields Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return
	}
	if task.Status.IsTerminal() {
		return
	}

	if fields.Status != nil {
		task.Status = *fields.Status
	}
	if fields.Progress != nil && *fields.Progress > task.Progress {
		task.Progress = *fields.Progress
	}
	if fields.Message != nil {
		task.Message = *fields.Message
	}
	if fields.Result != nil {
		task.Result = fields.Result
	}
	if fields.Error != nil {
		task.Error = *fields.Error
	}
}

// Get 返回任务快照，调用方拿到的是副本，修改不会影响注册表
func (r *Registry) Get(id string) (model.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return *task, true
}

// StatusPtr 构造 Fields 用的指针辅助函数
func StatusPtr(s model.TaskStatus) *model.TaskStatus { return &s }

// IntPtr 构造 Fields 用的指针辅助函数
func IntPtr(v int) *int { return &v }

// StringPtr 构造 Fields 用的指针辅助函数
func StringPtr(v string) *string { return &v }
