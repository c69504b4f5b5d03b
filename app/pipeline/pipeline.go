// Package pipeline 实现任务流水线的通用驱动器。
//
// 流水线形状被声明为有序的步骤列表，驱动器在每个步骤前写入进度检查点并
// 推送通知，步骤失败时把任务置为终态 failed。清理策略：失败时尽力删除
// 仍然存在的输入工件；各步骤产生的中间产物登记到 State.Intermediates，
// 只在整条流水线成功收尾时统一删除，失败时保留现场便于排查。
package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"subtitle-flow/app/database"
	"subtitle-flow/app/engine"
	"subtitle-flow/app/logger"
	"subtitle-flow/app/model"
	"subtitle-flow/app/notify"
	"subtitle-flow/app/registry"
	"subtitle-flow/app/youtube"
)

// Step 流水线中的一个具名步骤
type Step struct {
	Name       string                                       // 步骤名，只用于日志
	Progress   int                                          // 进入该步骤前写入的进度检查点
	Message    string                                       // 推送给观察者的当前步骤描述
	BestEffort bool                                         // 失败只降级不终止流水线
	Run        func(ctx context.Context, st *State) error   // 步骤逻辑
}

// State 流水线步骤之间传递的共享上下文
type State struct {
	TaskID        string
	Kind          string // 任务类别，归档用
	InputPath     string // 上传或下载的源媒体文件
	AudioPath     string
	Transcription *engine.Result
	Segments      []model.Segment
	Metadata      *youtube.Metadata
	Comments      []youtube.Comment
	OCRText       string
	Result        map[string]any // 终态 result 载荷，由收尾步骤装配
	Intermediates []string       // 成功收尾时要删除的中间产物
}

// AddIntermediate 登记一个成功后需要清理的中间产物
func (st *State) AddIntermediate(path string) {
	if path != "" {
		st.Intermediates = append(st.Intermediates, path)
	}
}

// Runner 通用流水线驱动器，一次 Execute 对应一个任务的完整生命周期
type Runner struct {
	registry *registry.Registry
	notifier *notify.Hub
	log      *logger.Logger
}

// NewRunner 创建流水线驱动器
func NewRunner(reg *registry.Registry, hub *notify.Hub, log *logger.Logger) *Runner {
	return &Runner{
		registry: reg,
		notifier: hub,
		log:      log,
	}
}

// Execute 顺序执行步骤序列，终态通过任务注册表和通知流观察。
// 设计上在独立协程中调用，调用方不等待。
func (r *Runner) Execute(ctx context.Context, st *State, steps []Step) {
	for _, step := range steps {
		r.checkpoint(st.TaskID, step.Progress, step.Message)

		if err := step.Run(ctx, st); err != nil {
			if step.BestEffort {
				r.log.Warnf("任务 %s 步骤 %s 失败（尽力而为，继续执行）: %v", st.TaskID, step.Name, err)
				continue
			}
			r.log.Errorf("任务 %s 步骤 %s 失败: %v", st.TaskID, step.Name, err)
			r.fail(st, err)
			return
		}
	}
	r.complete(st)
}

// checkpoint 在步骤开始前更新进度并推送通知
func (r *Runner) checkpoint(taskID string, progress int, message string) {
	r.registry.Update(taskID, registry.Fields{
		Status:   registry.StatusPtr(model.TaskStatusProcessing),
		Progress: registry.IntPtr(progress),
		Message:  registry.StringPtr(message),
	})
	r.notifier.Publish(taskID)
}

// complete 清理中间产物并把任务置为 completed
func (r *Runner) complete(st *State) {
	for _, path := range st.Intermediates {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.log.Warnf("任务 %s 清理中间产物失败: %s: %v", st.TaskID, path, err)
		}
	}

	r.registry.Update(st.TaskID, registry.Fields{
		Status:   registry.StatusPtr(model.TaskStatusCompleted),
		Progress: registry.IntPtr(100),
		Message:  registry.StringPtr("Processing completed!"),
		Result:   st.Result,
	})
	r.notifier.Publish(st.TaskID)
	r.archive(st)
	r.log.Infof("任务 %s 完成", st.TaskID)
}

// fail 把任务置为 failed 并尽力删除输入工件。
// 早前成功步骤留下的中间产物有意保留，方便失败后排查。
func (r *Runner) fail(st *State, cause error) {
	msg := "Error: " + cause.Error()
	r.registry.Update(st.TaskID, registry.Fields{
		Status:  registry.StatusPtr(model.TaskStatusFailed),
		Message: registry.StringPtr(msg),
		Error:   registry.StringPtr(cause.Error()),
	})
	r.notifier.Publish(st.TaskID)

	if st.InputPath != "" {
		if err := os.Remove(st.InputPath); err != nil && !os.IsNotExist(err) {
			r.log.Warnf("任务 %s 删除输入文件失败: %s: %v", st.TaskID, st.InputPath, err)
		}
	}
	r.archive(st)
}

// archive 把终态任务写入数据库归档，失败只记日志不影响任务状态
func (r *Runner) archive(st *State) {
	db := database.GetDB()
	if db == nil {
		return
	}
	task, ok := r.registry.Get(st.TaskID)
	if !ok {
		return
	}

	var resultJSON string
	if task.Result != nil {
		if data, err := json.Marshal(task.Result); err == nil {
			resultJSON = string(data)
		}
	}

	record := model.TaskRecord{
		TaskID:     task.ID,
		Kind:       st.Kind,
		Status:     task.Status,
		Message:    task.Message,
		ResultJSON: resultJSON,
		ErrorMsg:   task.Error,
		CreatedAt:  task.CreatedAt,
		FinishedAt: time.Now(),
	}
	if err := db.Create(&record).Error; err != nil {
		r.log.Warnf("归档任务 %s 失败: %v", st.TaskID, err)
	}
}
