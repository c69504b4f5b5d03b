package registry

import (
	"errors"
	"sync"
	"testing"

	"subtitle-flow/app/model"
)

func TestCreateAndGet(t *testing.T) {
	reg := New()
	if err := reg.Create("t1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	task, ok := reg.Get("t1")
	if !ok {
		t.Fatal("expected task to exist")
	}
	if task.Status != model.TaskStatusPending {
		t.Errorf("expected pending status, got %s", task.Status)
	}
	if task.Progress != 0 {
		t.Errorf("expected progress 0, got %d", task.Progress)
	}
	if task.Message != "Waiting to start..." {
		t.Errorf("unexpected initial message: %q", task.Message)
	}
	if task.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestCreateDuplicate(t *testing.T) {
	reg := New()
	if err := reg.Create("t1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := reg.Create("t1"); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	reg := New()
	if _, ok := reg.Get("nope"); ok {
		t.Error("expected missing task")
	}
}

func TestUpdateMissingIsNoop(t *testing.T) {
	reg := New()
	// 不存在的 ID 更新应静默忽略，不得 panic 也不得创建记录
	reg.Update("ghost", Fields{Progress: IntPtr(50)})
	if _, ok := reg.Get("ghost"); ok {
		t.Error("update must not create a task")
	}
}

func TestUpdateMergesFields(t *testing.T) {
	reg := New()
	reg.Create("t1")

	reg.Update("t1", Fields{
		Status:   StatusPtr(model.TaskStatusProcessing),
		Progress: IntPtr(30),
		Message:  StringPtr("Generating subtitles..."),
	})

	task, _ := reg.Get("t1")
	if task.Status != model.TaskStatusProcessing || task.Progress != 30 {
		t.Errorf("unexpected task after update: %+v", task)
	}

	// 只更新部分字段时其余字段保持原值
	reg.Update("t1", Fields{Progress: IntPtr(80)})
	task, _ = reg.Get("t1")
	if task.Status != model.TaskStatusProcessing {
		t.Errorf("status should be untouched, got %s", task.Status)
	}
	if task.Message != "Generating subtitles..." {
		t.Errorf("message should be untouched, got %q", task.Message)
	}
	if task.Progress != 80 {
		t.Errorf("expected progress 80, got %d", task.Progress)
	}
}

func TestProgressMonotonic(t *testing.T) {
	reg := New()
	reg.Create("t1")

	reg.Update("t1", Fields{Progress: IntPtr(60)})
	reg.Update("t1", Fields{Progress: IntPtr(30)})

	task, _ := reg.Get("t1")
	if task.Progress != 60 {
		t.Errorf("progress must not regress, got %d", task.Progress)
	}
}

func TestTerminalStateFrozen(t *testing.T) {
	reg := New()
	reg.Create("t1")

	reg.Update("t1", Fields{
		Status:  StatusPtr(model.TaskStatusFailed),
		Message: StringPtr("Error: boom"),
		Error:   StringPtr("boom"),
	})

	// 终态之后的迟到更新整体忽略
	reg.Update("t1", Fields{
		Status:   StatusPtr(model.TaskStatusProcessing),
		Progress: IntPtr(90),
		Message:  StringPtr("late checkpoint"),
	})

	task, _ := reg.Get("t1")
	if task.Status != model.TaskStatusFailed {
		t.Errorf("terminal status must not change, got %s", task.Status)
	}
	if task.Message != "Error: boom" {
		t.Errorf("terminal message must not change, got %q", task.Message)
	}
	if task.Progress != 0 {
		t.Errorf("terminal progress must not change, got %d", task.Progress)
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	reg := New()
	reg.Create("t1")

	task, _ := reg.Get("t1")
	task.Progress = 99
	task.Status = model.TaskStatusCompleted

	fresh, _ := reg.Get("t1")
	if fresh.Progress != 0 || fresh.Status != model.TaskStatusPending {
		t.Errorf("mutating a snapshot must not affect the registry: %+v", fresh)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	reg := New()
	reg.Create("t1")

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			reg.Update("t1", Fields{Progress: IntPtr(p)})
		}(i)
	}
	wg.Wait()

	task, _ := reg.Get("t1")
	if task.Progress != 50 {
		t.Errorf("expected max progress 50, got %d", task.Progress)
	}
}
