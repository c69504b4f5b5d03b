package notify

import (
	"testing"

	"subtitle-flow/app/model"
	"subtitle-flow/app/registry"
)

func TestSubscribeBeforeCreate(t *testing.T) {
	reg := registry.New()
	hub := NewHub(reg)

	// 任务尚不存在时订阅不应收到初始快照
	ch := hub.Subscribe("t1")
	select {
	case task := <-ch:
		t.Fatalf("unexpected snapshot before task exists: %+v", task)
	default:
	}

	// 任务创建后的推送应正常送达
	reg.Create("t1")
	hub.Publish("t1")

	select {
	case task := <-ch:
		if task.ID != "t1" || task.Status != model.TaskStatusPending {
			t.Errorf("unexpected snapshot: %+v", task)
		}
	default:
		t.Fatal("expected a snapshot after publish")
	}
}

func TestSubscribeExistingTaskGetsSnapshot(t *testing.T) {
	reg := registry.New()
	hub := NewHub(reg)
	reg.Create("t1")

	ch := hub.Subscribe("t1")
	select {
	case task := <-ch:
		if task.ID != "t1" {
			t.Errorf("unexpected snapshot: %+v", task)
		}
	default:
		t.Fatal("expected immediate snapshot for existing task")
	}
}

func TestSubscribeReplacesObserver(t *testing.T) {
	reg := registry.New()
	hub := NewHub(reg)
	reg.Create("t1")

	old := hub.Subscribe("t1")
	<-old // 初始快照

	replacement := hub.Subscribe("t1")

	// 旧通道被关闭
	if _, ok := <-old; ok {
		t.Error("expected old channel to be closed after replacement")
	}

	<-replacement // 初始快照
	hub.Publish("t1")
	select {
	case task := <-replacement:
		if task.ID != "t1" {
			t.Errorf("unexpected snapshot: %+v", task)
		}
	default:
		t.Fatal("replacement observer should receive publishes")
	}
}

func TestUnsubscribe(t *testing.T) {
	reg := registry.New()
	hub := NewHub(reg)
	reg.Create("t1")

	ch := hub.Subscribe("t1")
	<-ch
	hub.Unsubscribe("t1", ch)

	if _, ok := <-ch; ok {
		t.Error("expected channel closed after unsubscribe")
	}

	// 退订后推送不应 panic
	hub.Publish("t1")
}

func TestUnsubscribeStaleChannelIsNoop(t *testing.T) {
	reg := registry.New()
	hub := NewHub(reg)
	reg.Create("t1")

	old := hub.Subscribe("t1")
	<-old
	replacement := hub.Subscribe("t1")
	<-replacement

	// 旧通道的迟到退订不得影响当前观察者
	hub.Unsubscribe("t1", old)

	hub.Publish("t1")
	select {
	case <-replacement:
	default:
		t.Fatal("current observer must survive stale unsubscribe")
	}
}

func TestPublishWithoutObserver(t *testing.T) {
	reg := registry.New()
	hub := NewHub(reg)
	reg.Create("t1")

	// 无观察者时推送直接丢弃
	hub.Publish("t1")
	// 任务不存在时也一样
	hub.Publish("ghost")
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	reg := registry.New()
	hub := NewHub(reg)
	reg.Create("t1")

	ch := hub.Subscribe("t1")

	// 不消费，持续推送填满缓冲；推送方不得阻塞
	for i := 0; i < observerBuffer*3; i++ {
		hub.Publish("t1")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received != observerBuffer {
		t.Errorf("expected exactly %d buffered snapshots, got %d", observerBuffer, received)
	}
}
