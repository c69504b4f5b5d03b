package notify

import (
	"sync"

	"subtitle-flow/app/model"
	"subtitle-flow/app/registry"
)

// 观察者通道缓冲深度，写满直接丢弃，不提供投递保证
const observerBuffer = 8

// Hub 任务进度通知集线器。每个任务至多一个观察者，新订阅替换旧订阅；
// 推送是即发即弃的，观察者掉线或阻塞不会影响触发推送的流水线步骤。
type Hub struct {
	mu        sync.Mutex
	reg       *registry.Registry
	observers map[string]chan model.Task
}

// NewHub 创建通知集线器
func NewHub(reg *registry.Registry) *Hub {
	return &Hub{
		reg:       reg,
		observers: make(map[string]chan model.Task),
	}
}

// Subscribe 注册任务观察者，返回接收任务快照的通道。
// 同一任务的旧观察者通道会被关闭；任务已存在时立即投递一次当前快照。
func (h *Hub) Subscribe(id string) <-chan model.Task {
	ch := make(chan model.Task, observerBuffer)

	h.mu.Lock()
	old := h.observers[id]
	h.observers[id] = ch
	if task, ok := h.reg.Get(id); ok {
		ch <- task // 新通道必然有缓冲空位
	}
	h.mu.Unlock()

	if old != nil {
		close(old)
	}
	return ch
}

// Unsubscribe 注销观察者，仅当 ch 仍是该任务的当前观察者时生效。
// SSE 连接断开时由请求处理器调用。
func (h *Hub) Unsubscribe(id string, ch <-chan model.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.observers[id]
	if !ok || (<-chan model.Task)(current) != ch {
		return
	}
	delete(h.observers, id)
	close(current)
}

// Publish 查询任务当前快照并推送给观察者。任务不存在、无观察者或
// 通道已满时直接放弃，调用方永远不会因此出错或阻塞。
func (h *Hub) Publish(id string) {
	task, ok := h.reg.Get(id)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.observers[id]
	if !ok {
		return
	}
	select {
	case ch <- task:
	default: // 观察者消费不过来，丢弃本次快照
	}
}
