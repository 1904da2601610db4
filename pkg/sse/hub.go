package sse

import (
	"sync"
)

// Event 推送给前端的任务事件
type Event struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Hub 按任务ID组织 SSE 订阅者。
// 订阅通道由 handler 持有并负责关闭，Hub 只负责投递；
// 订阅者消费不过来时直接丢消息，不允许阻塞回调处理路径。
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe 注册订阅，返回带缓冲的事件通道
func (h *Hub) Subscribe(taskID string) chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[taskID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[taskID] = set
	}
	set[ch] = struct{}{}
	return ch
}

// Unsubscribe 取消订阅
func (h *Hub) Unsubscribe(taskID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[taskID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, taskID)
		}
	}
}

// Publish 向某个任务的所有订阅者投递事件
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.TaskID] {
		select {
		case ch <- ev:
		default:
			// 客户端没在读，丢弃
		}
	}
}
