package device_manager

import (
	"sync"

	"github.com/nhirsama/Goster-Ring/src/inter"
)

// MessageQueue 会话事件队列
// capacity <= 0 时不限长度；否则队列满时丢弃最早的一条再压入
type MessageQueue struct {
	mu       sync.Mutex
	items    []any
	capacity int
	dropped  uint64
	notify   chan struct{}
}

func NewMessageQueue(capacity int) *MessageQueue {
	return &MessageQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

var _ inter.MessageQueue = (*MessageQueue)(nil)

func (m *MessageQueue) Push(message any) error {
	m.mu.Lock()
	if m.capacity > 0 && len(m.items) >= m.capacity {
		// 队列满策略：丢弃最早的一条并压入新消息
		m.items[0] = nil
		m.items = m.items[1:]
		m.dropped++
	}
	m.items = append(m.items, message)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *MessageQueue) Pop() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil, false
	}
	msg := m.items[0]
	m.items[0] = nil
	m.items = m.items[1:]
	return msg, true
}

func (m *MessageQueue) Notify() <-chan struct{} {
	return m.notify
}

func (m *MessageQueue) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items) == 0
}

func (m *MessageQueue) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Dropped 因队列满被丢弃的消息数
func (m *MessageQueue) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
