package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"avellaneda-mm/inventory"
	"avellaneda-mm/order"
	"avellaneda-mm/strategy/avellaneda"
)

// EventType 事件类型
type EventType string

const (
	EventStateChange    EventType = "STATE_CHANGE"
	EventOrderPlaced    EventType = "ORDER_PLACED"
	EventOrderFilled    EventType = "ORDER_FILLED"
	EventOrderCancelled EventType = "ORDER_CANCELLED"
	EventUpdate         EventType = "UPDATE"
	EventError          EventType = "ERROR"
)

// Event 引擎对外发布的事件。核心不消费事件，只供运维与监控订阅。
type Event struct {
	Type   EventType
	Symbol string
	Time   time.Time

	// STATE_CHANGE
	From State
	To   State

	// ORDER_*
	Order *order.Order

	// UPDATE
	Quote  *avellaneda.Quote
	Ledger *inventory.Snapshot

	// ERROR
	Err error
}

// Bus 按订阅者缓冲分发事件。发布永不阻塞：订阅者跟不上时丢弃其
// 最旧的未投递事件并计数。
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	closed  bool
	dropped atomic.Int64

	closeOnce sync.Once
}

// NewBus 创建事件总线。
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe 注册一个订阅者，返回事件通道与取消函数。buffer <= 0 时取 16。
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish 向所有订阅者投递。满通道先弹出最旧一条再投递，发布方不阻塞。
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
			continue
		default:
		}
		// 订阅者落后：丢最旧，再试一次
		select {
		case <-ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped 返回因订阅者过慢而丢弃的事件总数。
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close 关闭总线与所有订阅通道。幂等。
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for id, ch := range b.subs {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	})
}
