package event

import (
	"sync"

	"go.uber.org/zap"
)

const backlogWarning = 1000

// Listener queues events for one callback. The queue is unbounded so
// emitting never waits on a slow callback.
type Listener struct {
	eventType Type
	mu        sync.Mutex
	ready     *sync.Cond
	queue     []interface{}
	closed    bool
}

func newListener(eventType Type) *Listener {
	l := &Listener{eventType: eventType}
	l.ready = sync.NewCond(&l.mu)
	return l
}

func (l *Listener) push(msg interface{}) {
	l.mu.Lock()
	l.queue = append(l.queue, msg)
	backlog := len(l.queue)
	l.mu.Unlock()
	l.ready.Signal()

	if backlog%backlogWarning == 0 {
		zap.L().With(zap.String("type", string(l.eventType)), zap.Int("backlog", backlog)).Warn("EventManager: Listener falling behind")
	}
}

// next blocks until a message is queued. It reports false once the listener
// is closed and drained.
func (l *Listener) next() (interface{}, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.queue) == 0 && !l.closed {
		l.ready.Wait()
	}
	if len(l.queue) == 0 {
		return nil, false
	}

	msg := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]

	return msg, true
}

func (l *Listener) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.ready.Broadcast()
}

// Manager fans events out to listeners. Each listener runs on its own
// goroutine and sees its events in emission order.
type Manager struct {
	mu        sync.RWMutex
	listeners []*Listener
	wg        sync.WaitGroup
	closed    bool
}

func NewManager() *Manager {
	return &Manager{listeners: make([]*Listener, 0)}
}

func (m *Manager) AddEventListener(eventType Type, callback func(msg interface{})) {
	zap.L().With(zap.String("type", string(eventType))).Debug("EventManager: AddListener")

	listener := newListener(eventType)

	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			msg, ok := listener.next()
			if !ok {
				return
			}
			callback(msg)
		}
	}()
}

func (m *Manager) EmitEvent(eventType Type, msg interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		zap.L().With(zap.String("type", string(eventType))).Warn("EventManager: Emit after close")
		return
	}

	if len(m.listeners) == 0 {
		zap.L().Debug("No event listeners available")
	}

	for _, listener := range m.listeners {
		if listener.eventType == eventType || listener.eventType == AnyEvent {
			zap.L().With(zap.String("type", string(eventType))).Debug("EventManager: Emitting event")
			listener.push(msg)
		}
	}
}

// Close stops accepting events and waits for listeners to drain.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, listener := range m.listeners {
		listener.close()
	}
	m.mu.Unlock()

	m.wg.Wait()
}
