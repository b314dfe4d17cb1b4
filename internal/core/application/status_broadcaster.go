package application

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
)

const statusBufferSize = 32

// statusBroadcaster fans out the status updates of one execution to all its
// subscribers. Slow subscribers lose intermediate updates, never block the
// executor.
type statusBroadcaster struct {
	lock        *sync.Mutex
	subscribers map[int]chan domain.ExecutionStatus
	nextID      int
	last        *domain.ExecutionStatus
	closed      bool
}

func newStatusBroadcaster() *statusBroadcaster {
	return &statusBroadcaster{
		lock:        &sync.Mutex{},
		subscribers: make(map[int]chan domain.ExecutionStatus),
	}
}

// subscribe returns a channel receiving the latest status right away, and
// every following one.
func (b *statusBroadcaster) subscribe() (<-chan domain.ExecutionStatus, func()) {
	b.lock.Lock()
	defer b.lock.Unlock()

	ch := make(chan domain.ExecutionStatus, statusBufferSize)
	if b.closed {
		if b.last != nil {
			ch <- *b.last
		}
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	if b.last != nil {
		ch <- *b.last
	}

	return ch, func() { b.unsubscribe(id) }
}

func (b *statusBroadcaster) unsubscribe(id int) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *statusBroadcaster) publish(status domain.ExecutionStatus) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return
	}
	b.last = &status
	for id, ch := range b.subscribers {
		select {
		case ch <- status:
		default:
			log.Debugf(
				"execution %s: subscriber %d is lagging behind, dropping %s status",
				status.ExecutionID, id, status.Phase,
			)
		}
	}
}

func (b *statusBroadcaster) close() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
