package events

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// PublishTimeout bounds a single delivery to a single publisher
const PublishTimeout = 5 * time.Second

// Dispatcher fans messages out to publishers from a background goroutine.
// Enqueue never blocks: when the buffer is full the message is dropped.
type Dispatcher struct {
	publishers []Publisher
	queue      chan Message

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewDispatcher(buffer int, publishers ...Publisher) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		publishers: publishers,
		queue:      make(chan Message, buffer),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Enqueue schedules msg for delivery
func (d *Dispatcher) Enqueue(msg Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.dropped.Add(1)
		log.Printf("[Events] Queue full, dropped %s", msg.Name)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for msg := range d.queue {
		for _, p := range d.publishers {
			ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
			if err := p.Publish(ctx, msg); err != nil {
				d.failed.Add(1)
				log.Printf("[Events] Failed to publish %s (tx %s): %v", msg.Name, msg.TxHash.Hex(), err)
			}
			cancel()
		}
	}
}

// Dropped returns how many messages were discarded because the queue was full
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Failed returns how many publisher deliveries returned an error
func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }

// Close drains the queue and closes every publisher.
// This method is idempotent and safe to call multiple times.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()

	var errs []error
	for _, p := range d.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
