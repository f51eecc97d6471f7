package docstore

import "sync"

// Dispatcher delivers notifications to one subscriber on a dedicated
// goroutine, in enqueue order. Enqueueing never blocks the caller, so a
// slow callback cannot stall writers or other subscribers. Store
// implementations use one Dispatcher per subscription to honor the
// per-document ordering guarantee.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []interface{}
	wake    chan struct{}
	done    chan struct{}
	stopped bool
	handler func(interface{})
}

func NewDispatcher(handler func(interface{})) *Dispatcher {
	d := &Dispatcher{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		handler: handler,
	}
	go d.run()
	return d
}

func (d *Dispatcher) Push(v interface{}) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, v)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.wake:
		case <-d.done:
			return
		}

		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			v := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()

			d.handler(v)
		}
	}
}

// Stop drops any queued notifications and terminates the delivery
// goroutine. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.queue = nil
	d.mu.Unlock()
	close(d.done)
}
