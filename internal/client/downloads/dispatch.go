package downloads

import "sync"

// dispatcher delivers events to listeners from a single goroutine, in
// publish order. Publishing never blocks on a slow listener.
type dispatcher struct {
	mu        sync.Mutex
	queue     []Event
	listeners []listener
	nextID    uint64

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

type listener struct {
	id uint64
	fn func(Event)
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) subscribe(fn func(Event)) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, listener{id: id, fn: fn})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, l := range d.listeners {
				if l.id == id {
					d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (d *dispatcher) publish(ev Event) {
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.wake:
			d.drain()
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		ls := append([]listener(nil), d.listeners...)
		d.mu.Unlock()

		for _, ev := range batch {
			for _, l := range ls {
				l.fn(ev)
			}
		}
	}
}

// close delivers whatever is still queued and stops the goroutine.
func (d *dispatcher) close() {
	close(d.stop)
	<-d.done
}
