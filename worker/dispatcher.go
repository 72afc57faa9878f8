package worker

import "log/slog"

// Handler processes the payload of one message kind.
type Handler func(value string)

// Dispatcher routes messages to handlers by kind.
//
// Until Ready is called, messages of a known kind are queued instead of
// dispatched. Ready replays the queue in arrival order and switches to
// immediate dispatch. Unknown kinds are logged and dropped in either mode.
//
// A Dispatcher belongs to one goroutine and is not safe for concurrent use.
type Dispatcher struct {
	handlers map[string]Handler
	queue    []Message
	ready    bool
	logger   *slog.Logger
}

// NewDispatcher returns a Dispatcher in queueing mode.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Handle registers h for kind, replacing any previous handler.
func (d *Dispatcher) Handle(kind string, h Handler) {
	d.handlers[kind] = h
}

// Dispatch delivers m, or queues it while the dispatcher is not ready.
// It reports whether m had a registered handler.
func (d *Dispatcher) Dispatch(m Message) bool {
	h, ok := d.handlers[m.Kind]
	if !ok {
		d.logger.Warn("message unhandled", "message", m.Kind)
		return false
	}

	if !d.ready {
		d.queue = append(d.queue, m)
		return true
	}

	h(m.Value)
	return true
}

// Ready replays queued messages in arrival order and switches to immediate
// dispatch. Messages dispatched by a handler during the replay are queued
// behind the remaining ones. Calling Ready again does nothing.
func (d *Dispatcher) Ready() {
	if d.ready {
		return
	}

	if n := len(d.queue); n > 0 {
		d.logger.Debug("replaying queued messages", "count", n)
	}

	for len(d.queue) > 0 {
		m := d.queue[0]
		d.queue[0] = Message{}
		d.queue = d.queue[1:]
		d.handlers[m.Kind](m.Value)
	}
	d.queue = nil
	d.ready = true
}

// IsReady reports whether the dispatcher dispatches immediately.
func (d *Dispatcher) IsReady() bool {
	return d.ready
}

// Pending returns the number of queued messages.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
