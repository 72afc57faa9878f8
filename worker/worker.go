package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTerminated is returned once a worker has been terminated and its
// outbound messages drained.
var ErrTerminated = errors.New("worker terminated")

// Engine is the interpreter surface a worker drives. It is satisfied by
// *interp.Interpreter.
type Engine interface {
	Version() string
	RegisterPrintFn(ctx context.Context, fn func(string)) error
	Eval(ctx context.Context, source string) error
	Close(ctx context.Context) error
}

// Loader instantiates the interpreter. It runs on its own goroutine while the
// worker already accepts messages.
type Loader func(ctx context.Context) (Engine, error)

// Worker owns one interpreter and serves messages for it on a dedicated
// goroutine.
type Worker struct {
	cfg    config
	inbox  *mailbox
	outbox *mailbox
	errs   chan error

	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once
}

type loadResult struct {
	engine Engine
	err    error
}

// Start begins listening and loading. Messages posted before the interpreter
// is ready are queued and replayed once it is.
func Start(ctx context.Context, load Loader, opts ...Option) *Worker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &Worker{
		cfg:    cfg,
		inbox:  newMailbox(),
		outbox: newMailbox(),
		errs:   make(chan error, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	loaded := make(chan loadResult, 1)
	go func() {
		engine, err := load(ctx)
		loaded <- loadResult{engine: engine, err: err}
	}()

	go w.run(ctx, loaded)
	return w
}

// PostMessage queues m for the worker. It never blocks. Messages posted after
// Terminate are dropped.
func (w *Worker) PostMessage(m Message) {
	if !w.inbox.put(m) {
		w.cfg.logger.Debug("message posted to terminated worker", "worker", w.cfg.name, "message", m.Kind)
	}
}

// Recv returns the next message sent by the worker.
func (w *Worker) Recv(ctx context.Context) (Message, error) {
	return w.outbox.take(ctx)
}

// Err yields the load error, if loading failed.
func (w *Worker) Err() <-chan error {
	return w.errs
}

// Backlog returns the number of messages posted but not yet taken off the
// inbound queue.
func (w *Worker) Backlog() int {
	return w.inbox.len()
}

// Terminate stops the worker and closes its interpreter. Pending and queued
// requests are discarded; an evaluation already running completes first.
func (w *Worker) Terminate() {
	w.quitOnce.Do(func() {
		close(w.quit)
	})
	<-w.done
}

// Done is closed after the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run(ctx context.Context, loaded <-chan loadResult) {
	logger := w.cfg.logger.With("worker", w.cfg.name)

	var engine Engine
	d := NewDispatcher(logger)
	d.Handle(KindVersion, func(string) {
		w.outbox.put(Message{Kind: KindVersion, Value: engine.Version()})
	})
	d.Handle(KindEval, func(source string) {
		if err := engine.Eval(ctx, source); err != nil {
			logger.Error("eval failed", "error", err)
		}
	})

	defer func() {
		w.inbox.close()
		if loaded != nil {
			go func(loaded <-chan loadResult) {
				if res := <-loaded; res.err == nil && res.engine != nil {
					res.engine.Close(context.Background())
				}
			}(loaded)
		}
		if engine != nil {
			if err := engine.Close(context.Background()); err != nil {
				logger.Warn("close interpreter", "error", err)
			}
		}
		w.outbox.close()
		close(w.done)
	}()

	for {
		select {
		case <-w.quit:
			return

		case <-ctx.Done():
			return

		case res := <-loaded:
			loaded = nil
			if res.err != nil {
				err := fmt.Errorf("load %s: %w", w.cfg.name, res.err)
				logger.Error("worker load failed", "error", err, "queued", d.Pending())
				w.errs <- err
				continue
			}

			engine = res.engine
			err := engine.RegisterPrintFn(ctx, func(s string) {
				w.outbox.put(Message{Kind: KindPrint, Value: s})
			})
			if err != nil {
				err = fmt.Errorf("register print function: %w", err)
				logger.Error("worker load failed", "error", err)
				w.errs <- err
				continue
			}
			d.Ready()

		case <-w.inbox.wait():
			for {
				m, ok := w.inbox.tryTake()
				if !ok {
					break
				}
				d.Dispatch(m)

				select {
				case <-w.quit:
					return
				default:
				}
			}
		}
	}
}
