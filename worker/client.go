package worker

import (
	"context"
	"errors"
	"log/slog"
)

// Client is the host side of the worker channel. It dispatches messages from
// the worker to handlers registered with AddHandler.
type Client struct {
	worker *Worker
	d      *Dispatcher
	logger *slog.Logger
}

// NewClient returns a Client for w. Register handlers before calling Run.
func NewClient(w *Worker, opts ...Option) *Client {
	cfg := w.cfg
	for _, opt := range opts {
		opt(&cfg)
	}

	d := NewDispatcher(cfg.logger)
	d.Ready()

	return &Client{
		worker: w,
		d:      d,
		logger: cfg.logger,
	}
}

// AddHandler registers fn for messages of the given kind from the worker.
func (c *Client) AddHandler(kind string, fn Handler) {
	c.d.Handle(kind, fn)
}

// PostMessage sends m to the worker.
func (c *Client) PostMessage(m Message) {
	c.worker.PostMessage(m)
}

// Run dispatches worker messages on the calling goroutine until the worker
// terminates or ctx is done. A load failure is logged, not returned; the
// worker keeps queueing requests it can never serve.
func (c *Client) Run(ctx context.Context) error {
	errs := c.worker.Err()
	msgs := make(chan Message)
	recvErr := make(chan error, 1)

	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			m, err := c.worker.Recv(recvCtx)
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case msgs <- m:
			case <-recvCtx.Done():
				recvErr <- recvCtx.Err()
				return
			}
		}
	}()

	for {
		select {
		case err := <-errs:
			errs = nil
			c.logger.Error("worker error", "error", err)

		case m := <-msgs:
			c.d.Dispatch(m)

		case err := <-recvErr:
			if errors.Is(err, ErrTerminated) {
				return nil
			}
			return err
		}
	}
}
