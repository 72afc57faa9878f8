// Package worker runs an awl interpreter on a background goroutine and talks
// to it with typed messages.
//
// # Overview
//
// The host never touches the interpreter directly. It posts [Message] values
// to a [Worker] and receives messages back. The worker starts accepting
// messages immediately, but the interpreter takes a while to instantiate, so
// requests are queued by a [Dispatcher] until loading finishes and are then
// replayed in arrival order.
//
//	w := worker.Start(ctx, loader)
//	defer w.Terminate()
//
//	c := worker.NewClient(w)
//	c.AddHandler(worker.KindVersion, func(v string) { fmt.Println("awl", v) })
//	c.AddHandler(worker.KindPrint, out.Print)
//	go c.Run(ctx)
//
//	c.PostMessage(worker.Message{Kind: worker.KindVersion})
//	c.PostMessage(worker.Message{Kind: worker.KindEval, Value: "(+ 1 2)"})
//
// # Protocol
//
//	{"message":"version"}              -> {"message":"version","value":"v0.2.0"}
//	{"message":"eval","value":"(...)"} -> zero or more {"message":"print","value":"..."}
//
// Unrecognized kinds are logged and dropped without a reply.
//
// # Queues
//
// Both directions use unbounded FIFO mailboxes. Nothing applies backpressure:
// a host that posts faster than the interpreter evaluates grows the inbound
// queue without limit. A running evaluation cannot be cancelled.
package worker
