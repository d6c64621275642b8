// Package flow implements demand-driven publish/subscribe.
//
// A consumer attaches to an Emits[T] source and receives a Subscription.
// Nothing is delivered until the consumer asks for it with Request; every
// subscription has its own delivery goroutine, so OnNext, OnError and
// OnComplete for one subscription never run concurrently and always arrive
// in emission order. OnError and OnComplete are terminal.
//
//	pub := flow.NewPublisher[string](flow.WithBufferSize(64), flow.WithOverflow(flow.OverflowDropOldest))
//	sub, err := pub.Subscribe(flow.ConsumerFuncs[string]{
//	    Initial: 16,
//	    Next:    func(s string) { fmt.Println(s) },
//	})
//	pub.Emit("hello")
//	pub.Complete()
//
// Request(flow.Unbounded) turns back-pressure off for a subscription.
package flow
