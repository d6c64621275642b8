// Package broadcast fans events out to many sinks.
//
// Every registered Sink gets its own bounded flow.Publisher and a writer
// goroutine that pulls one event at a time, so a slow or broken sink never
// holds up the others. A sink whose write fails is removed and closed, and
// the exception and close listeners fire exactly once for it.
//
// # Usage
//
//	b := broadcast.New(broadcast.WithBufferSize(128))
//	b.OnClose(func(id string, _ broadcast.Sink) { log.Println("gone", id) })
//	id, _ := b.Register(sink)
//	b.Broadcast(sse.Event{Name: "tick", Data: "1"})
//	b.Close()
package broadcast
