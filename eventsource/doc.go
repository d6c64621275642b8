// Package eventsource is a reconnecting Server-Sent Events client.
//
// An EventSource drives a Transport through the states
// Idle, Connecting, Open, Reconnecting and Closed. After a dropped
// connection it waits for the current retry delay and reconnects, sending
// the id of the last complete event it saw so the server can resume.
// The delay is whatever the server last asked for through a "retry:"
// field; a 503 response carrying Retry-After overrides it for exactly one
// attempt.
//
// Events can be consumed through callbacks registered with OnEvent,
// OnError and OnComplete, or with back-pressure through Subscribe.
//
// # Usage
//
//	src := eventsource.New(eventsource.NewHTTPTransport("http://localhost:8080/events"))
//	src.OnEvent(func(ev sse.Event) { fmt.Println(ev.Data) })
//	if err := src.Open(ctx); err != nil {
//		return err
//	}
//	defer src.Close()
package eventsource
