// Package sse implements the Server-Sent Events wire format.
//
// It provides a frame Reader for consuming text/event-stream bodies, a
// Writer that frames and flushes events onto an http.ResponseWriter, a
// bounded ReplayBuffer for Last-Event-ID resumption and an HTTPSink that
// lets a broadcast.Broadcaster push events to one connected client.
//
// # Usage
//
//	r := sse.NewReader(resp.Body)
//	for {
//		ev, err := r.Next()
//		if err != nil {
//			var perr *sse.ParseError
//			if errors.As(err, &perr) {
//				continue
//			}
//			break
//		}
//		fmt.Println(ev.Name, ev.Data)
//	}
package sse
