// Package server is the streamkit HTTP surface. It serves a broadcaster as
// a text/event-stream at /events and an exchange registry as long-poll
// endpoints at /exchanges/:id, on Gin with HTTP/1.1 and h2c.
//
// # Routes
//
//   - GET /events: live stream; Last-Event-ID resumes from the replay buffer
//   - POST /events: publish {event, data, retry_ms}; 202 {id, delivered}
//   - GET /exchanges: ids of suspended exchanges
//   - GET /exchanges/:id?timeout=30s: park until resumed; 503 + Retry-After on timeout
//   - POST /exchanges/:id: resume with {value}
//   - DELETE /exchanges/:id: cancel
//   - GET /health, GET /ready: component status
//
// Every request passes through request id, logging, recovery, CORS and
// body-size middleware (server/middleware) and is traced and counted.
package server
