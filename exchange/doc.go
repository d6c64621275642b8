// Package exchange provides suspended exchanges: a pending result that a
// waiting caller parks on until it is resumed with a value, resumed with an
// error, cancelled, or timed out. Exactly one of these takes effect; every
// later attempt fails with ErrInvalidState and changes nothing.
//
//	ex := exchange.New[string](exchange.WithDeadline(30 * time.Second))
//	go func() { ex.Resume(work()) }()
//	v, err := ex.Await(ctx)
//
// Registry keeps exchanges addressable by id so an HTTP handler can suspend
// a request and a later request can resume it.
package exchange
