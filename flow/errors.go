package flow

import "github.com/kbukum/streamkit/errors"

// Sentinels for errors.Is. AppError matches by code, so errors carrying
// extra details (the rejected demand, the buffer capacity) still match.
var (
	ErrAlreadySubscribed = errors.AlreadySubscribed()
	ErrInvalidDemand     = errors.InvalidDemand(0)
	ErrNoSubscribers     = errors.NoSubscribers()
	ErrClosed            = errors.Closed("publisher")
	ErrOverflow          = errors.BufferOverflow(0)
)
