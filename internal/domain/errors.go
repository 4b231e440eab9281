package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidSize  = errors.New("invalid order size")
	ErrInvalidPrice = errors.New("invalid limit price")
	ErrUnknownSide  = errors.New("unknown order side")
	ErrSequenceGap  = errors.New("feed sequence gap")
	ErrStaleBook    = errors.New("order book stale, awaiting resync")
	ErrCrossedBook  = errors.New("crossed order book")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
