package domain

import "errors"

var (
	ErrChannelClosed  = errors.New("pipe channel is closed")
	ErrMalformedFrame = errors.New("malformed pipe frame")
)

// PipeChannel is the duplex, message framed channel to the local consumer.
// Send must be safe for concurrent use.
type PipeChannel interface {
	Send(msg string) error
	Receive() (string, error)
	Close() error
}
