package core

import "errors"

var ErrBackpressure = errors.New("backpressure")

// Frame is an encoded stream payload.
type Frame []byte

// StreamConnection abstracts one client's live stream endpoint.
// Owned by the adapter; the adapter must Close() it.
type StreamConnection interface {
	// TrySend queues a frame without blocking; a full send buffer returns
	// ErrBackpressure and the frame is dropped for this connection.
	TrySend(Frame) error
	Close()
}
