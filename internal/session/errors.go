package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSendRejected is returned by SendMessage while the session is not
	// connected. The message is dropped, not queued.
	ErrSendRejected = errors.New("session: not connected, message dropped")
	// ErrEmptyMessage is returned by SendMessage for blank text.
	ErrEmptyMessage = errors.New("session: message is empty")
	// ErrReconnectExhausted is published on Errors when the reconnect policy
	// gives up. The session stays disconnected until Connect is called.
	ErrReconnectExhausted = errors.New("session: reconnect attempts exhausted")
	// ErrClosed is returned once the manager has been shut down.
	ErrClosed = errors.New("session: manager closed")
)

// TransportError wraps a dial, read or write failure of the channel transport.
type TransportError struct {
	ClientID string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session %s: %s failed: %v", e.ClientID, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports an inbound frame that could not be decoded. It is not
// fatal to the session.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("session: malformed frame (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
