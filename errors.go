package rpc

import (
	"errors"
)

var (
	// ErrMalformedChannel is returned when a channel name does not split into subject, operation and id.
	ErrMalformedChannel = errors.New("malformed channel")

	// ErrPayloadDecode is returned when a message payload is not valid structured data.
	ErrPayloadDecode = errors.New("payload decode failed")

	// ErrCallbackInvocation wraps any failure raised by a registered handler.
	ErrCallbackInvocation = errors.New("callback invocation failed")

	// ErrPublish wraps transport failures while publishing a completion or error event.
	ErrPublish = errors.New("publish failed")

	// ErrInvalidSubject is returned when a subject is empty or contains the channel separator.
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrNoListeners is returned by Run when nothing has been registered.
	ErrNoListeners = errors.New("no listeners registered")

	// ErrBrokerStopped is returned when a stopped broker is asked to run again.
	ErrBrokerStopped = errors.New("broker stopped")

	// ErrSubscriptionClosed is returned when the transport ends a subscription unexpectedly.
	ErrSubscriptionClosed = errors.New("subscription closed by transport")

	// ErrCallerNotStarted is returned when Call is used with wait before Start.
	ErrCallerNotStarted = errors.New("caller not started")
)

// RemoteError is the error reported by a listener on its on_error channel.
type RemoteError struct {
	Subject string
	ID      string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Subject + ": " + e.Message
}
