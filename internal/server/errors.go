package server

import "errors"

var (
	// ErrUnknownReceiver is returned before any side effect when the
	// receiver of a message has no account.
	ErrUnknownReceiver = errors.New("unknown receiver")
	// ErrUnauthorizedMutation is returned when a user tries to change a
	// message they did not send.
	ErrUnauthorizedMutation = errors.New("not the author of this message")
	ErrNotFound             = errors.New("not found")
	ErrEmptyMessage         = errors.New("message cannot be empty")
	// ErrPersistenceFailed wraps storage errors for messages that were
	// routed but could not be written to the log.
	ErrPersistenceFailed = errors.New("message not persisted")
	ErrServerStopped     = errors.New("chat server stopped")
)
