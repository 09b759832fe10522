package session

import "errors"

// Named failures signal coordination bugs to the caller; environmental
// failures are absorbed into the session record instead.
var (
	ErrSessionAlreadyActive = errors.New("a session is already active for this channel")
	ErrNoActiveSession      = errors.New("no active session for this channel")
	ErrAlreadyConnected     = errors.New("a voice connection already exists for this channel")
	ErrNotConnected         = errors.New("no voice connection exists for this channel")
	ErrConnectTimeout       = errors.New("voice connection did not become ready in time")
)
