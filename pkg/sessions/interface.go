package sessions

import "context"

// CommandHandler executes a remote control command sent by a receiver,
// such as "playpause" or "volumeup".
type CommandHandler func(ctx context.Context, command string) error

type SessionStore interface {
	// Registers a live audio session under its Active-Remote identifier
	// and returns a read-only copy of its state.
	Register(activeRemote string, dacpID string, handler CommandHandler) (SessionState, error)
	// Should produce a read-only copy of session state and counts as
	// activity for idle expiry.
	Get(activeRemote string) (SessionState, error)
	// Removes a session once it has been torn down.
	Remove(activeRemote string)
}

type SessionState struct {
	ActiveRemote string
	DACPID       string
	Handler      CommandHandler
}
