// Package messenger defines the boundary to the chat platform: the change
// events it emits, the client verbs keepbot consumes, and an HTTP bridge
// implementation of that client.
package messenger

import (
	"context"
	"errors"
)

// ErrAuthFailed reports that the platform rejected the credentials or the
// resumed session. Callers treat it as fatal to startup.
var ErrAuthFailed = errors.New("messenger: authentication failed")

// Session identifies the authenticated account.
type Session struct {
	UserID string
}

// Client is the platform surface keepbot consumes. Authentication and the
// wire protocol live behind it; keepbot only compares session state bytes
// and reacts to events.
type Client interface {
	// Login authenticates with full credentials.
	Login(ctx context.Context, email, password string) (*Session, error)

	// Resume authenticates by replaying a previously issued session state.
	Resume(ctx context.Context, email, password string, state []byte) (*Session, error)

	// SessionState returns the client's current canonical session state as
	// an opaque serialized blob. Compared bytewise against the stored copy.
	SessionState(ctx context.Context) ([]byte, error)

	// Listen subscribes to attribute-change events. The returned channel is
	// closed when ctx is cancelled or the subscription ends.
	Listen(ctx context.Context) (<-chan Event, error)

	// Corrective verbs: re-apply an attribute value to a thread.
	SetThreadColor(ctx context.Context, color, threadID string) error
	SetThreadEmoji(ctx context.Context, emoji, threadID string) error
	SetNickname(ctx context.Context, nickname, memberID, threadID string, kind ThreadKind) error
}
