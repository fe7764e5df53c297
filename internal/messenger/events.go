package messenger

// ThreadKind classifies a conversation.
type ThreadKind int

const (
	ThreadUnknown ThreadKind = iota
	ThreadUser               // one-to-one conversation
	ThreadGroup              // multi-party conversation
)

// String returns the wire name of the kind.
func (k ThreadKind) String() string {
	switch k {
	case ThreadUser:
		return "user"
	case ThreadGroup:
		return "group"
	default:
		return "unknown"
	}
}

// ParseThreadKind maps a wire name to a ThreadKind. Anything unrecognized
// is ThreadUnknown, which the engine ignores.
func ParseThreadKind(s string) ThreadKind {
	switch s {
	case "user":
		return ThreadUser
	case "group":
		return ThreadGroup
	default:
		return ThreadUnknown
	}
}

// Event is a single attribute-change notification delivered by the platform.
// It is a closed union over the three attribute kinds; consumers dispatch
// with a type switch.
type Event interface {
	isEvent()
}

// ColorChange reports that a thread's color was set.
type ColorChange struct {
	AuthorID string
	ThreadID string
	Kind     ThreadKind
	Color    string
}

// EmojiChange reports that a thread's emoji was set.
type EmojiChange struct {
	AuthorID string
	ThreadID string
	Kind     ThreadKind
	Emoji    string
}

// NicknameChange reports that a member's nickname in a thread was set.
type NicknameChange struct {
	AuthorID string
	ThreadID string
	MemberID string
	Kind     ThreadKind
	Nickname string
}

func (ColorChange) isEvent()    {}
func (EmojiChange) isEvent()    {}
func (NicknameChange) isEvent() {}
