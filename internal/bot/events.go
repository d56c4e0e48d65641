package bot

// EventKind classifies an inbound chat event.
type EventKind int

const (
	EventCommand EventKind = iota
	EventCallback
	EventText
)

// Event is one inbound user action delivered by the chat transport.
type Event struct {
	UserID    int64
	ChatID    int64
	MessageID int

	Kind     EventKind
	Command  string // without leading slash, for EventCommand
	Callback string // one of the Code* constants, for EventCallback
	Text     string // free text, for EventText
}

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventCallback:
		return "callback"
	case EventText:
		return "text"
	}
	return "unknown"
}
