package bot

// Button is one labeled inline action carrying the callback code of its
// target transition.
type Button struct {
	Label string
	Code  string
}

// Message is one outbound chat message. Edit replaces the message the
// triggering button lives on instead of sending a fresh one; only the chat
// transport knows the concrete message id.
type Message struct {
	Text      string
	Buttons   [][]Button
	Edit      bool
	Monospace bool // render Text as monospace (wallet addresses)
}

// Reply is everything a handler wants said in response to one event.
type Reply struct {
	Messages []Message
}

func reply(msgs ...Message) *Reply {
	return &Reply{Messages: msgs}
}

func text(s string) Message {
	return Message{Text: s}
}

func edited(s string, buttons [][]Button) Message {
	return Message{Text: s, Buttons: buttons, Edit: true}
}

func withButtons(s string, buttons [][]Button) Message {
	return Message{Text: s, Buttons: buttons}
}

func row(buttons ...Button) []Button {
	return buttons
}

func backRow() [][]Button {
	return [][]Button{row(Button{Label: "Back", Code: CodeEnd})}
}
