package notifier

// TextNotifier sends one preformatted message.
type TextNotifier interface {
	SendText(text string) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) SendText(string) error { return nil }
