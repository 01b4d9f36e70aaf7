package deliver

import (
	"context"
	"time"
)

// Paster delivers by pasting into the focused application: it places the
// text on the clipboard, sends the platform paste shortcut, then restores
// the previous clipboard contents.
// Implementation is platform-specific (see paste_darwin.go, paste_linux.go, etc.)
type Paster struct{}

var _ Deliverer = Paster{}

func NewPaster() Paster {
	return Paster{}
}

func (Paster) Text(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return platformPaste(ctx, text)
}
