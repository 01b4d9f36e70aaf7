package deliver

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// Deliverer hands a finished session's artifact reference to the user.
type Deliverer interface {
	Text(text string) error
}

// Clipboard delivers by copying to the system clipboard.
type Clipboard struct{}

var _ Deliverer = Clipboard{}

func NewClipboard() Clipboard {
	return Clipboard{}
}

func (Clipboard) Text(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
