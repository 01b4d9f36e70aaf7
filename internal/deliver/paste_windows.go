//go:build windows

package deliver

import (
	"context"
	"fmt"
)

// platformPaste implements clipboard-paste delivery for Windows
// TODO: Implement using Win32 API (SetClipboardData + SendInput for Ctrl+V)
func platformPaste(ctx context.Context, text string) error {
	return fmt.Errorf("paste not yet implemented on Windows")
}
