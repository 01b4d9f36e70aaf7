//go:build linux

package deliver

import (
	"context"
	"fmt"
)

// platformPaste implements clipboard-paste delivery for Linux
// TODO: Implement using XTest/xdotool or Wayland protocols
func platformPaste(ctx context.Context, text string) error {
	return fmt.Errorf("paste not yet implemented on Linux")
}
