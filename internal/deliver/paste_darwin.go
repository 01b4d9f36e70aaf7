//go:build darwin

package deliver

/*
#cgo LDFLAGS: -framework ApplicationServices -framework Carbon
#include <ApplicationServices/ApplicationServices.h>
#include <Carbon/Carbon.h>

// Send Cmd+V paste shortcut
void sendPasteShortcut() {
    CGEventSourceRef source = CGEventSourceCreate(kCGEventSourceStateHIDSystemState);

    // Press Cmd+V
    CGEventRef cmdDown = CGEventCreateKeyboardEvent(source, (CGKeyCode)55, true); // Cmd key
    CGEventSetFlags(cmdDown, kCGEventFlagMaskCommand);
    CGEventRef vDown = CGEventCreateKeyboardEvent(source, (CGKeyCode)9, true); // V key
    CGEventSetFlags(vDown, kCGEventFlagMaskCommand);

    // Release V+Cmd
    CGEventRef vUp = CGEventCreateKeyboardEvent(source, (CGKeyCode)9, false);
    CGEventRef cmdUp = CGEventCreateKeyboardEvent(source, (CGKeyCode)55, false);

    // Post events
    CGEventPost(kCGHIDEventTap, cmdDown);
    CGEventPost(kCGHIDEventTap, vDown);
    CGEventPost(kCGHIDEventTap, vUp);
    CGEventPost(kCGHIDEventTap, cmdUp);

    CFRelease(cmdDown);
    CFRelease(vDown);
    CFRelease(vUp);
    CFRelease(cmdUp);
    CFRelease(source);
}
*/
import "C"

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// platformPaste implements clipboard-paste delivery for macOS: stage the
// text on the clipboard, post Cmd+V into the focused app, then put the
// previous clipboard back.
func platformPaste(ctx context.Context, text string) error {
	// The user's clipboard is borrowed, not taken; remember it.
	oldClip, err := clipboard.ReadAll()
	if err != nil {
		oldClip = ""
	}

	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}

	// Give the pasteboard a moment to settle before the keystroke lands
	if err := pause(ctx, 50*time.Millisecond); err != nil {
		return err
	}

	C.sendPasteShortcut()

	// Wait for the target app to consume the paste
	if err := pause(ctx, 100*time.Millisecond); err != nil {
		return err
	}

	// Restore, unless something else claimed the clipboard meanwhile
	if currentClip, _ := clipboard.ReadAll(); currentClip == text {
		clipboard.WriteAll(oldClip)
	}

	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
