//go:build linux

package hotkey

/*
#cgo pkg-config: x11 xtst
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <X11/extensions/XTest.h>
#include <stdlib.h>

Display* displayPtr = NULL;

static int ensureDisplay() {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    return displayPtr != NULL;
}

int keycodeForName(const char* name) {
    if (!ensureDisplay()) return 0;
    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(displayPtr, sym);
}

int grabKey(int keycode, int modifiers) {
    if (!ensureDisplay()) return 0;

    Window root = DefaultRootWindow(displayPtr);
    XGrabKey(displayPtr, keycode, modifiers, root, False, GrabModeAsync, GrabModeAsync);
    XSelectInput(displayPtr, root, KeyPressMask | KeyReleaseMask);
    XSync(displayPtr, False);

    return 1;
}

void ungrabKey(int keycode, int modifiers) {
    if (displayPtr == NULL) return;
    Window root = DefaultRootWindow(displayPtr);
    XUngrabKey(displayPtr, keycode, modifiers, root);
    XSync(displayPtr, False);
}

int checkEvent(int* keycode, int* pressed) {
    if (displayPtr == NULL) return 0;

    XEvent event;
    if (XPending(displayPtr) > 0) {
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress || event.type == KeyRelease) {
            *keycode = event.xkey.keycode;
            *pressed = (event.type == KeyPress) ? 1 : 0;
            return 1;
        }
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"
)

// X11 modifier masks.
const (
	shiftMask   = 1 << 0
	controlMask = 1 << 2
	mod1Mask    = 1 << 3 // Alt
	mod4Mask    = 1 << 6 // Super
)

type registration struct {
	keycode   int
	modifiers int
	callback  func(bool)
}

type linuxManager struct {
	mu        sync.Mutex
	grabs     map[string]registration
	callbacks map[int]func(bool)
	stop      chan struct{}
	stopOnce  sync.Once
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	mgr := &linuxManager{
		grabs:     make(map[string]registration),
		callbacks: make(map[int]func(bool)),
		stop:      make(chan struct{}),
	}

	go mgr.eventLoop()

	return mgr, nil
}

func (m *linuxManager) Register(accel string, callback func(pressed bool)) error {
	parsed, err := ParseAccel(accel)
	if err != nil {
		return err
	}

	keycode, err := keycodeFor(parsed.Key)
	if err != nil {
		return err
	}
	modifiers := x11Modifiers(parsed)

	ret := C.grabKey(C.int(keycode), C.int(modifiers))
	if ret == 0 {
		return fmt.Errorf("failed to grab key for %q", accel)
	}

	m.mu.Lock()
	m.grabs[accel] = registration{keycode: keycode, modifiers: modifiers, callback: callback}
	m.callbacks[keycode] = callback
	m.mu.Unlock()
	return nil
}

func (m *linuxManager) eventLoop() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			var keycode, pressed C.int
			if C.checkEvent(&keycode, &pressed) != 0 {
				m.mu.Lock()
				cb := m.callbacks[int(keycode)]
				m.mu.Unlock()
				if cb != nil {
					cb(pressed == 1)
				}
			}
		}
	}
}

func (m *linuxManager) Unregister(accel string) error {
	m.mu.Lock()
	reg, ok := m.grabs[accel]
	if ok {
		delete(m.grabs, accel)
		delete(m.callbacks, reg.keycode)
	}
	m.mu.Unlock()

	if ok {
		C.ungrabKey(C.int(reg.keycode), C.int(reg.modifiers))
	}
	return nil
}

func (m *linuxManager) Close() error {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	return nil
}

func keycodeFor(key string) (int, error) {
	cname := C.CString(key)
	defer C.free(unsafe.Pointer(cname))

	keycode := int(C.keycodeForName(cname))
	if keycode == 0 {
		return 0, fmt.Errorf("no X11 keycode for %q", key)
	}
	return keycode, nil
}

func x11Modifiers(a Accel) int {
	mods := 0
	if a.Shift {
		mods |= shiftMask
	}
	if a.Ctrl {
		mods |= controlMask
	}
	if a.Alt {
		mods |= mod1Mask
	}
	if a.Super {
		mods |= mod4Mask
	}
	return mods
}
