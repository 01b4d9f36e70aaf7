package hotkey

import "testing"

func TestParseAccel(t *testing.T) {
	tests := []struct {
		name  string
		accel string
		want  Accel
	}{
		{
			name:  "default binding",
			accel: "Ctrl+Alt+R",
			want:  Accel{Ctrl: true, Alt: true, Key: "r"},
		},
		{
			name:  "mac style command",
			accel: "Cmd+Shift+R",
			want:  Accel{Super: true, Shift: true, Key: "r"},
		},
		{
			name:  "option alias",
			accel: "Option+Space",
			want:  Accel{Alt: true, Key: "space"},
		},
		{
			name:  "digit key",
			accel: "Ctrl+1",
			want:  Accel{Ctrl: true, Key: "1"},
		},
		{
			name:  "bare key",
			accel: "r",
			want:  Accel{Key: "r"},
		},
		{
			name:  "case insensitive",
			accel: "ctrl+alt+r",
			want:  Accel{Ctrl: true, Alt: true, Key: "r"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAccel(tt.accel)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseAccelRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"Ctrl+Alt",     // no key
		"Ctrl+Escape",  // unsupported key name
		"Hyper+R",      // unknown modifier
		"Ctrl+Alt+R+X", // key in modifier position
	}

	for _, accel := range bad {
		if _, err := ParseAccel(accel); err == nil {
			t.Errorf("expected error for %q", accel)
		}
	}
}
