package tray

import "testing"

// TestEmojiForStatus verifies the status-to-indicator mapping. The tray
// title is the only always-visible surface, so each lifecycle state needs a
// distinct indicator.
func TestEmojiForStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		expected string
	}{
		{
			name:     "recording shows red",
			status:   "recording",
			expected: "🔴",
		},
		{
			name:     "finalizing shows yellow",
			status:   "finalizing",
			expected: "🟡",
		},
		{
			name:     "idle shows green",
			status:   "idle",
			expected: "🟢",
		},
		{
			name:     "error shows white",
			status:   "error",
			expected: "⚪️",
		},
		{
			name:     "unknown defaults to ready",
			status:   "mystery",
			expected: "🟢",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := emojiForStatus(tt.status); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}
