package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store persists finished recordings into a directory, one WAV per
// session, named so downstream tooling can key on the label prefix
// ("{label}_{timestamp}.wav").
type Store struct {
	dir string
}

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// SaveWAV writes the container atomically and returns the final path.
// Write-to-temp plus rename keeps partially written files from ever
// appearing under the final name.
func (s *Store) SaveWAV(label string, startedAt time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.wav", sanitizeLabel(label), startedAt.Format("20060102-150405"))
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write recording: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync recording: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close recording: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("finalize recording: %w", err)
	}

	return path, nil
}

// sanitizeLabel keeps labels filesystem- and convention-safe: the part
// before the first underscore is the downstream meeting key.
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "session"
	}
	mapper := func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}
	return strings.Map(mapper, label)
}
