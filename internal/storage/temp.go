package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteTemp stores data in a new file under dir for the duration of one
// request. The returned cleanup removes it and is safe to call twice.
func WriteTemp(dir, filename string, data []byte) (string, func(), error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}

	f, err := os.CreateTemp(dir, "agrox-voice-*"+ext)
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write temp file: %w", err)
	}
	return path, cleanup, nil
}
