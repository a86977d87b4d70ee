package tui

import (
	"log/slog"

	"github.com/atotto/clipboard"

	"github.com/roach88/gridsync/internal/menu"
)

// SystemClipboard is the operating system clipboard. When no clipboard
// utility is available it falls back to an in-process buffer.
type SystemClipboard struct {
	fallback menu.MemoryClipboard
}

// NewSystemClipboard returns a clipboard backed by the OS.
func NewSystemClipboard() *SystemClipboard {
	if clipboard.Unsupported {
		slog.Warn("system clipboard unavailable, using in-process clipboard")
	}
	return &SystemClipboard{}
}

func (c *SystemClipboard) ReadAll() (string, error) {
	if clipboard.Unsupported {
		return c.fallback.ReadAll()
	}
	return clipboard.ReadAll()
}

func (c *SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return c.fallback.WriteAll(text)
	}
	return clipboard.WriteAll(text)
}
