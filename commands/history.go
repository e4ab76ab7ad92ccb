package commands

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// History is the list of lines entered in the shell, optionally persisted to a
// file one line per entry.
type History struct {
	fs    afero.Fs
	path  string
	lines []string
}

// NewHistory creates a history persisted to path on fs. An empty path keeps
// history in memory only.
func NewHistory(fs afero.Fs, path string) *History {
	return &History{fs: fs, path: path}
}

// Load reads previously saved lines. A missing file is not an error.
func (h *History) Load() error {
	if h.path == "" {
		return nil
	}

	contents, err := afero.ReadFile(h.fs, h.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	}

	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			h.lines = append(h.lines, line)
		}
	}
	return scanner.Err()
}

// Add appends a line to the history and the history file.
func (h *History) Add(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	h.lines = append(h.lines, line)

	if h.path == "" {
		return nil
	}
	fd, err := h.fs.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer fd.Close()

	_, err = fmt.Fprintln(fd, line)
	return err
}

// Lines returns every entry, oldest first. Entry N is at index N-1.
func (h *History) Lines() []string {
	return append([]string(nil), h.lines...)
}

// Clear forgets every entry and truncates the history file.
func (h *History) Clear() error {
	h.lines = nil
	if h.path == "" {
		return nil
	}
	err := h.fs.Remove(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Recall resolves "!!" to the last entry and "!N" to entry N. ok is false when
// the entry doesn't exist.
func (h *History) Recall(ref string) (line string, ok bool) {
	if !strings.HasPrefix(ref, "!") {
		return "", false
	}

	if ref == "!!" {
		if len(h.lines) == 0 {
			return "", false
		}
		return h.lines[len(h.lines)-1], true
	}

	n, err := strconv.Atoi(ref[1:])
	if err != nil || n < 1 || n > len(h.lines) {
		return "", false
	}
	return h.lines[n-1], true
}
