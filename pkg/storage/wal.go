package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/uhyunpark/escrowd/pkg/chain"
)

// FileWAL journals committed slots, one line each
type FileWAL struct {
	mu      sync.Mutex
	f       *os.File
	entries int
}

func NewFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal %s: %w", path, err)
	}
	return &FileWAL{f: f}, nil
}

func (w *FileWAL) Append(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintln(w.f, line); err == nil {
		w.entries++
	}
}

// Entries counts lines appended through this handle
func (w *FileWAL) Entries() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// LastWALEntry returns the final journal line ("" for a missing or empty journal)
func LastWALEntry(path string) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open wal %s: %w", path, err)
	}
	defer f.Close()

	var last string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("failed to read wal %s: %w", path, err)
	}
	return last, nil
}

var _ chain.WAL = (*FileWAL)(nil)
