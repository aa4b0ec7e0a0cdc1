package printqueue

import (
	"fmt"
	"os"
	"sync"
)

// Handle is a temporary resource exposing document bytes to a print facility.
// Release runs the cleanup exactly once no matter how often it is called.
type Handle struct {
	Path string

	once    sync.Once
	release func() error
	err     error
}

func NewHandle(path string, release func() error) *Handle {
	return &Handle{Path: path, release: release}
}

func (h *Handle) Release() error {
	h.once.Do(func() {
		if h.release != nil {
			h.err = h.release()
		}
	})
	return h.err
}

// TempFile writes data to a new file in dir and returns a handle that removes it.
func TempFile(dir, pattern string, data []byte) (*Handle, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	h := NewHandle(f.Name(), func() error {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})

	if _, err := f.Write(data); err != nil {
		f.Close()
		h.Release()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		h.Release()
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return h, nil
}
