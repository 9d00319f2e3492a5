// Package storage persists received field-groups as hex text lines on the
// gateway's log store.
package storage

import (
	"io"
	"os"
)

// Store opens the log for one operation at a time. Callers close the handle
// before the next operation.
type Store interface {
	OpenAppend() (io.WriteCloser, error)
	OpenRead() (io.ReadCloser, error)
}

// FileStore keeps the log in a single file.
type FileStore struct {
	Path string
}

func (s FileStore) OpenAppend() (io.WriteCloser, error) {
	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s FileStore) OpenRead() (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	return f, nil
}
