package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// rotator is a size-rotating file writer. Rotated files are renamed
// path.1 .. path.N, newest first.
type rotator struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	backups int
	file    *os.File
	size    int64
}

func newRotator(path string, maxSize int64, backups int) (*rotator, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if maxSize <= 0 {
		maxSize = 50 * 1024 * 1024
	}
	if backups < 0 {
		backups = 0
	}
	r := &rotator{path: path, maxSize: maxSize, backups: backups}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotator) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	// Shift path.N-1 -> path.N, ..., path -> path.1.
	for i := r.backups - 1; i >= 1; i-- {
		os.Rename(backupName(r.path, i), backupName(r.path, i+1))
	}
	if r.backups > 0 {
		if err := os.Rename(r.path, backupName(r.path, 1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	} else {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return r.open()
}

func backupName(path string, i int) string {
	return fmt.Sprintf("%s.%d", path, i)
}

func (r *rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
