package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrDeviceBusy is returned when another session already owns the camera.
var ErrDeviceBusy = errors.New("capture device is in use")

var (
	ownersMu sync.Mutex
	owners   = make(map[string]struct{})
)

// deviceLock is held for the lifetime of one recording. The in-process registry
// covers sessions sharing a process; the flock file covers other processes.
type deviceLock struct {
	key  string
	file *flock.Flock
}

func acquireDeviceLock(path string) (*deviceLock, error) {
	key := path
	if key == "" {
		key = "default"
	}
	ownersMu.Lock()
	defer ownersMu.Unlock()
	if _, held := owners[key]; held {
		return nil, ErrDeviceBusy
	}

	l := &deviceLock{key: key}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("lock dir: %w", err)
		}
		fl := flock.New(path)
		locked, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if !locked {
			return nil, ErrDeviceBusy
		}
		l.file = fl
	}
	owners[key] = struct{}{}
	return l, nil
}

func (l *deviceLock) release() error {
	ownersMu.Lock()
	delete(owners, l.key)
	ownersMu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
