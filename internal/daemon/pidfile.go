package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// readPIDFile parses the PID written by the daemon.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNoPIDFile, path)
		}
		return 0, fmt.Errorf("reading PID file %s: %w", path, err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %s contains %q", ErrInvalidPIDFile, path, pidStr)
	}
	return pid, nil
}

// processAlive reports whether pid names a process we could signal.
// EPERM means the process exists but belongs to someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// removePIDFile deletes path, ignoring a file that is already gone.
func removePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing PID file %s: %w", path, err)
	}
	return nil
}
