// Package pid enforces one psuctl per host. Two engines driving the same
// supply would interleave SCPI conversations and fight over the output.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/voltaic/psuctl/internal/errors"
)

const pidFile = "psuctl.pid"

func lockPath() string {
	return filepath.Join(os.TempDir(), pidFile)
}

// Acquire writes the current process ID to the lock file. A file left
// behind by a dead process is reclaimed; a live one refuses, with the
// holder's pid attached.
func Acquire() error {
	errFactory := errors.New()
	path := lockPath()

	if raw, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(raw))); perr == nil && alive(pid) {
			return errFactory.New(errors.ErrAlreadyRunning).WithData(pid)
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Release removes the lock file. A missing file is fine.
func Release() error {
	errFactory := errors.New()

	if err := os.Remove(lockPath()); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// alive reports whether pid belongs to a process we can signal.
func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
