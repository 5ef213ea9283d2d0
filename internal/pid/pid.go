package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/mccli/internal/errors"
)

const (
	pidPrefix = "mccli-"
	pidSuffix = ".pid"
)

// Path returns the PID file guarding the given ESC endpoint. One session
// may hold an endpoint at a time.
func Path(endpoint string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimPrefix(endpoint, "/dev/"))

	return filepath.Join(os.TempDir(), pidPrefix+name+pidSuffix)
}

// Write claims endpoint for the current process. A stale file left by a
// process that no longer runs is taken over.
func Write(endpoint string) error {
	errFactory := errors.New()
	pid := os.Getpid()
	path := Path(endpoint)

	if _, err := os.Stat(path); err == nil {
		// PID file exists, check if the process is running
		bytes, err := os.ReadFile(path)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		owner, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
		if err == nil && owner != pid && running(owner) {
			return errFactory.WithData(errors.ErrAlreadyRunning, struct {
				Endpoint string
				PID      int
			}{
				Endpoint: endpoint,
				PID:      owner,
			})
		}
	}

	err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove releases the claim on endpoint.
func Remove(endpoint string) error {
	errFactory := errors.New()
	path := Path(endpoint)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func running(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
