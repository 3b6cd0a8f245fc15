// Package workdir provides mutually exclusive, directory-scoped execution
// for coder invocations. A marker file inside the directory serves as the
// lock; a pre-existing marker is treated as evidence of another invocation
// and terminates the process so an operator can inspect it.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LockFile is the marker file name written inside a guarded directory.
const LockFile = ".lock"

// exitFn is the process-termination seam. Tests override it; production
// code always exits through os.Exit.
var exitFn = os.Exit

// With creates dir if needed, acquires its lock, changes the working
// directory into it, runs fn, and on every exit path restores the previous
// working directory and removes the lock.
//
// If the lock file already exists the process terminates immediately: a
// stale lock left by a crashed invocation must be inspected and removed by
// an operator, not silently bypassed. The guard is not re-entrant; nested
// acquisition of the same directory terminates the process the same way.
func With(dir string, fn func() error) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve workdir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}

	lockPath := filepath.Join(abs, LockFile)
	if _, err := os.Stat(lockPath); err == nil {
		fmt.Fprintf(os.Stderr, "lock file %s exists in %s. If you are SURE no other process is running in this directory, delete the lock file and try again.\n", lockPath, abs)
		exitFn(1)
		// Reached only when exitFn is stubbed in tests.
		return fmt.Errorf("workdir %s is locked", abs)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat lock file: %w", err)
	}

	originalDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve current dir: %w", err)
	}

	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(lockPath, []byte(pid), 0o644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}

	if err := os.Chdir(abs); err != nil {
		_ = os.Remove(lockPath)
		return fmt.Errorf("enter workdir: %w", err)
	}

	defer func() {
		if err := os.Chdir(originalDir); err != nil {
			fmt.Fprintf(os.Stderr, "restore working directory %s: %v\n", originalDir, err)
		}
		if err := os.Remove(lockPath); err != nil {
			fmt.Fprintf(os.Stderr, "remove lock file %s: %v\n", lockPath, err)
		}
	}()

	return fn()
}

// LockOwner reports the PID recorded in dir's lock file, or 0 when the
// directory is unlocked.
func LockOwner(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, LockFile))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read lock file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse lock file: %w", err)
	}
	return pid, nil
}
