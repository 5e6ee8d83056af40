// FILE: shogi/cmd/shogi-server/pid.go
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// pidFile records the gateway pid, optionally under an exclusive flock
type pidFile struct {
	path   string
	file   *os.File
	locked bool
}

// writePIDFile claims path for this process. With lock the flock alone
// decides ownership, since a crashed owner drops it with its descriptors.
// Without lock a file naming a dead process is replaced.
func writePIDFile(path string, lock bool) (*pidFile, error) {
	var (
		p   *pidFile
		err error
	)
	if lock {
		p, err = lockedPIDFile(path)
	} else {
		p, err = plainPIDFile(path)
	}
	if err != nil {
		return nil, err
	}

	if err := p.write(); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func lockedPIDFile(path string) (*pidFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open PID file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("lock failed: %w", err)
		}
		if pid, err := readPID(path); err == nil {
			return nil, fmt.Errorf("gateway already running as pid %d", pid)
		}
		return nil, errors.New("gateway already running")
	}
	return &pidFile{path: path, file: f, locked: true}, nil
}

func plainPIDFile(path string) (*pidFile, error) {
	create := func() (*os.File, error) {
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}

	f, err := create()
	if errors.Is(err, fs.ErrExist) {
		if pid, alive := pidAlive(path); alive {
			return nil, fmt.Errorf("PID file %s: process %d is still running", path, pid)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("cannot remove stale PID file: %w", err)
		}
		f, err = create()
	}
	if err != nil {
		return nil, fmt.Errorf("cannot create PID file: %w", err)
	}
	return &pidFile{path: path, file: f}, nil
}

func (p *pidFile) write() error {
	if err := p.file.Truncate(0); err != nil {
		return fmt.Errorf("cannot truncate PID file: %w", err)
	}
	if _, err := p.file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("cannot write PID: %w", err)
	}
	return p.file.Sync()
}

// Release removes the file, then drops the lock
func (p *pidFile) Release() {
	os.Remove(p.path)
	if p.locked {
		syscall.Flock(int(p.file.Fd()), syscall.LOCK_UN)
	}
	p.file.Close()
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupted PID file %s: %w", path, err)
	}
	return pid, nil
}

// pidAlive reports whether path names a live process; unreadable files count as stale
func pidAlive(path string) (int, bool) {
	pid, err := readPID(path)
	if err != nil || pid <= 0 {
		return pid, false
	}
	// FindProcess never fails on Unix
	proc, _ := os.FindProcess(pid)
	err = proc.Signal(syscall.Signal(0))
	return pid, err == nil || errors.Is(err, syscall.EPERM)
}
