// Package rgtplock provides the advisory byte-range locking that every
// cooperating RGTP worker uses to serialize access to spool files. It is
// grounded in the historical server's locking contract: an exclusive or
// shared lock on bytes [0,1) of the target file, retried transparently on
// signal interruption.
//
// The implementation specializes "byte range [0,1)" to a whole-file
// advisory lock via syscall.Flock, the same primitive the reference corpus
// uses for cross-process coordination (see configtool/multinode's
// lockFile/unlockFile). A single-byte fcntl lock and a whole-file flock
// are observationally identical for this spool's access pattern: every
// caller locks a whole file for the duration of one compound operation
// and never takes two non-overlapping ranges of the same file.
package rgtplock

import (
	"errors"
	"os"
	"syscall"
)

// Kind selects a shared (read) or exclusive (write) lock.
type Kind int

const (
	Read Kind = iota
	Write
)

// ErrWouldBlock is returned by TryLock when the file is already locked by
// another holder.
var ErrWouldBlock = errors.New("rgtplock: resource temporarily unavailable")

func flockOp(kind Kind) int {
	if kind == Write {
		return syscall.LOCK_EX
	}
	return syscall.LOCK_SH
}

// Lock blocks until it acquires kind on f, retrying automatically if the
// underlying syscall is interrupted.
func Lock(f *os.File, kind Kind) error {
	op := flockOp(kind)
	for {
		err := syscall.Flock(int(f.Fd()), op)
		if err == nil {
			return nil
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return err
	}
}

// TryLock attempts to acquire kind on f without blocking, returning
// ErrWouldBlock if another holder has it.
func TryLock(f *os.File, kind Kind) error {
	op := flockOp(kind) | syscall.LOCK_NB
	for {
		err := syscall.Flock(int(f.Fd()), op)
		if err == nil {
			return nil
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrWouldBlock
		}
		return err
	}
}

// Unlock releases whatever lock this process holds on f.
func Unlock(f *os.File) error {
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		if err == nil {
			return nil
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return err
	}
}

// CloseWithUnlock unlocks then closes f, returning only the close error:
// the unlock error is discarded, since a failed unlock on a file about to
// be closed is harmless (closing the descriptor releases the lock).
func CloseWithUnlock(f *os.File) error {
	_ = Unlock(f)
	return f.Close()
}

// WithLock opens path under mode, acquires kind, runs fn, then unlocks and
// closes the file regardless of fn's outcome. It is the composition most
// command handlers want: open, lock, mutate, unlock, close.
func WithLock(path string, flag int, perm os.FileMode, kind Kind, fn func(f *os.File) error) error {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return err
	}
	if err := Lock(f, kind); err != nil {
		f.Close()
		return err
	}
	defer CloseWithUnlock(f)
	return fn(f)
}
