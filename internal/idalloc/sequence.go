// Package idalloc mints the two monotonic identifiers the spool depends
// on: the index's sequence number and the Item-ID stamped on every new
// item. Both are small fixed-format counter files guarded by the same
// whole-file advisory lock rgtplock uses elsewhere, grounded in the
// teacher's lockFile/unlockFile pattern (configtool/multinode) for
// coordinating a shared counter across independent processes.
package idalloc

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stlalpha/rgtpd/internal/rgtplock"
)

// SequenceAllocator hands out a strictly increasing uint64 sequence
// number, persisted as decimal text in a single small file.
type SequenceAllocator struct {
	path string
}

// NewSequenceAllocator returns an allocator backed by path, which is
// created (starting the count at zero) if it doesn't already exist.
func NewSequenceAllocator(path string) *SequenceAllocator {
	return &SequenceAllocator{path: path}
}

// Next returns the next sequence number, i.e. one greater than the
// highest value previously returned (or 1, the first time).
func (a *SequenceAllocator) Next() (uint64, error) {
	var next uint64
	err := rgtplock.WithLock(a.path, os.O_RDWR|os.O_CREATE, 0644, rgtplock.Write, func(f *os.File) error {
		cur, err := readCounter(f)
		if err != nil {
			return err
		}
		next = cur + 1
		return writeCounter(f, next)
	})
	return next, err
}

// Peek returns the most recently issued sequence number without
// advancing it.
func (a *SequenceAllocator) Peek() (uint64, error) {
	var cur uint64
	err := rgtplock.WithLock(a.path, os.O_RDWR|os.O_CREATE, 0644, rgtplock.Read, func(f *os.File) error {
		c, err := readCounter(f)
		cur = c
		return err
	})
	return cur, err
}

func readCounter(f *os.File) (uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, nil
	}
	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(buf))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("idalloc: corrupt counter file: %w", err)
	}
	return v, nil
}

func writeCounter(f *os.File, v uint64) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(strconv.FormatUint(v, 10)+"\n"), 0)
	return err
}
