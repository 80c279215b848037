package rgtpindex

import (
	"errors"
	"fmt"
	"os"

	"github.com/stlalpha/rgtpd/internal/rgtplock"
)

// ErrCorrupt is returned when the index file length is not a multiple
// of RecordLen.
var ErrCorrupt = errors.New("rgtpindex: file length is not a multiple of the record length")

// Index is a handle to the index file's path. Most operations take an
// already-open *os.File so that a caller can compose a compound
// operation (e.g. allocate a sequence number, append an index record,
// and write an item file) under a single held write lock, per the
// locking-order contract: lock the index before any item it references.
type Index struct {
	path string
}

// Open returns a handle to the index file at path (not yet created or
// opened).
func Open(path string) *Index {
	return &Index{path: path}
}

// OpenFile opens the index file with flag, creating it if absent.
func (ix *Index) OpenFile(flag int) (*os.File, error) {
	return os.OpenFile(ix.path, flag|os.O_CREATE, 0644)
}

// WithWriteLock opens the index file read-write, takes an exclusive
// lock, and runs fn; the file is unlocked and closed on return.
func (ix *Index) WithWriteLock(fn func(f *os.File) error) error {
	return rgtplock.WithLock(ix.path, os.O_RDWR|os.O_CREATE, 0644, rgtplock.Write, fn)
}

// WithReadLock is the shared-lock counterpart of WithWriteLock.
func (ix *Index) WithReadLock(fn func(f *os.File) error) error {
	return rgtplock.WithLock(ix.path, os.O_RDONLY|os.O_CREATE, 0644, rgtplock.Read, fn)
}

// Count returns the number of records currently in f.
func Count(f *os.File) (int, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size()%RecordLen != 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrCorrupt, info.Size())
	}
	return int(info.Size() / RecordLen), nil
}

// ReadAt reads and decodes the record at the given 0-based index.
func ReadAt(f *os.File, idx int) (Record, error) {
	buf := make([]byte, RecordLen)
	if _, err := f.ReadAt(buf, int64(idx)*RecordLen); err != nil {
		return Record{}, err
	}
	return Decode(buf)
}

// Append writes r as the new last record. The caller must hold the
// index's write lock (see WithWriteLock) for the duration of whatever
// compound operation Append participates in.
func Append(f *os.File, r Record) error {
	n, err := Count(f)
	if err != nil {
		return err
	}
	enc, err := Encode(r)
	if err != nil {
		return err
	}
	_, err = f.WriteAt(enc[:], int64(n)*RecordLen)
	return err
}

// SearchBySequence returns the 0-based index of the lowest record whose
// Sequence is >= target, and whether any such record exists. Records
// are assumed to be in non-decreasing sequence order, which append-only
// writing guarantees.
func SearchBySequence(f *os.File, target uint32) (int, bool, error) {
	return search(f, func(r Record) uint32 { return r.Sequence }, target)
}

// SearchByTimestamp is SearchBySequence's Timestamp-keyed counterpart.
func SearchByTimestamp(f *os.File, target uint32) (int, bool, error) {
	return search(f, func(r Record) uint32 { return r.Timestamp }, target)
}

func search(f *os.File, key func(Record) uint32, target uint32) (int, bool, error) {
	n, err := Count(f)
	if err != nil {
		return 0, false, err
	}
	lo, hi := 0, n
	for lo < hi {
		mid := lo + (hi-lo)/2
		rec, err := ReadAt(f, mid)
		if err != nil {
			return 0, false, err
		}
		if key(rec) >= target {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo >= n {
		return 0, false, nil
	}
	return lo, true, nil
}

// RewriteRemoving rewrites the whole index, dropping every record whose
// ItemID equals id, preserving the relative order of the rest. Used by
// withdraw.
func RewriteRemoving(f *os.File, id string) error {
	n, err := Count(f)
	if err != nil {
		return err
	}
	kept := make([][RecordLen]byte, 0, n)
	for i := 0; i < n; i++ {
		rec, err := ReadAt(f, i)
		if err != nil {
			return err
		}
		if rec.ItemID == id {
			continue
		}
		enc, err := Encode(rec)
		if err != nil {
			return err
		}
		kept = append(kept, enc)
	}
	return rewriteAll(f, kept)
}

// RewriteTail truncates the index to its first keep records and then
// appends newRecords, used by index-edit (EDCF against the index),
// which replaces everything from lenbeforeedit onward with the
// submitted replacement text.
func RewriteTail(f *os.File, keep int, newRecords []Record) error {
	n, err := Count(f)
	if err != nil {
		return err
	}
	if keep < 0 || keep > n {
		return fmt.Errorf("rgtpindex: RewriteTail keep=%d out of range [0,%d]", keep, n)
	}
	out := make([][RecordLen]byte, 0, keep+len(newRecords))
	for i := 0; i < keep; i++ {
		rec, err := ReadAt(f, i)
		if err != nil {
			return err
		}
		enc, err := Encode(rec)
		if err != nil {
			return err
		}
		out = append(out, enc)
	}
	for _, r := range newRecords {
		enc, err := Encode(r)
		if err != nil {
			return err
		}
		out = append(out, enc)
	}
	return rewriteAll(f, out)
}

func rewriteAll(f *os.File, records [][RecordLen]byte) error {
	buf := make([]byte, 0, len(records)*RecordLen)
	for _, r := range records {
		buf = append(buf, r[:]...)
	}
	if err := f.Truncate(int64(len(buf))); err != nil {
		return err
	}
	_, err := f.WriteAt(buf, 0)
	return err
}
