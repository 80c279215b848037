package itemstore

import (
	"bytes"
	"errors"
	"os"

	"github.com/stlalpha/rgtpd/internal/rgtplock"
	"github.com/stlalpha/rgtpd/internal/rgtpproto"
)

// Sentinel errors surfaced by item-store operations; the session layer
// maps these onto protocol response codes (422, 421, fatal).
var (
	ErrAlreadyContinued = errors.New("itemstore: item has already been continued")
	ErrTooFull          = errors.New("itemstore: item would exceed ItemMaxLen")
	ErrShrunkDuringEdit = errors.New("itemstore: item file shrank between EDIT and EDCF")
)

// New creates a brand-new item file: a fresh status line (not
// continued, sequence set to seq), the section marker, headers, a
// blank line, and the body.
func New(path string, seq, timestamp uint32, headers []string, body []string) error {
	status, err := Encode(StatusLine{Sequence: seq})
	if err != nil {
		return err
	}
	content := assembleSection(status[:], seq, timestamp, headers, body)
	if len(content) > rgtpproto.ItemMaxLen {
		return ErrTooFull
	}
	return os.WriteFile(path, content, 0644)
}

func assembleSection(prefix []byte, seq, timestamp uint32, headers []string, body []string) []byte {
	var buf bytes.Buffer
	buf.Write(prefix)
	buf.WriteString(SectionMarker(seq, timestamp))
	buf.WriteByte('\n')
	for _, h := range headers {
		buf.WriteString(h)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	for _, line := range body {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WithWriteLock opens path read-write (creating if absent) and runs fn
// while holding an exclusive lock, mirroring the index/item locking
// order the session layer is responsible for (index locked first).
func WithWriteLock(path string, fn func(f *os.File) error) error {
	return rgtplock.WithLock(path, os.O_RDWR|os.O_CREATE, 0644, rgtplock.Write, fn)
}

// WithReadLock is WithWriteLock's shared-lock counterpart, used for
// streaming an item to a client.
func WithReadLock(path string, fn func(f *os.File) error) error {
	return rgtplock.WithLock(path, os.O_RDONLY, 0644, rgtplock.Read, fn)
}

// OpenForReply validates f (already open and write-locked by the
// caller) as a target for a new reply of replyLen additional bytes: the
// item must not already be continued, and the resulting size must fit
// ItemMaxLen. On success it returns the item's current StatusLine and
// total size.
func OpenForReply(f *os.File, replyLen int) (StatusLine, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return StatusLine{}, 0, err
	}
	head := make([]byte, StatusLineLen)
	if _, err := f.ReadAt(head, 0); err != nil {
		return StatusLine{}, 0, err
	}
	status, err := Decode(head)
	if err != nil {
		return StatusLine{}, 0, err
	}
	if status.IsContinued() {
		return status, info.Size(), ErrAlreadyContinued
	}
	if info.Size()+int64(replyLen) > rgtpproto.ItemMaxLen {
		return status, info.Size(), ErrTooFull
	}
	return status, info.Size(), nil
}

// AppendReply updates the status line's sequence field to newSeq and
// appends the reply's section marker, headers, blank line, and body at
// the end of the file. The caller must have already validated the
// reply fits via OpenForReply.
func AppendReply(f *os.File, newSeq, timestamp uint32, headers []string, body []string) error {
	status, err := Encode(StatusLine{Sequence: newSeq})
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(status[:], 0); err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString(SectionMarker(newSeq, timestamp))
	buf.WriteByte('\n')
	for _, h := range headers {
		buf.WriteString(h)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	for _, line := range body {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	_, err = f.WriteAt(buf.Bytes(), info.Size())
	return err
}

// MarkContinued sets f's continued-in field to continuedIn, leaving the
// sequence field untouched. Used when a CONT command mints a follow-on
// item and the original must point at it.
func MarkContinued(f *os.File, continuedIn string) error {
	head := make([]byte, StatusLineLen)
	if _, err := f.ReadAt(head, 0); err != nil {
		return err
	}
	status, err := Decode(head)
	if err != nil {
		return err
	}
	status.ContinuedIn = continuedIn
	enc, err := Encode(status)
	if err != nil {
		return err
	}
	_, err = f.WriteAt(enc[:], 0)
	return err
}

// BeginEdit reads the full current file content, to be streamed to the
// client, and returns its length as lenbeforeedit — the boundary EDCF
// must respect.
func BeginEdit(f *os.File) ([]byte, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, 0, err
	}
	return buf, info.Size(), nil
}

// ApplyEdit overlays bytes [0, StatusLineLen) with a refreshed status
// line carrying newSeq, splices newData in place of bytes
// [StatusLineLen, lenBeforeEdit), and preserves any bytes appended
// after lenBeforeEdit since EDIT was issued (later replies).
func ApplyEdit(f *os.File, lenBeforeEdit int64, newSeq uint32, newData []byte) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < lenBeforeEdit {
		return ErrShrunkDuringEdit
	}

	tail := make([]byte, info.Size()-lenBeforeEdit)
	if len(tail) > 0 {
		if _, err := f.ReadAt(tail, lenBeforeEdit); err != nil {
			return err
		}
	}

	status, err := Encode(StatusLine{Sequence: newSeq})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(status[:])
	buf.Write(newData)
	buf.Write(tail)

	if err := f.Truncate(int64(buf.Len())); err != nil {
		return err
	}
	_, err = f.WriteAt(buf.Bytes(), 0)
	return err
}

// Withdraw renames the item file to its .withdrawn path so the external
// diff utility retains something to compare the removal against, per
// the specification's interface for that collaborator.
func Withdraw(itemPath, withdrawnPath string) error {
	return os.Rename(itemPath, withdrawnPath)
}

// ReadAll returns the full content of f for streaming to a client.
func ReadAll(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, info.Size())
	_, err = f.ReadAt(buf, 0)
	return buf, err
}
