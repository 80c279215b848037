// Package itemstore implements item files: the fixed-length status
// line every item begins with, the "^<seq> <time>" section markers that
// precede each reply, and the open-for-reply/new/edit/withdraw
// operations the session layer drives under an index+item write lock.
// Grounded in the same fixed-offset byte-slice technique as
// internal/userdb and internal/rgtpindex.
package itemstore

import (
	"bytes"
	"fmt"

	"github.com/stlalpha/rgtpd/internal/rgtpproto"
)

const (
	idLen = rgtpproto.ItemIDLen // 8

	offContinuedIn = 0
	offReserved    = offContinuedIn + idLen + 1 // +1 for the separating space
	reservedLen    = 9
	offSequence    = offReserved + reservedLen
	sequenceLen    = idLen // the sequence field is also 8 bytes wide
	offTrailing    = offSequence + sequenceLen
	trailingLen    = 9

	// StatusLineLen is ITEMID_LEN*2 + 20 = 36: the two 8-byte id-width
	// fields (continued-in, sequence) plus 20 bytes of separators and
	// padding, including the final newline.
	StatusLineLen = offTrailing + trailingLen + 1
)

// StatusLine is an item file's leading fixed-length record.
type StatusLine struct {
	// ContinuedIn is the Item-ID of the item this one overflowed into,
	// or "" if this item has not been continued.
	ContinuedIn string
	// Sequence is the index sequence number of the item's most recent
	// section (the item itself, or its latest reply).
	Sequence uint32
}

// Encode renders s as the exact 36-byte status line.
func Encode(s StatusLine) ([StatusLineLen]byte, error) {
	var out [StatusLineLen]byte
	if len(s.ContinuedIn) > idLen {
		return out, fmt.Errorf("itemstore: continued-in id %q longer than %d", s.ContinuedIn, idLen)
	}

	buf := bytes.Repeat([]byte{' '}, StatusLineLen)
	copy(buf[offContinuedIn:offContinuedIn+idLen], []byte(s.ContinuedIn)) // left blank if not continued
	buf[offContinuedIn+idLen] = ' '
	copy(buf[offSequence:offSequence+sequenceLen], []byte(fmt.Sprintf("%08X", s.Sequence)))
	buf[StatusLineLen-1] = '\n'

	copy(out[:], buf)
	return out, nil
}

// Decode parses the leading 36 bytes of an item file.
func Decode(b []byte) (StatusLine, error) {
	if len(b) < StatusLineLen {
		return StatusLine{}, fmt.Errorf("itemstore: status line is %d bytes, want %d", len(b), StatusLineLen)
	}
	var s StatusLine
	s.ContinuedIn = string(bytes.TrimRight(b[offContinuedIn:offContinuedIn+idLen], " "))
	seq, err := parseHex32(b[offSequence : offSequence+sequenceLen])
	if err != nil {
		return StatusLine{}, fmt.Errorf("itemstore: sequence field: %w", err)
	}
	s.Sequence = seq
	return s, nil
}

// IsContinued reports whether the item has already been continued into
// another item.
func (s StatusLine) IsContinued() bool { return s.ContinuedIn != "" }

func parseHex32(b []byte) (uint32, error) {
	var v uint32
	for _, c := range b {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint32(c - '0')
		case c >= 'A' && c <= 'F':
			v |= uint32(c-'A') + 10
		case c >= 'a' && c <= 'f':
			v |= uint32(c-'a') + 10
		default:
			return 0, fmt.Errorf("invalid hex digit %q", c)
		}
	}
	return v, nil
}

// SectionMarker renders the "^<seq-hex> <time-hex>" line (without
// trailing newline) that precedes an item's body or a reply's headers.
func SectionMarker(seq, timestamp uint32) string {
	return fmt.Sprintf("^%08X %08X", seq, timestamp)
}
