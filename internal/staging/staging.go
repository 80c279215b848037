// Package staging implements the DATA command's temporary payload
// buffer. A client streams a dot-stuffed multi-line payload whose
// per-line and total-size validation depends on what the session is
// staging it for (a plain contribution, an item edit, or an index
// edit). Grounded in the same accumulate-then-validate shape as
// internal/rgtpwire's ReadPayload, specialized with the per-mode rules
// the specification's data-staging table lays out.
package staging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stlalpha/rgtpd/internal/rgtpindex"
	"github.com/stlalpha/rgtpd/internal/rgtpproto"
)

// Mode selects which validation and size-cap rules apply to a Buffer.
type Mode int

const (
	// ModeContribution is a fresh item/reply body: first line is the
	// "grogname" display name (possibly empty), later lines are capped
	// at TextLineMaxLen and a leading "^" is escaped as "^^" so it can
	// never be confused with a section marker once written to disk.
	ModeContribution Mode = iota
	// ModeItemEdit is a replacement item body: the first line (an
	// ignored placeholder status line) is skipped, a Subject line is
	// required, and the cap is ItemMaxLen.
	ModeItemEdit
	// ModeIndexEdit is a replacement index tail: every line must parse
	// as a 199-byte index record body (the newline is added on write).
	ModeIndexEdit
)

var (
	ErrLineTooLong    = errors.New("staging: line exceeds TextLineMaxLen")
	ErrPayloadTooLong = errors.New("staging: payload exceeds the size cap for this mode")
	ErrMissingSubject = errors.New("staging: item edit payload is missing a Subject: line")
)

// Buffer accumulates and validates one DATA payload.
type Buffer struct {
	mode     Mode
	lines    []string
	total    int
	grogname string
	sawFirst bool
}

// NewBuffer returns an empty buffer for mode.
func NewBuffer(mode Mode) *Buffer {
	return &Buffer{mode: mode}
}

func (b *Buffer) cap() int {
	switch b.mode {
	case ModeItemEdit:
		return rgtpproto.ItemMaxLen
	case ModeIndexEdit:
		return 0 // "none beyond per-line" per the specification's table
	default:
		return rgtpproto.ContribMaxLen
	}
}

// AddLine validates and appends one already-unstuffed line.
func (b *Buffer) AddLine(line string) error {
	switch b.mode {
	case ModeContribution:
		return b.addContribution(line)
	case ModeItemEdit:
		return b.addItemEdit(line)
	case ModeIndexEdit:
		return b.addIndexEdit(line)
	default:
		return fmt.Errorf("staging: unknown mode %d", b.mode)
	}
}

func (b *Buffer) addContribution(line string) error {
	if !b.sawFirst {
		b.sawFirst = true
		b.grogname = line
		return nil
	}
	if len(line) > rgtpproto.TextLineMaxLen {
		return ErrLineTooLong
	}
	escaped := strings.ReplaceAll(line, "^", "^^")
	if b.total+len(escaped)+1 > b.cap() {
		return ErrPayloadTooLong
	}
	b.total += len(escaped) + 1
	b.lines = append(b.lines, escaped)
	return nil
}

func (b *Buffer) addItemEdit(line string) error {
	if !b.sawFirst {
		b.sawFirst = true
		return nil // the first line (an ignored placeholder status line) is discarded
	}
	if len(line) > rgtpproto.TextLineMaxLen {
		return ErrLineTooLong
	}
	if b.total+len(line)+1 > b.cap() {
		return ErrPayloadTooLong
	}
	if strings.HasPrefix(line, "Subject:") {
		b.grogname = line
	}
	b.total += len(line) + 1
	b.lines = append(b.lines, line)
	return nil
}

func (b *Buffer) addIndexEdit(line string) error {
	if len(line) != rgtpindex.RecordLen-1 {
		return fmt.Errorf("staging: index-edit line is %d bytes, want %d", len(line), rgtpindex.RecordLen-1)
	}
	if _, err := rgtpindex.Decode([]byte(line + "\n")); err != nil {
		return fmt.Errorf("staging: malformed index record: %w", err)
	}
	b.lines = append(b.lines, line)
	return nil
}

// Finish validates cross-line invariants not checkable per line (e.g.
// that an item edit carried a Subject:) and returns the accumulated
// lines.
func (b *Buffer) Finish() ([]string, error) {
	if b.mode == ModeItemEdit && b.grogname == "" {
		return nil, ErrMissingSubject
	}
	return b.lines, nil
}

// Grogname returns the first line of a ModeContribution buffer (the
// display name), empty if none was supplied.
func (b *Buffer) Grogname() string { return b.grogname }
