// Package rgtpindex implements the append-only index: a flat file of
// fixed 200-byte records, binary-searchable by sequence number or
// timestamp, that together form the browsable table of contents of the
// item store. It is grounded in the same fixed-width-record-file
// technique as internal/userdb (itself grounded in the teacher's
// internal/configtool/multinode coordination files), specialized here
// to an append-mostly log instead of a hash table.
package rgtpindex

import (
	"bytes"
	"fmt"

	"github.com/stlalpha/rgtpd/internal/rgtpproto"
)

// Type is an index record's single type character.
type Type byte

const (
	TypeReply        Type = 'R'
	TypeItem         Type = 'I'
	TypeContinuation Type = 'C'
	TypeFromContinue Type = 'F'
	TypeEdit         Type = 'E'
	TypeMOTD         Type = 'M'
)

func (t Type) valid() bool {
	switch t {
	case TypeReply, TypeItem, TypeContinuation, TypeFromContinue, TypeEdit, TypeMOTD:
		return true
	default:
		return false
	}
}

const (
	seqLen     = 8
	timeLen    = 8
	idLen      = rgtpproto.ItemIDLen // 8
	useridLen  = rgtpproto.UseridMaxLen
	subjectLen = 94

	offSeq     = 0
	offTime    = offSeq + seqLen + 1
	offID      = offTime + timeLen + 1
	offUserid  = offID + idLen + 1
	offType    = offUserid + useridLen + 1
	offSubject = offType + 1 + 1

	// RecordLen is the fixed on-disk size of one index record, the 199
	// content bytes above plus the trailing newline.
	RecordLen = offSubject + subjectLen + 1
)

// Record is one decoded index entry. Sequence and Timestamp are kept as
// the raw 8-hex-digit values they're stored as (uint32 is plenty of
// range for either, but the wire format is hex text, not binary).
type Record struct {
	Sequence  uint32
	Timestamp uint32
	ItemID    string // empty (rendered as 8 spaces) for an M (motd) record
	UserID    string
	Type      Type
	Subject   string
}

// Encode renders r as a 200-byte record, space-padding ItemID, UserID,
// and Subject on the right.
func Encode(r Record) ([RecordLen]byte, error) {
	var out [RecordLen]byte
	if !r.Type.valid() {
		return out, fmt.Errorf("rgtpindex: invalid record type %q", byte(r.Type))
	}
	if len(r.ItemID) > idLen {
		return out, fmt.Errorf("rgtpindex: item id %q longer than %d", r.ItemID, idLen)
	}
	if len(r.UserID) > useridLen {
		return out, fmt.Errorf("rgtpindex: userid %q longer than %d", r.UserID, useridLen)
	}
	if len(r.Subject) > subjectLen {
		return out, fmt.Errorf("rgtpindex: subject too long: %d > %d", len(r.Subject), subjectLen)
	}

	buf := bytes.Repeat([]byte{' '}, RecordLen)
	copy(buf[offSeq:offSeq+seqLen], []byte(fmt.Sprintf("%08X", r.Sequence)))
	buf[offSeq+seqLen] = ' '
	copy(buf[offTime:offTime+timeLen], []byte(fmt.Sprintf("%08X", r.Timestamp)))
	buf[offTime+timeLen] = ' '
	copy(buf[offID:offID+idLen], []byte(r.ItemID)) // left blank (spaces) if ItemID == ""
	buf[offID+idLen] = ' '
	copy(buf[offUserid:offUserid+useridLen], []byte(r.UserID))
	buf[offUserid+useridLen] = ' '
	buf[offType] = byte(r.Type)
	buf[offType+1] = ' '
	copy(buf[offSubject:offSubject+subjectLen], []byte(r.Subject))
	buf[RecordLen-1] = '\n'

	copy(out[:], buf)
	return out, nil
}

// Decode parses a 200-byte record.
func Decode(rec []byte) (Record, error) {
	if len(rec) != RecordLen {
		return Record{}, fmt.Errorf("rgtpindex: record is %d bytes, want %d", len(rec), RecordLen)
	}
	var r Record

	seq, err := parseHex32(rec[offSeq : offSeq+seqLen])
	if err != nil {
		return Record{}, fmt.Errorf("rgtpindex: sequence field: %w", err)
	}
	r.Sequence = seq

	ts, err := parseHex32(rec[offTime : offTime+timeLen])
	if err != nil {
		return Record{}, fmt.Errorf("rgtpindex: timestamp field: %w", err)
	}
	r.Timestamp = ts

	r.ItemID = string(bytes.TrimRight(rec[offID:offID+idLen], " "))
	r.UserID = string(bytes.TrimRight(rec[offUserid:offUserid+useridLen], " "))
	r.Type = Type(rec[offType])
	if !r.Type.valid() {
		return Record{}, fmt.Errorf("rgtpindex: invalid record type %q", rec[offType])
	}
	r.Subject = string(bytes.TrimRight(rec[offSubject:offSubject+subjectLen], " "))
	return r, nil
}

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
