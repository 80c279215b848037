// Package rgtpproto holds the wire and on-disk constants of RGTP protocol
// revision 22: field widths, size caps, and timeouts that are shared across
// the storage and session layers. Keeping them in one place is what lets the
// fixed-width record packages stay bit-exact with each other.
package rgtpproto

import "time"

const (
	// ItemIDLen is the width of a minted Item-ID: one year letter followed
	// by seven decimal digits (day-of-year, hour, minute).
	ItemIDLen = 8

	// UseridMaxLen is the width of the userid field everywhere it is
	// stored: the user database record and the index record.
	UseridMaxLen = 75

	// SecretMaxBytes bounds the shared secret kept in a user record.
	SecretMaxBytes = 16

	// TextLineMaxLen bounds a single line of staged contribution text.
	TextLineMaxLen = 80

	// ContribMaxLen bounds a freshly staged item/reply body.
	ContribMaxLen = 7000

	// ItemMaxLen bounds the total size of an item file, replies included.
	ItemMaxLen = 14000

	// TxRxLineMaxLen and InputLineMaxLen bound a single wire line.
	TxRxLineMaxLen   = 255
	InputLineMaxLen  = TxRxLineMaxLen + 3

	// DataTimeout bounds how long the server waits for the ending "." of a
	// staged DATA payload.
	DataTimeout = 300 * time.Second

	// InactivityTimeout and EditorInactivityTimeout bound idle time between
	// command lines, normally and while the edit lock is held.
	InactivityTimeout       = 3600 * time.Second
	EditorInactivityTimeout = 1200 * time.Second

	// TCPIdentTimeout bounds the (out of scope, interface-only) ident probe.
	TCPIdentTimeout = 20 * time.Second

	// StartingYear anchors the Item-ID year letter: 'A' is StartingYear,
	// wrapping every 26 years. The historical source never surfaced its
	// epoch in the distilled spec; StartingYear is an Open Question
	// decision recorded in DESIGN.md.
	StartingYear = 1987

	// LeapSecondFudge is added to the previous mint time floor so that two
	// Item-IDs minted in the same UTC minute never collide even across a
	// leap second.
	LeapSecondFudge = 61
)

// Access is a session's access level, gating which commands it may run.
type Access int

const (
	AccessNone Access = iota
	AccessRead
	AccessWrite
	AccessEdit
)

func (a Access) String() string {
	switch a {
	case AccessNone:
		return "none"
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// ParseAccess maps a user database access byte to an Access level.
func ParseAccess(b byte) (Access, bool) {
	switch b {
	case 0:
		return AccessNone, true
	case 1:
		return AccessRead, true
	case 2:
		return AccessWrite, true
	case 3:
		return AccessEdit, true
	default:
		return AccessNone, false
	}
}
