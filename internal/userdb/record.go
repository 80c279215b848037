package userdb

import (
	"bytes"

	"github.com/stlalpha/rgtpd/internal/rgtpproto"
)

const (
	// UseridLen, SecretMaxBytes mirror the wire-contract field widths.
	UseridLen      = rgtpproto.UseridMaxLen
	SecretMaxBytes = rgtpproto.SecretMaxBytes

	offUserid      = 0
	offAccess      = offUserid + UseridLen
	offIdent       = offAccess + 1
	offSecretBytes = offIdent + 1
	offDisabled    = offSecretBytes + 1
	offSecret      = offDisabled + 1
	offLastRef     = offSecret + SecretMaxBytes

	// RecordLen is the fixed on-disk size of one user record: 75 + 1 + 1 +
	// 1 + 1 + 16 + 4 = 99 bytes, the bit-exact layout shared with the
	// admin tool referenced (but not implemented) by the specification.
	RecordLen = offLastRef + 4
)

// Ident is a user's authentication method.
type Ident byte

const (
	IdentNone       Ident = 0
	IdentMD5Initial Ident = 1
	IdentMD5        Ident = 2
)

// Entry is one user database record.
type Entry struct {
	UserID      string
	Access      rgtpproto.Access
	Ident       Ident
	SecretBytes int
	Disabled    bool
	Secret      [SecretMaxBytes]byte
	LastRef     uint32
}

// empty reports whether a raw record slot is unused.
func empty(rec []byte) bool {
	return rec[offUserid] == 0
}

func accessByte(a rgtpproto.Access) byte {
	return byte(a)
}

func encode(e Entry) [RecordLen]byte {
	var rec [RecordLen]byte
	uid := []byte(e.UserID)
	if len(uid) > UseridLen {
		uid = uid[:UseridLen]
	}
	copy(rec[offUserid:offUserid+UseridLen], uid)
	// Left-justified, null-padded: the zero value of the backing array
	// already supplies the padding.
	rec[offAccess] = accessByte(e.Access)
	rec[offIdent] = byte(e.Ident)
	rec[offSecretBytes] = byte(e.SecretBytes)
	if e.Disabled {
		rec[offDisabled] = 1
	}
	copy(rec[offSecret:offSecret+SecretMaxBytes], e.Secret[:])
	putUint32(rec[offLastRef:offLastRef+4], e.LastRef)
	return rec
}

func decode(rec []byte) Entry {
	var e Entry
	uid := rec[offUserid : offUserid+UseridLen]
	e.UserID = string(bytes.TrimRight(uid, "\x00"))
	access, _ := rgtpproto.ParseAccess(rec[offAccess])
	e.Access = access
	e.Ident = Ident(rec[offIdent])
	e.SecretBytes = int(rec[offSecretBytes])
	e.Disabled = rec[offDisabled] != 0
	copy(e.Secret[:], rec[offSecret:offSecret+SecretMaxBytes])
	e.LastRef = getUint32(rec[offLastRef : offLastRef+4])
	return e
}

// wipe clears a slot in place, per the Delete mode contract: zero the
// userid, secret, disabled, and secretbytes fields (access/ident/lastref
// are left as-is, mirroring the historical admin tool's partial wipe,
// since userid[0]==0 alone is what "empty" tests for).
func wipe(rec []byte) {
	for i := offUserid; i < offUserid+UseridLen; i++ {
		rec[i] = 0
	}
	rec[offSecretBytes] = 0
	rec[offDisabled] = 0
	for i := offSecret; i < offSecret+SecretMaxBytes; i++ {
		rec[i] = 0
	}
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
