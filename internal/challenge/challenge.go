// Package challenge implements the MD5 challenge-response handshake:
// mutual proof of a shared secret without ever transmitting it. Nonce
// generation is grounded in the teacher's use of crypto/rand plus
// google/uuid for unguessable, collision-resistant identifiers
// (internal/configtool's temp-file naming); MD5 itself is an explicit
// standard-library exception — the wire format mandates the historical
// MD5 construction bit-for-bit, so there is no substitute library to
// reach for.
package challenge

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NonceLen is the width of a nonce in raw bytes; it is transmitted on
// the wire as 32 hex digits.
const NonceLen = 16

// Userid16Len is the fixed width a userid is left-justified and
// zero-padded (or truncated) into before it is mixed into an MD5 input.
const Userid16Len = 16

// Nonce is a random value generated once per challenge.
type Nonce [NonceLen]byte

// NewNonce returns a freshly generated random nonce.
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return Nonce{}, fmt.Errorf("challenge: generating nonce: %w", err)
	}
	return n, nil
}

// Hex renders the nonce as the 32 lowercase hex digits sent on the wire.
func (n Nonce) Hex() string { return hex.EncodeToString(n[:]) }

// ParseNonceHex parses the 32-hex-digit wire form of a nonce.
func ParseNonceHex(s string) (Nonce, error) {
	var n Nonce
	b, err := hex.DecodeString(s)
	if err != nil {
		return Nonce{}, fmt.Errorf("challenge: malformed nonce %q: %w", s, err)
	}
	if len(b) != NonceLen {
		return Nonce{}, fmt.Errorf("challenge: nonce %q decodes to %d bytes, want %d", s, len(b), NonceLen)
	}
	copy(n[:], b)
	return n, nil
}

// userid16 left-justifies userid into a fixed Userid16Len-byte, zero
// padded buffer, truncating anything past the first Userid16Len bytes.
func userid16(userid string) [Userid16Len]byte {
	var out [Userid16Len]byte
	b := []byte(userid)
	if len(b) > Userid16Len {
		b = b[:Userid16Len]
	}
	copy(out[:], b)
	return out
}

// invert returns the bitwise complement of b.
func invert(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = ^c
	}
	return out
}

// ClientProof computes the client-direction MD5 hash:
// MD5(clientNonce ‖ serverNonce ‖ userid16 ‖ ~secret), where secret is
// bit-inverted before mixing in, per the wire contract's asymmetric
// treatment of the shared secret.
func ClientProof(clientNonce, serverNonce Nonce, userid string, secret []byte) [md5.Size]byte {
	return proof(clientNonce, serverNonce, userid, invert(secret))
}

// ServerProof computes the server-direction MD5 hash:
// MD5(serverNonce ‖ clientNonce ‖ userid16 ‖ secret) — the secret is
// mixed in plain, unlike ClientProof.
func ServerProof(serverNonce, clientNonce Nonce, userid string, secret []byte) [md5.Size]byte {
	return proof(serverNonce, clientNonce, userid, secret)
}

func proof(first, second Nonce, userid string, secretBytes []byte) [md5.Size]byte {
	uid := userid16(userid)
	msg := make([]byte, 0, NonceLen*2+Userid16Len+len(secretBytes))
	msg = append(msg, first[:]...)
	msg = append(msg, second[:]...)
	msg = append(msg, uid[:]...)
	msg = append(msg, secretBytes...)
	return md5.Sum(msg)
}

// ProofHex renders a proof as lowercase hex, the form sent on the wire.
func ProofHex(p [md5.Size]byte) string { return hex.EncodeToString(p[:]) }

// ParseProofHex parses the hex form of a proof hash.
func ParseProofHex(s string) ([md5.Size]byte, error) {
	var p [md5.Size]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("challenge: malformed proof %q: %w", s, err)
	}
	if len(b) != md5.Size {
		return p, fmt.Errorf("challenge: proof %q decodes to %d bytes, want %d", s, len(b), md5.Size)
	}
	copy(p[:], b)
	return p, nil
}
