package challenge

import (
	"fmt"
	"net"
	"os"
	"time"
)

// NewServerNonce builds the server's half of the handshake nonce from
// locally observable, hard-to-predict inputs: the wall clock, a
// per-session serial the caller supplies (so two nonces minted in the
// same microsecond from different sessions never collide), the
// connecting client's address, and this process's pid. Byte layout,
// 16 bytes total:
//
//	tv_sec (4B) ‖ (tv_usec<<12)+serial (4B) ‖ client_ip (4B) ‖ client_port (2B) ‖ pid_low16 (2B)
//
// Host byte order is unspecified by the wire contract (this value
// never leaves the process that minted it in binary form — only its
// MD5 digest crosses the wire); little-endian is used throughout this
// server for "host order" fields, matching the same Open Question
// decision made for the user database's lastref field.
func NewServerNonce(clientIP net.IP, clientPort uint16, serial uint32) (Nonce, error) {
	var n Nonce

	ip4 := clientIP.To4()
	if ip4 == nil {
		return n, fmt.Errorf("challenge: server nonce requires an IPv4 client address, got %v", clientIP)
	}

	now := time.Now()
	sec := uint32(now.Unix())
	usecField := uint32(now.Nanosecond()/1000)<<12 + serial
	pidLow16 := uint16(os.Getpid())

	putUint32LE(n[0:4], sec)
	putUint32LE(n[4:8], usecField)
	copy(n[8:12], ip4)
	putUint16LE(n[12:14], clientPort)
	putUint16LE(n[14:16], pidLow16)

	return n, nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
