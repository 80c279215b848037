// Package rgtpsession implements the per-connection RGTP dialogue: the
// command dispatch table, access-level gating, and the three
// orthogonal sub-state groups (registration/login, continuation/edit,
// data staging) the specification describes. Grounded in the
// teacher's BbsSession (internal/session/session.go) — one struct
// carrying every per-connection field together, left zero/unused in
// states where it doesn't apply, rather than a tagged union of
// per-state types.
package rgtpsession

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/stlalpha/rgtpd/internal/rgtplock"
	"github.com/stlalpha/rgtpd/internal/rgtplog"
	"github.com/stlalpha/rgtpd/internal/rgtpproto"
	"github.com/stlalpha/rgtpd/internal/rgtpwire"
	"github.com/stlalpha/rgtpd/internal/staging"
)

// Conn is the minimal surface Session needs from a network connection;
// satisfied by *net.TCPConn and by fakes in tests.
type Conn interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	Close() error
}

// State holds the specification's three orthogonal sub-state groups.
type State struct {
	// registration/login
	Registering   bool
	Access        rgtpproto.Access
	UserID        string
	PendingUserID string // non-empty while a challenge is in flight ("identue.userid")
	PendingAccess rgtpproto.Access
	ServerNonce   [16]byte
	NonceSerial   uint32

	// continuation/edit
	MayContinue   bool
	SavedItemID   string
	EditLockHeld  bool
	EditingIndex  bool
	EditingItemID string
	LenBeforeEdit int64

	// data staging
	Staging *staging.Buffer

	Supertrace bool
}

// Session is one connection's RGTP dialogue.
type Session struct {
	deps *Deps

	conn Conn
	r    *rgtpwire.Reader
	w    *rgtpwire.Writer

	ClientIP   net.IP
	ClientPort uint16
	ClientID   string
	TraceID    string

	State State

	// Edit-protocol file handles held open (and locked) across multiple
	// commands: EDLK/EDIT/EDIX open these and EDUL/EDAB/EDCF close them.
	// They live on the Session, not State, because State is meant to be
	// the plain data snapshot of where the dialogue stands, not the
	// resources backing it.
	editLockFile   *os.File
	editItemFile   *os.File
	editIndexFile  *os.File
	editOldContent []byte
}

// New returns a Session ready to Run over conn.
func New(deps *Deps, conn Conn, clientIP net.IP, clientPort uint16) *Session {
	return &Session{
		deps:       deps,
		conn:       conn,
		r:          rgtpwire.NewReader(conn),
		w:          rgtpwire.NewWriter(conn),
		ClientIP:   clientIP,
		ClientPort: clientPort,
		ClientID:   fmt.Sprintf("%s:%d", clientIP, clientPort),
		TraceID:    uuid.NewString(),
	}
}

// Reply writes one formatted response line.
func (s *Session) Reply(code int, format string, args ...interface{}) error {
	line := fmt.Sprintf("%d %s", code, fmt.Sprintf(format, args...))
	if s.State.Supertrace {
		rgtplog.Tracef("%s -> %s", s.TraceID, line)
	}
	return s.w.WriteLine(line)
}

// ReplyPayload writes a header response line followed by a dot-stuffed
// multi-line payload terminated by ".".
func (s *Session) ReplyPayload(code int, header string, lines []string) error {
	if err := s.Reply(code, "%s", header); err != nil {
		return err
	}
	return s.w.WritePayload(lines)
}

// Run drives the command/response dialogue until the client
// disconnects, issues QUIT, times out, or a fatal error occurs.
func (s *Session) Run() {
	defer s.conn.Close()
	defer s.releaseEditResources()

	for {
		timeout := rgtpproto.InactivityTimeout
		if s.State.EditLockHeld {
			timeout = rgtpproto.EditorInactivityTimeout
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			rgtplog.Errorf("%s: setting read deadline: %v", s.TraceID, err)
			return
		}

		line, err := s.r.ReadLine()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				s.Reply(CodeTimeout, "Inactivity timeout")
				return
			}
			return // EOF or a dropped connection: nothing more to say
		}

		if s.State.Supertrace {
			rgtplog.Tracef("%s <- %s", s.TraceID, line)
		}

		name, rest := parseCommandLine(line)
		cmd, ok := commandTable[name]
		if !ok {
			s.State.Supertrace = true
			s.Reply(CodeUnknownCommand, "Unknown command %q", name)
			continue
		}
		if s.State.Access < cmd.MinAccess {
			s.Reply(CodeDenied, "Access denied")
			continue
		}

		if err := cmd.Handler(s, rest); err != nil {
			if errors.Is(err, errQuit) {
				s.Reply(CodeGoodbye, "Goodbye")
				return
			}
			if !s.handleError(err) {
				return
			}
		}
	}
}

// handleError classifies err per the specification's error taxonomy
// and reports it, returning whether the session should stay open.
func (s *Session) handleError(err error) bool {
	var perr *ProtocolError
	var rerr *RefusalError
	var ferr *FatalError

	switch {
	case errors.As(err, &perr):
		s.State.Supertrace = true
		s.Reply(perr.Code, "%s", perr.Message)
		return true
	case errors.As(err, &rerr):
		s.Reply(rerr.Code, "%s", rerr.Message)
		return true
	case errors.As(err, &ferr):
		rgtplog.Errorf("%s: fatal: %v", s.TraceID, ferr.Err)
		s.Reply(ferr.Code, "%s", ferr.Message)
		return false
	default:
		rgtplog.Errorf("%s: unexpected error: %v", s.TraceID, err)
		s.Reply(CodeInternal, "Internal error")
		return false
	}
}

// releaseEditResources unlocks and closes any edit-lock or edit-target
// file handles still held when the session ends, so a dropped
// connection never leaves a stale advisory lock behind.
func (s *Session) releaseEditResources() {
	if s.editLockFile != nil {
		rgtplock.CloseWithUnlock(s.editLockFile)
		s.editLockFile = nil
	}
	if s.editItemFile != nil {
		rgtplock.CloseWithUnlock(s.editItemFile)
		s.editItemFile = nil
	}
	if s.editIndexFile != nil {
		rgtplock.CloseWithUnlock(s.editIndexFile)
		s.editIndexFile = nil
	}
}
