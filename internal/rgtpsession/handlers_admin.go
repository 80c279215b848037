package rgtpsession

import (
	"os"
	"strings"
	"time"

	"github.com/stlalpha/rgtpd/internal/registration"
	"github.com/stlalpha/rgtpd/internal/rgtpindex"
	"github.com/stlalpha/rgtpd/internal/userdb"
)

// handleKILL tells the running daemon to terminate, the same signal an
// operator would otherwise have to send from the shell. It takes no
// arguments: the historical command just signals the process that
// spawned this session and reports the signal obeyed, it doesn't name
// anything to kill.
func handleKILL(s *Session, rest string) error {
	if strings.TrimSpace(rest) != "" {
		return protoErr(CodeBadArgs, "KILL takes no arguments")
	}
	if s.deps.Shutdown == nil {
		return fatalErr(CodeInternal, "KILL is not available on this server", nil)
	}
	s.deps.Shutdown()
	return s.Reply(CodeAck, "KILL/KILR command obeyed")
}

// handleKILR tells the running daemon to re-exec itself in place,
// handing the listening socket to its replacement without dropping any
// pending connections. The historical equivalent signaled the process's
// parent supervisor to do the same; here there is no separate
// supervisor process, so the daemon re-execs itself (see cmd/rgtpd).
func handleKILR(s *Session, rest string) error {
	if strings.TrimSpace(rest) != "" {
		return protoErr(CodeBadArgs, "KILR takes no arguments")
	}
	if s.deps.Restart == nil {
		return fatalErr(CodeInternal, "KILR is not available on this server", nil)
	}
	s.deps.Restart()
	return s.Reply(CodeAck, "KILL/KILR command obeyed")
}

// handleMOTS replaces the message-of-the-day from a staged
// contribution and logs an M-type index record marking the change.
func handleMOTS(s *Session, rest string) error {
	if s.State.Staging == nil {
		return protoErr(CodeBadState, "No data staged")
	}
	body, err := s.State.Staging.Finish()
	if err != nil {
		return mapStagingError(err)
	}
	s.State.Staging = nil

	var content []byte
	if len(body) > 0 {
		content = []byte(strings.Join(body, "\n") + "\n")
	}
	if err := os.WriteFile(s.deps.Spool.MOTD(), content, 0644); err != nil {
		return internalErr(err)
	}

	timestamp := uint32(time.Now().Unix())
	var seq uint64
	err = s.deps.Index.WithWriteLock(func(f *os.File) error {
		var e error
		seq, e = s.deps.Sequence.Next()
		if e != nil {
			return e
		}
		return rgtpindex.Append(f, rgtpindex.Record{
			Sequence: uint32(seq), Timestamp: timestamp,
			UserID: s.State.UserID, Type: rgtpindex.TypeMOTD,
			Subject: "Message of the day updated",
		})
	})
	if err != nil {
		return internalErr(err)
	}
	return s.Reply(CodePosted, "%08X Message of the day updated", seq)
}

// handleUDBM overrides a user's stored access level, bypassing the
// normal ALVL challenge for administrative correction. If the running
// configuration sets an admin override password, a third argument
// carrying it is required and checked against the stored bcrypt hash;
// otherwise access level alone (already required to reach this
// handler) is the only gate.
func handleUDBM(s *Session, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) < 2 || len(fields) > 3 {
		return protoErr(CodeBadArgs, "UDBM requires <userid> <access> [password]")
	}
	userid, err := userdb.CheckUserID(fields[0])
	if err != nil {
		return protoErr(CodeMalformed, "Bad userid: %v", err)
	}
	access, ok := parseAccessWord(fields[1])
	if !ok {
		return protoErr(CodeBadArgs, "Unknown access level %q", fields[1])
	}

	if s.deps.Config != nil {
		if hash := s.deps.Config.Current().AdminOverridePasswordHash; hash != "" {
			if len(fields) != 3 {
				return protoErr(CodeBadArgs, "UDBM requires a password on this server")
			}
			if !registration.VerifyAdminPassword(hash, fields[2]) {
				return fatalErr(CodeDenied, "Admin override password rejected", nil)
			}
		}
	}

	entry, ok, err := s.deps.UserDB.Find(userid, -1)
	if err != nil {
		return internalErr(err)
	}
	if !ok {
		return refusalErr(CodeNotFound, "No such user %s", userid)
	}

	entry.Access = access
	if _, err := s.deps.UserDB.Change(entry, userdb.NeverCreate); err != nil {
		return internalErr(err)
	}
	return s.Reply(CodeAck, "%s access set to %s", userid, access)
}
