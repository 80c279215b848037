package rgtpsession

import (
	"errors"
	"strings"

	"github.com/stlalpha/rgtpd/internal/challenge"
	"github.com/stlalpha/rgtpd/internal/registration"
	"github.com/stlalpha/rgtpd/internal/rgtpproto"
	"github.com/stlalpha/rgtpd/internal/userdb"
)

// handleREGU arms the session for a one-shot registration: the next
// USER is taken as a new userid to create rather than an existing one
// to authenticate.
func handleREGU(s *Session, rest string) error {
	if s.State.UserID != "" {
		return protoErr(CodeBadState, "Already logged in as %s", s.State.UserID)
	}
	s.State.Registering = true
	if err := s.Reply(CodeAck, "Registration mode enabled"); err != nil {
		return err
	}
	return s.ReplyPayload(CodeMultiline, "Warning: registering reveals your address to this service's operator", nil)
}

// handleUSER either completes a REGU-armed registration or begins
// login for an existing userid, issuing an MD5 challenge when the
// account's ident requires one.
func handleUSER(s *Session, rest string) error {
	userid, err := userdb.CheckUserID(strings.TrimSpace(rest))
	if err != nil {
		return protoErr(CodeMalformed, "Bad userid: %v", err)
	}

	if s.State.Registering {
		s.State.Registering = false
		return finishRegistration(s, userid)
	}

	if s.State.UserID != "" {
		return protoErr(CodeBadState, "Already logged in as %s", s.State.UserID)
	}

	entry, ok, err := s.deps.UserDB.Find(userid, -1)
	if err != nil {
		return internalErr(err)
	}
	if !ok {
		return fatalErr(CodeReRegistration, "You are unknown to me", nil)
	}
	if entry.Disabled {
		return refusalErr(CodeDenied, "Account disabled")
	}

	if entry.Ident == userdb.IdentNone {
		s.State.UserID = userid
		s.State.Access = entry.Access
		return s.Reply(accessCode(entry.Access), "Identity confirmed")
	}

	return issueChallenge(s, userid, entry.Access)
}

func finishRegistration(s *Session, userid string) error {
	outcome, err := registration.Register(s.deps.UserDB, s.deps.Seed, s.deps.Mailer, userid, s.ClientID)
	switch {
	case errors.Is(err, registration.ErrCollision):
		return fatalErr(CodeReRegistration, "That userid is already registered", err)
	case err != nil:
		return internalErr(err)
	}

	switch outcome {
	case registration.OutcomeSent:
		return s.Reply(CodeAck, "Registered as %s; your secret is on its way", userid)
	case registration.OutcomeSoftFail:
		return s.Reply(CodeAck, "Registered as %s; retry shortly if no secret arrives", userid)
	default:
		return fatalErr(CodeInternal, "Registration could not be completed", nil)
	}
}

// issueChallenge sends the 130/333 pair and parks userid/access as
// pending until a matching AUTH arrives.
func issueChallenge(s *Session, userid string, access rgtpproto.Access) error {
	s.State.NonceSerial++
	nonce, err := challenge.NewServerNonce(s.ClientIP, s.ClientPort, s.State.NonceSerial)
	if err != nil {
		return internalErr(err)
	}
	s.State.ServerNonce = [16]byte(nonce)
	s.State.PendingUserID = userid
	s.State.PendingAccess = access

	if err := s.Reply(CodeAuthChallenge, "MD5 challenge for %s", userid); err != nil {
		return err
	}
	return s.Reply(CodeServerNonce, "%s", nonce.Hex())
}

// handleAUTH verifies the client's response to the most recent
// challenge, replies with the server's own proof, and on success
// completes login or an ALVL upgrade.
func handleAUTH(s *Session, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return protoErr(CodeBadArgs, "AUTH requires <hash> <nonce>")
	}
	if s.State.PendingUserID == "" {
		return protoErr(CodeBadState, "No challenge in progress")
	}

	clientHash, err := challenge.ParseProofHex(fields[0])
	if err != nil {
		return protoErr(CodeMalformed, "Bad client hash: %v", err)
	}
	clientNonce, err := challenge.ParseNonceHex(fields[1])
	if err != nil {
		return protoErr(CodeMalformed, "Bad client nonce: %v", err)
	}

	entry, ok, err := s.deps.UserDB.Find(s.State.PendingUserID, -1)
	if err != nil {
		return internalErr(err)
	}
	if !ok {
		return internalErr(userdb.ErrCorrupt)
	}
	secret := entry.Secret[:entry.SecretBytes]
	serverNonce := challenge.Nonce(s.State.ServerNonce)

	expected := challenge.ClientProof(clientNonce, serverNonce, s.State.PendingUserID, secret)
	if expected != clientHash {
		wasAuthenticated := s.State.UserID != ""
		s.State.PendingUserID = ""
		if !wasAuthenticated {
			return fatalErr(CodeDenied, "Authentication failed", nil)
		}
		return refusalErr(CodeDenied, "Authentication failed; access level unchanged")
	}

	serverProof := challenge.ServerProof(serverNonce, clientNonce, s.State.PendingUserID, secret)
	if err := s.Reply(CodeServerProof, "%s", challenge.ProofHex(serverProof)); err != nil {
		return err
	}

	s.State.UserID = s.State.PendingUserID
	s.State.Access = s.State.PendingAccess
	s.State.PendingUserID = ""

	if entry.Ident == userdb.IdentMD5Initial {
		entry.Ident = userdb.IdentMD5
		if _, err := s.deps.UserDB.Change(entry, userdb.NeverCreate); err != nil {
			return internalErr(err)
		}
	}

	return s.Reply(accessCode(s.State.Access), "Identity confirmed (%s ok)", s.State.Access)
}

// handleALVL downgrades immediately or, for an upgrade, starts a fresh
// challenge capped at the account's stored access level.
func handleALVL(s *Session, rest string) error {
	target, ok := parseAccessWord(strings.TrimSpace(rest))
	if !ok {
		return protoErr(CodeBadArgs, "Unknown access level %q", rest)
	}
	if s.State.UserID == "" {
		return protoErr(CodeBadState, "Not logged in")
	}

	if target <= s.State.Access {
		s.State.Access = target
		return s.Reply(accessCode(target), "Access level set")
	}

	entry, ok, err := s.deps.UserDB.Find(s.State.UserID, -1)
	if err != nil {
		return internalErr(err)
	}
	if !ok {
		return internalErr(userdb.ErrCorrupt)
	}
	if target > entry.Access {
		return refusalErr(CodeDenied, "Requested access level exceeds your account's level")
	}

	return issueChallenge(s, s.State.UserID, target)
}

func parseAccessWord(word string) (rgtpproto.Access, bool) {
	switch strings.ToLower(word) {
	case "none":
		return rgtpproto.AccessNone, true
	case "read":
		return rgtpproto.AccessRead, true
	case "write":
		return rgtpproto.AccessWrite, true
	case "edit":
		return rgtpproto.AccessEdit, true
	default:
		return rgtpproto.AccessNone, false
	}
}
