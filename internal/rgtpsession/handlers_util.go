package rgtpsession

import (
	"os"
	"strings"
)

// handleDBUG turns on supertrace for the rest of the session and
// acknowledges.
func handleDBUG(s *Session, rest string) error {
	s.State.Supertrace = true
	return s.Reply(CodeDebug, "Supertrace on")
}

const helpText = `REGU USER AUTH ALVL
MOTD ELOG INDX ITEM STAT
DATA NEWI REPL CONT
DIFF EDLK EDUL EDIT EDIX EDAB EDCF KILL KILR MOTS UDBM
DBUG HELP NOOP QUIT`

// handleHELP turns on supertrace (per the specification's list of
// commands that do) and lists the command set.
func handleHELP(s *Session, rest string) error {
	s.State.Supertrace = true
	return s.ReplyPayload(CodeMultiline, "Commands", strings.Split(helpText, "\n"))
}

// handleMOTD streams the spool's message-of-the-day file, empty if
// none has been set.
func handleMOTD(s *Session, rest string) error {
	data, err := os.ReadFile(s.deps.Spool.MOTD())
	if err != nil {
		if os.IsNotExist(err) {
			return s.ReplyPayload(CodeMultiline, "Message of the day", nil)
		}
		return internalErr(err)
	}
	return s.ReplyPayload(CodeMultiline, "Message of the day", splitLines(data))
}

// handleNOOP does nothing but keep the connection alive.
func handleNOOP(s *Session, rest string) error {
	return s.Reply(CodeAck, "Still here")
}

// handleQUIT unwinds Run's dispatch loop; Run itself sends the 280
// goodbye line once errQuit propagates back to it.
func handleQUIT(s *Session, rest string) error {
	return errQuit
}

// splitLines splits raw file content into lines for ReplyPayload,
// dropping a single trailing empty line left by a final newline.
func splitLines(data []byte) []string {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
