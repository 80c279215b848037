package rgtpsession

import "github.com/stlalpha/rgtpd/internal/rgtpproto"

// Handler executes one command's body, where rest is the command line
// with the command word and the single following space removed.
type Handler func(s *Session, rest string) error

// Command pairs a handler with the access level required to invoke it.
type Command struct {
	MinAccess rgtpproto.Access
	Handler   Handler
}

// commandTable maps a command word to its handler. Access gating
// happens once in Run before the handler is called; handlers still
// re-check session sub-state (e.g. "already registered") themselves.
var commandTable = map[string]Command{
	// utility, no access required
	"DBUG": {MinAccess: rgtpproto.AccessNone, Handler: handleDBUG},
	"HELP": {MinAccess: rgtpproto.AccessNone, Handler: handleHELP},
	"NOOP": {MinAccess: rgtpproto.AccessNone, Handler: handleNOOP},
	"QUIT": {MinAccess: rgtpproto.AccessNone, Handler: handleQUIT},
	"MOTD": {MinAccess: rgtpproto.AccessNone, Handler: handleMOTD},

	// registration / login
	"REGU": {MinAccess: rgtpproto.AccessNone, Handler: handleREGU},
	"USER": {MinAccess: rgtpproto.AccessNone, Handler: handleUSER},
	"AUTH": {MinAccess: rgtpproto.AccessNone, Handler: handleAUTH},
	"ALVL": {MinAccess: rgtpproto.AccessNone, Handler: handleALVL},

	// retrieval, read access
	"ELOG": {MinAccess: rgtpproto.AccessRead, Handler: handleELOG},
	"INDX": {MinAccess: rgtpproto.AccessRead, Handler: handleINDX},
	"ITEM": {MinAccess: rgtpproto.AccessRead, Handler: handleITEM},
	"STAT": {MinAccess: rgtpproto.AccessRead, Handler: handleSTAT},

	// submission, write access
	"DATA": {MinAccess: rgtpproto.AccessWrite, Handler: handleDATA},
	"NEWI": {MinAccess: rgtpproto.AccessWrite, Handler: handleNEWI},
	"REPL": {MinAccess: rgtpproto.AccessWrite, Handler: handleREPL},
	"CONT": {MinAccess: rgtpproto.AccessWrite, Handler: handleCONT},

	// edit, edit access
	"DIFF": {MinAccess: rgtpproto.AccessEdit, Handler: handleDIFF},
	"EDLK": {MinAccess: rgtpproto.AccessEdit, Handler: handleEDLK},
	"EDUL": {MinAccess: rgtpproto.AccessEdit, Handler: handleEDUL},
	"EDIT": {MinAccess: rgtpproto.AccessEdit, Handler: handleEDIT},
	"EDIX": {MinAccess: rgtpproto.AccessEdit, Handler: handleEDIX},
	"EDAB": {MinAccess: rgtpproto.AccessEdit, Handler: handleEDAB},
	"EDCF": {MinAccess: rgtpproto.AccessEdit, Handler: handleEDCF},

	// admin, edit access (the specification names no higher level)
	"KILL": {MinAccess: rgtpproto.AccessEdit, Handler: handleKILL},
	"KILR": {MinAccess: rgtpproto.AccessEdit, Handler: handleKILR},
	"MOTS": {MinAccess: rgtpproto.AccessEdit, Handler: handleMOTS},
	"UDBM": {MinAccess: rgtpproto.AccessEdit, Handler: handleUDBM},
}

// parseCommandLine splits a raw input line into its command word
// (upper-cased on the wire already, per the specification) and the
// remainder, with exactly one separating space consumed.
func parseCommandLine(line string) (name, rest string) {
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' {
			return line[:i], line[i+1:]
		}
	}
	return line, ""
}
