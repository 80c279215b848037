// Package rgtplog provides leveled logging on top of the standard
// library's log package: INFO/WARN/ERROR prefixes always on, plus a
// DEBUG level gated by a package-level flag, the same shape as the
// teacher's internal/logging package (DebugEnabled + log.Printf with a
// hardcoded prefix), extended here with WARN/ERROR/Fatal helpers and a
// supertrace mode for dumping full protocol dialogue.
package rgtplog

import (
	"log"
	"os"
)

// DebugEnabled gates Debugf() output; set from the -debug flag.
var DebugEnabled bool

// SupertraceEnabled gates Tracef() output: a verbose dump of every line
// sent and received on a session, named after the historical server's
// equivalent all-traffic debug mode.
var SupertraceEnabled bool

// Infof logs an always-on informational message.
func Infof(format string, args ...any) {
	log.Printf("INFO: "+format, args...)
}

// Warnf logs an always-on warning.
func Warnf(format string, args ...any) {
	log.Printf("WARN: "+format, args...)
}

// Errorf logs an always-on error.
func Errorf(format string, args ...any) {
	log.Printf("ERROR: "+format, args...)
}

// Fatalf logs an always-on error and exits the process.
func Fatalf(format string, args ...any) {
	log.Printf("ERROR: "+format, args...)
	os.Exit(1)
}

// Debugf logs only when DebugEnabled is true.
func Debugf(format string, args ...any) {
	if DebugEnabled {
		log.Printf("DEBUG: "+format, args...)
	}
}

// Tracef logs only when SupertraceEnabled is true. Intended for raw
// wire-level lines; callers should include the connection identifier
// and direction ("-> " / "<- ") in format themselves.
func Tracef(format string, args ...any) {
	if SupertraceEnabled {
		log.Printf("TRACE: "+format, args...)
	}
}

// SetFlags mirrors the teacher's startup configuration of the standard
// logger: no file/line prefix, but a timestamp, since rgtpd normally
// runs under an external process supervisor that doesn't add its own.
func SetFlags() {
	log.SetFlags(log.Ldate | log.Ltime)
}
