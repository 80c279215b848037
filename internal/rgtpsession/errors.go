package rgtpsession

import (
	"errors"
	"fmt"
)

// ProtocolError is a 5xx: a malformed command or a command issued in
// the wrong state. The dispatcher sends the response, turns on
// supertrace, and keeps the session open.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("%d %s", e.Code, e.Message) }

func protoErr(code int, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// RefusalError is a 4xx: a valid command refused by policy or data
// state. The dispatcher sends the response and keeps the session open.
type RefusalError struct {
	Code    int
	Message string
}

func (e *RefusalError) Error() string { return fmt.Sprintf("%d %s", e.Code, e.Message) }

func refusalErr(code int, format string, args ...interface{}) *RefusalError {
	return &RefusalError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FatalError is a system error: I/O failure, a broken invariant, or
// detected corruption. The dispatcher logs Err, sends a 484 (or
// whatever Code the caller supplied, for pre-auth fatal cases that use
// a different code), and closes the session. Other sessions are
// unaffected.
type FatalError struct {
	Code    int
	Message string
	Err     error
}

func (e *FatalError) Error() string { return fmt.Sprintf("%d %s: %v", e.Code, e.Message, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

func fatalErr(code int, message string, err error) *FatalError {
	return &FatalError{Code: code, Message: message, Err: err}
}

func internalErr(err error) *FatalError {
	return &FatalError{Code: CodeInternal, Message: "Internal error", Err: err}
}

// errQuit unwinds the dispatch loop after a QUIT command; Run sends the
// goodbye response when it sees it.
var errQuit = errors.New("rgtpsession: client issued QUIT")
