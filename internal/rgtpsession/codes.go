package rgtpsession

import "github.com/stlalpha/rgtpd/internal/rgtpproto"

// Response codes, named per the specification's representative table.
// Every handler in this package emits one of these rather than a bare
// literal so the command/response contract stays in one place.
const (
	CodeDebug            = 119
	CodeNewID            = 120
	CodeAuthChallenge    = 130
	CodeServerProof      = 133
	CodeDataPlease       = 150
	CodeAck              = 200
	CodeStat             = 211
	CodePosted           = 220
	CodeAccessNone       = 230
	CodeAccessRead       = 231
	CodeAccessWrite      = 232
	CodeAccessEdit       = 233
	CodeMultiline        = 250
	CodeGoodbye          = 280
	CodeServerNonce      = 333
	CodeDataAccepted     = 350
	CodeNotFound         = 410
	CodeEditorLocked     = 411
	CodeTooLong          = 421
	CodeAlreadyContinued = 422
	CodeMalformed        = 423
	CodeSubjectTooLong   = 424
	CodeGrognameTooLong  = 425
	CodeNoDefault        = 432
	CodeTimeout          = 481
	CodeReRegistration   = 482
	CodeInternal         = 484
	CodeBadState         = 500
	CodeUnknownCommand   = 510
	CodeBadArgs          = 511
	CodeLineTooLong      = 512
	CodeBadCont          = 520
	CodeDenied           = 530
	CodeEditLockMissing  = 532
	CodeDotDoubling      = 582
)

// accessCode returns the 23x response code that announces a.
func accessCode(a rgtpproto.Access) int {
	switch a {
	case rgtpproto.AccessNone:
		return CodeAccessNone
	case rgtpproto.AccessRead:
		return CodeAccessRead
	case rgtpproto.AccessWrite:
		return CodeAccessWrite
	case rgtpproto.AccessEdit:
		return CodeAccessEdit
	default:
		return CodeAccessNone
	}
}
