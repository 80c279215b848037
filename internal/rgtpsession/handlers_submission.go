package rgtpsession

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stlalpha/rgtpd/internal/itemstore"
	"github.com/stlalpha/rgtpd/internal/rgtpindex"
	"github.com/stlalpha/rgtpd/internal/rgtpproto"
	"github.com/stlalpha/rgtpd/internal/rgtpwire"
	"github.com/stlalpha/rgtpd/internal/staging"
)

const subjectMaxLen = 94 // the index record's fixed subject field width

// stagingModeFor picks the staging.Mode implied by the session's
// current edit sub-state: DATA's meaning always follows from whatever
// EDIT/EDIX left behind.
func stagingModeFor(s *Session) staging.Mode {
	switch {
	case s.State.EditingIndex:
		return staging.ModeIndexEdit
	case s.State.EditingItemID != "":
		return staging.ModeItemEdit
	default:
		return staging.ModeContribution
	}
}

// handleDATA collects one dot-terminated payload under DataTimeout and
// validates it against whatever staging mode the session is currently
// in, leaving the result in State.Staging for NEWI/REPL/CONT/EDCF to
// consume.
func handleDATA(s *Session, rest string) error {
	buf := staging.NewBuffer(stagingModeFor(s))

	if err := s.Reply(CodeDataPlease, "Send data, end with '.' alone on a line"); err != nil {
		return err
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(rgtpproto.DataTimeout)); err != nil {
		return internalErr(err)
	}

	var stageErr error
	for {
		line, err := s.r.ReadLine()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return fatalErr(CodeTimeout, "Timed out waiting for data", err)
			}
			return fatalErr(CodeTimeout, "Connection lost while reading data", err)
		}
		if line == rgtpwire.Terminator {
			break
		}
		if stageErr != nil {
			continue // already failed; drain the rest so the wire stays in sync
		}
		if err := buf.AddLine(rgtpwire.UnstuffLine(line)); err != nil {
			stageErr = err
		}
	}
	if stageErr != nil {
		return mapStagingError(stageErr)
	}

	if _, err := buf.Finish(); err != nil {
		return mapStagingError(err)
	}
	s.State.Staging = buf
	return s.Reply(CodeDataAccepted, "Data accepted")
}

func mapStagingError(err error) error {
	switch {
	case errors.Is(err, staging.ErrLineTooLong):
		return protoErr(CodeTooLong, "Line exceeds the maximum length")
	case errors.Is(err, staging.ErrPayloadTooLong):
		return refusalErr(CodeTooLong, "Payload exceeds the size limit")
	case errors.Is(err, staging.ErrMissingSubject):
		return refusalErr(CodeBadArgs, "Missing Subject: line")
	default:
		return protoErr(CodeMalformed, "%v", err)
	}
}

func displayName(grogname, userid string) string {
	if grogname == "" {
		return userid
	}
	return grogname
}

// estimateSectionLen bounds how many bytes appending headers+body as a
// new section would add, the same figure OpenForReply checks against
// ItemMaxLen before anything is written.
func estimateSectionLen(headers, body []string) int {
	total := len(itemstore.SectionMarker(0, 0)) + 1 + 1 // marker line + blank line
	for _, h := range headers {
		total += len(h) + 1
	}
	for _, l := range body {
		total += len(l) + 1
	}
	return total
}

// handleNEWI commits a staged contribution as a brand-new item.
func handleNEWI(s *Session, rest string) error {
	if s.State.EditingItemID != "" || s.State.EditingIndex {
		return protoErr(CodeBadState, "An edit is in progress")
	}
	if s.State.Staging == nil {
		return protoErr(CodeBadState, "No data staged")
	}
	subject := strings.TrimSpace(rest)
	if subject == "" {
		return refusalErr(CodeNoDefault, "Subject required")
	}
	if len(subject) > subjectMaxLen {
		return refusalErr(CodeSubjectTooLong, "Subject too long")
	}

	body, err := s.State.Staging.Finish()
	if err != nil {
		return mapStagingError(err)
	}
	grogname := s.State.Staging.Grogname()
	timestamp := uint32(time.Now().Unix())
	headers := []string{
		fmt.Sprintf("From: %s", displayName(grogname, s.State.UserID)),
		fmt.Sprintf("Subject: %s", subject),
	}

	var seq uint64
	var id string
	err = s.deps.Index.WithWriteLock(func(f *os.File) error {
		var e error
		seq, e = s.deps.Sequence.Next()
		if e != nil {
			return e
		}
		id, e = s.deps.ItemIDs.Mint()
		if e != nil {
			return e
		}
		if e := itemstore.New(s.deps.Spool.Item(id), uint32(seq), timestamp, headers, body); e != nil {
			return e
		}
		return rgtpindex.Append(f, rgtpindex.Record{
			Sequence: uint32(seq), Timestamp: timestamp, ItemID: id,
			UserID: s.State.UserID, Type: rgtpindex.TypeItem, Subject: subject,
		})
	})
	if errors.Is(err, itemstore.ErrTooFull) {
		return refusalErr(CodeTooLong, "Item too long")
	}
	if err != nil {
		return internalErr(err)
	}

	s.State.Staging = nil
	return s.Reply(CodePosted, "%08X %s posted", seq, id)
}

// handleREPL appends a staged contribution as a reply to an existing
// item, or, if it would overflow ItemMaxLen, refuses and arms
// may-continue so a subsequent CONT can pick it up.
func handleREPL(s *Session, rest string) error {
	if s.State.EditingItemID != "" || s.State.EditingIndex {
		return protoErr(CodeBadState, "An edit is in progress")
	}
	if s.State.Staging == nil {
		return protoErr(CodeBadState, "No data staged")
	}
	id, ok := normalizeItemID(strings.TrimSpace(rest))
	if !ok {
		return protoErr(CodeMalformed, "Bad item id %q", rest)
	}

	body, err := s.State.Staging.Finish()
	if err != nil {
		return mapStagingError(err)
	}
	grogname := s.State.Staging.Grogname()
	timestamp := uint32(time.Now().Unix())
	headers := []string{fmt.Sprintf("From: %s", displayName(grogname, s.State.UserID))}
	replyLen := estimateSectionLen(headers, body)

	var seq uint64
	err = s.deps.Index.WithWriteLock(func(idxFile *os.File) error {
		return itemstore.WithWriteLock(s.deps.Spool.Item(id), func(f *os.File) error {
			if _, _, e := itemstore.OpenForReply(f, replyLen); e != nil {
				return e
			}
			var e error
			seq, e = s.deps.Sequence.Next()
			if e != nil {
				return e
			}
			if e := itemstore.AppendReply(f, uint32(seq), timestamp, headers, body); e != nil {
				return e
			}
			return rgtpindex.Append(idxFile, rgtpindex.Record{
				Sequence: uint32(seq), Timestamp: timestamp, ItemID: id,
				UserID: s.State.UserID, Type: rgtpindex.TypeReply,
			})
		})
	})

	switch {
	case errors.Is(err, itemstore.ErrAlreadyContinued):
		return refusalErr(CodeAlreadyContinued, "Item has already been continued")
	case errors.Is(err, itemstore.ErrTooFull):
		s.State.MayContinue = true
		s.State.SavedItemID = id
		s.State.Staging = nil
		return refusalErr(CodeTooLong, "Reply is too long; use CONT to continue it as a new item")
	case os.IsNotExist(err):
		return refusalErr(CodeNotFound, "No such item %s", id)
	case err != nil:
		return internalErr(err)
	}

	s.State.Staging = nil
	return s.Reply(CodePosted, "%08X Reply posted", seq)
}

// handleCONT turns a reply that overflowed its target item into a
// fresh item, marking the old item as continued into the new one.
func handleCONT(s *Session, rest string) error {
	if !s.State.MayContinue {
		return protoErr(CodeBadCont, "No reply is pending continuation")
	}
	if s.State.Staging == nil {
		return protoErr(CodeBadState, "No data staged")
	}
	subject := strings.TrimSpace(rest)
	if subject == "" {
		return refusalErr(CodeNoDefault, "Subject required")
	}
	if len(subject) > subjectMaxLen {
		return refusalErr(CodeSubjectTooLong, "Subject too long")
	}

	body, err := s.State.Staging.Finish()
	if err != nil {
		return mapStagingError(err)
	}
	grogname := s.State.Staging.Grogname()
	oldID := s.State.SavedItemID
	timestamp := uint32(time.Now().Unix())
	headers := []string{
		fmt.Sprintf("From: %s", displayName(grogname, s.State.UserID)),
		fmt.Sprintf("Subject: %s", subject),
	}

	var seq uint64
	var newID string
	err = s.deps.Index.WithWriteLock(func(idxFile *os.File) error {
		var e error
		seq, e = s.deps.Sequence.Next()
		if e != nil {
			return e
		}
		newID, e = s.deps.ItemIDs.Mint()
		if e != nil {
			return e
		}
		if e := itemstore.New(s.deps.Spool.Item(newID), uint32(seq), timestamp, headers, body); e != nil {
			return e
		}
		e = itemstore.WithWriteLock(s.deps.Spool.Item(oldID), func(f *os.File) error {
			return itemstore.MarkContinued(f, newID)
		})
		if e != nil {
			return e
		}
		if e := rgtpindex.Append(idxFile, rgtpindex.Record{
			Sequence: uint32(seq), Timestamp: timestamp, ItemID: newID,
			UserID: s.State.UserID, Type: rgtpindex.TypeItem, Subject: subject,
		}); e != nil {
			return e
		}
		return rgtpindex.Append(idxFile, rgtpindex.Record{
			Sequence: uint32(seq), Timestamp: timestamp, ItemID: newID,
			UserID: s.State.UserID, Type: rgtpindex.TypeFromContinue,
			Subject: fmt.Sprintf("Continued from %s", oldID),
		})
	})
	if err != nil {
		return internalErr(err)
	}

	s.State.MayContinue = false
	s.State.SavedItemID = ""
	s.State.Staging = nil
	return s.Reply(CodePosted, "%08X %s Continuation item inserted and index updated", seq, newID)
}
