package rgtpsession

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stlalpha/rgtpd/internal/editlog"
	"github.com/stlalpha/rgtpd/internal/itemstore"
	"github.com/stlalpha/rgtpd/internal/rgtpindex"
	"github.com/stlalpha/rgtpd/internal/rgtplock"
	"github.com/stlalpha/rgtpd/internal/rgtplog"
)

// handleDIFF streams the accumulated diff log (<item>.edited or
// index.edited) of the item or index currently open for editing. The
// pending, not yet committed change is not included.
func handleDIFF(s *Session, rest string) error {
	var path string
	switch {
	case s.State.EditingItemID != "":
		path = s.deps.Spool.ItemEdited(s.State.EditingItemID)
	case s.State.EditingIndex:
		path = s.deps.Spool.IndexEdited()
	default:
		return protoErr(CodeBadState, "No edit in progress")
	}

	data, err := readWholeFile(path)
	if err != nil {
		return internalErr(err)
	}
	return s.ReplyPayload(CodeMultiline, "Diff", splitLines(data))
}

// handleEDLK acquires the spool-wide edit lock, recording the holding
// userid in the lock file so a contending session can report it.
func handleEDLK(s *Session, rest string) error {
	if s.State.EditLockHeld {
		return protoErr(CodeBadState, "Edit lock already held")
	}

	f, err := os.OpenFile(s.deps.Spool.EditLock(), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return internalErr(err)
	}

	if err := rgtplock.TryLock(f, rgtplock.Write); err != nil {
		if errors.Is(err, rgtplock.ErrWouldBlock) {
			holder := readLockHolder(f)
			f.Close()
			return refusalErr(CodeEditorLocked, "Edit lock held by %s", holder)
		}
		f.Close()
		return internalErr(err)
	}

	if err := f.Truncate(0); err != nil {
		rgtplock.CloseWithUnlock(f)
		return internalErr(err)
	}
	if _, err := f.WriteAt([]byte(s.State.UserID), 0); err != nil {
		rgtplock.CloseWithUnlock(f)
		return internalErr(err)
	}

	s.editLockFile = f
	s.State.EditLockHeld = true
	return s.Reply(CodeAck, "Edit lock acquired")
}

func readLockHolder(f *os.File) string {
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return "unknown"
	}
	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(buf), "\x00 ")
}

// handleEDUL releases the edit lock acquired by EDLK.
func handleEDUL(s *Session, rest string) error {
	if !s.State.EditLockHeld || s.editLockFile == nil {
		return protoErr(CodeEditLockMissing, "No edit lock held")
	}
	rgtplock.CloseWithUnlock(s.editLockFile)
	s.editLockFile = nil
	s.State.EditLockHeld = false
	return s.Reply(CodeAck, "Edit lock released")
}

// handleEDIT opens an item for editing: the item is locked for the
// duration of the edit, its current content streamed to the client,
// and its length recorded as the boundary EDCF must respect.
func handleEDIT(s *Session, rest string) error {
	if !s.State.EditLockHeld {
		return protoErr(CodeEditLockMissing, "Edit lock required")
	}
	if s.State.EditingItemID != "" || s.State.EditingIndex {
		return protoErr(CodeBadState, "An edit is already in progress")
	}
	id, ok := normalizeItemID(strings.TrimSpace(rest))
	if !ok {
		return protoErr(CodeMalformed, "Bad item id %q", rest)
	}

	f, err := os.OpenFile(s.deps.Spool.Item(id), os.O_RDWR, 0644)
	if os.IsNotExist(err) {
		return refusalErr(CodeNotFound, "No such item %s", id)
	}
	if err != nil {
		return internalErr(err)
	}
	if err := rgtplock.Lock(f, rgtplock.Write); err != nil {
		f.Close()
		return internalErr(err)
	}

	content, lenBefore, err := itemstore.BeginEdit(f)
	if err != nil {
		rgtplock.CloseWithUnlock(f)
		return internalErr(err)
	}

	s.editItemFile = f
	s.editOldContent = content
	s.State.EditingItemID = id
	s.State.LenBeforeEdit = lenBefore
	return s.ReplyPayload(CodeMultiline, fmt.Sprintf("Editing %s", id), splitLines(content))
}

// handleEDIX opens the index for editing, the index-wide counterpart
// of EDIT.
func handleEDIX(s *Session, rest string) error {
	if !s.State.EditLockHeld {
		return protoErr(CodeEditLockMissing, "Edit lock required")
	}
	if s.State.EditingItemID != "" || s.State.EditingIndex {
		return protoErr(CodeBadState, "An edit is already in progress")
	}

	f, err := os.OpenFile(s.deps.Spool.Index(), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return internalErr(err)
	}
	if err := rgtplock.Lock(f, rgtplock.Write); err != nil {
		f.Close()
		return internalErr(err)
	}

	content, err := readFileFull(f)
	if err != nil {
		rgtplock.CloseWithUnlock(f)
		return internalErr(err)
	}

	s.editIndexFile = f
	s.editOldContent = content
	s.State.EditingIndex = true
	s.State.LenBeforeEdit = int64(len(content))
	return s.ReplyPayload(CodeMultiline, "Editing index", splitLines(content))
}

// handleEDAB discards an in-progress EDIT/EDIX without committing
// anything.
func handleEDAB(s *Session, rest string) error {
	if s.State.EditingItemID == "" && !s.State.EditingIndex {
		return protoErr(CodeBadState, "No edit in progress")
	}
	s.discardEditTarget()
	return s.Reply(CodeAck, "Edit aborted")
}

func (s *Session) discardEditTarget() {
	if s.editItemFile != nil {
		rgtplock.CloseWithUnlock(s.editItemFile)
		s.editItemFile = nil
	}
	if s.editIndexFile != nil {
		rgtplock.CloseWithUnlock(s.editIndexFile)
		s.editIndexFile = nil
	}
	s.State.EditingItemID = ""
	s.State.EditingIndex = false
	s.State.LenBeforeEdit = 0
	s.editOldContent = nil
	s.State.Staging = nil
}

// handleEDCF commits (or, with no staged replacement, withdraws) the
// item or index currently open for editing, always leaving one line
// in the edit log.
func handleEDCF(s *Session, rest string) error {
	reason := strings.TrimSpace(rest)
	switch {
	case s.State.EditingIndex:
		return commitIndexEdit(s, reason)
	case s.State.EditingItemID != "":
		return commitItemEdit(s, reason)
	default:
		return protoErr(CodeBadState, "No edit in progress")
	}
}

func commitIndexEdit(s *Session, reason string) error {
	if s.State.Staging == nil {
		return refusalErr(CodeBadArgs, "No replacement index data staged")
	}
	lines, err := s.State.Staging.Finish()
	if err != nil {
		return mapStagingError(err)
	}

	records := make([]rgtpindex.Record, 0, len(lines))
	for _, l := range lines {
		rec, err := rgtpindex.Decode([]byte(l + "\n"))
		if err != nil {
			return protoErr(CodeMalformed, "%v", err)
		}
		records = append(records, rec)
	}

	keep := int(s.State.LenBeforeEdit) / rgtpindex.RecordLen
	if err := rgtpindex.RewriteTail(s.editIndexFile, keep, records); err != nil {
		return internalErr(err)
	}
	newContent, err := readFileFull(s.editIndexFile)
	if err != nil {
		return internalErr(err)
	}

	seq, err := s.deps.Sequence.Next()
	if err != nil {
		return internalErr(err)
	}
	if err := editlog.AppendDiff(s.deps.Spool.IndexEdited(), s.deps.DiffExe, s.deps.Spool.TmpDir(), s.editOldContent, newContent); err != nil {
		rgtplog.Errorf("rgtpsession: index diff failed: %v", err)
	}
	if err := editlog.Append(s.deps.Spool.EditLog(), editlog.TargetIndex, "", editlog.ActionEdited, s.State.UserID, time.Now(), uint32(seq), reason); err != nil {
		return internalErr(err)
	}

	s.discardEditTarget()
	return s.Reply(CodePosted, "%08X Edit complete", seq)
}

func commitItemEdit(s *Session, reason string) error {
	id := s.State.EditingItemID

	if s.State.Staging == nil {
		return withdrawItem(s, id, reason)
	}

	lines, err := s.State.Staging.Finish()
	if err != nil {
		return mapStagingError(err)
	}
	var newData []byte
	if len(lines) > 0 {
		newData = []byte(strings.Join(lines, "\n") + "\n")
	}

	seq, err := s.deps.Sequence.Next()
	if err != nil {
		return internalErr(err)
	}
	if err := itemstore.ApplyEdit(s.editItemFile, s.State.LenBeforeEdit, uint32(seq), newData); err != nil {
		return internalErr(err)
	}
	newContent, err := itemstore.ReadAll(s.editItemFile)
	if err != nil {
		return internalErr(err)
	}

	if err := editlog.AppendDiff(s.deps.Spool.ItemEdited(id), s.deps.DiffExe, s.deps.Spool.TmpDir(), s.editOldContent, newContent); err != nil {
		rgtplog.Errorf("rgtpsession: item diff failed: %v", err)
	}
	if err := editlog.Append(s.deps.Spool.EditLog(), editlog.TargetItem, id, editlog.ActionEdited, s.State.UserID, time.Now(), uint32(seq), reason); err != nil {
		return internalErr(err)
	}

	s.discardEditTarget()
	return s.Reply(CodePosted, "%08X Edit complete", seq)
}

func withdrawItem(s *Session, id, reason string) error {
	if s.editItemFile != nil {
		rgtplock.CloseWithUnlock(s.editItemFile)
		s.editItemFile = nil
	}

	var oldIndex, newIndex []byte
	if err := s.deps.Index.WithWriteLock(func(f *os.File) error {
		content, err := readFileFull(f)
		if err != nil {
			return err
		}
		oldIndex = content
		if err := rgtpindex.RewriteRemoving(f, id); err != nil {
			return err
		}
		newIndex, err = readFileFull(f)
		return err
	}); err != nil {
		return internalErr(err)
	}
	if err := itemstore.Withdraw(s.deps.Spool.Item(id), s.deps.Spool.ItemWithdrawn(id)); err != nil {
		return internalErr(err)
	}

	seq, err := s.deps.Sequence.Next()
	if err != nil {
		return internalErr(err)
	}
	if err := editlog.AppendDiff(s.deps.Spool.IndexEdited(), s.deps.DiffExe, s.deps.Spool.TmpDir(), oldIndex, newIndex); err != nil {
		rgtplog.Errorf("rgtpsession: index diff failed: %v", err)
	}
	if err := editlog.AppendDiff(s.deps.Spool.ItemEdited(id), s.deps.DiffExe, s.deps.Spool.TmpDir(), s.editOldContent, nil); err != nil {
		rgtplog.Errorf("rgtpsession: item diff failed: %v", err)
	}
	if err := editlog.Append(s.deps.Spool.EditLog(), editlog.TargetItem, id, editlog.ActionWithdrawn, s.State.UserID, time.Now(), uint32(seq), reason); err != nil {
		return internalErr(err)
	}

	s.State.EditingItemID = ""
	s.State.LenBeforeEdit = 0
	s.editOldContent = nil
	s.State.Staging = nil
	return s.Reply(CodePosted, "%08X Withdraw complete", seq)
}

func readFileFull(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}
