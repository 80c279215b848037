package rgtpsession

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/stlalpha/rgtpd/internal/itemstore"
	"github.com/stlalpha/rgtpd/internal/rgtpindex"
	"github.com/stlalpha/rgtpd/internal/rgtplock"
)

// handleELOG streams the spool's append-only edit log verbatim.
func handleELOG(s *Session, rest string) error {
	data, err := readWholeFile(s.deps.Spool.EditLog())
	if err != nil {
		return internalErr(err)
	}
	return s.ReplyPayload(CodeMultiline, "Edit log", splitLines(data))
}

// handleINDX renders every index record at or after the optional
// 8-hex-digit from= timestamp, or the whole index if none is given.
func handleINDX(s *Session, rest string) error {
	var from uint32
	if arg := strings.TrimSpace(rest); arg != "" {
		v, err := strconv.ParseUint(arg, 16, 32)
		if err != nil {
			return protoErr(CodeMalformed, "Bad timestamp %q", arg)
		}
		from = uint32(v)
	}

	var lines []string
	err := s.deps.Index.WithReadLock(func(f *os.File) error {
		n, err := rgtpindex.Count(f)
		if err != nil {
			return err
		}
		start := 0
		if from > 0 {
			idx, found, err := rgtpindex.SearchByTimestamp(f, from)
			if err != nil {
				return err
			}
			if !found {
				start = n
			} else {
				start = idx
			}
		}
		for i := start; i < n; i++ {
			rec, err := rgtpindex.ReadAt(f, i)
			if err != nil {
				return err
			}
			lines = append(lines, renderIndexLine(rec))
		}
		return nil
	})
	if err != nil {
		return internalErr(err)
	}
	return s.ReplyPayload(CodeMultiline, fmt.Sprintf("Index from %08X", from), lines)
}

// renderIndexLine renders r in the exact fixed-width text form stored
// on disk, minus the trailing newline, so it round-trips through
// EDIX/DATA unchanged.
func renderIndexLine(r rgtpindex.Record) string {
	enc, err := rgtpindex.Encode(r)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(string(enc[:]), "\n")
}

// handleITEM streams one item file's full content.
func handleITEM(s *Session, rest string) error {
	id, ok := normalizeItemID(strings.TrimSpace(rest))
	if !ok {
		return protoErr(CodeMalformed, "Bad item id %q", rest)
	}

	var content []byte
	err := itemstore.WithReadLock(s.deps.Spool.Item(id), func(f *os.File) error {
		data, err := itemstore.ReadAll(f)
		content = data
		return err
	})
	if os.IsNotExist(err) {
		return refusalErr(CodeNotFound, "No such item %s", id)
	}
	if err != nil {
		return internalErr(err)
	}
	return s.ReplyPayload(CodeMultiline, fmt.Sprintf("Item %s", id), splitLines(content))
}

// handleSTAT reports one item's status line without its body.
func handleSTAT(s *Session, rest string) error {
	id, ok := normalizeItemID(strings.TrimSpace(rest))
	if !ok {
		return protoErr(CodeMalformed, "Bad item id %q", rest)
	}

	var status itemstore.StatusLine
	err := itemstore.WithReadLock(s.deps.Spool.Item(id), func(f *os.File) error {
		head := make([]byte, itemstore.StatusLineLen)
		if _, err := f.ReadAt(head, 0); err != nil {
			return err
		}
		decoded, err := itemstore.Decode(head)
		status = decoded
		return err
	})
	if os.IsNotExist(err) {
		return refusalErr(CodeNotFound, "No such item %s", id)
	}
	if err != nil {
		return internalErr(err)
	}

	continuedIn := status.ContinuedIn
	if continuedIn == "" {
		continuedIn = "-"
	}
	return s.Reply(CodeStat, "%s seq=%08X continued-in=%s", id, status.Sequence, continuedIn)
}

// readWholeFile reads path under a shared lock, treating a missing
// file as empty content rather than an error.
func readWholeFile(path string) ([]byte, error) {
	var data []byte
	err := rgtplock.WithLock(path, os.O_RDONLY|os.O_CREATE, 0644, rgtplock.Read, func(f *os.File) error {
		content, err := io.ReadAll(f)
		data = content
		return err
	})
	return data, err
}
