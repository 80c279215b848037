// Package editlog appends human-readable records of every EDCF
// (edit/withdraw/MOTD) event to the spool's append-only edit log.
// Grounded in internal/rgtplock for the append's cross-process safety,
// the same posture the teacher's own append-only log files
// (internal/configtool's audit logs) take toward concurrent writers.
package editlog

import (
	"fmt"
	"os"
	"time"

	"github.com/stlalpha/rgtpd/internal/rgtplock"
)

// Target names what was edited, for the log line's leading label.
type Target int

const (
	TargetItem Target = iota
	TargetIndex
)

func (t Target) label(id string) string {
	if t == TargetIndex {
		return "Index"
	}
	return fmt.Sprintf("Item %s", id)
}

// Action names what happened to Target.
type Action string

const (
	ActionEdited    Action = "edited"
	ActionWithdrawn Action = "withdrawn"
)

// Append writes one edit-log entry under an exclusive lock on path:
//
//	Item <id>|Index edited/withdrawn by <userid> at <date> (#<seq>):
//	<reason>
//	<blank line>
func Append(path string, target Target, itemID string, action Action, userid string, at time.Time, seq uint32, reason string) error {
	line := fmt.Sprintf("%s %s by %s at %s (#%d):\n%s\n\n",
		target.label(itemID), action, userid, at.UTC().Format(time.RFC1123), seq, reason)

	return rgtplock.WithLock(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644, rgtplock.Write, func(f *os.File) error {
		_, err := f.WriteString(line)
		return err
	})
}
