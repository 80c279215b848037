package editlog

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/stlalpha/rgtpd/internal/rgtplock"
)

// diffTimeout bounds how long the external diff utility is given to
// run; it is a subprocess invocation, not a blocking lock acquisition,
// so it gets a hard deadline rather than the spool's "unbounded,
// interruptible" lock-wait semantics.
const diffTimeout = 10 * time.Second

// AppendDiff runs diffExe (the external unified-diff utility) against
// oldContent and newContent, and appends its output to editedPath under
// an exclusive lock. Temp files holding the two sides are named with a
// random uuid so concurrent edits on different items never collide,
// the same collision-avoidance the teacher reaches for when it needs an
// unguessable scratch name (internal/configtool's temp file naming via
// google/uuid).
func AppendDiff(editedPath, diffExe, tmpDir string, oldContent, newContent []byte) error {
	oldPath, err := writeTemp(tmpDir, "old", oldContent)
	if err != nil {
		return err
	}
	defer os.Remove(oldPath)

	newPath, err := writeTemp(tmpDir, "new", newContent)
	if err != nil {
		return err
	}
	defer os.Remove(newPath)

	ctx, cancel := context.WithTimeout(context.Background(), diffTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, diffExe, "-u", oldPath, newPath)
	output, err := cmd.Output()
	// diff exits 1 when the inputs differ, which is the expected case
	// here; only treat it as a failure if the process couldn't run at
	// all or exited with something other than 0 or 1.
	if exitErr, ok := err.(*exec.ExitError); ok {
		if exitErr.ExitCode() > 1 {
			return fmt.Errorf("editlog: diff exited %d: %s", exitErr.ExitCode(), exitErr.Stderr)
		}
	} else if err != nil {
		return fmt.Errorf("editlog: running diff: %w", err)
	}

	return rgtplock.WithLock(editedPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644, rgtplock.Write, func(f *os.File) error {
		_, err := f.Write(output)
		return err
	})
}

func writeTemp(dir, prefix string, content []byte) (string, error) {
	name := fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", err
	}
	return path, nil
}
