// Package spool resolves the well-known file paths of an RGTP spool
// directory. Every other storage package is handed a path by the caller
// rather than knowing the spool layout itself; Layout is the one place
// that layout is written down.
package spool

import (
	"os"
	"path/filepath"
)

// Layout resolves spool-relative paths against a root directory.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) *Layout {
	return &Layout{Root: root}
}

func (l *Layout) Sequence() string      { return filepath.Join(l.Root, "sequence") }
func (l *Layout) IDArbiter() string     { return filepath.Join(l.Root, "idarbiter") }
func (l *Layout) Index() string         { return filepath.Join(l.Root, "index") }
func (l *Layout) ItemDir() string       { return filepath.Join(l.Root, "item") }
func (l *Layout) EditLock() string      { return filepath.Join(l.Root, "editlock") }
func (l *Layout) EditLog() string       { return filepath.Join(l.Root, "editlog") }
func (l *Layout) MOTD() string          { return filepath.Join(l.Root, "motd") }
func (l *Layout) SecretSeed() string    { return filepath.Join(l.Root, "secretseed") }
func (l *Layout) UserDatabase() string  { return filepath.Join(l.Root, "userdatabase") }
func (l *Layout) LogDir() string        { return filepath.Join(l.Root, "log") }
func (l *Layout) LogFile() string       { return filepath.Join(l.LogDir(), "log") }
func (l *Layout) TmpDir() string        { return filepath.Join(l.Root, "tmp") }

// Item returns the path of the item file named id.
func (l *Layout) Item(id string) string { return filepath.Join(l.ItemDir(), id) }

// ItemEdited returns the path of id's accumulated edit-diff log.
func (l *Layout) ItemEdited(id string) string { return l.Item(id) + ".edited" }

// ItemWithdrawn returns the path an item is renamed to when withdrawn,
// so the diff utility has something to compare the empty replacement
// against even after the live file is gone.
func (l *Layout) ItemWithdrawn(id string) string { return l.Item(id) + ".withdrawn" }

// IndexEdited returns the path of the index's accumulated edit-diff log.
func (l *Layout) IndexEdited() string { return filepath.Join(l.Root, "index.edited") }

// EnsureDirs creates the directories the spool needs (but not the files
// that live directly in them; those are created lazily by their owning
// package on first use).
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.Root, l.ItemDir(), l.LogDir(), l.TmpDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
