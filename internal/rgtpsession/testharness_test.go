package rgtpsession

import (
	"bytes"
	"crypto/rand"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stlalpha/rgtpd/internal/idalloc"
	"github.com/stlalpha/rgtpd/internal/registration"
	"github.com/stlalpha/rgtpd/internal/rgtpindex"
	"github.com/stlalpha/rgtpd/internal/secretseed"
	"github.com/stlalpha/rgtpd/internal/spool"
	"github.com/stlalpha/rgtpd/internal/userdb"
)

// newTestDeps builds a fully wired Deps rooted at a fresh temp spool,
// the same collaborators cmd/rgtpd assembles at startup.
func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	root := t.TempDir()
	sp := spool.New(root)
	if err := sp.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	db, err := userdb.Open(sp.UserDatabase(), 16)
	if err != nil {
		t.Fatal(err)
	}

	seedBytes := make([]byte, 256)
	if _, err := rand.Read(seedBytes); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sp.SecretSeed(), seedBytes, 0600); err != nil {
		t.Fatal(err)
	}

	return &Deps{
		Spool:    sp,
		UserDB:   db,
		Index:    rgtpindex.Open(sp.Index()),
		Sequence: idalloc.NewSequenceAllocator(sp.Sequence()),
		ItemIDs:  idalloc.NewItemIDAllocator(sp.IDArbiter()),
		Seed:     secretseed.New(sp.SecretSeed(), 0, 0),
		Mailer:   registration.Mailer{Path: noopMailer(t)},
		DiffExe:  "",
	}
}

// noopMailer writes a small shell script that exits 0 without reading
// its stdin, standing in for a working mailer subprocess.
func noopMailer(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping")
	}
	path := filepath.Join(t.TempDir(), "mailer.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\ncat >/dev/null\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// fakeConn is an in-memory Conn for handler tests that drive a command
// directly without running the full dispatch loop: in holds bytes the
// handler will read, out collects whatever it writes back.
type fakeConn struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func newFakeConn(script string) *fakeConn {
	return &fakeConn{in: bytes.NewBufferString(script), out: &bytes.Buffer{}}
}

func (c *fakeConn) Read(p []byte) (int, error)        { return c.in.Read(p) }
func (c *fakeConn) Write(p []byte) (int, error)       { return c.out.Write(p) }
func (c *fakeConn) SetReadDeadline(t time.Time) error { return nil }
func (c *fakeConn) Close() error                      { return nil }

func (c *fakeConn) responses() []string {
	lines := strings.Split(strings.TrimRight(c.out.String(), "\r\n"), "\r\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}

// newTestSession returns a Session over a fakeConn preloaded with
// script (CRLF-terminated lines a handler will read via s.r).
func newTestSession(t *testing.T, deps *Deps, script string) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn(script)
	s := New(deps, conn, net.ParseIP("198.51.100.7"), 4242)
	return s, conn
}
