package rgtpsession

import (
	"github.com/stlalpha/rgtpd/internal/idalloc"
	"github.com/stlalpha/rgtpd/internal/registration"
	"github.com/stlalpha/rgtpd/internal/rgtpconfig"
	"github.com/stlalpha/rgtpd/internal/rgtpindex"
	"github.com/stlalpha/rgtpd/internal/secretseed"
	"github.com/stlalpha/rgtpd/internal/spool"
	"github.com/stlalpha/rgtpd/internal/userdb"
)

// Deps bundles every storage and config collaborator a Session needs.
// It is built once at startup (see cmd/rgtpd) and shared read-only
// across every connection's goroutine — the storage packages
// themselves own all cross-process locking, so nothing here needs its
// own mutex.
type Deps struct {
	Spool    *spool.Layout
	UserDB   *userdb.DB
	Index    *rgtpindex.Index
	Sequence *idalloc.SequenceAllocator
	ItemIDs  *idalloc.ItemIDAllocator
	Seed     *secretseed.Pool
	Mailer   registration.Mailer
	DiffExe  string
	Config   *rgtpconfig.Watcher

	// Shutdown and Restart are wired by cmd/rgtpd to deliver SIGTERM and
	// SIGUSR2 to the running process, the Go equivalent of the
	// historical daemon's KILL/KILR sending those signals to its
	// supervising parent. Nil in tests that never register them, in
	// which case KILL/KILR fail with a 484 internal error and the
	// session closes.
	Shutdown func()
	Restart  func()
}
