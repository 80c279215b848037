// rgtpd is the RGTP bulletin-board daemon: it loads configuration from
// the base directory's configs/ folder, wires up the session dependencies, and runs the TCP
// accept loop until told to stop. Grounded in cmd/vision3/main.go's
// startup shape (resolve base paths relative to the working directory,
// load config, open the data stores, then block serving) with the
// signal handling rewritten: the teacher blocks forever on select{} and
// relies on an external supervisor for restarts, whereas rgtpd handles
// its own SIGTERM/SIGUSR2/SIGPIPE directly per the specification's
// supervisor/worker model, adapted to a single re-exec'ing process
// since Go has no fork.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/stlalpha/rgtpd/internal/idalloc"
	"github.com/stlalpha/rgtpd/internal/registration"
	"github.com/stlalpha/rgtpd/internal/rgtpconfig"
	"github.com/stlalpha/rgtpd/internal/rgtpindex"
	"github.com/stlalpha/rgtpd/internal/rgtplog"
	"github.com/stlalpha/rgtpd/internal/rgtpserver"
	"github.com/stlalpha/rgtpd/internal/rgtpsession"
	"github.com/stlalpha/rgtpd/internal/secretseed"
	"github.com/stlalpha/rgtpd/internal/spool"
	"github.com/stlalpha/rgtpd/internal/userdb"
)

// debugCounter implements flag.Value so repeated -debug flags count,
// matching spec.md's "-debug (repeatable; first level enables debug
// mode, second level suppresses stderr rebinding)".
type debugCounter int

func (d *debugCounter) String() string { return strconv.Itoa(int(*d)) }
func (d *debugCounter) IsBoolFlag() bool { return true }
func (d *debugCounter) Set(string) error {
	*d++
	return nil
}

func main() {
	var (
		port     int
		master   int
		debug    debugCounter
		basePath string
	)
	flag.IntVar(&port, "port", 0, "listen port (overrides configs/config.json listenAddr); 0 uses the config value")
	flag.IntVar(&master, "master", -1, "take over an already-open listening socket at this file descriptor (used for hot restart)")
	flag.Var(&debug, "debug", "enable debug logging; repeat to also enable supertrace")
	flag.StringVar(&basePath, "base", "", "base directory holding configs/ and spool/; defaults to the working directory")
	flag.Parse()

	rgtplog.SetFlags()
	if debug >= 1 {
		rgtplog.DebugEnabled = true
	}
	if debug >= 2 {
		rgtplog.SupertraceEnabled = true
	}

	if basePath == "" {
		wd, err := os.Getwd()
		if err != nil {
			rgtplog.Fatalf("getwd: %v", err)
		}
		basePath = wd
	}
	configDir := filepath.Join(basePath, "configs")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		rgtplog.Fatalf("creating config directory %s: %v", configDir, err)
	}

	watcher, err := rgtpconfig.NewWatcher(configDir)
	if err != nil {
		rgtplog.Fatalf("loading configuration: %v", err)
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	listenAddr := cfg.ListenAddr
	if port != 0 {
		listenAddr = fmt.Sprintf(":%d", port)
	}

	sp := spool.New(resolveSpoolRoot(basePath, cfg.SpoolRoot))
	if err := sp.EnsureDirs(); err != nil {
		rgtplog.Fatalf("preparing spool at %s: %v", sp.Root, err)
	}

	db, err := userdb.Open(sp.UserDatabase(), cfg.UserDBSlots)
	if err != nil {
		rgtplog.Fatalf("opening user database: %v", err)
	}

	deps := &rgtpsession.Deps{
		Spool:    sp,
		UserDB:   db,
		Index:    rgtpindex.Open(sp.Index()),
		Sequence: idalloc.NewSequenceAllocator(sp.Sequence()),
		ItemIDs:  idalloc.NewItemIDAllocator(sp.IDArbiter()),
		Seed:     secretseed.New(sp.SecretSeed(), cfg.SecretSeedLowWater, cfg.SecretSeedWarn),
		Mailer:   registration.Mailer{Path: cfg.MailerPath},
		DiffExe:  cfg.DiffPath,
		Config:   watcher,
	}
	deps.Shutdown = func() {
		if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
			rgtplog.Errorf("KILL: signalling self: %v", err)
		}
	}
	deps.Restart = func() {
		if err := syscall.Kill(os.Getpid(), syscall.SIGUSR2); err != nil {
			rgtplog.Errorf("KILR: signalling self: %v", err)
		}
	}

	srv, err := rgtpserver.New(rgtpserver.Config{
		Addr:           listenAddr,
		SessionHandler: rgtpserver.NewSessionHandler(deps),
		MaxConnections: cfg.MaxConnections,
	})
	if err != nil {
		rgtplog.Fatalf("configuring server: %v", err)
	}

	var inherited net.Listener
	if master >= 0 {
		inherited, err = net.FileListener(os.NewFile(uintptr(master), "rgtpd-inherited-listener"))
		if err != nil {
			rgtplog.Fatalf("taking over inherited listener fd %d: %v", master, err)
		}
		rgtplog.Infof("inherited listening socket from fd %d", master)
	}
	if err := srv.Listen(inherited); err != nil {
		rgtplog.Fatalf("%v", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	runSignalLoop(srv)

	if err := <-serveErr; err != nil {
		rgtplog.Fatalf("accept loop: %v", err)
	}
}

// resolveSpoolRoot joins a relative config SpoolRoot against basePath,
// leaving an absolute path untouched.
func resolveSpoolRoot(basePath, spoolRoot string) string {
	if filepath.IsAbs(spoolRoot) {
		return spoolRoot
	}
	return filepath.Join(basePath, spoolRoot)
}

// runSignalLoop blocks handling SIGTERM (clean shutdown) and SIGUSR2
// (hot restart) until one of them tells the process to exit, then
// returns so the caller can drain the accept loop's error channel.
// SIGPIPE is also registered: Go's runtime already discards it for
// socket writes, but a worker spawned under a pipe-based supervisor may
// still receive one on stdout/stderr, so it's handled explicitly and
// ignored rather than left to the default terminate-the-process action.
// SIGALRM has no handler here; per §5, timeout suspension points use
// net.Conn.SetReadDeadline and context cancellation instead of an
// alarm-driven fd close.
func runSignalLoop(srv *rgtpserver.Server) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGUSR2, syscall.SIGPIPE, syscall.SIGINT)
	defer signal.Stop(sigs)

	for sig := range sigs {
		switch sig {
		case syscall.SIGPIPE:
			rgtplog.Warnf("received SIGPIPE, ignoring")
			continue
		case syscall.SIGTERM, syscall.SIGINT:
			rgtplog.Infof("received %s, shutting down", sig)
			srv.Close()
			return
		case syscall.SIGUSR2:
			rgtplog.Infof("received SIGUSR2, attempting hot restart")
			if err := reexecWithInheritedListener(srv); err != nil {
				rgtplog.Errorf("hot restart failed, continuing to serve: %v", err)
				continue
			}
			srv.Close()
			return
		}
	}
}

// stripMasterFlag drops any existing "-master" / "-master=N" / "-master N"
// from args, so the re-exec below can append a fresh one pointing at
// the newly inherited descriptor without colliding with a stale value.
func stripMasterFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-master" || a == "--master":
			i++ // also skip its value
		case len(a) > 8 && a[:8] == "-master=":
		case len(a) > 9 && a[:9] == "--master=":
		default:
			out = append(out, a)
		}
	}
	return out
}

// reexecWithInheritedListener spawns a replacement process carrying the
// current listening socket as an inherited file descriptor and passes
// it back via -master, the Go equivalent of the historical
// supervisor's "queue a graceful re-exec on SIGUSR2" behavior — new
// connections are accepted by the child while in-flight sessions in
// this process finish undisturbed.
func reexecWithInheritedListener(srv *rgtpserver.Server) error {
	ln := srv.Listener()
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("listener is not a *net.TCPListener, can't extract its descriptor")
	}
	file, err := tcpLn.File()
	if err != nil {
		return fmt.Errorf("extracting listener file descriptor: %w", err)
	}
	defer file.Close()

	args := stripMasterFlag(os.Args[1:])
	args = append(args, "-master", "3")

	cmd := exec.CommandContext(context.Background(), os.Args[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{file}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting replacement process: %w", err)
	}
	rgtplog.Infof("started replacement process pid %d", cmd.Process.Pid)
	go func() {
		if err := cmd.Wait(); err != nil {
			rgtplog.Warnf("replacement process exited: %v", err)
		}
	}()
	// Give the child a moment to start listening before this process
	// stops accepting, so there's no gap in service.
	time.Sleep(200 * time.Millisecond)
	return nil
}
