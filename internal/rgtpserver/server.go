// Package rgtpserver implements the TCP accept loop: one goroutine per
// connection, handed off to an rgtpsession.Session. Grounded in the
// teacher's internal/telnetserver.Server (listen, accept, spawn a
// per-connection goroutine, recover from a panic in the handler so one
// bad connection can't take the process down) with the telnet
// negotiation step removed — RGTP has no option handshake — and a
// fd-takeover path added for hot restart, since rgtpd runs as a single
// long-lived daemon rather than the teacher's supervisor/worker pair.
package rgtpserver

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/stlalpha/rgtpd/internal/rgtplog"
	"github.com/stlalpha/rgtpd/internal/rgtpsession"
)

// SessionHandler is called with a freshly accepted connection's peer
// address; it constructs and runs an rgtpsession.Session.
type SessionHandler func(conn net.Conn, ip net.IP, port uint16)

// Config holds the accept loop's configuration.
type Config struct {
	Addr           string
	SessionHandler SessionHandler
	MaxConnections int // 0 means unlimited, mirrors rgtpconfig.Config.MaxConnections
}

// Server listens for TCP connections and dispatches each to a session
// handler on its own goroutine.
type Server struct {
	config   Config
	mu       sync.Mutex
	listener net.Listener
	active   int64
}

// New validates cfg and returns a Server that has not yet started
// listening.
func New(cfg Config) (*Server, error) {
	if cfg.SessionHandler == nil {
		return nil, fmt.Errorf("rgtpserver: session handler is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("rgtpserver: listen address is required")
	}
	return &Server{config: cfg}, nil
}

// Listen opens the listening socket, binding a fresh one unless
// inherited is non-nil — the hot-restart path, where cmd/rgtpd has
// already reconstructed the socket from an inherited file descriptor
// via net.FileListener.
func (s *Server) Listen(inherited net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inherited != nil {
		s.listener = inherited
		return nil
	}
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("rgtpserver: listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	return nil
}

// Listener returns the underlying net.Listener, for extracting the
// file descriptor ahead of a hot restart. Nil until Listen has run.
func (s *Server) Listener() net.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener
}

// Serve blocks accepting connections until the listener is closed.
// Returns nil on a clean shutdown (Close called), the accept error
// otherwise.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("rgtpserver: Serve called before Listen")
	}

	rgtplog.Infof("rgtpserver: listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.listener == nil
			s.mu.Unlock()
			if closed {
				return nil
			}
			rgtplog.Errorf("rgtpserver: accept error: %v", err)
			continue
		}

		if s.config.MaxConnections > 0 && atomic.LoadInt64(&s.active) >= int64(s.config.MaxConnections) {
			rgtplog.Warnf("rgtpserver: rejecting %s, at MaxConnections=%d", conn.RemoteAddr(), s.config.MaxConnections)
			conn.Close()
			continue
		}

		atomic.AddInt64(&s.active, 1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer atomic.AddInt64(&s.active, -1)

	remote := conn.RemoteAddr().String()
	defer func() {
		if r := recover(); r != nil {
			rgtplog.Errorf("rgtpserver: panic handling %s: %v", remote, r)
		}
		conn.Close()
	}()

	ip, port, err := splitHostPort(conn.RemoteAddr())
	if err != nil {
		rgtplog.Errorf("rgtpserver: can't parse peer address %s: %v", remote, err)
		return
	}

	s.config.SessionHandler(conn, ip, port)
}

// splitHostPort extracts the IP and numeric port rgtpsession.New wants
// out of a net.Addr; TCP connections always yield a *net.TCPAddr.
func splitHostPort(addr net.Addr) (net.IP, uint16, error) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, 0, fmt.Errorf("rgtpserver: unexpected address type %T", addr)
	}
	return tcpAddr.IP, uint16(tcpAddr.Port), nil
}

// ActiveSessions reports the current number of goroutines running a
// session, for admin/debug inspection.
func (s *Server) ActiveSessions() int64 {
	return atomic.LoadInt64(&s.active)
}

// Close stops accepting new connections; in-flight sessions run to
// completion on their own.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

// NewSessionHandler adapts rgtpsession.Deps into a SessionHandler,
// wiring each accepted connection into its own rgtpsession.Session.
func NewSessionHandler(deps *rgtpsession.Deps) SessionHandler {
	return func(conn net.Conn, ip net.IP, port uint16) {
		sess := rgtpsession.New(deps, conn, ip, port)
		sess.Run()
	}
}
