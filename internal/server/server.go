// Package server exposes a store.Store over a line-header-framed TCP
// protocol, grounded
// on the teacher's pkg/db/db.go (SimpleDb.handleConnection /
// handleOperation), generalized from its three operations (PUT, GET,
// DELETE) to add SCAN and STATS, and from the teacher's bare
// "ERROR: msg" response prefix to the same Key/Length-style header
// framing used on requests, so responses can carry arbitrarily large
// bodies (a scan result) without guessing a buffer size.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/duskdb/duskdb/internal/storeerrors"
	"github.com/duskdb/duskdb/internal/store"
)

// ErrServerClosed is returned by Start once Stop or Shutdown has been
// called.
var ErrServerClosed = errors.New("duskdb: server closed")

// Server accepts connections and dispatches the wire protocol's
// operations onto a store.Store.
type Server struct {
	store      *store.Store
	address    string
	logger     *slog.Logger
	listener   net.Listener
	inShutdown atomic.Bool
	wg         sync.WaitGroup
}

// New returns a Server that will serve s over address once Start is
// called.
func New(address string, s *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: s, address: address, logger: logger}
}

// Start listens on the configured address and serves connections until
// Stop/Shutdown is called, at which point it returns ErrServerClosed.
func (srv *Server) Start() error {
	ln, err := net.Listen("tcp", srv.address)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	srv.listener = ln
	srv.logger.Info("server listening", "address", srv.address)

	for {
		conn, err := ln.Accept()
		if srv.inShutdown.Load() {
			return ErrServerClosed
		}
		if err != nil {
			srv.logger.Error("accept failed", "error", err)
			continue
		}
		srv.wg.Add(1)
		go func(c net.Conn) {
			defer srv.wg.Done()
			defer c.Close()
			srv.handleConnection(c)
		}(conn)
	}
}

// Stop closes the listener immediately, without waiting for in-flight
// connections.
func (srv *Server) Stop() error {
	srv.inShutdown.Store(true)
	if srv.listener != nil {
		return srv.listener.Close()
	}
	return nil
}

// Shutdown closes the listener and waits (up to ctx's deadline) for
// in-flight connections to finish.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.inShutdown.Store(true)
	if srv.listener != nil {
		srv.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (srv *Server) handleConnection(conn io.ReadWriteCloser) {
	reader := bufio.NewReader(conn)
	for {
		req, err := readRequest(reader)
		if err != nil {
			if err == io.EOF {
				return
			}
			writeError(conn, err)
			return
		}
		if err := srv.dispatch(conn, req); err != nil {
			writeError(conn, err)
			return
		}
	}
}

func (srv *Server) dispatch(conn io.Writer, req request) error {
	switch req.op {
	case OpPut:
		if err := srv.store.Put([]byte(req.key), req.body); err != nil {
			return err
		}
		return writeOK(conn, []byte(fmt.Sprintf("key %q updated", req.key)))

	case OpGet:
		v, err := srv.store.Get([]byte(req.key))
		if err != nil {
			if errors.Is(err, storeerrors.ErrNotFound) {
				return writeOK(conn, []byte("not found"))
			}
			return err
		}
		return writeOK(conn, v)

	case OpDelete:
		if err := srv.store.Delete([]byte(req.key)); err != nil {
			return err
		}
		return writeOK(conn, []byte(fmt.Sprintf("key %q deleted", req.key)))

	case OpScan:
		var lo, hi []byte
		if req.key != "" {
			lo = []byte(req.key)
		}
		if req.endKey != "" {
			hi = []byte(req.endKey)
		}
		entries, err := srv.store.Scan(lo, hi)
		if err != nil {
			return err
		}
		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "%s\t%s\n", e.Key, e.Value)
		}
		return writeOK(conn, []byte(b.String()))

	case OpStats:
		s := srv.store.Stats()
		body := fmt.Sprintf(
			"reads=%d writes=%d deletes=%d flushes=%d runs_per_level=%v bytes_compacted=%d",
			s.Reads, s.Writes, s.Deletes, s.Flushes, s.RunsPerLevel, s.BytesCompacted)
		return writeOK(conn, []byte(body))

	default:
		return fmt.Errorf("unknown operation: %s", req.op)
	}
}
