// Package server is the WebSocket and HTTP transport that drives an
// internal/editor.Editor (spec §6). None of it is part of the core: it
// exists to accept connections, decode/encode the wire protocol, and
// serialize calls into the Editor's critical section.
package server

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/avian-editor/avian/internal/editor"
	"github.com/avian-editor/avian/internal/protocol"
	"github.com/avian-editor/avian/pkg/config"
	"github.com/avian-editor/avian/pkg/logger"
)

//go:embed static
var staticFS embed.FS

// shutdownDrainTimeout bounds how long Run waits for in-flight HTTP
// requests to finish once ctx is canceled. It is independent of
// cfg.WSReadTimeout/WSWriteTimeout, which bound individual WebSocket
// frames, not process shutdown.
const shutdownDrainTimeout = 10 * time.Second

// Server is the single shared editing session's HTTP/WebSocket frontend.
// Spec §2 describes one shared buffer, not the teacher's per-document
// registry, so there is exactly one Editor here rather than a map keyed
// by document id.
type Server struct {
	cfg    config.Config
	mux    *http.ServeMux
	mu     sync.Mutex // guards editor and conns together (spec E1)
	editor *editor.Editor
	conns  map[uint64]*Connection
	nextID atomic.Uint64
}

// New constructs a Server ready to ListenAndServe.
func New(cfg config.Config) *Server {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The static directory is embedded at compile time; this can
		// only fail if the binary itself was built wrong.
		panic(err)
	}

	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		editor: editor.New(),
		conns:  make(map[uint64]*Connection),
	}

	s.mux.HandleFunc("/ws", s.handleSocket)
	s.mux.Handle("/", http.FileServer(http.FS(static)))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run starts the HTTP server on cfg.Host:cfg.Port and blocks until ctx is
// canceled, at which point it drains in-flight connections and returns.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Host + ":" + s.cfg.Port
	httpSrv := &http.Server{Addr: addr, Handler: s}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDrainTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// nextClientID returns the next available client identity.
func (s *Server) nextClientID() uint64 {
	return s.nextID.Add(1) - 1
}

// removeConnection unregisters c and trims the revision history down to
// whatever the remaining clients have acknowledged (spec §4.3 disconnect).
func (s *Server) removeConnection(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.userID)
	s.editor.Disconnect(c.userID)
}

// connect registers a brand-new client in the editor AND the broadcast
// registry under one lock acquisition, so no edit committed in between can
// be applied and broadcast to everyone except this connection.
func (s *Server) connect(c *Connection) (rev uint32, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, text = s.editor.Connect(c.userID)
	s.conns[c.userID] = c
	return rev, text
}

// applyEdit runs clientID's edit through the Editor's critical section and
// returns the canonical, applied edit for broadcast. An Insert that would
// grow the buffer past cfg.MaxBufferSize is rejected with ErrInvalidIndex
// before it ever reaches the Editor, matching the teacher's document-size
// cap in kolabpad.go's ApplyEdit.
func (s *Server) applyEdit(clientID uint64, edit protocol.Edit) (protocol.Edit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxBufferSize > 0 {
		if ins, ok := edit.Action.(protocol.Insert); ok {
			grown := datasize.ByteSize(s.editor.Len() + len(ins.Text))
			if grown > s.cfg.MaxBufferSize {
				return protocol.Edit{}, editor.ErrInvalidIndex
			}
		}
	}

	return s.editor.Edit(clientID, edit)
}

// broadcast fans a successfully applied edit out to every connected
// client's send queue, including the sender's — spec §6 says the server
// "broadcasts to all connected peers (including the sender)".
func (s *Server) broadcast(msg protocol.Edit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		select {
		case c.sendCh <- msg:
		default:
			logger.Warnf("dropping broadcast to slow client %d", c.userID)
		}
	}
}
