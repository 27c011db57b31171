package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/avian-editor/avian/internal/protocol"
	"github.com/avian-editor/avian/pkg/logger"
)

// Connection is one accepted WebSocket, from handshake to close.
type Connection struct {
	userID uint64
	server *Server
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan protocol.Edit
	sendMu sync.Mutex
}

// handleSocket upgrades an HTTP request to a WebSocket and runs the
// connection's message loop until it closes.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		userID: s.nextClientID(),
		server: s,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		sendCh: make(chan protocol.Edit, s.cfg.BroadcastBufferSize),
	}

	if err := c.handle(r.Context()); err != nil {
		logger.Debugf("connection %d closed: %v", c.userID, err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// handle sends the initial connect payload, starts the broadcast relay,
// and then loops reading and applying edits until the socket closes.
func (c *Connection) handle(ctx context.Context) error {
	var relayDone chan struct{}
	defer func() {
		c.cleanup()
		if relayDone != nil {
			<-relayDone
		}
	}()

	rev, text := c.server.connect(c)
	logger.Debugf("client %d connected at rev %d", c.userID, rev)
	if err := c.writeJSON(protocol.Connect{Rev: rev, Buffer: text}); err != nil {
		return fmt.Errorf("send initial state: %w", err)
	}

	relayDone = make(chan struct{})
	go c.relayBroadcasts(relayDone)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
		}

		edit, err := c.readEdit(ctx)
		if err != nil {
			if errors.Is(err, errConnectionClosed) {
				return nil
			}
			if reason, ok := err.(reasonError); ok {
				c.ack(false, reason.reason)
				continue
			}
			return err
		}

		applied, err := c.server.applyEdit(c.userID, edit)
		if err != nil {
			c.ack(false, err.Error())
			continue
		}

		c.ack(true, "")
		c.server.broadcast(applied)
	}
}

// reasonError is a protocol-level failure (bad frame, bad JSON) that gets
// reported to the sender without closing the connection (spec §7).
type reasonError struct{ reason string }

func (e reasonError) Error() string { return e.reason }

var errConnectionClosed = errors.New("connection closed")

// readEdit reads one client message and decodes it as an Edit. A non-text
// frame or malformed JSON is reported via reasonError, matching spec §6's
// "invalid message" / "invalid json" reasons, without tearing down the
// connection. A read failure from the transport itself (including a
// normal close, or a client that falls silent past cfg.WSReadTimeout) is
// returned as-is or as errConnectionClosed.
func (c *Connection) readEdit(ctx context.Context) (protocol.Edit, error) {
	readCtx, cancel := context.WithTimeout(ctx, c.server.cfg.WSReadTimeout)
	defer cancel()

	msgType, data, err := c.conn.Read(readCtx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return protocol.Edit{}, errConnectionClosed
		}
		return protocol.Edit{}, err
	}
	if msgType != websocket.MessageText {
		return protocol.Edit{}, reasonError{"invalid message"}
	}

	var edit protocol.Edit
	if err := json.Unmarshal(data, &edit); err != nil {
		return protocol.Edit{}, reasonError{"invalid json"}
	}
	return edit, nil
}

// relayBroadcasts forwards applied edits queued for this connection by
// Server.broadcast, outside the editor's critical section per spec §5.
func (c *Connection) relayBroadcasts(done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case edit, ok := <-c.sendCh:
			if !ok {
				return
			}
			if err := c.writeJSON(edit); err != nil {
				logger.Debugf("broadcast to client %d failed: %v", c.userID, err)
				c.cancel()
				return
			}
		}
	}
}

// ack writes the per-message acknowledgement spec §6 requires for every
// edit the sender submits.
func (c *Connection) ack(success bool, reason string) {
	if err := c.writeJSON(protocol.Ack{Success: success, Reason: reason}); err != nil {
		logger.Debugf("ack to client %d failed: %v", c.userID, err)
		c.cancel()
	}
}

func (c *Connection) writeJSON(v interface{}) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(c.ctx, c.server.cfg.WSWriteTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

// cleanup removes the connection from the server, trimming history. It
// unregisters from Server.conns (under the server's lock) before
// cancelling the context, so Server.broadcast can never observe a
// connection whose sendCh nobody is draining anymore.
func (c *Connection) cleanup() {
	logger.Debugf("client %d disconnected", c.userID)
	c.server.removeConnection(c)
	c.cancel()
}
