package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/avian-editor/avian/internal/protocol"
	"github.com/avian-editor/avian/pkg/config"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.BroadcastBufferSize = 8
	return testServerWithConfig(t, cfg)
}

func testServerWithConfig(t *testing.T, cfg config.Config) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(cfg)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readConnect(t *testing.T, conn *websocket.Conn) protocol.Connect {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var c protocol.Connect
	require.NoError(t, json.Unmarshal(data, &c))
	return c
}

func readAck(t *testing.T, conn *websocket.Conn) protocol.Ack {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var a protocol.Ack
	require.NoError(t, json.Unmarshal(data, &a))
	return a
}

func readEdit(t *testing.T, conn *websocket.Conn) protocol.Edit {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var e protocol.Edit
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func sendEdit(t *testing.T, conn *websocket.Conn, edit protocol.Edit) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(edit)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestConnectReceivesEmptyInitialState(t *testing.T) {
	_, ts := testServer(t)
	conn := dial(t, ts)

	got := readConnect(t, conn)
	require.Equal(t, uint32(0), got.Rev)
	require.Equal(t, "", got.Buffer)
}

func TestEditBroadcastToOtherClient(t *testing.T) {
	_, ts := testServer(t)
	conn1 := dial(t, ts)
	readConnect(t, conn1)
	conn2 := dial(t, ts)
	readConnect(t, conn2)

	sendEdit(t, conn1, protocol.Edit{Pos: 0, Rev: 0, Action: protocol.Insert{Text: "hello"}})

	ack := readAck(t, conn1)
	require.True(t, ack.Success)

	broadcastToSender := readEdit(t, conn1)
	require.Equal(t, uint32(1), broadcastToSender.Rev)

	broadcastToPeer := readEdit(t, conn2)
	require.Equal(t, uint32(1), broadcastToPeer.Rev)
	require.Equal(t, protocol.Insert{Text: "hello"}, broadcastToPeer.Action)
}

func TestSecondConnectSeesFirstClientsEdit(t *testing.T) {
	_, ts := testServer(t)
	conn1 := dial(t, ts)
	readConnect(t, conn1)

	sendEdit(t, conn1, protocol.Edit{Pos: 0, Rev: 0, Action: protocol.Insert{Text: "hello"}})
	readAck(t, conn1)
	readEdit(t, conn1)

	conn2 := dial(t, ts)
	got := readConnect(t, conn2)
	require.Equal(t, uint32(1), got.Rev)
	require.Equal(t, "hello", got.Buffer)
}

func TestInvalidRevisionGetsFailureAck(t *testing.T) {
	_, ts := testServer(t)
	conn := dial(t, ts)
	readConnect(t, conn)

	sendEdit(t, conn, protocol.Edit{Pos: 0, Rev: 999, Action: protocol.Insert{Text: "x"}})
	ack := readAck(t, conn)
	require.False(t, ack.Success)
	require.Equal(t, "future revision", ack.Reason)
}

func TestMalformedFrameGetsFailureAckWithoutClosing(t *testing.T) {
	_, ts := testServer(t)
	conn := dial(t, ts)
	readConnect(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))

	ack := readAck(t, conn)
	require.False(t, ack.Success)
	require.Equal(t, "invalid json", ack.Reason)

	// The connection should still be usable afterwards.
	sendEdit(t, conn, protocol.Edit{Pos: 0, Rev: 0, Action: protocol.Insert{Text: "still alive"}})
	ack = readAck(t, conn)
	require.True(t, ack.Success)
}

func TestOversizedInsertRejected(t *testing.T) {
	cfg := config.Default()
	cfg.BroadcastBufferSize = 8
	cfg.MaxBufferSize = datasize.ByteSize(5)
	_, ts := testServerWithConfig(t, cfg)

	conn := dial(t, ts)
	readConnect(t, conn)

	sendEdit(t, conn, protocol.Edit{Pos: 0, Rev: 0, Action: protocol.Insert{Text: "too long"}})
	ack := readAck(t, conn)
	require.False(t, ack.Success)
	require.Equal(t, "invalid index", ack.Reason)
}

func TestInsertWithinLimitAccepted(t *testing.T) {
	cfg := config.Default()
	cfg.BroadcastBufferSize = 8
	cfg.MaxBufferSize = datasize.ByteSize(5)
	_, ts := testServerWithConfig(t, cfg)

	conn := dial(t, ts)
	readConnect(t, conn)

	sendEdit(t, conn, protocol.Edit{Pos: 0, Rev: 0, Action: protocol.Insert{Text: "hi"}})
	ack := readAck(t, conn)
	require.True(t, ack.Success)
}

func TestSilentClientReadTimesOut(t *testing.T) {
	cfg := config.Default()
	cfg.BroadcastBufferSize = 8
	cfg.WSReadTimeout = 50 * time.Millisecond
	srv, ts := testServerWithConfig(t, cfg)

	conn := dial(t, ts)
	readConnect(t, conn)

	// Send nothing and wait past the read deadline; the server should
	// close the connection and release its slot on its own.
	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.conns) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDisconnectUnregistersClient(t *testing.T) {
	srv, ts := testServer(t)
	conn1 := dial(t, ts)
	readConnect(t, conn1)
	conn2 := dial(t, ts)
	readConnect(t, conn2)

	sendEdit(t, conn1, protocol.Edit{Pos: 0, Rev: 0, Action: protocol.Insert{Text: "hi"}})
	readAck(t, conn1)
	readEdit(t, conn1)
	readEdit(t, conn2)

	require.NoError(t, conn2.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		_, connected := srv.conns[1]
		return !connected
	}, time.Second, 10*time.Millisecond)
}
