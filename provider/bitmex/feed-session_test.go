package bitmex

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
	"github.com/spooky-finn/bitmex-pipe-bridge/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedConn struct {
	msgs   chan string
	closed chan struct{}
	once   sync.Once
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{msgs: make(chan string, 32), closed: make(chan struct{})}
}

func (c *scriptedConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.msgs:
		return []byte(msg), nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type scriptedSocket struct {
	conn      *scriptedConn
	block     bool
	gotURL    string
	gotHeader http.Header
}

func (s *scriptedSocket) Dial(ctx context.Context, url string, header http.Header) (domain.FeedConn, error) {
	s.gotURL, s.gotHeader = url, header
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.conn, nil
}

type pipeRecorder struct {
	mu   sync.Mutex
	sent []string
	got  chan struct{}
}

func newPipeRecorder() *pipeRecorder {
	return &pipeRecorder{got: make(chan struct{}, 64)}
}

func (p *pipeRecorder) Send(msg string) error {
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()
	p.got <- struct{}{}
	return nil
}

func (p *pipeRecorder) Receive() (string, error) { return "", domain.ErrChannelClosed }
func (p *pipeRecorder) Close() error             { return nil }

func (p *pipeRecorder) waitSent(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d records", n)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

type sessionFixture struct {
	session *FeedSession
	socket  *scriptedSocket
	conn    *scriptedConn
	pipe    *pipeRecorder
	tables  *domain.TableSynchronizer
}

func newSessionFixture(t *testing.T, creds Credentials) *sessionFixture {
	t.Helper()
	logger := log.New(io.Discard)
	symbol := xbtusd(t)

	conn := newScriptedConn()
	socket := &scriptedSocket{conn: conn}
	pipe := newPipeRecorder()
	tables := domain.NewTableSynchronizer(domain.DefaultMaxTableLen, logger)
	emitter := usecase.NewChangeEmitter(symbol, pipe, tables, logger)

	session := NewFeedSession(socket, tables, emitter, FeedSessionConfig{
		Endpoint:        "wss://ws.bitmex.com/realtime",
		Symbol:          symbol,
		Credentials:     creds,
		ConnectTimeout:  50 * time.Millisecond,
		SnapshotTimeout: 200 * time.Millisecond,
	}, logger)

	return &sessionFixture{session: session, socket: socket, conn: conn, pipe: pipe, tables: tables}
}

func (f *sessionFixture) run(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- f.session.Run(ctx) }()
	return done
}

func waitState(t *testing.T, s *FeedSession, want SessionState) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, 2*time.Second, 5*time.Millisecond)
}

const (
	quotePartial = `{"table":"quote","action":"partial","keys":["symbol"],"data":[
		{"symbol":"XBTUSD","timestamp":"2024-01-01T00:00:00.000Z","bidPrice":100,"askPrice":101}]}`
	candlePartial = `{"table":"tradeBin1m","action":"partial","keys":[],"data":[]}`
)

func TestFeedSession_QuoteBaselineThenUpdate(t *testing.T) {
	f := newSessionFixture(t, Credentials{})
	ctx, cancel := context.WithCancel(context.Background())
	done := f.run(ctx)

	f.conn.msgs <- `{"info":"Welcome to the BitMEX Realtime API."}`
	f.conn.msgs <- `{"success":true,"subscribe":"quote:XBTUSD"}`
	f.conn.msgs <- quotePartial
	f.conn.msgs <- candlePartial
	waitState(t, f.session, StateLive)

	f.conn.msgs <- `{"table":"quote","action":"update","data":[
		{"symbol":"XBTUSD","timestamp":"2024-01-01T00:00:05.000Z","bidPrice":100.5}]}`

	assert.Equal(t, []string{"qt,XBTUSD,1704067205,100.5,101"}, f.pipe.waitSent(t, 1))
	assert.Equal(t, "wss://ws.bitmex.com/realtime?subscribe=quote:XBTUSD,tradeBin1m:XBTUSD", f.socket.gotURL)
	assert.Empty(t, f.socket.gotHeader.Get("api-key"))

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, f.session.State())
}

func TestFeedSession_AuthenticatedOrderLifecycle(t *testing.T) {
	f := newSessionFixture(t, Credentials{Key: "key", Secret: "secret"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := f.run(ctx)

	f.conn.msgs <- quotePartial
	f.conn.msgs <- candlePartial
	f.conn.msgs <- `{"table":"order","action":"partial","keys":["orderID"],"data":[
		{"orderID":"o-1","symbol":"XBTUSD","side":"Buy","orderQty":10,"leavesQty":10}]}`
	waitState(t, f.session, StateLive)

	assert.Equal(t, []string{
		"ordersupdt,1",
		"ordrtbl,o-1,,,,XBTUSD,Buy,10,,,,,10,,",
	}, f.pipe.waitSent(t, 2))

	f.conn.msgs <- `{"table":"order","action":"update","data":[{"orderID":"o-1","leavesQty":0}]}`
	sent := f.pipe.waitSent(t, 2)
	assert.Equal(t, []string{"ordersupdt,1", "ordrtbl,o-1,,,,XBTUSD,Buy,10,,,,,0,,"}, sent[2:])

	assert.Contains(t, f.socket.gotURL, "order:XBTUSD")
	assert.Equal(t, "key", f.socket.gotHeader.Get("api-key"))

	cancel()
	require.NoError(t, <-done)

	orders, ok := f.tables.Table(domain.TableOrder)
	require.True(t, ok)
	assert.Equal(t, 0, orders.Len())
}

func TestFeedSession_AnomaliesAreNotFatal(t *testing.T) {
	f := newSessionFixture(t, Credentials{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := f.run(ctx)

	f.conn.msgs <- `not json`
	f.conn.msgs <- `{"table":"quote","action":"update","data":[{"symbol":"XBTUSD"}]}`
	f.conn.msgs <- quotePartial
	f.conn.msgs <- `{"table":"quote","action":"upsert","data":[]}`
	f.conn.msgs <- candlePartial
	waitState(t, f.session, StateLive)

	cancel()
	assert.NoError(t, <-done)
}

func TestFeedSession_ErrorEnvelopeIsFatal(t *testing.T) {
	f := newSessionFixture(t, Credentials{})
	done := f.run(context.Background())

	f.conn.msgs <- `{"status":401,"error":"Invalid API Key."}`

	err := <-done
	assert.ErrorIs(t, err, domain.ErrFeedError)
}

func TestFeedSession_SnapshotTimeout(t *testing.T) {
	f := newSessionFixture(t, Credentials{})
	done := f.run(context.Background())

	f.conn.msgs <- quotePartial

	err := <-done
	assert.ErrorIs(t, err, domain.ErrSnapshotTimeout)
}

func TestFeedSession_ConnectTimeout(t *testing.T) {
	f := newSessionFixture(t, Credentials{})
	f.socket.block = true

	err := <-f.run(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectTimeout)
}

func TestFeedSession_ConnectionLoss(t *testing.T) {
	f := newSessionFixture(t, Credentials{})
	done := f.run(context.Background())

	f.conn.msgs <- quotePartial
	f.conn.msgs <- candlePartial
	waitState(t, f.session, StateLive)
	require.NoError(t, f.conn.Close())

	err := <-done
	assert.True(t, errors.Is(err, io.EOF))
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "live", StateLive.String())
	assert.Equal(t, "unknown", SessionState(42).String())
}
