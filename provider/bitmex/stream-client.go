package bitmex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
)

const (
	realtimePath = "/realtime"

	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	writeWait  = 10 * time.Second
)

// FeedTables lists the subscribed tables. The order table needs an authenticated session.
func FeedTables(authenticated bool) []string {
	tables := []string{domain.TableQuote, domain.TableTradeBin1m}
	if authenticated {
		tables = append(tables, domain.TableOrder)
	}
	return tables
}

// FeedURL builds the realtime URL with the subscriptions in its query string.
func FeedURL(endpoint string, symbol *domain.MarketSymbol, authenticated bool) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid feed url %q: %w", endpoint, err)
	}

	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = realtimePath
	u.RawQuery = "subscribe=" + symbol.Topics(FeedTables(authenticated)...)

	return u.String(), nil
}

// StreamClient dials the realtime websocket.
type StreamClient struct {
	dialer *websocket.Dialer
	logger *log.Logger
}

func NewStreamClient(handshakeTimeout time.Duration, logger *log.Logger) *StreamClient {
	return &StreamClient{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger.WithPrefix("ws"),
	}
}

func (c *StreamClient) Dial(ctx context.Context, url string, header http.Header) (domain.FeedConn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial feed: %w (status %s)", err, resp.Status)
		}
		return nil, fmt.Errorf("failed to dial feed: %w", err)
	}

	sc := &streamConn{
		conn:   conn,
		done:   make(chan struct{}),
		logger: c.logger,
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go sc.keepAlive()
	return sc, nil
}

type streamConn struct {
	conn   *websocket.Conn
	done   chan struct{}
	once   sync.Once
	wmu    sync.Mutex
	logger *log.Logger
}

func (sc *streamConn) ReadMessage() ([]byte, error) {
	_, msg, err := sc.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = sc.conn.SetReadDeadline(time.Now().Add(pongWait))
	return msg, nil
}

func (sc *streamConn) Close() error {
	var err error
	sc.once.Do(func() {
		close(sc.done)

		sc.wmu.Lock()
		_ = sc.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		sc.wmu.Unlock()

		err = sc.conn.Close()
	})
	return err
}

func (sc *streamConn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sc.done:
			return
		case <-ticker.C:
			sc.wmu.Lock()
			err := sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			sc.wmu.Unlock()
			if err != nil {
				sc.logger.Warn("ping failed", "err", err)
				return
			}
		}
	}
}
