package bitmex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
	"github.com/spooky-finn/bitmex-pipe-bridge/helpers"
	promclient "github.com/spooky-finn/bitmex-pipe-bridge/infrastructure/prometheus"
)

type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateSubscribed
	StateLive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// MutationHandler reacts to every table change applied by the session.
type MutationHandler interface {
	OnMutation(m domain.Mutation) error
}

type FeedSessionConfig struct {
	Endpoint        string
	Symbol          *domain.MarketSymbol
	Credentials     Credentials
	ConnectTimeout  time.Duration
	SnapshotTimeout time.Duration
}

// FeedSession owns one realtime connection. A single pump goroutine decodes
// messages, applies them to the tables and hands the mutation to the handler.
type FeedSession struct {
	socket  domain.FeedSocket
	tables  *domain.TableSynchronizer
	handler MutationHandler
	config  FeedSessionConfig
	logger  *log.Logger

	state atomic.Int32
	now   func() time.Time
}

func NewFeedSession(
	socket domain.FeedSocket,
	tables *domain.TableSynchronizer,
	handler MutationHandler,
	config FeedSessionConfig,
	logger *log.Logger,
) *FeedSession {
	return &FeedSession{
		socket:  socket,
		tables:  tables,
		handler: handler,
		config:  config,
		logger:  logger.WithPrefix("feed"),
		now:     time.Now,
	}
}

func (s *FeedSession) State() SessionState {
	return SessionState(s.state.Load())
}

// Healthy is true only while the feed is live.
func (s *FeedSession) Healthy() bool {
	return s.State() == StateLive
}

func (s *FeedSession) setState(state SessionState) {
	s.state.Store(int32(state))
	if state == StateLive {
		promclient.SessionLive.Set(1)
	} else {
		promclient.SessionLive.Set(0)
	}
	s.logger.Debug("state", "value", state)
}

// Run connects, waits for every subscribed table snapshot and then pumps the
// feed until ctx is cancelled (nil) or a fatal condition occurs (error).
// There is no reconnect: any connection loss is returned to the caller.
func (s *FeedSession) Run(ctx context.Context) error {
	authenticated := !s.config.Credentials.Empty()
	defer s.setState(StateClosed)

	conn, err := s.connect(ctx, authenticated)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer conn.Close()
	s.setState(StateSubscribed)

	pumpErr := make(chan error, 1)
	go func() { pumpErr <- s.pump(conn) }()

	tables := FeedTables(authenticated)
	readyChs := make([]<-chan struct{}, 0, len(tables))
	for _, table := range tables {
		readyChs = append(readyChs, s.tables.Ready(table))
	}

	snapshotTimer := time.NewTimer(s.config.SnapshotTimeout)
	defer snapshotTimer.Stop()

	select {
	case <-helpers.WaitAll(readyChs...):
		s.setState(StateLive)
		s.logger.Info("got all market data, starting", "tables", tables)
	case err := <-pumpErr:
		return err
	case <-snapshotTimer.C:
		return fmt.Errorf("%w: waited %s for %v", domain.ErrSnapshotTimeout, s.config.SnapshotTimeout, tables)
	case <-ctx.Done():
		return nil
	}

	select {
	case err := <-pumpErr:
		return err
	case <-ctx.Done():
		s.logger.Info("closing feed")
		return nil
	}
}

func (s *FeedSession) connect(ctx context.Context, authenticated bool) (domain.FeedConn, error) {
	s.setState(StateConnecting)

	url, err := FeedURL(s.config.Endpoint, s.config.Symbol, authenticated)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if authenticated {
		s.logger.Info("authenticating with api key")
		header = s.config.Credentials.Headers(http.MethodGet, realtimePath, "", s.now())
	}

	s.logger.Info("connecting", "url", url)

	dialCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	conn, err := s.socket.Dial(dialCtx, url, header)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", domain.ErrConnectTimeout, s.config.ConnectTimeout, err)
		}
		return nil, err
	}

	s.logger.Info("connected")
	return conn, nil
}

func (s *FeedSession) pump(conn domain.FeedConn) error {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed connection lost: %w", err)
		}

		if err := s.handle(raw); err != nil {
			return err
		}
	}
}

func (s *FeedSession) handle(raw []byte) error {
	msg, err := domain.DecodeFeedMessage(raw)
	if err != nil {
		s.anomaly("undecodable", err)
		return nil
	}

	switch {
	case msg.IsError():
		return fmt.Errorf("%w: %s (status %d)", domain.ErrFeedError, msg.Error, msg.Status)
	case msg.IsSubscribeAck():
		s.logger.Debug("subscribed", "topic", msg.Subscribe, "success", msg.Success)
	case msg.IsTableMessage():
		return s.apply(msg)
	case msg.Info != "":
		s.logger.Info(msg.Info)
	default:
		s.logger.Debug("ignoring message", "raw", string(raw))
	}
	return nil
}

func (s *FeedSession) apply(msg *domain.FeedMessage) error {
	m, err := s.tables.Apply(msg)
	switch {
	case errors.Is(err, domain.ErrTableNotReady):
		s.anomaly("not_ready", err)
		return nil
	case errors.Is(err, domain.ErrUnknownAction):
		s.anomaly("unknown_action", err)
		return nil
	case err != nil:
		return err
	}

	if m.Trimmed > 0 {
		s.logger.Debug("trimmed", "table", m.Table, "rows", m.Trimmed)
	}

	if err := s.handler.OnMutation(m); err != nil {
		// the consumer is gone, nothing left to bridge to
		if errors.Is(err, domain.ErrChannelClosed) {
			return err
		}
		s.anomaly("emit_failed", err)
	}
	return nil
}

func (s *FeedSession) anomaly(reason string, err error) {
	promclient.FeedAnomalies.WithLabelValues(reason).Inc()
	s.logger.Warn("feed anomaly", "reason", reason, "err", err)
}
