package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
	"github.com/stretchr/testify/require"
)

type recordingPipe struct {
	mu      sync.Mutex
	sent    []string
	inbound chan string
	done    chan struct{}
	once    sync.Once
	sendErr error
}

func newRecordingPipe() *recordingPipe {
	return &recordingPipe{
		inbound: make(chan string, 16),
		done:    make(chan struct{}),
	}
}

func (p *recordingPipe) Send(msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingPipe) Receive() (string, error) {
	select {
	case msg := <-p.inbound:
		return msg, nil
	case <-p.done:
		return "", domain.ErrChannelClosed
	}
}

func (p *recordingPipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *recordingPipe) Sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func (p *recordingPipe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = nil
}

var errUnavailable = errors.New("503 service unavailable")

type fakeHistoryAPI struct {
	latest      time.Time
	latestFails int
	candles     []domain.Candle
	candlesErr  error

	gotStart time.Time
	gotCount int
	gotBin   string
}

func (f *fakeHistoryAPI) RecentInstrumentTime(_ context.Context, _ *domain.MarketSymbol) (time.Time, error) {
	if f.latestFails > 0 {
		f.latestFails--
		return time.Time{}, errUnavailable
	}
	return f.latest, nil
}

func (f *fakeHistoryAPI) BucketedTrades(
	_ context.Context, _ *domain.MarketSymbol, binSize string, count int, start time.Time,
) ([]domain.Candle, error) {
	f.gotBin, f.gotCount, f.gotStart = binSize, count, start
	return f.candles, f.candlesErr
}

type fakeOrderAPI struct {
	mu       sync.Mutex
	payloads []string
	err      error
	called   chan struct{}
}

func newFakeOrderAPI() *fakeOrderAPI {
	return &fakeOrderAPI{called: make(chan struct{}, 16)}
}

func (f *fakeOrderAPI) SubmitBulkOrders(_ context.Context, payload string) ([]byte, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	f.called <- struct{}{}
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`[]`), nil
}

func (f *fakeOrderAPI) Payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.payloads...)
}

func testSymbol(t *testing.T) *domain.MarketSymbol {
	t.Helper()
	symbol, err := domain.NewMarketSymbol("XBTUSD")
	require.NoError(t, err)
	return symbol
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}
