package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spooky-finn/bitmex-pipe-bridge/config"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
	"github.com/spooky-finn/bitmex-pipe-bridge/infrastructure/pipe"
	promclient "github.com/spooky-finn/bitmex-pipe-bridge/infrastructure/prometheus"
	"github.com/spooky-finn/bitmex-pipe-bridge/provider"
	"github.com/spooky-finn/bitmex-pipe-bridge/provider/bitmex"
	"github.com/spooky-finn/bitmex-pipe-bridge/rpc"
	"github.com/spooky-finn/bitmex-pipe-bridge/usecase"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}

	logger := newLogger(conf.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger); err != nil {
		logger.Fatal("bridge stopped", "err", err)
	}
	logger.Info("bridge stopped")
}

func newLogger(level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}

	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "bridge",
		Level:           lvl,
	})
}

func run(ctx context.Context, conf *config.Config, logger *log.Logger) error {
	symbol, err := domain.NewMarketSymbol(conf.Symbol)
	if err != nil {
		return err
	}

	logger.Info("waiting for pipe clients")
	pricePipe, err := openPipe(ctx, conf, conf.PricePipePath, logger)
	if err != nil {
		return fmt.Errorf("price pipe: %w", err)
	}
	defer pricePipe.Close()

	orderPipe, err := openPipe(ctx, conf, conf.OrderPipePath, logger)
	if err != nil {
		return fmt.Errorf("order pipe: %w", err)
	}
	defer orderPipe.Close()

	cm, err := provider.NewConnectionManager(conf, logger)
	if err != nil {
		return err
	}

	tables := domain.NewTableSynchronizer(conf.MaxTableLen, logger)
	emitter := usecase.NewChangeEmitter(symbol, pricePipe, tables, logger)

	backfill := usecase.NewHistoryBackfillUseCase(cm.SyncAPI(), pricePipe, symbol, usecase.HistoryBackfillConfig{
		Bars:       conf.HistoryBars,
		MarginBars: conf.HistoryMarginBars,
	}, logger)

	logger.Info("downloading history")
	if last, err := backfill.Run(ctx); err != nil {
		logger.Error("history download failed, continuing with live data", "err", err)
	} else {
		emitter.SetCandleWatermark(last)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	validator := usecase.NewCommandValidationService(&usecase.CommandValidationConfig{
		SupportedCommands: conf.SupportedCommands,
	})
	forwarder := usecase.NewOrderForwarderUseCase(orderPipe, cm.SyncAPI(), validator, conf.ForwardRetryDelay, logger)
	go func() {
		if err := forwarder.Run(ctx); err != nil {
			logger.Error("order forwarding stopped", "err", err)
		}
	}()

	session := bitmex.NewFeedSession(cm.StreamAPI(), tables, emitter, bitmex.FeedSessionConfig{
		Endpoint:        conf.WSURL,
		Symbol:          symbol,
		Credentials:     cm.Credentials,
		ConnectTimeout:  conf.ConnectTimeout,
		SnapshotTimeout: conf.SnapshotTimeout,
	}, logger)

	stopServers, err := startServers(ctx, conf, session, logger)
	if err != nil {
		return err
	}
	defer stopServers()

	go supervise(ctx, session, conf.LivenessInterval, logger)

	return session.Run(ctx)
}

func openPipe(ctx context.Context, conf *config.Config, path string, logger *log.Logger) (domain.PipeChannel, error) {
	if !conf.PipeEnabled {
		return pipe.NewDiscardChannel(logger), nil
	}
	ch, err := pipe.Open(ctx, path, logger)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func startServers(ctx context.Context, conf *config.Config, session *bitmex.FeedSession, logger *log.Logger) (func(), error) {
	metrics := promclient.NewServer(conf.MetricsAddr, func() (string, bool) {
		return session.State().String(), session.Healthy()
	})
	go func() {
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	lis, err := net.Listen("tcp", conf.GRPCAddr)
	if err != nil {
		_ = metrics.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", conf.GRPCAddr, err)
	}

	grpcServer := rpc.NewServer(session.Healthy, logger)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server stopped", "err", err)
		}
	}()
	go grpcServer.WatchStatus(ctx, time.Second)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
		grpcServer.Stop()
	}, nil
}

// supervise logs a heartbeat while the feed is live.
func supervise(ctx context.Context, session *bitmex.FeedSession, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if session.Healthy() {
				logger.Info("connection is active")
			} else {
				logger.Warn("connection is not live", "state", session.State())
			}
		}
	}
}
