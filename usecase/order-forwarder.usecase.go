package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
	promclient "github.com/spooky-finn/bitmex-pipe-bridge/infrastructure/prometheus"
)

// OrderForwarderUseCase reads consumer commands from the order pipe and
// submits them to the exchange. Failures are logged and the loop continues.
type OrderForwarderUseCase struct {
	pipe      domain.PipeChannel
	api       domain.ProviderOrderAPI
	validator *CommandValidationService
	delay     backoff.BackOff
	logger    *log.Logger
}

func NewOrderForwarderUseCase(
	pipe domain.PipeChannel,
	api domain.ProviderOrderAPI,
	validator *CommandValidationService,
	retryDelay time.Duration,
	logger *log.Logger,
) *OrderForwarderUseCase {
	return &OrderForwarderUseCase{
		pipe:      pipe,
		api:       api,
		validator: validator,
		delay:     backoff.NewConstantBackOff(retryDelay),
		logger:    logger.WithPrefix("orders"),
	}
}

// Run blocks until ctx is cancelled or the pipe is closed. Cancelling ctx is
// expected to be paired with closing the pipe, which unblocks Receive.
func (u *OrderForwarderUseCase) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := u.pipe.Receive()
		if err != nil {
			if errors.Is(err, domain.ErrChannelClosed) {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			u.reject(ctx, "read_error", err)
			continue
		}

		cmd, err := ParseCommand(msg)
		if err != nil {
			u.reject(ctx, "malformed", err)
			continue
		}

		if err := u.validator.Validate(cmd); err != nil {
			promclient.OrderCommands.WithLabelValues("ignored").Inc()
			u.logger.Warn("ignoring command", "err", err)
			continue
		}

		u.dispatch(ctx, cmd)
	}
}

func (u *OrderForwarderUseCase) dispatch(ctx context.Context, cmd Command) {
	switch cmd.Tag {
	case CommandOrder:
		resp, err := u.api.SubmitBulkOrders(ctx, cmd.Payload)
		if err != nil {
			promclient.OrderCommands.WithLabelValues("failed").Inc()
			u.logger.Error("order submission failed", "err", err)
			return
		}
		promclient.OrderCommands.WithLabelValues("submitted").Inc()
		u.logger.Info("orders submitted", "response", string(resp))
	default:
		promclient.OrderCommands.WithLabelValues("ignored").Inc()
		u.logger.Warn("no handler for command", "tag", cmd.Tag)
	}
}

// reject logs a bad read and waits before the next one.
func (u *OrderForwarderUseCase) reject(ctx context.Context, result string, err error) {
	promclient.OrderCommands.WithLabelValues(result).Inc()
	u.logger.Warn("bad command frame", "err", err)

	select {
	case <-ctx.Done():
	case <-time.After(u.delay.NextBackOff()):
	}
}
