package pipe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/charmbracelet/log"
)

// Open listens on a unix socket at path and waits for the single consumer to connect.
// The listener is closed as soon as the consumer is accepted.
func Open(ctx context.Context, path string, logger *log.Logger) (*Channel, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale pipe %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on pipe %s: %w", path, err)
	}
	defer ln.Close()

	logger.Info("waiting for consumer", "pipe", path)

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		accepted <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		ln.Close()
		return nil, ctx.Err()
	case res := <-accepted:
		if res.err != nil {
			return nil, fmt.Errorf("failed to accept on pipe %s: %w", path, res.err)
		}
		logger.Info("consumer connected", "pipe", path)
		return NewChannel(res.conn), nil
	}
}
