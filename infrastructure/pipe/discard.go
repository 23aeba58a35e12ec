package pipe

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
)

// DiscardChannel stands in for a disabled pipe. Sends are only logged and
// Receive blocks until the channel is closed.
type DiscardChannel struct {
	logger *log.Logger
	done   chan struct{}
	once   sync.Once
}

func NewDiscardChannel(logger *log.Logger) *DiscardChannel {
	return &DiscardChannel{
		logger: logger.WithPrefix("pipe"),
		done:   make(chan struct{}),
	}
}

func (c *DiscardChannel) Send(msg string) error {
	c.logger.Debug("pipe disabled, dropping", "msg", msg)
	return nil
}

func (c *DiscardChannel) Receive() (string, error) {
	<-c.done
	return "", domain.ErrChannelClosed
}

func (c *DiscardChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
