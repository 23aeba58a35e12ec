package pipe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
)

// MaxFrameSize matches the consumer side pipe buffer.
const MaxFrameSize = 65536

const headerSize = 4

var ErrFrameTooLarge = errors.New("pipe frame exceeds max size")

// Channel is a framed duplex channel: every frame is a 4 byte little endian
// length followed by that many bytes of UTF-8 text.
type Channel struct {
	conn   io.ReadWriteCloser
	wmu    sync.Mutex
	rmu    sync.Mutex
	closed atomic.Bool
}

func NewChannel(conn io.ReadWriteCloser) *Channel {
	return &Channel{conn: conn}
}

func (c *Channel) Send(msg string) error {
	if len(msg) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(msg))
	}

	frame := make([]byte, headerSize+len(msg))
	binary.LittleEndian.PutUint32(frame, uint32(len(msg)))
	copy(frame[headerSize:], msg)

	c.wmu.Lock()
	_, err := c.conn.Write(frame)
	c.wmu.Unlock()

	if err != nil {
		return c.wrapErr("send", err)
	}
	return nil
}

func (c *Channel) Receive() (string, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	var header [headerSize]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return "", c.wrapErr("receive", err)
	}

	size := binary.LittleEndian.Uint32(header[:])
	if size > MaxFrameSize {
		// skip the body so the next frame starts on a boundary
		if _, err := io.CopyN(io.Discard, c.conn, int64(size)); err != nil {
			return "", c.wrapErr("receive", err)
		}
		return "", fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrMalformedFrame, size, MaxFrameSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return "", c.wrapErr("receive", err)
	}
	return string(body), nil
}

func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

func (c *Channel) wrapErr(op string, err error) error {
	if c.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) || strings.Contains(err.Error(), "broken pipe") {
		return fmt.Errorf("pipe %s: %w: %w", op, domain.ErrChannelClosed, err)
	}
	return fmt.Errorf("pipe %s: %w", op, err)
}
