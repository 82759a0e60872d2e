package mllp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"hl7tools/internal/hl7"
)

// Client sends one message and waits for the single response message.
type Client struct {
	dialer    Dialer
	timeout   time.Duration
	keepAlive bool
	logger    *zap.Logger

	conn   io.ReadWriteCloser
	reader *bufio.Reader
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Timeout bounds writing the message and reading the response. Zero waits forever.
	Timeout time.Duration
	// KeepAlive reuses one connection for every message until Close.
	KeepAlive bool
	Logger    *zap.Logger
}

// NewClient returns a client that reaches its peer through dialer.
func NewClient(dialer Dialer, cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		dialer:    dialer,
		timeout:   cfg.Timeout,
		keepAlive: cfg.KeepAlive,
		logger:    logger,
	}
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// SendAndReceive writes msg as one frame and parses the frame that comes back.
func (c *Client) SendAndReceive(ctx context.Context, msg *hl7.Message) (*hl7.Message, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	conn, reader := c.conn, c.reader

	stop := context.AfterFunc(ctx, func() { conn.Close() })

	resp, err := c.exchange(conn, reader, msg)
	closed := !stop()
	if err != nil || closed || !c.keepAlive {
		c.drop()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", c.dialer, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w", c.dialer, err)
	}
	return resp, nil
}

func (c *Client) exchange(conn io.ReadWriteCloser, reader *bufio.Reader, msg *hl7.Message) (*hl7.Message, error) {
	if d, ok := conn.(deadliner); ok && c.timeout > 0 {
		if err := d.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	if err := WriteFrame(conn, []byte(msg.Encode())); err != nil {
		return nil, err
	}
	c.logger.Debug("Message sent", zap.String("control_id", msg.ControlID()), zap.Stringer("peer", c.dialer))

	payload, err := ReadFrame(reader)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	resp, err := hl7.Parse(hl7.NormalizeTerminators(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return resp, nil
}

func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	c.logger.Debug("Connected", zap.Stringer("peer", c.dialer))
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

func (c *Client) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn, c.reader = nil, nil
	}
}

// Close releases a kept-alive connection.
func (c *Client) Close() error {
	c.drop()
	return nil
}
