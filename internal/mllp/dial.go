package mllp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Dialer opens the byte stream a message travels over.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

// TCPDialer connects to host:port.
type TCPDialer struct {
	Addr    string
	Timeout time.Duration
}

// Dial opens a TCP connection.
func (d TCPDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.Addr, err)
	}
	return conn, nil
}

func (d TCPDialer) String() string { return "tcp://" + d.Addr }

// SerialDialer opens a serial port, 8N1.
type SerialDialer struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// DefaultBaudRate is used when a serial target names no baud rate.
const DefaultBaudRate = 9600

// Dial opens the serial port.
func (d SerialDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(d.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.Port, err)
	}
	if d.Timeout > 0 {
		if err := port.SetReadTimeout(d.Timeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", d.Port, err)
		}
	}
	return serialConn{port}, nil
}

func (d SerialDialer) String() string {
	return fmt.Sprintf("serial://%s?baud=%d", d.Port, d.BaudRate)
}

// serialConn reports a read that returns nothing as a timeout; the serial
// driver signals an expired read timeout with (0, nil).
type serialConn struct {
	serial.Port
}

func (c serialConn) Read(p []byte) (int, error) {
	n, err := c.Port.Read(p)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}

// ParseTarget turns "host:port" or "serial://PORT?baud=N" into a Dialer.
func ParseTarget(target string, timeout time.Duration) (Dialer, error) {
	if strings.HasPrefix(target, "serial://") {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse serial target %q: %w", target, err)
		}
		port := u.Host + u.Path
		if port == "" {
			return nil, fmt.Errorf("serial target %q names no port", target)
		}
		baud := DefaultBaudRate
		if s := u.Query().Get("baud"); s != "" {
			if baud, err = strconv.Atoi(s); err != nil || baud <= 0 {
				return nil, fmt.Errorf("serial target %q: bad baud rate %q", target, s)
			}
		}
		return SerialDialer{Port: port, BaudRate: baud, Timeout: timeout}, nil
	}

	if _, _, err := net.SplitHostPort(target); err != nil {
		return nil, fmt.Errorf("tcp target %q: %w", target, err)
	}
	return TCPDialer{Addr: target, Timeout: timeout}, nil
}
