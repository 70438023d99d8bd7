package session

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"os"
	"time"
)

// Conn is the byte stream carrying the IMAP protocol
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// ReadWithTimeout returns (0, nil) when nothing was received before the timeout
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// Dialer opens a transport to the server
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// NetDialer opens a TCP connection, encrypted with TLS unless NoTLS is set
type NetDialer struct {
	NoTLS               bool
	SkipTLSVerification bool
	Timeout             time.Duration
}

func (d *NetDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := &net.Dialer{
		Timeout:   d.Timeout,
		KeepAlive: 30 * time.Second,
	}
	var conn net.Conn
	var err error
	if d.NoTLS {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	} else {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config: &tls.Config{
				InsecureSkipVerify: d.SkipTLSVerification,
			},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, err
	}
	return &netConn{Conn: conn}, nil
}

type netConn struct {
	net.Conn
}

func (c *netConn) Read(p []byte) (int, error) {
	// a previous read with timeout may have left a deadline
	_ = c.Conn.SetReadDeadline(time.Time{})
	return c.Conn.Read(p)
}

func (c *netConn) ReadWithTimeout(p []byte, timeout time.Duration) (int, error) {
	err := c.Conn.SetReadDeadline(time.Now().Add(timeout))
	if err != nil {
		return 0, err
	}
	n, err := c.Conn.Read(p)
	if err != nil && n == 0 && errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, nil
	}
	return n, err
}

var _ Conn = (*netConn)(nil)
