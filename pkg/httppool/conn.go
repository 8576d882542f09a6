// Package httppool provides keyed pooling of persistent HTTP connections on
// top of pkg/objpool. A process-wide registry maps (pool key, scheme,
// network location) to one bounded pool, and PooledConn wraps a single
// checkout with explicit acquire/release plus scoped acquisition that
// guarantees release on every exit path.
//
// Connections returned to a pool are checked for unread response data; a
// dirty connection is closed and discarded rather than handed to the next
// caller.
package httppool

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/objpool/pkg/config"
	"github.com/ajitpratap0/objpool/pkg/objpool"
	"github.com/ajitpratap0/objpool/pkg/poolerrors"
)

// Conn is a persistent HTTP/1.1 connection to a single endpoint. It issues
// one request/response exchange at a time over the underlying transport and
// tracks whether the last response was fully consumed, which decides reuse
// eligibility at release time.
type Conn struct {
	netloc string
	scheme string

	conn       net.Conn
	br         *bufio.Reader
	reqTimeout time.Duration // 0 = no per-exchange deadline

	mu       sync.Mutex
	inFlight bool // request written, response not read to EOF
	closed   bool
}

// dial opens a new transport-level connection. Errors surface unchanged as
// pool creation failures.
func dial(ctx context.Context, scheme, netloc string, cfg config.HTTPConfig) (*Conn, error) {
	addr := withDefaultPort(scheme, netloc)

	d := net.Dialer{Timeout: cfg.DialTimeout.Std()}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if scheme == "https" {
		host, _, herr := net.SplitHostPort(addr)
		if herr != nil {
			host = addr
		}
		tc := tls.Client(nc, &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // G402: operator-controlled setting
			MinVersion:         cfg.TLSMinVersion,
		})
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, err
		}
		nc = tc
	}

	return &Conn{
		netloc:     netloc,
		scheme:     scheme,
		conn:       nc,
		br:         bufio.NewReader(nc),
		reqTimeout: cfg.RequestTimeout.Std(),
	}, nil
}

// withDefaultPort appends the scheme's well-known port when the network
// location carries none.
func withDefaultPort(scheme, netloc string) string {
	if strings.Contains(netloc, ":") {
		return netloc
	}
	if scheme == "https" {
		return netloc + ":443"
	}
	return netloc + ":80"
}

// Netloc returns the network location this connection was opened against.
func (c *Conn) Netloc() string { return c.netloc }

// Scheme returns the protocol scheme this connection was opened with.
func (c *Conn) Scheme() string { return c.scheme }

// RoundTrip writes the request and reads the response over the persistent
// connection. The connection stays in-flight until the response body is read
// to EOF; releasing it earlier marks the connection dirty and it will be
// discarded instead of reused.
func (c *Conn) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, poolerrors.New(poolerrors.ErrorTypeConnection,
			"connection is closed").WithDetail("netloc", c.netloc)
	}
	if c.inFlight {
		c.mu.Unlock()
		return nil, poolerrors.New(poolerrors.ErrorTypeConnection,
			"previous response not consumed").WithDetail("netloc", c.netloc)
	}
	c.inFlight = true
	c.mu.Unlock()

	// The deadline covers the whole exchange, body included; it is cleared
	// once the response is read to EOF. A stalled peer fails the exchange
	// instead of holding the caller and its pool slot forever.
	if c.reqTimeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.reqTimeout)); err != nil {
			return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConnection,
				"failed to set request deadline").WithDetail("netloc", c.netloc)
		}
	}

	if err := req.Write(c.conn); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConnection,
			"failed to write request").WithDetail("netloc", c.netloc)
	}

	resp, err := http.ReadResponse(c.br, req)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConnection,
			"failed to read response").WithDetail("netloc", c.netloc)
	}

	resp.Body = &trackedBody{body: resp.Body, conn: c}
	return resp, nil
}

// Dirty reports whether the connection has unread pending data: an in-flight
// response that was never consumed, or bytes sitting in the read buffer.
// Reusing such a connection would hand a stale response to the next caller.
func (c *Conn) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight || c.br.Buffered() > 0
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts down the underlying transport. It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Conn) finishResponse() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
	if c.reqTimeout > 0 {
		c.conn.SetDeadline(time.Time{})
	}
}

// trackedBody clears the in-flight flag once the response body has been read
// to EOF. A body closed before EOF leaves the connection in-flight, so the
// dirty check catches it at release time.
type trackedBody struct {
	body io.ReadCloser
	conn *Conn
	done bool
}

func (b *trackedBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err == io.EOF && !b.done {
		b.done = true
		b.conn.finishResponse()
	}
	return n, err
}

func (b *trackedBody) Close() error {
	return b.body.Close()
}

// lifecycle builds the objpool hooks for connections to one endpoint:
// create dials, verify rejects closed connections, cleanup reports a
// connection broken (and closes it) when it is closed or dirty.
func lifecycle(scheme, netloc string, cfg config.HTTPConfig) objpool.HookFuncs[*Conn] {
	return objpool.HookFuncs[*Conn]{
		CreateFunc: func(ctx context.Context) (*Conn, error) {
			return dial(ctx, scheme, netloc, cfg)
		},
		VerifyFunc: func(c *Conn) bool {
			return c != nil && !c.Closed()
		},
		CleanupFunc: func(c *Conn) bool {
			if c == nil {
				return true
			}
			if c.Closed() || c.Dirty() {
				c.Close()
				return true
			}
			return false
		},
	}
}
