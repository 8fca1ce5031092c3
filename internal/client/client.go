// Package client is a connection to a duskdb server, grounded on the
// teacher's pkg/db/client.go (SimpleDbClient): one persistent TCP
// connection, reconnect-on-error-response, generalized with Scan and
// Stats alongside Put/Get/Delete.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/duskdb/duskdb/internal/server"
)

// ErrTimeout is returned when a request's context deadline elapses
// before the server responds.
var ErrTimeout = errors.New("duskdb: request timed out")

// Client is a single persistent connection to a duskdb server.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	addr string
}

// Dial connects to address.
func Dial(address string) (*Client, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", address, err)
	}
	return &Client{conn: conn, addr: address}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) reconnect() error {
	c.conn.Close()
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("client: reconnect to %s: %w", c.addr, err)
	}
	c.conn = conn
	return nil
}

// Put stores key/value.
func (c *Client) Put(ctx context.Context, key string, value []byte) (string, error) {
	return c.do(ctx, server.Request{Op: server.OpPut, Key: key, Body: value})
}

// Get retrieves the value stored for key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.do(ctx, server.Request{Op: server.OpGet, Key: key})
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) (string, error) {
	return c.do(ctx, server.Request{Op: server.OpDelete, Key: key})
}

// Scan requests every key in [lo, hi]; an empty bound is open on that
// side. The response body is newline-separated "key\tvalue" pairs.
func (c *Client) Scan(ctx context.Context, lo, hi string) (string, error) {
	return c.do(ctx, server.Request{Op: server.OpScan, Key: lo, EndKey: hi})
}

// Stats requests the server's operation counters and level run counts.
func (c *Client) Stats(ctx context.Context) (string, error) {
	return c.do(ctx, server.Request{Op: server.OpStats})
}

func (c *Client) do(ctx context.Context, req server.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.Write(server.MarshalRequest(req)); err != nil {
		return "", fmt.Errorf("client: send request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
	}
	resp, err := server.ReadResponse(bufio.NewReader(c.conn))
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("client: read response: %w", err)
	}

	body := string(resp.Body)
	if !resp.OK {
		// The server closes the connection after an error response;
		// reconnect so the next call on this Client doesn't write into
		// a dead socket.
		c.reconnect()
		return "", fmt.Errorf("client: server error: %s", strings.TrimSpace(body))
	}
	return body, nil
}
