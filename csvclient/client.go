package csvclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geoyogesh/csvscan/internal/sql/executor"
	"github.com/geoyogesh/csvscan/server/csvwire"
)

// ServerError is a statement failure reported by the server. A result that
// was too large for a frame is reported the same way with KindResultTooLarge.
type ServerError struct {
	Kind    csvwire.ErrorKind
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// Client is a simple synchronous client.
// It locks send/recv so you can call Exec concurrently but they'll serialize.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	id   atomic.Uint64

	// Optional per-request timeout (0 = no timeout).
	rwTimeout time.Duration
}

func Dial(addr string, timeout time.Duration) (*Client, error) {
	return DialContext(context.Background(), addr, timeout)
}

func DialContext(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(c), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// SetRWTimeout sets a per-Exec read/write deadline.
// Useful to avoid hanging forever if server dies.
func (c *Client) SetRWTimeout(d time.Duration) {
	if c == nil {
		return
	}
	c.rwTimeout = d
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Exec(sql string) (*executor.Result, error) {
	return c.ExecContext(context.Background(), sql)
}

func (c *Client) ExecContext(ctx context.Context, sql string) (*executor.Result, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("csvclient: nil client")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqID := c.id.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Apply deadline if configured or context has deadline.
	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}
	defer func() {
		// Clear deadline after request so idle connection doesn't expire.
		_ = c.conn.SetDeadline(time.Time{})
	}()

	req := csvwire.ExecuteRequest{ID: reqID, SQL: sql}
	if err := csvwire.WriteFrame(c.conn, req); err != nil {
		return nil, err
	}

	var resp csvwire.ExecuteResponse
	if err := csvwire.ReadFrame(c.conn, &resp); err != nil {
		if errors.Is(err, csvwire.ErrFrameTooLarge) {
			return nil, &ServerError{Kind: csvwire.KindResultTooLarge, Message: err.Error()}
		}
		return nil, err
	}

	if resp.ID != reqID {
		return nil, fmt.Errorf("csvclient: response id mismatch: got=%d want=%d", resp.ID, reqID)
	}
	if resp.Error != "" {
		return nil, &ServerError{Kind: resp.ErrorKind, Message: resp.Error}
	}
	if resp.Result == nil {
		return &executor.Result{}, nil
	}
	return resp.Result, nil
}

func (c *Client) applyDeadline(ctx context.Context) error {
	// Prefer context deadline if present; otherwise use rwTimeout.
	if dl, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(dl)
	}
	if c.rwTimeout > 0 {
		return c.conn.SetDeadline(time.Now().Add(c.rwTimeout))
	}
	return nil
}
