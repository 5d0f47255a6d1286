package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const closeTimeout = 5 * time.Second

// Client holds one persistent connection to a Server. It is safe for
// concurrent use; each call owns the connection for its whole exchange.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	closed bool
}

// Dial connects to the server listening on socketPath.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	log.Debug().Str("socket", socketPath).Msg("connecting to ipc socket")

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrIO, socketPath, err)
	}

	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// SendAction sends one action and waits for its response. A deadline on ctx
// bounds the exchange. A failed exchange closes the client, since a late
// response would otherwise be read as the answer to the next action.
func (c *Client) SendAction(ctx context.Context, action ActionMessage) (ResponseMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ResponseMessage{}, ErrClientClosed
	}

	defer c.applyDeadline(ctx)()

	resp, err := c.exchange(action)
	if err != nil {
		c.abort()
		return ResponseMessage{}, err
	}

	return resp, nil
}

// SendActions sends each action in order and returns the responses in the same
// order. No other caller can interleave with the batch.
func (c *Client) SendActions(ctx context.Context, actions []ActionMessage) ([]ResponseMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}

	defer c.applyDeadline(ctx)()

	responses := make([]ResponseMessage, 0, len(actions))
	for _, action := range actions {
		resp, err := c.exchange(action)
		if err != nil {
			c.abort()
			return nil, err
		}
		responses = append(responses, resp)
	}

	return responses, nil
}

// Close ends the transmission and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	c.closed = true
	defer c.conn.Close()

	if err := c.conn.SetDeadline(time.Now().Add(closeTimeout)); err != nil {
		log.Warn().Err(err).Msg("failed to set ipc deadline")
	}

	resp, err := c.exchange(EndTransmission())
	if err != nil {
		return err
	}
	if resp.Kind != ResponseTransmissionEnded {
		return fmt.Errorf("%w: %s after end of transmission", ErrUnexpectedResponse, resp.Kind)
	}

	return nil
}

// abort drops the connection without ending the transmission. c.mu must be held.
func (c *Client) abort() {
	c.closed = true
	if err := c.conn.Close(); err != nil {
		log.Debug().Err(err).Msg("failed to close broken ipc connection")
	}
}

func (c *Client) exchange(action ActionMessage) (ResponseMessage, error) {
	if err := WriteMessage(c.conn, action); err != nil {
		return ResponseMessage{}, err
	}

	return ReadMessage[ResponseMessage](c.r)
}

// applyDeadline copies the ctx deadline onto the connection and returns a func
// that clears it again.
func (c *Client) applyDeadline(ctx context.Context) func() {
	deadline, ok := ctx.Deadline()
	if !ok {
		return func() {}
	}

	if err := c.conn.SetDeadline(deadline); err != nil {
		log.Warn().Err(err).Msg("failed to set ipc deadline")
	}

	return func() {
		_ = c.conn.SetDeadline(time.Time{})
	}
}
