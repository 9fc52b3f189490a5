// Package broker implements the single request/reply JSON channel to the
// external broker bridge. The bridge is strict request/reply with one
// message in flight at a time; retries and timeouts belong to the caller.
package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Action identifies a broker bridge request type.
type Action string

const (
	ActionPing        Action = "PING"
	ActionAccountInfo Action = "ACCOUNT_INFO"
	ActionGetOrders   Action = "GET_ORDERS"
	ActionGetPositions Action = "GET_POSITIONS"
	ActionRates       Action = "RATES"
	ActionSendOrder   Action = "SEND_ORDER"
)

// Client owns a single persistent connection to the broker bridge.
type Client struct {
	mu      sync.Mutex
	logger  *zap.Logger
	addr    string
	dialer  net.Dialer
	conn    net.Conn
	reader  *bufio.Reader
}

// New constructs a Client targeting the given TCP address. The connection is
// established lazily on first Send.
func New(logger *zap.Logger, addr string) *Client {
	return &Client{logger: logger.Named("broker"), addr: addr}
}

// Connected reports whether the underlying connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect establishes the persistent connection if not already open.
func (c *Client) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dialer.Dial("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("broker: dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Disconnect closes the underlying connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Send issues one request and waits at most timeout for a newline-delimited
// JSON reply. The connection is held for the duration of the call; the
// bridge never has more than one request in flight.
func (c *Client) Send(request map[string]any, timeout time.Duration) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("broker: marshaling request: %w", err)
	}
	payload = append(payload, '\n')

	_ = c.conn.SetDeadline(time.Now().Add(timeout))
	if _, err := c.conn.Write(payload); err != nil {
		c.closeOnErrorLocked()
		return nil, fmt.Errorf("broker: writing request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.closeOnErrorLocked()
		return nil, fmt.Errorf("broker: reading reply: %w", err)
	}

	var reply map[string]any
	if err := json.Unmarshal(line, &reply); err != nil {
		return nil, fmt.Errorf("broker: unmarshaling reply: %w", err)
	}
	return reply, nil
}

func (c *Client) closeOnErrorLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// Ping sends a PING and reports success within the given timeout.
func (c *Client) Ping(timeout time.Duration) bool {
	_, err := c.Send(map[string]any{"action": string(ActionPing)}, timeout)
	return err == nil
}
