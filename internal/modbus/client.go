package modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is one TCP session to a Modbus slave. Requests are serialized;
// there is never more than one in flight, which is what pairs a response
// with its request.
type Client struct {
	address   string
	conn      net.Conn
	mu        sync.Mutex
	timeout   time.Duration
	connected bool
	nextTxID  func() uint16
}

type ClientOption func(*Client)

// WithTransactionIDs supplies transaction ids from an external counter so
// they keep increasing across sessions to the same machine.
func WithTransactionIDs(next func() uint16) ClientOption {
	return func(c *Client) { c.nextTxID = next }
}

func NewClient(address string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		address: address,
		timeout: timeout,
	}
	var txID uint16
	c.nextTxID = func() uint16 {
		txID++
		return txID
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Address() string {
	return c.address
}

// Connect opens the TCP connection, bounded by the client timeout.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

// SendFrame writes request and waits for one response frame. The wait
// ends at the client timeout or when ctx is done, whichever is first. Any
// I/O failure closes the session since the stream can no longer be
// trusted to be frame aligned.
func (c *Client) SendFrame(ctx context.Context, request *ModbusFrame) (*ModbusFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, errors.New("not connected")
	}

	request.TransactionID = c.nextTxID()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.fail(fmt.Errorf("set deadline: %w", err))
	}

	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(request.Encode()); err != nil {
		return nil, c.fail(c.ctxErr(ctx, fmt.Errorf("write failed: %w", err)))
	}

	response, err := ReadFrame(conn)
	if err != nil {
		return nil, c.fail(c.ctxErr(ctx, fmt.Errorf("read failed: %w", err)))
	}

	return response, nil
}

// ReadHoldingRegisters reads quantity registers starting at startAddr.
func (c *Client) ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error) {
	if quantity == 0 || quantity > MaxReadQuantity {
		return nil, fmt.Errorf("invalid register quantity %d", quantity)
	}

	request := ReadHoldingRegistersRequest(0, unitID, startAddr, quantity)

	response, err := c.SendFrame(ctx, request)
	if err != nil {
		return nil, err
	}

	return response.ParseRegisterResponse(quantity)
}

// WriteSingleRegister writes one register and checks the echoed value.
func (c *Client) WriteSingleRegister(ctx context.Context, unitID uint8, addr uint16, value uint16) error {
	request := WriteSingleRegisterRequest(0, unitID, addr, value)

	response, err := c.SendFrame(ctx, request)
	if err != nil {
		return err
	}
	if err := response.Exception(); err != nil {
		return err
	}

	echoAddr, echoValue, err := response.AddressQuantity()
	if err != nil {
		return err
	}
	if echoAddr != addr || echoValue != value {
		return fmt.Errorf("write echo mismatch: wrote %d=%d, got %d=%d", addr, value, echoAddr, echoValue)
	}
	return nil
}

// fail closes the connection; the caller holds c.mu.
func (c *Client) fail(err error) error {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.connected = false
	return err
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
