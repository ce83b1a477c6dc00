// Package iiod implements a minimal client for the IIOD text protocol as
// spoken by PlutoSDR-class devices. It covers attribute access, device
// listing, and streaming buffers; enough to drive an AD9361 transmit chain.
package iiod

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	dialTimeout      = 3 * time.Second
	defaultIOTimeout = 5 * time.Second
)

// ContextInfo describes the remote IIOD server.
type ContextInfo struct {
	Major       int
	Minor       int
	Description string
}

// Client is a synchronous IIOD text-protocol client. All commands share one
// TCP connection; concurrent calls are serialized internally.
type Client struct {
	mu      sync.Mutex
	uri     string
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	timeout time.Duration
}

// Dial connects to an IIOD server at uri (host:port).
func Dial(uri string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", uri, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to IIOD at %s: %w", uri, err)
	}
	return &Client{
		uri:     uri,
		conn:    conn,
		reader:  bufio.NewReader(conn),
		writer:  bufio.NewWriter(conn),
		timeout: defaultIOTimeout,
	}, nil
}

// SetTimeout adjusts the per-command I/O deadline.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.timeout = d
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// exec sends one command line (plus an optional length-prefixed binary
// payload) and returns the reply payload. Replies are framed as
// "<status> <length>\n" followed by <length> payload bytes; a non-zero
// status carries an error message in the payload.
func (c *Client) exec(cmd string, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("client closed")
	}

	deadline := time.Now().Add(c.timeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	if _, err := c.writer.WriteString(cmd); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}
	if payload != nil {
		var lengthPrefix [4]byte
		binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(payload)))
		if _, err := c.writer.Write(lengthPrefix[:]); err != nil {
			return nil, fmt.Errorf("send payload length: %w", err)
		}
		if _, err := c.writer.Write(payload); err != nil {
			return nil, fmt.Errorf("send payload: %w", err)
		}
	}
	if err := c.writer.Flush(); err != nil {
		return nil, fmt.Errorf("flush command: %w", err)
	}

	header, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read reply header: %w", err)
	}
	fields := strings.Fields(header)
	if len(fields) != 2 {
		return nil, fmt.Errorf("malformed reply header %q", strings.TrimSpace(header))
	}
	status, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("malformed reply status %q", fields[0])
	}
	length, err := strconv.Atoi(fields[1])
	if err != nil || length < 0 {
		return nil, fmt.Errorf("malformed reply length %q", fields[1])
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read reply payload: %w", err)
	}

	if status != 0 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = "no detail"
		}
		return nil, fmt.Errorf("IIOD status %d: %s", status, msg)
	}
	return body, nil
}

func (c *Client) execString(cmd string) (string, error) {
	body, err := c.exec(cmd, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// GetContextInfo queries the server version banner.
func (c *Client) GetContextInfo() (ContextInfo, error) {
	payload, err := c.execString("VERSION")
	if err != nil {
		return ContextInfo{}, err
	}
	fields := strings.SplitN(payload, " ", 3)
	if len(fields) < 2 {
		return ContextInfo{}, fmt.Errorf("malformed VERSION payload %q", payload)
	}
	major, err := strconv.Atoi(fields[0])
	if err != nil {
		return ContextInfo{}, fmt.Errorf("malformed VERSION major %q", fields[0])
	}
	minor, err := strconv.Atoi(fields[1])
	if err != nil {
		return ContextInfo{}, fmt.Errorf("malformed VERSION minor %q", fields[1])
	}
	info := ContextInfo{Major: major, Minor: minor}
	if len(fields) == 3 {
		info.Description = fields[2]
	}
	return info, nil
}

// ListDevices returns the device identifiers exposed by the context.
func (c *Client) ListDevices() ([]string, error) {
	payload, err := c.execString("LIST_DEVICES")
	if err != nil {
		return nil, err
	}
	if payload == "" {
		return []string{}, nil
	}
	return strings.Fields(payload), nil
}

// GetChannels returns the channel identifiers of a device.
func (c *Client) GetChannels(dev string) ([]string, error) {
	payload, err := c.execString("LIST_CHANNELS " + dev)
	if err != nil {
		return nil, err
	}
	if payload == "" {
		return []string{}, nil
	}
	return strings.Fields(payload), nil
}

// ReadAttr reads a device or channel attribute. An empty channel addresses
// a device-level attribute.
func (c *Client) ReadAttr(dev, ch, attr string) (string, error) {
	var cmd string
	if ch == "" {
		cmd = fmt.Sprintf("READ_ATTR %s %s", dev, attr)
	} else {
		cmd = fmt.Sprintf("READ_ATTR %s %s %s", dev, ch, attr)
	}
	return c.execString(cmd)
}

// WriteAttr writes a device or channel attribute.
func (c *Client) WriteAttr(dev, ch, attr, value string) error {
	var cmd string
	if ch == "" {
		cmd = fmt.Sprintf("WRITE_ATTR %s %s %s", dev, attr, value)
	} else {
		cmd = fmt.Sprintf("WRITE_ATTR %s %s %s %s", dev, ch, attr, value)
	}
	_, err := c.exec(cmd, nil)
	return err
}
