package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
)

// Client is a host-side connection to the server, used for debugging and tests
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// Dial connects to the endpoint at path
func Dial(ctx context.Context, path string) (*Client, error) {
	network, addr := "unix", path
	if runtime.GOOS == "windows" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read endpoint file %s: %w", path, err)
		}
		network, addr = "tcp", strings.TrimSpace(string(data))
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Send writes v as one JSON line
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.SendRaw(data)
}

// SendRaw writes line followed by a newline without validating it
func (c *Client) SendRaw(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Receive reads the next line and returns its type and raw JSON
func (c *Client) Receive() (string, json.RawMessage, error) {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return "", nil, err
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return "", nil, fmt.Errorf("decode: %w", err)
	}
	return envelope.Type, json.RawMessage(bytes.TrimSpace(line)), nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}
