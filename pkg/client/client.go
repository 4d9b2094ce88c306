// Package client provides a client library for interacting with the clipbridge
// daemon via its Unix socket API.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Veraticus/clipbridge/pkg/api"
	"github.com/Veraticus/clipbridge/pkg/clipboard"
	"github.com/Veraticus/clipbridge/pkg/config"
	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// DefaultTimeout bounds every request except OUTBOX streams.
const DefaultTimeout = 5 * time.Second

// ErrNotRunning is returned when nothing is listening on the socket.
var ErrNotRunning = errors.New("clipbridge daemon not running")

// ServerError is an ERROR response from the daemon.
type ServerError struct {
	Command api.Command
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed: %s", strings.ToLower(string(e.Command)), e.Message)
}

// Client provides methods to interact with a running clipbridge daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// Config contains configuration for the client.
type Config struct {
	// SocketPath is the path to the Unix domain socket.
	// If empty, uses config.DefaultSocketPath.
	SocketPath string

	// Timeout for operations. Default is DefaultTimeout.
	Timeout time.Duration
}

// New creates a new client with the given configuration.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}

	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = config.DefaultSocketPath()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// SocketPath returns the socket the client connects to.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// CopyText puts plain text on the daemon's clipboard and announces it.
func (c *Client) CopyText(text string) error {
	return c.Copy(clipboard.Text(text))
}

// Copy puts data on the daemon's clipboard and announces it. An empty type
// means plain text.
func (c *Client) Copy(data clipboard.Data) error {
	if data.Type == "" {
		data.Type = protocol.DataTypePlainText
	}
	if err := clipboard.ValidateContent(data, 0); err != nil {
		return fmt.Errorf("content validation failed: %w", err)
	}

	line := fmt.Sprintf("%s %d %s", api.CommandCopy, len(data.Content), data.Type)
	return c.exchange(api.CommandCopy, line, data.Content, expectOK)
}

// Paste returns the daemon's current clipboard content.
func (c *Client) Paste() (clipboard.Data, error) {
	var data clipboard.Data
	err := c.exchange(api.CommandPaste, string(api.CommandPaste), nil, func(header string, r *bufio.Reader) error {
		fields := strings.Fields(header)
		if len(fields) < 2 || fields[0] != string(api.ResponseOK) {
			return fmt.Errorf("invalid response format: %s", header)
		}
		size, err := strconv.Atoi(fields[1])
		if err != nil || size < 0 {
			return fmt.Errorf("invalid response format: %s", header)
		}

		data.Type = protocol.DataTypePlainText
		if len(fields) > 2 {
			data.Type = protocol.DataType(fields[2])
		}
		data.Content = make([]byte, size)
		if _, err := io.ReadFull(r, data.Content); err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		return nil
	})
	return data, err
}

// PasteText returns the daemon's clipboard as a string.
func (c *Client) PasteText() (string, error) {
	data, err := c.Paste()
	if err != nil {
		return "", err
	}
	return string(data.Content), nil
}

// Status retrieves the daemon's current status.
func (c *Client) Status() (*api.StatusResponse, error) {
	var status api.StatusResponse
	if err := c.query(api.CommandStatus, string(api.CommandStatus), api.ResponseStatus, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Inject hands a raw protocol message to the daemon as if a transport had
// received it.
func (c *Client) Inject(message []byte) error {
	if len(message) == 0 {
		return errors.New("message is empty")
	}
	line := fmt.Sprintf("%s %d", api.CommandMessage, len(message))
	return c.exchange(api.CommandMessage, line, message, expectOK)
}

// Send marshals msg and injects it.
func (c *Client) Send(msg protocol.Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	return c.Inject(data)
}

// Register adds or refreshes a peer device.
func (c *Client) Register(device protocol.Device) error {
	body, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("failed to encode device: %w", err)
	}
	line := fmt.Sprintf("%s %d", api.CommandRegister, len(body))
	return c.exchange(api.CommandRegister, line, body, expectOK)
}

// Unregister removes a peer device.
func (c *Client) Unregister(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return errors.New("device id is required")
	}
	line := fmt.Sprintf("%s %s", api.CommandUnregister, deviceID)
	return c.exchange(api.CommandUnregister, line, nil, expectOK)
}

// Devices lists the registered devices.
func (c *Client) Devices() ([]protocol.Device, error) {
	var devices []protocol.Device
	if err := c.query(api.CommandDevices, string(api.CommandDevices), api.ResponseDevices, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Pause stops synchronization until Resume.
func (c *Client) Pause() error {
	return c.exchange(api.CommandPause, string(api.CommandPause), nil, expectOK)
}

// Resume restarts synchronization.
func (c *Client) Resume() error {
	return c.exchange(api.CommandResume, string(api.CommandResume), nil, expectOK)
}

// History returns up to limit stored items, newest first. A limit of zero
// uses the daemon's default.
func (c *Client) History(limit int) ([]protocol.ClipboardItem, error) {
	if limit < 0 {
		return nil, fmt.Errorf("invalid history limit: %d", limit)
	}
	line := string(api.CommandHistory)
	if limit > 0 {
		line = fmt.Sprintf("%s %d", api.CommandHistory, limit)
	}

	var items []protocol.ClipboardItem
	if err := c.query(api.CommandHistory, line, api.ResponseHistory, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Outbox streams every message the daemon sends to handler until ctx is
// cancelled, the daemon closes the stream, or handler returns an error.
// Cancellation and a clean close return nil.
func (c *Client) Outbox(ctx context.Context, handler func(message []byte) error) error {
	conn, err := c.dial()
	if err != nil {
		return c.handleDialError(err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := fmt.Fprintln(conn, api.CommandOutbox); err != nil {
		return fmt.Errorf("failed to send outbox command: %w", err)
	}

	reader := bufio.NewReader(conn)
	if err := c.readHeader(api.CommandOutbox, reader, expectOK); err != nil {
		return err
	}

	// The stream has no deadline; cancellation closes the connection instead.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("failed to clear connection deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		header, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("outbox stream failed: %w", err)
		}

		fields := strings.Fields(header)
		if len(fields) != 2 || fields[0] != string(api.ResponseMessage) {
			return fmt.Errorf("invalid outbox frame: %s", strings.TrimSpace(header))
		}
		size, err := strconv.Atoi(fields[1])
		if err != nil || size <= 0 || size > api.MaxBodySize {
			return fmt.Errorf("invalid outbox frame size: %s", fields[1])
		}

		frame := make([]byte, size)
		if _, err := io.ReadFull(reader, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read outbox frame: %w", err)
		}
		if err := handler(frame); err != nil {
			return err
		}
	}
}

// IsRunning checks if the daemon is running and responsive.
func (c *Client) IsRunning() bool {
	_, err := c.Status()
	return err == nil
}

// query runs a command whose response is "<expected> <json>".
func (c *Client) query(cmd api.Command, line string, expected api.Response, out any) error {
	return c.exchange(cmd, line, nil, func(header string, _ *bufio.Reader) error {
		payload, ok := strings.CutPrefix(header, string(expected)+" ")
		if !ok {
			return fmt.Errorf("invalid %s response: %s", strings.ToLower(string(cmd)), header)
		}
		if err := json.Unmarshal([]byte(payload), out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", strings.ToLower(string(cmd)), err)
		}
		return nil
	})
}

// exchange sends one request and hands the response header to read. ERROR
// responses become a *ServerError.
func (c *Client) exchange(cmd api.Command, line string, body []byte, read func(header string, r *bufio.Reader) error) error {
	conn, err := c.dial()
	if err != nil {
		return c.handleDialError(err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return fmt.Errorf("failed to send %s command: %w", strings.ToLower(string(cmd)), err)
	}
	if len(body) > 0 {
		if _, err := conn.Write(body); err != nil {
			return fmt.Errorf("failed to send %s body: %w", strings.ToLower(string(cmd)), err)
		}
	}

	return c.readHeader(cmd, bufio.NewReader(conn), read)
}

func (c *Client) readHeader(cmd api.Command, reader *bufio.Reader, read func(header string, r *bufio.Reader) error) error {
	header, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("no response from daemon")
		}
		return fmt.Errorf("failed to read response: %w", err)
	}
	header = strings.TrimRight(header, "\r\n")

	if msg, ok := strings.CutPrefix(header, string(api.ResponseError)); ok {
		return &ServerError{Command: cmd, Message: strings.TrimSpace(msg)}
	}
	return read(header, reader)
}

func expectOK(header string, _ *bufio.Reader) error {
	if header != string(api.ResponseOK) {
		return fmt.Errorf("unexpected response: %s", header)
	}
	return nil
}

// dial establishes a connection to the daemon's socket.
func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, err
	}

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	return conn, nil
}

// handleDialError distinguishes a missing daemon from other connection failures.
func (c *Client) handleDialError(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOENT) {
		return fmt.Errorf("%w (socket: %s)", ErrNotRunning, c.socketPath)
	}
	return fmt.Errorf("failed to connect to daemon: %w", err)
}
