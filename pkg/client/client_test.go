package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/clipbridge/pkg/api"
	"github.com/Veraticus/clipbridge/pkg/clipboard"
	"github.com/Veraticus/clipbridge/pkg/config"
	"github.com/Veraticus/clipbridge/pkg/protocol"
	clipsync "github.com/Veraticus/clipbridge/pkg/sync"
	"github.com/Veraticus/clipbridge/pkg/testutil"
)

// request is what the mock server saw.
type request struct {
	line string
	body []byte
}

// mockServer answers every connection with a fixed response and records the
// requests it received.
type mockServer struct {
	listener net.Listener
	response string
	mu       sync.Mutex
	requests []request
}

func newMockServer(t *testing.T, response string) (*mockServer, string) {
	t.Helper()

	socketPath := testutil.SocketPath(t)
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	s := &mockServer{listener: listener, response: response}
	go s.acceptLoop()
	t.Cleanup(func() { _ = listener.Close() })
	return s, socketPath
}

func (s *mockServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *mockServer) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	line = strings.TrimSpace(line)

	var body []byte
	fields := strings.Fields(line)
	switch fields[0] {
	case "COPY", "MESSAGE", "REGISTER":
		if len(fields) > 1 {
			if size, err := strconv.Atoi(fields[1]); err == nil && size > 0 {
				body = make([]byte, size)
				_, _ = io.ReadFull(reader, body)
			}
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, request{line: line, body: body})
	s.mu.Unlock()

	_, _ = conn.Write([]byte(s.response))
}

func (s *mockServer) last(t *testing.T) request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

func TestNew(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	tests := []struct {
		name        string
		cfg         *Config
		wantSocket  string
		wantTimeout time.Duration
	}{
		{
			name:        "nil config uses defaults",
			wantSocket:  config.DefaultSocketPath(),
			wantTimeout: DefaultTimeout,
		},
		{
			name:        "custom socket path",
			cfg:         &Config{SocketPath: "/custom/path.sock"},
			wantSocket:  "/custom/path.sock",
			wantTimeout: DefaultTimeout,
		},
		{
			name:        "custom timeout",
			cfg:         &Config{Timeout: 10 * time.Second},
			wantSocket:  config.DefaultSocketPath(),
			wantTimeout: 10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.cfg)
			assert.Equal(t, tt.wantSocket, c.SocketPath())
			assert.Equal(t, tt.wantTimeout, c.timeout)
		})
	}
}

func TestCopy(t *testing.T) {
	tests := []struct {
		name        string
		data        clipboard.Data
		response    string
		wantLine    string
		errContains string
	}{
		{
			name:     "plain text",
			data:     clipboard.Text("Hello, World!"),
			response: "OK\n",
			wantLine: "COPY 13 text/plain",
		},
		{
			name:     "untyped defaults to text",
			data:     clipboard.Data{Content: []byte("hi")},
			response: "OK\n",
			wantLine: "COPY 2 text/plain",
		},
		{
			name:     "html",
			data:     clipboard.Data{Type: protocol.DataTypeHTML, Content: []byte("<i>x</i>")},
			response: "OK\n",
			wantLine: "COPY 8 text/html",
		},
		{
			name:        "server error",
			data:        clipboard.Text("test"),
			response:    "ERROR copy failed: content looks sensitive\n",
			errContains: "copy failed: copy failed: content looks sensitive",
		},
		{
			name:        "unexpected response",
			data:        clipboard.Text("test"),
			response:    "MAYBE\n",
			errContains: "unexpected response: MAYBE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, socket := newMockServer(t, tt.response)
			c := New(&Config{SocketPath: socket, Timeout: 2 * time.Second})

			err := c.Copy(tt.data)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			req := server.last(t)
			assert.Equal(t, tt.wantLine, req.line)
			assert.Equal(t, tt.data.Content, req.body)
		})
	}
}

func TestCopyValidatesLocally(t *testing.T) {
	c := New(&Config{SocketPath: "/nonexistent/cb.sock"})

	err := c.CopyText(strings.Repeat("x", protocol.DefaultMaxItemSize+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, clipboard.ErrContentTooLarge)

	err = c.Copy(clipboard.Data{Type: "application/x-unknown", Content: []byte("x")})
	assert.ErrorIs(t, err, clipboard.ErrUnsupportedType)

	err = c.Copy(clipboard.Data{Type: protocol.DataTypePlainText, Content: []byte{0xff, 0xfe}})
	assert.ErrorIs(t, err, clipboard.ErrInvalidText)
}

func TestPaste(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		want        clipboard.Data
		errContains string
	}{
		{
			name:     "text",
			response: "OK 13 text/plain\nHello, World!",
			want:     clipboard.Text("Hello, World!"),
		},
		{
			name:     "untyped header",
			response: "OK 2\nhi",
			want:     clipboard.Text("hi"),
		},
		{
			name:     "empty clipboard",
			response: "OK 0 text/plain\n",
			want:     clipboard.Data{Type: protocol.DataTypePlainText, Content: []byte{}},
		},
		{
			name:        "server error",
			response:    "ERROR failed to read clipboard: no tool\n",
			errContains: "paste failed: failed to read clipboard: no tool",
		},
		{
			name:        "invalid response format",
			response:    "INVALID\n",
			errContains: "invalid response format",
		},
		{
			name:        "short content",
			response:    "OK 10 text/plain\nabc",
			errContains: "failed to read content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, socket := newMockServer(t, tt.response)
			c := New(&Config{SocketPath: socket, Timeout: 2 * time.Second})

			got, err := c.Paste()
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerErrorType(t *testing.T) {
	_, socket := newMockServer(t, "ERROR history is not available\n")
	c := New(&Config{SocketPath: socket})

	_, err := c.History(5)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, api.CommandHistory, serverErr.Command)
	assert.Equal(t, "history is not available", serverErr.Message)
}

func TestQueryCommands(t *testing.T) {
	devices := []protocol.Device{{ID: "dev-a", Name: "a", Platform: protocol.PlatformLinux, PublicKey: "pk", LastSeen: 1}}
	body, err := json.Marshal(devices)
	require.NoError(t, err)

	server, socket := newMockServer(t, "DEVICES "+string(body)+"\n")
	c := New(&Config{SocketPath: socket})

	got, err := c.Devices()
	require.NoError(t, err)
	assert.Equal(t, devices, got)
	assert.Equal(t, "DEVICES", server.last(t).line)

	// A response of the wrong kind is rejected.
	_, err = c.Status()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status response")
}

func TestHistoryLimit(t *testing.T) {
	server, socket := newMockServer(t, "HISTORY []\n")
	c := New(&Config{SocketPath: socket})

	_, err := c.History(0)
	require.NoError(t, err)
	assert.Equal(t, "HISTORY", server.last(t).line)

	_, err = c.History(7)
	require.NoError(t, err)
	assert.Equal(t, "HISTORY 7", server.last(t).line)

	_, err = c.History(-1)
	assert.Error(t, err)
}

func TestSimpleCommands(t *testing.T) {
	server, socket := newMockServer(t, "OK\n")
	c := New(&Config{SocketPath: socket})

	require.NoError(t, c.Pause())
	assert.Equal(t, "PAUSE", server.last(t).line)

	require.NoError(t, c.Resume())
	assert.Equal(t, "RESUME", server.last(t).line)

	require.NoError(t, c.Unregister("dev-a"))
	assert.Equal(t, "UNREGISTER dev-a", server.last(t).line)
	assert.Error(t, c.Unregister(" "))

	require.NoError(t, c.Inject([]byte(`{"type":"ping"}`)))
	req := server.last(t)
	assert.Equal(t, "MESSAGE 15", req.line)
	assert.Equal(t, `{"type":"ping"}`, string(req.body))
	assert.Error(t, c.Inject(nil))
}

func TestDaemonNotRunning(t *testing.T) {
	socket := testutil.SocketPath(t)
	c := New(&Config{SocketPath: socket, Timeout: 100 * time.Millisecond})

	err := c.Pause()
	require.ErrorIs(t, err, ErrNotRunning)
	assert.Contains(t, err.Error(), socket)
	assert.False(t, c.IsRunning())

	// A leftover socket file with nobody listening.
	require.NoError(t, os.WriteFile(socket, nil, 0o600))
	assert.False(t, c.IsRunning())
}

func TestNoResponse(t *testing.T) {
	_, socket := newMockServer(t, "")
	c := New(&Config{SocketPath: socket})

	err := c.Pause()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response from daemon")
}

// daemon starts a real API server over an in-memory clipboard.
func daemon(t *testing.T) (*Client, clipsync.Engine, *clipboard.MemoryClipboard) {
	t.Helper()

	const selfID = "dev-self"
	clip := clipboard.NewMemoryClipboard()
	broadcaster := api.NewBroadcaster(selfID, nil)

	var monitor *clipboard.Monitor
	engine, err := clipsync.NewEngine(&clipsync.Config{
		DeviceID: selfID,
		Subscribers: []clipsync.Subscriber{
			broadcaster,
			clipsync.SubscriberFunc(func(event clipsync.Event) error { return monitor.HandleEvent(event) }),
		},
	})
	require.NoError(t, err)

	monitor, err = clipboard.NewMonitor(clipboard.MonitorConfig{
		Clipboard: clip,
		Send:      engine.SendItem,
		DeviceID:  selfID,
		Policy:    clipboard.PolicyFromConfig(protocol.DefaultConfig()),
	})
	require.NoError(t, err)

	socket := testutil.SocketPath(t)
	server, err := api.NewServer(&api.ServerConfig{
		Clipboard:   monitor,
		Engine:      engine,
		Broadcaster: broadcaster,
		SocketPath:  socket,
		DeviceName:  "it",
		Version:     "test",
	})
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		_ = server.Stop()
		broadcaster.Close()
	})

	return New(&Config{SocketPath: socket}), engine, clip
}

func TestAgainstDaemon(t *testing.T) {
	c, engine, clip := daemon(t)
	require.True(t, c.IsRunning())

	require.NoError(t, c.CopyText("round trip"))
	text, err := c.PasteText()
	require.NoError(t, err)
	assert.Equal(t, "round trip", text)

	peer := protocol.Device{ID: "dev-peer", Name: "peer", Platform: protocol.PlatformMacOS, PublicKey: "pk", LastSeen: time.Now().UnixMilli()}
	require.NoError(t, c.Register(peer))
	devices, err := c.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-peer", devices[0].ID)

	item := protocol.NewClipboardItem("dev-peer", protocol.DataTypePlainText, []byte("pushed"), protocol.ClipboardMetadata{})
	msg, err := protocol.NewMessage(protocol.MessageClipboardUpdate, "dev-peer", item)
	require.NoError(t, err)
	require.NoError(t, c.Send(msg))

	data, err := clip.Read()
	require.NoError(t, err)
	assert.Equal(t, "pushed", string(data.Content))

	require.NoError(t, c.Pause())
	status, err := c.Status()
	require.NoError(t, err)
	assert.True(t, status.Paused)
	assert.Equal(t, uint64(1), status.Stats.ItemsSent)
	assert.Equal(t, uint64(1), status.Stats.ItemsReceived)
	require.NoError(t, c.Resume())

	require.NoError(t, c.Unregister("dev-peer"))
	assert.Empty(t, engine.Devices())

	// No history store is configured.
	_, err = c.History(0)
	var serverErr *ServerError
	assert.ErrorAs(t, err, &serverErr)
}

func TestOutboxAgainstDaemon(t *testing.T) {
	c, _, _ := daemon(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	frames := make(chan []byte, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Outbox(ctx, func(message []byte) error {
			frames <- message
			return nil
		})
	}()

	// Copy until the stream is attached; earlier copies are not buffered.
	var frame []byte
	require.Eventually(t, func() bool {
		if err := c.CopyText(fmt.Sprintf("out-%d", time.Now().UnixNano())); err != nil {
			return false
		}
		select {
		case frame = <-frames:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	msg, err := protocol.UnmarshalMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageClipboardUpdate, msg.Type)
	assert.Equal(t, "dev-self", msg.From)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("outbox did not stop after cancel")
	}
}

func TestOutboxHandlerError(t *testing.T) {
	c, _, _ := daemon(t)

	stop := fmt.Errorf("stop")
	done := make(chan error, 1)
	go func() {
		done <- c.Outbox(t.Context(), func([]byte) error { return stop })
	}()

	require.Eventually(t, func() bool {
		_ = c.CopyText(fmt.Sprintf("out-%d", time.Now().UnixNano()))
		select {
		case err := <-done:
			return assert.ErrorIs(t, err, stop)
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)
}
