package api

import (
	"bufio"
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

	"github.com/Veraticus/clipbridge/pkg/clipboard"
	"github.com/Veraticus/clipbridge/pkg/protocol"
	"github.com/Veraticus/clipbridge/pkg/storage"
	clipsync "github.com/Veraticus/clipbridge/pkg/sync"
	"github.com/Veraticus/clipbridge/pkg/testutil"
)

const selfID = "dev-self"

type fixture struct {
	server      *Server
	engine      clipsync.Engine
	clip        *clipboard.MemoryClipboard
	monitor     *clipboard.Monitor
	recorder    *clipsync.Recorder
	broadcaster *Broadcaster
	history     *storage.MemoryStorage
	socket      string
}

// newFixture wires a real engine, monitor and broadcaster behind a started
// server. mutate may adjust the server config before it is built.
func newFixture(t *testing.T, mutate ...func(*ServerConfig)) *fixture {
	t.Helper()

	f := &fixture{
		clip:        clipboard.NewMemoryClipboard(),
		recorder:    clipsync.NewRecorder(64),
		broadcaster: NewBroadcaster(selfID, nil),
		history:     storage.NewMemoryStorage(),
		socket:      testutil.SocketPath(t),
	}

	// The monitor sends into the engine and is also one of its subscribers.
	applier := clipsync.SubscriberFunc(func(event clipsync.Event) error {
		return f.monitor.HandleEvent(event)
	})

	engine, err := clipsync.NewEngine(&clipsync.Config{
		DeviceID: selfID,
		Subscribers: []clipsync.Subscriber{
			f.recorder,
			applier,
			f.broadcaster,
			storage.NewHistoryRecorder(f.history, nil),
		},
	})
	require.NoError(t, err)
	f.engine = engine

	f.monitor, err = clipboard.NewMonitor(clipboard.MonitorConfig{
		Clipboard: f.clip,
		Send:      engine.SendItem,
		DeviceID:  selfID,
		Policy:    clipboard.PolicyFromConfig(protocol.DefaultConfig()),
	})
	require.NoError(t, err)

	cfg := &ServerConfig{
		Clipboard:   f.monitor,
		Engine:      engine,
		History:     f.history,
		Broadcaster: f.broadcaster,
		Recorder:    f.recorder,
		SocketPath:  f.socket,
		DeviceName:  "test-box",
		Version:     "test",
	}
	for _, m := range mutate {
		m(cfg)
	}

	f.server, err = NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, f.server.Start())
	t.Cleanup(func() {
		_ = f.server.Stop()
		f.broadcaster.Close()
	})
	return f
}

// roundTrip sends one command and returns everything the server wrote before
// closing the connection.
func (f *fixture) roundTrip(t *testing.T, line string, body []byte) string {
	t.Helper()

	conn, err := net.Dial("unix", f.socket)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
	if len(body) > 0 {
		_, err = conn.Write(body)
		require.NoError(t, err)
	}

	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(out)
}

func (f *fixture) copyText(t *testing.T, text string) string {
	t.Helper()
	return f.roundTrip(t, fmt.Sprintf("COPY %d", len(text)), []byte(text))
}

func (f *fixture) status(t *testing.T) StatusResponse {
	t.Helper()

	resp := f.roundTrip(t, "STATUS", nil)
	require.True(t, strings.HasPrefix(resp, "STATUS "), "unexpected response %q", resp)

	var status StatusResponse
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(resp), "STATUS ")), &status))
	return status
}

func peer(id string) protocol.Device {
	return protocol.Device{
		ID:        id,
		Name:      "peer " + id,
		Platform:  protocol.PlatformLinux,
		PublicKey: "pk-" + id,
		LastSeen:  time.Now().UnixMilli(),
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestNewServerValidation(t *testing.T) {
	clip := clipboard.NewMemoryClipboard()
	monitor, err := clipboard.NewMonitor(clipboard.MonitorConfig{
		Clipboard: clip,
		Send:      func(protocol.ClipboardItem) {},
		DeviceID:  selfID,
	})
	require.NoError(t, err)
	engine, err := clipsync.NewEngine(&clipsync.Config{DeviceID: selfID})
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     *ServerConfig
		wantErr string
	}{
		{
			name:    "missing socket",
			cfg:     &ServerConfig{Clipboard: monitor, Engine: engine},
			wantErr: "socket path is required",
		},
		{
			name:    "missing clipboard",
			cfg:     &ServerConfig{SocketPath: "/tmp/x.sock", Engine: engine},
			wantErr: "clipboard is required",
		},
		{
			name:    "missing engine",
			cfg:     &ServerConfig{SocketPath: "/tmp/x.sock", Clipboard: monitor},
			wantErr: "sync engine is required",
		},
		{
			name: "minimal",
			cfg:  &ServerConfig{SocketPath: "/tmp/x.sock", Clipboard: monitor, Engine: engine},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.cfg)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				assert.Nil(t, server)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, server)
		})
	}
}

func TestServerSocketLifecycle(t *testing.T) {
	f := newFixture(t)

	info, err := os.Stat(f.socket)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, f.server.Stop())
	_, err = os.Stat(f.socket)
	assert.True(t, os.IsNotExist(err), "socket should be removed on stop")
}

func TestServerReplacesStaleSocket(t *testing.T) {
	socket := testutil.SocketPath(t)
	require.NoError(t, os.WriteFile(socket, []byte("stale"), 0o600))

	f := newFixture(t, func(cfg *ServerConfig) { cfg.SocketPath = socket })
	assert.Equal(t, "OK\n", f.roundTrip(t, "PAUSE", nil))
}

func TestCopyAndPaste(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "OK\n", f.copyText(t, "hello world"))

	data, err := f.clip.Read()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data.Content))

	stats := f.engine.Stats()
	assert.Equal(t, uint64(1), stats.ItemsSent)

	assert.Equal(t, "OK 11 text/plain\nhello world", f.roundTrip(t, "PASTE", nil))
}

func TestCopyWithExplicitType(t *testing.T) {
	f := newFixture(t)

	html := "<b>bold</b>"
	assert.Equal(t, "OK\n", f.roundTrip(t, fmt.Sprintf("COPY %d text/html", len(html)), []byte(html)))

	resp := f.roundTrip(t, "PASTE", nil)
	assert.Equal(t, fmt.Sprintf("OK %d text/html\n%s", len(html), html), resp)
}

func TestCopyRefusedByPolicy(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetPolicy(clipboard.Policy{SyncImages: false})

	resp := f.roundTrip(t, "COPY 4 image/png", []byte{0x89, 'P', 'N', 'G'})
	assert.True(t, strings.HasPrefix(resp, "ERROR copy failed: "), resp)
	assert.Contains(t, resp, clipboard.ErrImagesDisabled.Error())
	assert.Zero(t, f.engine.Stats().ItemsSent)
}

func TestCopySensitiveContentRejected(t *testing.T) {
	f := newFixture(t)

	secret := "password: hunter2"
	require.NotEmpty(t, protocol.MatchSensitive(secret))

	resp := f.copyText(t, secret)
	assert.True(t, strings.HasPrefix(resp, "ERROR "), resp)
	assert.Contains(t, resp, "sensitive")
}

func TestPasteEmptyClipboard(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "OK 0 text/plain\n", f.roundTrip(t, "PASTE", nil))
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "OK\n", f.copyText(t, "status check"))

	status := f.status(t)
	assert.Equal(t, selfID, status.DeviceID)
	assert.Equal(t, "test-box", status.DeviceName)
	assert.Equal(t, "test", status.Version)
	assert.Equal(t, string(clipsync.StateIdle), status.State)
	assert.False(t, status.Paused)
	assert.Empty(t, status.LastError)
	assert.Equal(t, 1, status.RecentItems)
	assert.Equal(t, uint64(1), status.Stats.ItemsSent)
	assert.NotEmpty(t, status.Stats.LastSyncTime)
	require.NotNil(t, status.Monitor)
	assert.Equal(t, uint64(1), status.Monitor.Captured)
}

func TestStatusReportsLastError(t *testing.T) {
	f := newFixture(t)

	f.engine.ProcessIncomingItem("not an item")

	status := f.status(t)
	assert.Contains(t, status.LastError, clipsync.ErrInvalidItem.Error())
	assert.Equal(t, uint64(1), status.Stats.InvalidItems)
}

func TestRegisterDevicesUnregister(t *testing.T) {
	f := newFixture(t)

	body := mustJSON(t, peer("dev-b"))
	assert.Equal(t, "OK\n", f.roundTrip(t, fmt.Sprintf("REGISTER %d", len(body)), body))

	body = mustJSON(t, peer("dev-a"))
	assert.Equal(t, "OK\n", f.roundTrip(t, fmt.Sprintf("REGISTER %d", len(body)), body))

	resp := f.roundTrip(t, "DEVICES", nil)
	require.True(t, strings.HasPrefix(resp, "DEVICES "), resp)
	var devices []protocol.Device
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(resp), "DEVICES ")), &devices))
	require.Len(t, devices, 2)
	assert.Equal(t, "dev-a", devices[0].ID)
	assert.Equal(t, "dev-b", devices[1].ID)

	assert.Equal(t, []string{"dev-a", "dev-b"}, f.status(t).Devices)

	assert.Equal(t, "OK\n", f.roundTrip(t, "UNREGISTER dev-a", nil))
	_, ok := f.engine.Device("dev-a")
	assert.False(t, ok)
	assert.Len(t, f.recorder.OfType(clipsync.EventDeviceDisconnected), 1)

	// Unknown ids are ignored.
	assert.Equal(t, "OK\n", f.roundTrip(t, "UNREGISTER dev-zzz", nil))
}

func TestRegisterInvalidDevice(t *testing.T) {
	f := newFixture(t)

	device := peer("dev-b")
	device.PublicKey = ""
	body := mustJSON(t, device)

	resp := f.roundTrip(t, fmt.Sprintf("REGISTER %d", len(body)), body)
	assert.True(t, strings.HasPrefix(resp, "ERROR "), resp)
	assert.Empty(t, f.engine.Devices())
}

func TestMessageAppliesItem(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.RegisterDevice(peer("dev-peer")))

	item := protocol.NewClipboardItem("dev-peer", protocol.DataTypePlainText, []byte("from peer"), protocol.ClipboardMetadata{})
	msg, err := protocol.NewMessage(protocol.MessageClipboardUpdate, "dev-peer", item)
	require.NoError(t, err)
	body, err := msg.Marshal()
	require.NoError(t, err)

	assert.Equal(t, "OK\n", f.roundTrip(t, fmt.Sprintf("MESSAGE %d", len(body)), body))

	data, err := f.clip.Read()
	require.NoError(t, err)
	assert.Equal(t, "from peer", string(data.Content))
	assert.Equal(t, uint64(1), f.engine.Stats().ItemsReceived)

	history, err := f.history.History(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, item.ID, history[0].ID)

	// Redelivery is acknowledged but dropped by the engine.
	assert.Equal(t, "OK\n", f.roundTrip(t, fmt.Sprintf("MESSAGE %d", len(body)), body))
	assert.Equal(t, uint64(1), f.engine.Stats().Duplicates)
	assert.Equal(t, 1, f.clip.Writes())
}

func TestMessageRejectsMalformedEnvelope(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"type":"clipboard_update"}`)
	resp := f.roundTrip(t, fmt.Sprintf("MESSAGE %d", len(body)), body)
	assert.True(t, strings.HasPrefix(resp, "ERROR "), resp)
	assert.Contains(t, resp, "invalid")
	assert.Zero(t, f.engine.Stats().InvalidMessages, "rejected before reaching the engine")
}

func TestMessageRejectsStaleTimestamp(t *testing.T) {
	f := newFixture(t, func(cfg *ServerConfig) {
		cfg.MaxMessageAge = 5 * time.Minute
		cfg.Now = func() time.Time { return time.Now().Add(time.Hour) }
	})
	require.NoError(t, f.engine.RegisterDevice(peer("dev-peer")))

	item := protocol.NewClipboardItem("dev-peer", protocol.DataTypePlainText, []byte("late"), protocol.ClipboardMetadata{})
	msg, err := protocol.NewMessage(protocol.MessageClipboardUpdate, "dev-peer", item)
	require.NoError(t, err)
	body, err := msg.Marshal()
	require.NoError(t, err)

	resp := f.roundTrip(t, fmt.Sprintf("MESSAGE %d", len(body)), body)
	assert.True(t, strings.HasPrefix(resp, "ERROR message timestamp outside"), resp)
	assert.Zero(t, f.engine.Stats().ItemsReceived)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "OK\n", f.roundTrip(t, "PAUSE", nil))
	status := f.status(t)
	assert.True(t, status.Paused)
	assert.Equal(t, string(clipsync.StatePaused), status.State)

	// Copies still reach the local clipboard but are not sent while paused.
	assert.Equal(t, "OK\n", f.copyText(t, "quiet"))
	assert.Zero(t, f.engine.Stats().ItemsSent)
	assert.Equal(t, uint64(1), f.engine.Stats().DroppedWhilePaused)

	assert.Equal(t, "OK\n", f.roundTrip(t, "RESUME", nil))
	status = f.status(t)
	assert.False(t, status.Paused)
	assert.Equal(t, string(clipsync.StateIdle), status.State)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{"one", "two", "three"} {
		require.Equal(t, "OK\n", f.copyText(t, text))
	}

	decode := func(resp string) []protocol.ClipboardItem {
		require.True(t, strings.HasPrefix(resp, "HISTORY "), resp)
		var items []protocol.ClipboardItem
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(resp), "HISTORY ")), &items))
		return items
	}

	items := decode(f.roundTrip(t, "HISTORY", nil))
	require.Len(t, items, 3)
	assert.Equal(t, "three", items[0].Text())
	assert.Equal(t, selfID, items[0].DeviceID)

	items = decode(f.roundTrip(t, "HISTORY 2", nil))
	require.Len(t, items, 2)
	assert.Equal(t, "two", items[1].Text())
}

func TestOptionalCollaboratorsMissing(t *testing.T) {
	f := newFixture(t, func(cfg *ServerConfig) {
		cfg.History = nil
		cfg.Broadcaster = nil
		cfg.Recorder = nil
	})

	assert.Equal(t, "ERROR history is not available\n", f.roundTrip(t, "HISTORY", nil))
	assert.Equal(t, "ERROR outbox is not available\n", f.roundTrip(t, "OUTBOX", nil))

	f.engine.ProcessIncomingItem(42)
	assert.Empty(t, f.status(t).LastError)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)

	resp := f.roundTrip(t, "SHRUG", nil)
	assert.Equal(t, "ERROR unknown command: SHRUG\n", resp)
}

func TestTruncatedBody(t *testing.T) {
	f := newFixture(t)

	conn, err := net.Dial("unix", f.socket)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte("COPY 100\nshort"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.UnixConn).CloseWrite())

	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "ERROR failed to read content"), string(out))
}

func TestOutboxStreamsSentItems(t *testing.T) {
	f := newFixture(t)

	conn, err := net.Dial("unix", f.socket)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte("OUTBOX\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\n", line)

	require.Eventually(t, func() bool { return f.broadcaster.Listeners() == 1 }, time.Second, 10*time.Millisecond)

	require.Equal(t, "OK\n", f.copyText(t, "outbound"))

	header, err := reader.ReadString('\n')
	require.NoError(t, err)
	fields := strings.Fields(header)
	require.Len(t, fields, 2)
	require.Equal(t, "MESSAGE", fields[0])
	size, err := strconv.Atoi(fields[1])
	require.NoError(t, err)

	frame := make([]byte, size)
	_, err = io.ReadFull(reader, frame)
	require.NoError(t, err)

	msg, err := protocol.UnmarshalMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageClipboardUpdate, msg.Type)
	assert.Equal(t, selfID, msg.From)

	item, err := protocol.DecodeItem(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, "outbound", item.Text())
	assert.Equal(t, selfID, item.DeviceID)

	// Stopping the server ends the stream.
	require.NoError(t, f.server.Stop())
	_, err = reader.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOutboxClientHangUp(t *testing.T) {
	f := newFixture(t)

	conn, err := net.Dial("unix", f.socket)
	require.NoError(t, err)
	_, err = conn.Write([]byte("OUTBOX\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\n", line)
	require.Eventually(t, func() bool { return f.broadcaster.Listeners() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return f.broadcaster.Listeners() == 0 }, time.Second, 10*time.Millisecond)
}

func TestConcurrentClients(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			text := fmt.Sprintf("item-%02d", i)
			conn, err := net.Dial("unix", f.socket)
			if err != nil {
				errs <- err
				return
			}
			defer func() { _ = conn.Close() }()

			if _, err := fmt.Fprintf(conn, "COPY %d\n%s", len(text), text); err != nil {
				errs <- err
				return
			}
			out, err := io.ReadAll(conn)
			if err != nil {
				errs <- err
				return
			}
			if string(out) != "OK\n" {
				errs <- fmt.Errorf("client %d: unexpected response %q", i, out)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, uint64(20), f.engine.Stats().ItemsSent)
}
