package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/clipbridge/pkg/clipboard"
	"github.com/Veraticus/clipbridge/pkg/protocol"
	clipsync "github.com/Veraticus/clipbridge/pkg/sync"
)

const (
	connectionTimeout = 30 * time.Second
	historyTimeout    = 5 * time.Second
	defaultHistory    = 20
)

// ClipboardService is the local clipboard as seen by the API. A
// clipboard.Monitor satisfies it.
type ClipboardService interface {
	Copy(data clipboard.Data, metadata protocol.ClipboardMetadata) (protocol.ClipboardItem, error)
	Paste() (clipboard.Data, error)
}

// HistoryStore provides the HISTORY command. storage.Manager satisfies it.
type HistoryStore interface {
	History(ctx context.Context, limit int) ([]protocol.ClipboardItem, error)
}

type monitorStats interface {
	Stats() clipboard.MonitorStats
}

// Server implements the local Unix socket API server for clipbridge.
type Server struct {
	started     time.Time
	clipboard   ClipboardService
	engine      clipsync.Engine
	history     HistoryStore
	broadcaster *Broadcaster
	recorder    *clipsync.Recorder
	listener    net.Listener
	ctx         context.Context
	logger      *slog.Logger
	cancel      context.CancelFunc
	now         func() time.Time
	socketPath  string
	deviceName  string
	version     string
	maxAge      time.Duration
	wg          sync.WaitGroup
	mu          sync.RWMutex
}

// ServerConfig contains configuration for the API server.
type ServerConfig struct {
	Clipboard ClipboardService
	Engine    clipsync.Engine

	// Optional collaborators. Commands that need a missing one answer
	// with an error.
	History     HistoryStore
	Broadcaster *Broadcaster
	Recorder    *clipsync.Recorder

	Logger     *slog.Logger
	Now        func() time.Time
	SocketPath string
	DeviceName string
	Version    string

	// MaxMessageAge rejects injected messages older than this. Zero
	// disables the check.
	MaxMessageAge time.Duration
}

// NewServer creates a new API server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, fmt.Errorf("socket path is required")
	}
	if cfg.Clipboard == nil {
		return nil, fmt.Errorf("clipboard is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("sync engine is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath:  cfg.SocketPath,
		clipboard:   cfg.Clipboard,
		engine:      cfg.Engine,
		history:     cfg.History,
		broadcaster: cfg.Broadcaster,
		recorder:    cfg.Recorder,
		deviceName:  cfg.DeviceName,
		version:     cfg.Version,
		maxAge:      cfg.MaxMessageAge,
		logger:      logger.With("component", "api"),
		now:         now,
		started:     now(),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins listening on the Unix domain socket.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove a stale socket from an earlier run.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.logger.Info("listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Run starts the server and stops it when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	if err := s.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}

// Stop gracefully shuts down the server. Open OUTBOX streams are closed.
func (s *Server) Stop() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	s.cancel()

	if listener != nil {
		if err := listener.Close(); err != nil && !isClosedNetworkError(err) {
			return fmt.Errorf("failed to close listener: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("server shutdown timeout")
	}

	_ = os.Remove(s.socketPath)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				if !isClosedNetworkError(err) {
					s.logger.Error("failed to accept connection", "error", err)
					continue
				}
				return
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(connectionTimeout)); err != nil {
		s.sendError(conn, "failed to set deadline")
		return
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		s.sendError(conn, fmt.Sprintf("failed to read command: %v", err))
		return
	}

	req, err := ParseRequest(strings.TrimSpace(line))
	if err != nil {
		s.sendError(conn, err.Error())
		return
	}

	var body []byte
	if req.HasBody() {
		body = make([]byte, req.Size)
		if _, err := io.ReadFull(reader, body); err != nil {
			s.sendError(conn, fmt.Sprintf("failed to read content: %v", err))
			return
		}
	}

	s.logger.Debug("handling request", "command", req.Command, "size", req.Size)

	switch req.Command {
	case CommandCopy:
		s.handleCopy(conn, req, body)
	case CommandPaste:
		s.handlePaste(conn)
	case CommandStatus:
		s.handleStatus(conn)
	case CommandMessage:
		s.handleMessage(conn, body)
	case CommandRegister:
		s.handleRegister(conn, body)
	case CommandUnregister:
		s.engine.UnregisterDevice(req.Arg)
		s.sendOK(conn, nil)
	case CommandDevices:
		s.send(conn, ResponseDevices, s.engine.Devices())
	case CommandPause:
		s.engine.Pause()
		s.sendOK(conn, nil)
	case CommandResume:
		s.engine.Resume()
		s.sendOK(conn, nil)
	case CommandHistory:
		s.handleHistory(conn, req)
	case CommandOutbox:
		s.handleOutbox(conn)
	default:
		s.sendError(conn, fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func (s *Server) handleCopy(conn net.Conn, req *Request, body []byte) {
	data := clipboard.Data{Type: req.DataType, Content: body}
	item, err := s.clipboard.Copy(data, protocol.ClipboardMetadata{})
	if err != nil {
		s.sendError(conn, fmt.Sprintf("copy failed: %v", err))
		return
	}
	s.logger.Debug("copied", "id", item.ID, "size", protocol.FormatBytes(item.Content.Size))
	s.sendOK(conn, nil)
}

func (s *Server) handlePaste(conn net.Conn) {
	data, err := s.clipboard.Paste()
	if err != nil {
		s.sendError(conn, fmt.Sprintf("failed to read clipboard: %v", err))
		return
	}
	if data.Type == "" {
		data.Type = protocol.DataTypePlainText
	}
	s.sendOK(conn, data)
}

func (s *Server) handleStatus(conn net.Conn) {
	stats := s.engine.Stats()

	devices := s.engine.Devices()
	ids := make([]string, len(devices))
	for i, d := range devices {
		ids[i] = d.ID
	}

	status := &StatusResponse{
		Started:     s.started,
		DeviceID:    s.engine.DeviceID(),
		DeviceName:  s.deviceName,
		Version:     s.version,
		State:       s.engine.State().String(),
		Paused:      s.engine.IsPaused(),
		Devices:     ids,
		RecentItems: len(s.engine.RecentItems()),
		Stats: SyncStats{
			LastSyncTime:       formatLastSyncTime(stats.LastSyncTime),
			ItemsReceived:      stats.ItemsReceived,
			ItemsSent:          stats.ItemsSent,
			Duplicates:         stats.Duplicates,
			InvalidMessages:    stats.InvalidMessages,
			InvalidItems:       stats.InvalidItems,
			UnknownSenders:     stats.UnknownSenders,
			ProcessingFailures: stats.ProcessingFailures,
			DroppedWhilePaused: stats.DroppedWhilePaused,
		},
	}
	if s.recorder != nil {
		if event, ok := s.recorder.Last(clipsync.EventError); ok && event.Err != nil {
			status.LastError = event.Err.Error()
		}
	}
	if m, ok := s.clipboard.(monitorStats); ok {
		monitor := m.Stats()
		status.Monitor = &monitor
	}

	s.send(conn, ResponseStatus, status)
}

// handleMessage is the transport boundary: the envelope is checked for shape
// and freshness here, then handed to the engine.
func (s *Server) handleMessage(conn net.Conn, body []byte) {
	if err := protocol.CheckMessage(body); err != nil {
		s.sendError(conn, err.Error())
		return
	}
	if s.maxAge > 0 {
		var envelope struct {
			Timestamp int64 `json:"timestamp"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			s.sendError(conn, fmt.Sprintf("failed to decode message: %v", err))
			return
		}
		if !protocol.IsValidTimestamp(envelope.Timestamp, s.maxAge, s.now()) {
			s.sendError(conn, fmt.Sprintf("message timestamp outside the %s window", s.maxAge))
			return
		}
	}

	s.engine.ProcessMessage(json.RawMessage(body))
	s.sendOK(conn, nil)
}

func (s *Server) handleRegister(conn net.Conn, body []byte) {
	if err := protocol.CheckDevice(body); err != nil {
		s.sendError(conn, err.Error())
		return
	}
	device, err := protocol.DecodeDevice(body)
	if err != nil {
		s.sendError(conn, err.Error())
		return
	}
	if err := s.engine.RegisterDevice(device); err != nil {
		s.sendError(conn, err.Error())
		return
	}
	s.sendOK(conn, nil)
}

func (s *Server) handleHistory(conn net.Conn, req *Request) {
	if s.history == nil {
		s.sendError(conn, "history is not available")
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultHistory
	}

	ctx, cancel := context.WithTimeout(s.ctx, historyTimeout)
	defer cancel()

	items, err := s.history.History(ctx, limit)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("failed to read history: %v", err))
		return
	}
	s.send(conn, ResponseHistory, items)
}

// handleOutbox streams outbound messages until the client goes away or the
// server stops.
func (s *Server) handleOutbox(conn net.Conn) {
	if s.broadcaster == nil {
		s.sendError(conn, "outbox is not available")
		return
	}

	messages, unsubscribe := s.broadcaster.Subscribe()
	defer unsubscribe()

	// Streams stay open indefinitely.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		s.sendError(conn, "failed to clear deadline")
		return
	}
	s.sendOK(conn, nil)
	s.logger.Debug("outbox stream opened")

	// Any read result means the client hung up.
	gone := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, conn)
		close(gone)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-gone:
			s.logger.Debug("outbox stream closed by client")
			return
		case data, ok := <-messages:
			if !ok {
				return
			}
			frame, err := FormatResponse(ResponseMessage, data)
			if err != nil {
				s.logger.Error("failed to frame message", "error", err)
				continue
			}
			if _, err := conn.Write(frame); err != nil {
				s.logger.Debug("outbox stream write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) send(conn net.Conn, resp Response, data any) {
	out, err := FormatResponse(resp, data)
	if err != nil {
		s.sendError(conn, err.Error())
		return
	}
	_, _ = conn.Write(out)
}

func (s *Server) sendOK(conn net.Conn, data any) {
	s.send(conn, ResponseOK, data)
}

func (s *Server) sendError(conn net.Conn, msg string) {
	resp, _ := FormatResponse(ResponseError, msg)
	_, _ = conn.Write(resp)
}

func formatLastSyncTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func isClosedNetworkError(err error) bool {
	return err != nil && errors.Is(err, net.ErrClosed)
}
