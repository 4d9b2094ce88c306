// Package api provides the local Unix socket API of the clipbridge daemon. The
// CLI uses it for copy and paste, and a network transport uses it to inject
// protocol messages and to stream the messages this device sends.
//
// Every request is one command line, optionally followed by a body whose size
// is given on the command line:
//
//	COPY <n> [type]   body: content bytes       -> OK
//	PASTE                                       -> OK <n> <type>\n<bytes>
//	STATUS                                      -> STATUS <json>
//	MESSAGE <n>       body: protocol message    -> OK
//	REGISTER <n>      body: device record       -> OK
//	UNREGISTER <id>                             -> OK
//	DEVICES                                     -> DEVICES <json>
//	PAUSE | RESUME                              -> OK
//	HISTORY [limit]                             -> HISTORY <json>
//	OUTBOX                                      -> OK, then MESSAGE <n>\n<json> frames
//
// Failures are reported as a single "ERROR <message>" line.
package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/clipbridge/pkg/clipboard"
	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// Command represents the type of command sent by the client.
type Command string

// Command constants define the available commands in the protocol.
const (
	CommandCopy       Command = "COPY"
	CommandPaste      Command = "PASTE"
	CommandStatus     Command = "STATUS"
	CommandMessage    Command = "MESSAGE"
	CommandRegister   Command = "REGISTER"
	CommandUnregister Command = "UNREGISTER"
	CommandDevices    Command = "DEVICES"
	CommandPause      Command = "PAUSE"
	CommandResume     Command = "RESUME"
	CommandHistory    Command = "HISTORY"
	CommandOutbox     Command = "OUTBOX"
)

// Response represents the type of response sent by the server.
type Response string

// Response constants define the possible response types.
const (
	ResponseOK      Response = "OK"
	ResponseError   Response = "ERROR"
	ResponseStatus  Response = "STATUS"
	ResponseDevices Response = "DEVICES"
	ResponseHistory Response = "HISTORY"
	ResponseMessage Response = "MESSAGE"
)

// MaxBodySize bounds request bodies. Protocol messages carry base64 content,
// so the limit is larger than the largest clipboard item.
const MaxBodySize = 2 * protocol.DefaultMaxItemSize

// Request represents a client request with command-specific data.
type Request struct {
	Command  Command
	DataType protocol.DataType
	Arg      string
	Size     int
	Limit    int
}

// HasBody reports whether a body of Size bytes follows the command line.
func (r *Request) HasBody() bool {
	switch r.Command {
	case CommandCopy, CommandMessage, CommandRegister:
		return true
	}
	return false
}

// StatusResponse contains information about the daemon's current state.
type StatusResponse struct {
	Started     time.Time               `json:"started"`
	DeviceID    string                  `json:"device_id"`
	DeviceName  string                  `json:"device_name"`
	Version     string                  `json:"version"`
	State       string                  `json:"state"`
	LastError   string                  `json:"last_error,omitempty"`
	Devices     []string                `json:"devices"`
	Monitor     *clipboard.MonitorStats `json:"monitor,omitempty"`
	Stats       SyncStats               `json:"sync_stats"`
	RecentItems int                     `json:"recent_items"`
	Paused      bool                    `json:"paused"`
}

// SyncStats contains synchronization statistics.
type SyncStats struct {
	LastSyncTime       string `json:"last_sync_time,omitempty"`
	ItemsReceived      uint64 `json:"items_received"`
	ItemsSent          uint64 `json:"items_sent"`
	Duplicates         uint64 `json:"duplicates"`
	InvalidMessages    uint64 `json:"invalid_messages"`
	InvalidItems       uint64 `json:"invalid_items"`
	UnknownSenders     uint64 `json:"unknown_senders"`
	ProcessingFailures uint64 `json:"processing_failures"`
	DroppedWhilePaused uint64 `json:"dropped_while_paused"`
}

// ParseRequest parses a command line into a Request.
func ParseRequest(line string) (*Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	command := Command(fields[0])
	args := fields[1:]
	req := &Request{Command: command}

	switch command {
	case CommandCopy:
		size, err := parseSize(command, args)
		if err != nil {
			return nil, err
		}
		req.Size = size
		req.DataType = protocol.DataTypePlainText
		if len(args) > 1 {
			if !protocol.IsSupportedDataType(args[1]) {
				return nil, fmt.Errorf("unsupported data type: %s", args[1])
			}
			req.DataType = protocol.DataType(args[1])
		}
	case CommandMessage, CommandRegister:
		size, err := parseSize(command, args)
		if err != nil {
			return nil, err
		}
		req.Size = size
	case CommandUnregister:
		if len(args) < 1 {
			return nil, fmt.Errorf("%s requires a device id", command)
		}
		req.Arg = args[0]
	case CommandHistory:
		if len(args) > 0 {
			limit, err := strconv.Atoi(args[0])
			if err != nil || limit < 0 {
				return nil, fmt.Errorf("invalid history limit: %s", args[0])
			}
			req.Limit = limit
		}
	case CommandPaste, CommandStatus, CommandDevices, CommandPause, CommandResume, CommandOutbox:
	default:
		return nil, fmt.Errorf("unknown command: %s", fields[0])
	}
	return req, nil
}

func parseSize(command Command, args []string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%s requires size parameter", command)
	}
	size, err := strconv.Atoi(args[0])
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%s requires size parameter", command)
	}
	if size > MaxBodySize {
		return 0, fmt.Errorf("content too large: %s (max: %s)",
			protocol.FormatBytes(int64(size)), protocol.FormatBytes(MaxBodySize))
	}
	return size, nil
}

// FormatResponse formats a response for transmission.
func FormatResponse(resp Response, data any) ([]byte, error) {
	switch resp {
	case ResponseOK:
		switch v := data.(type) {
		case clipboard.Data:
			// PASTE
			header := fmt.Sprintf("OK %d %s\n", len(v.Content), v.Type)
			return append([]byte(header), v.Content...), nil
		case nil:
			return []byte("OK\n"), nil
		default:
			return nil, fmt.Errorf("unsupported response data type: %T", v)
		}
	case ResponseStatus, ResponseDevices, ResponseHistory:
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", strings.ToLower(string(resp)), err)
		}
		return []byte(fmt.Sprintf("%s %s\n", resp, jsonData)), nil
	case ResponseMessage:
		payload, ok := data.([]byte)
		if !ok {
			return nil, fmt.Errorf("unsupported message data type: %T", data)
		}
		header := fmt.Sprintf("MESSAGE %d\n", len(payload))
		return append([]byte(header), payload...), nil
	case ResponseError:
		if msg, ok := data.(string); ok && msg != "" {
			return []byte(fmt.Sprintf("ERROR %s\n", strings.ReplaceAll(msg, "\n", " "))), nil
		}
		return []byte("ERROR unknown error\n"), nil
	default:
		return nil, fmt.Errorf("unknown response type: %s", resp)
	}
}
