// Package protocol defines the data model shared by every clipbridge component:
// clipboard items, devices, protocol messages and the application configuration.
//
// Wire Format:
//
// All types serialize to JSON with camelCase field names so that devices running
// other clipbridge implementations can exchange them unchanged. Timestamps are
// milliseconds since the Unix epoch. Raw clipboard bytes are carried as base64
// (the encoding/json default for []byte).
//
// Trust:
//
// Nothing in this package verifies authenticity. ClipboardItem.Signature is carried
// opaquely; verification belongs to the transport layer before a message ever reaches
// the sync engine. The validators in validation.go only check structure.
package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// DataType identifies the kind of clipboard content.
type DataType string

const (
	// DataTypePlainText is UTF-8 text.
	DataTypePlainText DataType = "text/plain"
	// DataTypeHTML is an HTML fragment.
	DataTypeHTML DataType = "text/html"
	// DataTypePNG is a PNG encoded image.
	DataTypePNG DataType = "image/png"
	// DataTypeJPEG is a JPEG encoded image.
	DataTypeJPEG DataType = "image/jpeg"
	// DataTypeFilePaths is a newline separated list of file paths.
	DataTypeFilePaths DataType = "file/paths"
)

// DataTypes lists every supported data type.
var DataTypes = []DataType{
	DataTypePlainText,
	DataTypeHTML,
	DataTypePNG,
	DataTypeJPEG,
	DataTypeFilePaths,
}

// IsImage reports whether the data type carries image bytes.
func (d DataType) IsImage() bool {
	return d == DataTypePNG || d == DataTypeJPEG
}

// Platform identifies the operating system of a device.
type Platform string

// Supported platforms.
const (
	PlatformWindows Platform = "windows"
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// Platforms lists every supported platform.
var Platforms = []Platform{
	PlatformWindows,
	PlatformMacOS,
	PlatformLinux,
	PlatformAndroid,
	PlatformIOS,
}

// MessageType identifies a protocol message.
type MessageType string

// Protocol message types.
const (
	MessageClipboardUpdate MessageType = "clipboard_update"
	MessageDeviceHello     MessageType = "device_hello"
	MessageDeviceAck       MessageType = "device_ack"
	MessageDeviceGoodbye   MessageType = "device_goodbye"
	MessageHistoryRequest  MessageType = "history_request"
	MessageHistoryResponse MessageType = "history_response"
	MessagePing            MessageType = "ping"
	MessagePong            MessageType = "pong"
)

// MessageTypes lists every protocol message type.
var MessageTypes = []MessageType{
	MessageClipboardUpdate,
	MessageDeviceHello,
	MessageDeviceAck,
	MessageDeviceGoodbye,
	MessageHistoryRequest,
	MessageHistoryResponse,
	MessagePing,
	MessagePong,
}

// ClipboardMetadata describes where an item came from and how its content is encoded.
type ClipboardMetadata struct {
	AppName     string `json:"appName,omitempty" yaml:"appName,omitempty"`
	AppBundleID string `json:"appBundleId,omitempty" yaml:"appBundleId,omitempty"`
	Encrypted   bool   `json:"encrypted" yaml:"encrypted"`
	Compressed  bool   `json:"compressed" yaml:"compressed"`
}

// ClipboardContent holds the captured bytes. Size always equals len(Raw) for
// items built with NewClipboardItem.
type ClipboardContent struct {
	Raw     []byte `json:"raw,omitempty" yaml:"raw,omitempty"`
	Preview string `json:"preview,omitempty" yaml:"preview,omitempty"`
	Size    int64  `json:"size" yaml:"size"`
}

// ClipboardItem is one captured unit of clipboard content. Items are immutable
// once created: components copy them, never modify them in place.
type ClipboardItem struct {
	ID        string            `json:"id" yaml:"id"`
	DeviceID  string            `json:"deviceId" yaml:"deviceId"`
	Timestamp int64             `json:"timestamp" yaml:"timestamp"`
	DataType  DataType          `json:"dataType" yaml:"dataType"`
	Content   ClipboardContent  `json:"content" yaml:"content"`
	Metadata  ClipboardMetadata `json:"metadata" yaml:"metadata"`
	Signature string            `json:"signature" yaml:"signature"`
}

// Time returns the capture time.
func (i ClipboardItem) Time() time.Time {
	return time.UnixMilli(i.Timestamp)
}

// Text returns the raw content as a string.
func (i ClipboardItem) Text() string {
	return string(i.Content.Raw)
}

// DeviceCapabilities describes what a device is able to receive.
type DeviceCapabilities struct {
	SupportsImages bool  `json:"supportsImages" yaml:"supportsImages"`
	SupportsFiles  bool  `json:"supportsFiles" yaml:"supportsFiles"`
	MaxItemSize    int64 `json:"maxItemSize" yaml:"maxItemSize"`
}

// Accepts reports whether an item fits the capabilities.
func (c DeviceCapabilities) Accepts(item ClipboardItem) bool {
	if item.Content.Size > c.MaxItemSize {
		return false
	}
	if item.DataType.IsImage() && !c.SupportsImages {
		return false
	}
	if item.DataType == DataTypeFilePaths && !c.SupportsFiles {
		return false
	}
	return true
}

// Device is a peer taking part in synchronization.
type Device struct {
	ID           string             `json:"id" yaml:"id"`
	Name         string             `json:"name" yaml:"name"`
	Platform     Platform           `json:"platform" yaml:"platform"`
	PublicKey    string             `json:"publicKey" yaml:"publicKey"`
	LastSeen     int64              `json:"lastSeen" yaml:"lastSeen"`
	Capabilities DeviceCapabilities `json:"capabilities" yaml:"capabilities"`
}

// Recipients is the optional addressing of a message. A nil value means broadcast.
// On the wire it is either a single device id or a list of ids.
type Recipients []string

// MarshalJSON encodes a single recipient as a plain string.
func (r Recipients) MarshalJSON() ([]byte, error) {
	if len(r) == 1 {
		return json.Marshal(r[0])
	}
	return json.Marshal([]string(r))
}

// UnmarshalJSON accepts either a string or a list of strings.
func (r *Recipients) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = Recipients{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("recipients must be a string or a list of strings")
	}
	*r = Recipients(many)
	return nil
}

// Includes reports whether the message is addressed to deviceID. Broadcasts
// include every device.
func (r Recipients) Includes(deviceID string) bool {
	if len(r) == 0 {
		return true
	}
	for _, id := range r {
		if id == deviceID {
			return true
		}
	}
	return false
}

// Message is the protocol envelope exchanged between devices.
type Message struct {
	Type      MessageType     `json:"type"`
	From      string          `json:"from"`
	To        Recipients      `json:"to,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Nonce     string          `json:"nonce"`
}

// SyncMode selects how devices reach each other.
type SyncMode string

// Sync modes.
const (
	SyncModeP2P    SyncMode = "p2p"
	SyncModeCloud  SyncMode = "cloud"
	SyncModeHybrid SyncMode = "hybrid"
)

// SyncModes lists every sync mode.
var SyncModes = []SyncMode{SyncModeP2P, SyncModeCloud, SyncModeHybrid}

// GeneralConfig holds user-facing behavior settings.
type GeneralConfig struct {
	AutoStart         bool `json:"autoStart" yaml:"autoStart" mapstructure:"autoStart"`
	ShowNotifications bool `json:"showNotifications" yaml:"showNotifications" mapstructure:"showNotifications"`
	HistorySize       int  `json:"historySize" yaml:"historySize" mapstructure:"historySize"`
}

// SyncConfig controls what gets synchronized.
type SyncConfig struct {
	Mode        SyncMode `json:"mode" yaml:"mode" mapstructure:"mode"`
	AutoSync    bool     `json:"autoSync" yaml:"autoSync" mapstructure:"autoSync"`
	SyncImages  bool     `json:"syncImages" yaml:"syncImages" mapstructure:"syncImages"`
	SyncFiles   bool     `json:"syncFiles" yaml:"syncFiles" mapstructure:"syncFiles"`
	MaxItemSize int64    `json:"maxItemSize" yaml:"maxItemSize" mapstructure:"maxItemSize"`
}

// SecurityConfig holds trust and filtering settings.
type SecurityConfig struct {
	EnableEncryption      bool     `json:"enableEncryption" yaml:"enableEncryption" mapstructure:"enableEncryption"`
	RequireDeviceApproval bool     `json:"requireDeviceApproval" yaml:"requireDeviceApproval" mapstructure:"requireDeviceApproval"`
	EnableSensitiveFilter bool     `json:"enableSensitiveFilter" yaml:"enableSensitiveFilter" mapstructure:"enableSensitiveFilter"`
	ExcludedApps          []string `json:"excludedApps" yaml:"excludedApps" mapstructure:"excludedApps"`
}

// NetworkConfig holds transport settings. The sync engine does not read them; they
// are handed to whichever transport is wired around it.
type NetworkConfig struct {
	RelayServerURL   string `json:"relayServerUrl,omitempty" yaml:"relayServerUrl,omitempty" mapstructure:"relayServerUrl"`
	P2PPort          int    `json:"p2pPort" yaml:"p2pPort" mapstructure:"p2pPort"`
	DiscoveryEnabled bool   `json:"discoveryEnabled" yaml:"discoveryEnabled" mapstructure:"discoveryEnabled"`
}

// AppConfig is the complete user configuration.
type AppConfig struct {
	General  GeneralConfig  `json:"general" yaml:"general" mapstructure:"general"`
	Sync     SyncConfig     `json:"sync" yaml:"sync" mapstructure:"sync"`
	Security SecurityConfig `json:"security" yaml:"security" mapstructure:"security"`
	Network  NetworkConfig  `json:"network" yaml:"network" mapstructure:"network"`
}

// DefaultMaxItemSize is the default largest item synchronized (10MB).
const DefaultMaxItemSize = 10 * 1024 * 1024

// DefaultConfig returns the configuration used when nothing has been saved yet.
func DefaultConfig() AppConfig {
	return AppConfig{
		General: GeneralConfig{
			AutoStart:         true,
			ShowNotifications: true,
			HistorySize:       100,
		},
		Sync: SyncConfig{
			Mode:        SyncModeP2P,
			AutoSync:    true,
			SyncImages:  true,
			SyncFiles:   false,
			MaxItemSize: DefaultMaxItemSize,
		},
		Security: SecurityConfig{
			EnableEncryption:      true,
			RequireDeviceApproval: true,
			EnableSensitiveFilter: true,
			ExcludedApps:          []string{},
		},
		Network: NetworkConfig{
			P2PPort:          7878,
			DiscoveryEnabled: true,
		},
	}
}

// Clone returns a deep copy so callers can mutate it freely.
func (c AppConfig) Clone() AppConfig {
	clone := c
	clone.Security.ExcludedApps = append([]string{}, c.Security.ExcludedApps...)
	return clone
}
