package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PreviewLength is the number of runes kept in a plain-text preview.
const PreviewLength = 100

// GenerateDeviceID returns a new random device identifier.
func GenerateDeviceID() string {
	return uuid.NewString()
}

// GenerateItemID returns a new clipboard item identifier. Version 7 UUIDs sort by
// creation time, which keeps history listings stable.
func GenerateItemID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateNonce returns a new random nonce for a message envelope.
func GenerateNonce() string {
	return uuid.NewString()
}

// NewMessage builds an envelope stamped with the current time and a fresh nonce.
// The payload is JSON encoded; a nil payload leaves the envelope without one.
// Omitting to addresses the message to every device.
func NewMessage(msgType MessageType, from string, payload any, to ...string) (Message, error) {
	msg := Message{
		Type:      msgType,
		From:      from,
		Timestamp: time.Now().UnixMilli(),
		Nonce:     GenerateNonce(),
	}
	if len(to) > 0 {
		msg.To = Recipients(to)
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// NewClipboardItem captures content into an unsigned item stamped with the current
// time. Size is derived from the content and plain text gets a short preview.
func NewClipboardItem(deviceID string, dataType DataType, content []byte, metadata ClipboardMetadata) ClipboardItem {
	raw := append([]byte(nil), content...)

	item := ClipboardItem{
		ID:        GenerateItemID(),
		DeviceID:  deviceID,
		Timestamp: time.Now().UnixMilli(),
		DataType:  dataType,
		Content: ClipboardContent{
			Raw:  raw,
			Size: int64(len(raw)),
		},
		Metadata: metadata,
	}
	if dataType == DataTypePlainText {
		item.Content.Preview = preview(raw)
	}
	return item
}

func preview(raw []byte) string {
	if !utf8.Valid(raw) {
		return ""
	}
	text := string(raw)
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLength])
}

// IsSupportedDataType reports whether mime is exactly one of the supported data types.
func IsSupportedDataType(mime string) bool {
	return isMember(mime, DataTypes)
}

// DataTypeFromMIME maps a MIME type, possibly with parameters, to a data type.
func DataTypeFromMIME(mime string) (DataType, bool) {
	normalized := strings.ToLower(mime)

	switch {
	case strings.Contains(normalized, "text/plain"):
		return DataTypePlainText, true
	case strings.Contains(normalized, "text/html"):
		return DataTypeHTML, true
	case strings.Contains(normalized, "image/png"):
		return DataTypePNG, true
	case strings.Contains(normalized, "image/jpeg"), strings.Contains(normalized, "image/jpg"):
		return DataTypeJPEG, true
	}
	return "", false
}

// FormatBytes renders a byte count for humans, e.g. "1.5 KB".
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	const k = 1024
	sizes := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(k)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}

	value := math.Round(float64(bytes)/math.Pow(k, float64(i))*100) / 100
	return fmt.Sprintf("%s %s", strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), "."), sizes[i])
}

// IsValidTimestamp reports whether timestamp (milliseconds) lies within maxAge
// before now. Future timestamps are rejected. This is the replay window check;
// the sync engine leaves it to callers.
func IsValidTimestamp(timestamp int64, maxAge time.Duration, now time.Time) bool {
	age := now.UnixMilli() - timestamp
	return age >= 0 && age <= maxAge.Milliseconds()
}
