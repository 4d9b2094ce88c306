package protocol

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes a message as JSON.
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMessage decodes a message from JSON. The result is not validated; run
// CheckMessage on the raw bytes first when the source is untrusted.
func UnmarshalMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return msg, nil
}

// DecodeMessage converts an untyped candidate (decoded JSON, raw bytes or a typed
// Message) into a Message.
func DecodeMessage(candidate any) (Message, error) {
	if msg, ok := candidate.(Message); ok {
		return msg, nil
	}
	var msg Message
	if err := decodeInto(candidate, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return msg, nil
}

// DecodeItem converts an untyped candidate into a ClipboardItem.
func DecodeItem(candidate any) (ClipboardItem, error) {
	var item ClipboardItem
	if err := decodeInto(candidate, &item); err != nil {
		return ClipboardItem{}, fmt.Errorf("failed to decode clipboard item: %w", err)
	}
	return item, nil
}

// DecodeDevice converts an untyped candidate into a Device.
func DecodeDevice(candidate any) (Device, error) {
	var device Device
	if err := decodeInto(candidate, &device); err != nil {
		return Device{}, fmt.Errorf("failed to decode device: %w", err)
	}
	return device, nil
}

func decodeInto(candidate any, out any) error {
	var data []byte
	switch v := candidate.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(candidate)
		if err != nil {
			return err
		}
		data = encoded
	}
	return json.Unmarshal(data, out)
}
