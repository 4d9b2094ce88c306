// validation.go implements structural validation of untrusted protocol values.
//
// Every validator accepts an untyped candidate: a decoded JSON tree
// (map[string]any), raw JSON bytes, or a typed value from this package, which is
// normalized through its JSON encoding first. Malformed input is an expected case,
// so the validators never panic and never return partial verdicts: rules are applied
// in order and the first failing rule decides.
//
// The Validate* functions return a bare verdict. The Check* functions return the
// same verdict as an error naming the failing rule, for logging.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalid is wrapped by every error returned from the Check* functions.
var ErrInvalid = errors.New("invalid")

// ValidateMessage reports whether candidate is a structurally valid Message envelope.
// The payload is not inspected.
func ValidateMessage(candidate any) bool {
	return CheckMessage(candidate) == nil
}

// ValidateClipboardItem reports whether candidate is a structurally valid ClipboardItem.
func ValidateClipboardItem(candidate any) bool {
	return CheckClipboardItem(candidate) == nil
}

// ValidateDevice reports whether candidate is a structurally valid Device.
func ValidateDevice(candidate any) bool {
	return CheckDevice(candidate) == nil
}

// ValidateConfig reports whether candidate is a structurally valid AppConfig.
func ValidateConfig(candidate any) bool {
	return CheckConfig(candidate) == nil
}

// CheckMessage validates a message envelope.
func CheckMessage(candidate any) error {
	msg, ok := AsObject(candidate)
	if !ok {
		return invalid("message", "not an object")
	}
	if !isMember(msg["type"], MessageTypes) {
		return invalid("message", "unknown type")
	}
	if !isNonEmptyString(msg["from"]) {
		return invalid("message", "from must be a non-empty string")
	}
	if to, present := msg["to"]; present && !isRecipients(to) {
		return invalid("message", "to must be a string or a list of strings")
	}
	if !isPositive(msg["timestamp"]) {
		return invalid("message", "timestamp must be a positive integer")
	}
	if !isNonEmptyString(msg["nonce"]) {
		return invalid("message", "nonce must be a non-empty string")
	}
	return nil
}

// CheckClipboardItem validates a clipboard item.
func CheckClipboardItem(candidate any) error {
	item, ok := AsObject(candidate)
	if !ok {
		return invalid("clipboard item", "not an object")
	}
	if !isNonEmptyString(item["id"]) {
		return invalid("clipboard item", "id must be a non-empty string")
	}
	if !isNonEmptyString(item["deviceId"]) {
		return invalid("clipboard item", "deviceId must be a non-empty string")
	}
	if !isPositive(item["timestamp"]) {
		return invalid("clipboard item", "timestamp must be a positive integer")
	}
	if !isMember(item["dataType"], DataTypes) {
		return invalid("clipboard item", "unsupported dataType")
	}

	content, ok := item["content"].(map[string]any)
	if !ok {
		return invalid("clipboard item", "content must be an object")
	}
	if !isNonNegative(content["size"]) {
		return invalid("clipboard item", "content.size must be a non-negative integer")
	}

	metadata, ok := item["metadata"].(map[string]any)
	if !ok {
		return invalid("clipboard item", "metadata must be an object")
	}
	if !isBool(metadata["encrypted"]) {
		return invalid("clipboard item", "metadata.encrypted must be a boolean")
	}
	if !isBool(metadata["compressed"]) {
		return invalid("clipboard item", "metadata.compressed must be a boolean")
	}

	if _, ok := item["signature"].(string); !ok {
		return invalid("clipboard item", "signature must be a string")
	}
	return nil
}

// CheckDevice validates a device record.
func CheckDevice(candidate any) error {
	device, ok := AsObject(candidate)
	if !ok {
		return invalid("device", "not an object")
	}
	if !isNonEmptyString(device["id"]) {
		return invalid("device", "id must be a non-empty string")
	}
	if !isNonEmptyString(device["name"]) {
		return invalid("device", "name must be a non-empty string")
	}
	if !isMember(device["platform"], Platforms) {
		return invalid("device", "unsupported platform")
	}
	if !isNonEmptyString(device["publicKey"]) {
		return invalid("device", "publicKey must be a non-empty string")
	}
	if !isPositive(device["lastSeen"]) {
		return invalid("device", "lastSeen must be a positive integer")
	}

	caps, ok := device["capabilities"].(map[string]any)
	if !ok {
		return invalid("device", "capabilities must be an object")
	}
	if !isBool(caps["supportsImages"]) {
		return invalid("device", "capabilities.supportsImages must be a boolean")
	}
	if !isBool(caps["supportsFiles"]) {
		return invalid("device", "capabilities.supportsFiles must be a boolean")
	}
	if !isPositive(caps["maxItemSize"]) {
		return invalid("device", "capabilities.maxItemSize must be a positive integer")
	}
	return nil
}

// CheckConfig validates an application configuration.
func CheckConfig(candidate any) error {
	cfg, ok := AsObject(candidate)
	if !ok {
		return invalid("config", "not an object")
	}

	general, ok := cfg["general"].(map[string]any)
	if !ok {
		return invalid("config", "general must be an object")
	}
	if !isBool(general["autoStart"]) || !isBool(general["showNotifications"]) {
		return invalid("config", "general flags must be booleans")
	}
	if !isNonNegative(general["historySize"]) {
		return invalid("config", "general.historySize must be a non-negative integer")
	}

	sync, ok := cfg["sync"].(map[string]any)
	if !ok {
		return invalid("config", "sync must be an object")
	}
	if !isMember(sync["mode"], SyncModes) {
		return invalid("config", "sync.mode must be p2p, cloud or hybrid")
	}
	if !isBool(sync["autoSync"]) || !isBool(sync["syncImages"]) || !isBool(sync["syncFiles"]) {
		return invalid("config", "sync flags must be booleans")
	}
	if !isPositive(sync["maxItemSize"]) {
		return invalid("config", "sync.maxItemSize must be a positive integer")
	}

	security, ok := cfg["security"].(map[string]any)
	if !ok {
		return invalid("config", "security must be an object")
	}
	if !isBool(security["enableEncryption"]) ||
		!isBool(security["requireDeviceApproval"]) ||
		!isBool(security["enableSensitiveFilter"]) {
		return invalid("config", "security flags must be booleans")
	}
	if !isList(security["excludedApps"]) {
		return invalid("config", "security.excludedApps must be a list")
	}

	network, ok := cfg["network"].(map[string]any)
	if !ok {
		return invalid("config", "network must be an object")
	}
	if relay, present := network["relayServerUrl"]; present {
		if _, ok := relay.(string); !ok {
			return invalid("config", "network.relayServerUrl must be a string")
		}
	}
	if !isPositive(network["p2pPort"]) {
		return invalid("config", "network.p2pPort must be a positive integer")
	}
	if !isBool(network["discoveryEnabled"]) {
		return invalid("config", "network.discoveryEnabled must be a boolean")
	}
	return nil
}

// AsObject normalizes a candidate into a decoded JSON object. It returns false for
// anything that is not an object: nil, scalars, lists, undecodable bytes.
func AsObject(candidate any) (map[string]any, bool) {
	switch v := candidate.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return v, v != nil
	case json.RawMessage:
		return decodeObject(v)
	case []byte:
		return decodeObject(v)
	case string, bool, float64, float32, int, int64, int32, uint, uint64, uint32, []any:
		return nil, false
	}

	data, err := json.Marshal(candidate)
	if err != nil {
		return nil, false
	}
	return decodeObject(data)
}

func decodeObject(data []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func invalid(kind, reason string) error {
	return fmt.Errorf("%w %s: %s", ErrInvalid, kind, reason)
}

func isNonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func isPositive(v any) bool {
	n, ok := toInteger(v)
	return ok && n > 0
}

func isNonNegative(v any) bool {
	n, ok := toInteger(v)
	return ok && n >= 0
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string:
		return true
	}
	return false
}

func isRecipients(v any) bool {
	switch to := v.(type) {
	case string:
		return true
	case []string:
		return true
	case []any:
		for _, id := range to {
			if _, ok := id.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}

func isMember[T ~string](v any, members []T) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, m := range members {
		if string(m) == s {
			return true
		}
	}
	return false
}

// toInteger converts a decoded number to int64, rejecting fractional and
// out-of-range values.
func toInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return floatToInteger(n)
	case float32:
		return floatToInteger(float64(n))
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInteger(f)
	}
	return 0, false
}

// floatToInteger accepts whole numbers in [-2^63, 2^63). NaN and the
// infinities fail every comparison or the range check.
func floatToInteger(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
