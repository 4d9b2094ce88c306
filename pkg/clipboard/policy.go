package clipboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

// Reasons a Policy refuses content.
var (
	ErrAutoSyncDisabled = errors.New("automatic sync is disabled")
	ErrImagesDisabled   = errors.New("image sync is disabled")
	ErrFilesDisabled    = errors.New("file sync is disabled")
	ErrSensitiveContent = errors.New("content looks sensitive")
	ErrExcludedApp      = errors.New("source application is excluded")
)

// Policy decides which clipboard content may cross the device boundary. It is
// derived from the user's AppConfig.
type Policy struct {
	ExcludedApps    []string
	MaxItemSize     int64
	AutoSync        bool
	SyncImages      bool
	SyncFiles       bool
	FilterSensitive bool
}

// PolicyFromConfig builds the policy for an application configuration.
func PolicyFromConfig(cfg protocol.AppConfig) Policy {
	return Policy{
		AutoSync:        cfg.Sync.AutoSync,
		SyncImages:      cfg.Sync.SyncImages,
		SyncFiles:       cfg.Sync.SyncFiles,
		MaxItemSize:     cfg.Sync.MaxItemSize,
		FilterSensitive: cfg.Security.EnableSensitiveFilter,
		ExcludedApps:    append([]string(nil), cfg.Security.ExcludedApps...),
	}
}

// AllowCapture reports why a local capture must not be announced, or nil.
// Explicit user actions bypass AutoSync but nothing else.
func (p Policy) AllowCapture(data Data, metadata protocol.ClipboardMetadata, explicit bool) error {
	if !explicit && !p.AutoSync {
		return ErrAutoSyncDisabled
	}
	if err := p.allowType(data.Type); err != nil {
		return err
	}
	if err := ValidateContent(data, p.MaxItemSize); err != nil {
		return err
	}
	if p.isExcluded(metadata) {
		return fmt.Errorf("%w: %s", ErrExcludedApp, appLabel(metadata))
	}
	if p.FilterSensitive && isText(data.Type) {
		if name := protocol.MatchSensitive(string(data.Content)); name != "" {
			return fmt.Errorf("%w: matched %s pattern", ErrSensitiveContent, name)
		}
	}
	return nil
}

// AllowApply reports why a received item must not be written to the local
// clipboard, or nil. The sensitive filter is not applied to received items; the
// sending device already made that call.
func (p Policy) AllowApply(item protocol.ClipboardItem) error {
	if err := p.allowType(item.DataType); err != nil {
		return err
	}
	maxSize := p.MaxItemSize
	if maxSize <= 0 {
		maxSize = protocol.DefaultMaxItemSize
	}
	if item.Content.Size > maxSize {
		return fmt.Errorf("%w: %s", ErrContentTooLarge, protocol.FormatBytes(item.Content.Size))
	}
	return nil
}

func (p Policy) allowType(dataType protocol.DataType) error {
	switch {
	case dataType.IsImage() && !p.SyncImages:
		return ErrImagesDisabled
	case dataType == protocol.DataTypeFilePaths && !p.SyncFiles:
		return ErrFilesDisabled
	}
	return nil
}

func (p Policy) isExcluded(metadata protocol.ClipboardMetadata) bool {
	for _, app := range p.ExcludedApps {
		if app == "" {
			continue
		}
		if strings.EqualFold(app, metadata.AppName) || strings.EqualFold(app, metadata.AppBundleID) {
			return true
		}
	}
	return false
}

func appLabel(metadata protocol.ClipboardMetadata) string {
	if metadata.AppBundleID != "" {
		return metadata.AppBundleID
	}
	return metadata.AppName
}
