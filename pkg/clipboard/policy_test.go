package clipboard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

func TestPolicyFromConfig(t *testing.T) {
	cfg := protocol.DefaultConfig()
	cfg.Security.ExcludedApps = []string{"1Password"}

	policy := PolicyFromConfig(cfg)
	assert.True(t, policy.AutoSync)
	assert.True(t, policy.SyncImages)
	assert.False(t, policy.SyncFiles)
	assert.True(t, policy.FilterSensitive)
	assert.Equal(t, int64(protocol.DefaultMaxItemSize), policy.MaxItemSize)
	assert.Equal(t, []string{"1Password"}, policy.ExcludedApps)

	cfg.Security.ExcludedApps[0] = "changed"
	assert.Equal(t, "1Password", policy.ExcludedApps[0], "policy owns its slice")
}

func TestPolicyAllowCapture(t *testing.T) {
	base := PolicyFromConfig(protocol.DefaultConfig())
	base.ExcludedApps = []string{"com.agilebits.onepassword", "KeePassXC"}

	tests := []struct {
		name     string
		mutate   func(p *Policy)
		data     Data
		metadata protocol.ClipboardMetadata
		explicit bool
		wantErr  error
	}{
		{
			name: "plain text",
			data: Text("hello world"),
		},
		{
			name:    "auto sync disabled",
			mutate:  func(p *Policy) { p.AutoSync = false },
			data:    Text("hello"),
			wantErr: ErrAutoSyncDisabled,
		},
		{
			name:     "explicit copy bypasses auto sync",
			mutate:   func(p *Policy) { p.AutoSync = false },
			data:     Text("hello"),
			explicit: true,
		},
		{
			name:    "images disabled",
			mutate:  func(p *Policy) { p.SyncImages = false },
			data:    Data{Type: protocol.DataTypePNG, Content: []byte{1}},
			wantErr: ErrImagesDisabled,
		},
		{
			name:    "files disabled by default",
			data:    Data{Type: protocol.DataTypeFilePaths, Content: []byte("/tmp/a")},
			wantErr: ErrFilesDisabled,
		},
		{
			name:    "too large",
			mutate:  func(p *Policy) { p.MaxItemSize = 4 },
			data:    Text("hello"),
			wantErr: ErrContentTooLarge,
		},
		{
			name:    "sensitive text",
			data:    Text("password: hunter2"),
			wantErr: ErrSensitiveContent,
		},
		{
			name:     "sensitive text even when explicit",
			data:     Text("api_key=abc"),
			explicit: true,
			wantErr:  ErrSensitiveContent,
		},
		{
			name:   "sensitive filter off",
			mutate: func(p *Policy) { p.FilterSensitive = false },
			data:   Text("password: hunter2"),
		},
		{
			name:     "excluded by bundle id",
			data:     Text("hello"),
			metadata: protocol.ClipboardMetadata{AppBundleID: "com.agilebits.onepassword"},
			wantErr:  ErrExcludedApp,
		},
		{
			name:     "excluded by name ignoring case",
			data:     Text("hello"),
			metadata: protocol.ClipboardMetadata{AppName: "keepassxc"},
			wantErr:  ErrExcludedApp,
		},
		{
			name:     "other apps allowed",
			data:     Text("hello"),
			metadata: protocol.ClipboardMetadata{AppName: "Terminal"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := base
			if tt.mutate != nil {
				tt.mutate(&policy)
			}

			err := policy.AllowCapture(tt.data, tt.metadata, tt.explicit)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPolicyAllowApply(t *testing.T) {
	policy := PolicyFromConfig(protocol.DefaultConfig())

	text := protocol.ClipboardItem{DataType: protocol.DataTypePlainText, Content: protocol.ClipboardContent{Size: 5}}
	assert.NoError(t, policy.AllowApply(text))

	files := protocol.ClipboardItem{DataType: protocol.DataTypeFilePaths, Content: protocol.ClipboardContent{Size: 5}}
	assert.ErrorIs(t, policy.AllowApply(files), ErrFilesDisabled)

	huge := protocol.ClipboardItem{DataType: protocol.DataTypePlainText, Content: protocol.ClipboardContent{Size: protocol.DefaultMaxItemSize + 1}}
	assert.ErrorIs(t, policy.AllowApply(huge), ErrContentTooLarge)

	sensitive := protocol.NewClipboardItem("dev-A", protocol.DataTypePlainText, []byte("password: x"), protocol.ClipboardMetadata{})
	assert.NoError(t, policy.AllowApply(sensitive), "received items are not filtered for sensitivity")
}
