package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Veraticus/clipbridge/pkg/protocol"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - clipboard_items, devices and settings tables
const currentSchemaVersion = 1

const configKey = "app_config"

// SQLiteStorage stores history, configuration and devices in a SQLite file.
type SQLiteStorage struct {
	db     *sql.DB
	logger Logger
}

// Open creates or opens the database at path and applies the connection
// pragmas. Call Init before use to create the schema.
//
// The database is configured with:
//   - WAL mode so the CLI can read while the daemon writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func Open(path string, logger Logger) (*SQLiteStorage, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	logger.Debug("opened database", "path", path)
	return &SQLiteStorage{db: db, logger: logger}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Init creates the schema if needed and checks its version.
func (s *SQLiteStorage) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if version < currentSchemaVersion {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		s.logger.Info("migrated database schema", "from", version, "to", currentSchemaVersion)
	}
	return nil
}

// SaveClipboardItem implements Adapter.
func (s *SQLiteStorage) SaveClipboardItem(ctx context.Context, item protocol.ClipboardItem) error {
	if item.ID == "" {
		return fmt.Errorf("%w: item has no id", protocol.ErrInvalid)
	}
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	limit, err := s.historySize(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Re-saving an item moves it to the front.
	if _, err := tx.ExecContext(ctx, `DELETE FROM clipboard_items WHERE id = ?`, item.ID); err != nil {
		return fmt.Errorf("failed to replace item %s: %w", item.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO clipboard_items (id, device_id, timestamp, data_type, raw, preview, size, metadata, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.DeviceID, item.Timestamp, string(item.DataType),
		item.Content.Raw, item.Content.Preview, item.Content.Size,
		string(metadata), item.Signature,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
	}
	if err := trimHistory(ctx, tx, limit); err != nil {
		return err
	}
	return tx.Commit()
}

func trimHistory(ctx context.Context, tx *sql.Tx, limit int) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM clipboard_items
		WHERE seq NOT IN (SELECT seq FROM clipboard_items ORDER BY seq DESC LIMIT ?)`, limit)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}

// History implements Adapter.
func (s *SQLiteStorage) History(ctx context.Context, limit int) ([]protocol.ClipboardItem, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, timestamp, data_type, raw, preview, size, metadata, signature
		FROM clipboard_items ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	items := []protocol.ClipboardItem{}
	for rows.Next() {
		var (
			item     protocol.ClipboardItem
			dataType string
			metadata string
		)
		err := rows.Scan(&item.ID, &item.DeviceID, &item.Timestamp, &dataType,
			&item.Content.Raw, &item.Content.Preview, &item.Content.Size, &metadata, &item.Signature)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.DataType = protocol.DataType(dataType)
		if err := json.Unmarshal([]byte(metadata), &item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for item %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClearHistory implements Adapter.
func (s *SQLiteStorage) ClearHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM clipboard_items`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// SaveConfig implements Adapter. A smaller history size trims the history
// immediately.
func (s *SQLiteStorage) SaveConfig(ctx context.Context, config protocol.AppConfig) error {
	data, err := json.Marshal(config.Clone())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, configKey, string(data))
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := trimHistory(ctx, tx, config.General.HistorySize); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadConfig implements Adapter.
func (s *SQLiteStorage) LoadConfig(ctx context.Context) (protocol.AppConfig, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, configKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.DefaultConfig(), nil
	}
	if err != nil {
		return protocol.AppConfig{}, fmt.Errorf("failed to load config: %w", err)
	}

	var config protocol.AppConfig
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return protocol.AppConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return config.Clone(), nil
}

func (s *SQLiteStorage) historySize(ctx context.Context) (int, error) {
	config, err := s.LoadConfig(ctx)
	if err != nil {
		return 0, err
	}
	return config.General.HistorySize, nil
}

// SaveDevice implements Adapter.
func (s *SQLiteStorage) SaveDevice(ctx context.Context, device protocol.Device) error {
	if device.ID == "" {
		return fmt.Errorf("%w: device has no id", protocol.ErrInvalid)
	}
	caps, err := json.Marshal(device.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, platform, public_key, last_seen, capabilities)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			platform = excluded.platform,
			public_key = excluded.public_key,
			last_seen = excluded.last_seen,
			capabilities = excluded.capabilities`,
		device.ID, device.Name, string(device.Platform), device.PublicKey, device.LastSeen, string(caps),
	)
	if err != nil {
		return fmt.Errorf("failed to save device %s: %w", device.ID, err)
	}
	return nil
}

// Devices implements Adapter.
func (s *SQLiteStorage) Devices(ctx context.Context) ([]protocol.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, platform, public_key, last_seen, capabilities
		FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []protocol.Device{}
	for rows.Next() {
		var (
			device   protocol.Device
			platform string
			caps     string
		)
		if err := rows.Scan(&device.ID, &device.Name, &platform, &device.PublicKey, &device.LastSeen, &caps); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		device.Platform = protocol.Platform(platform)
		if err := json.Unmarshal([]byte(caps), &device.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to decode capabilities for device %s: %w", device.ID, err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// RemoveDevice implements Adapter.
func (s *SQLiteStorage) RemoveDevice(ctx context.Context, deviceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("failed to remove device %s: %w", deviceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove device %s: %w", deviceID, err)
	}
	if n == 0 {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	return nil
}

// Close implements Adapter.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteStorage) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
