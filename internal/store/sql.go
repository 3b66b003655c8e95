package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/models"
)

// SessionRow persists the connection status of one tenant.
type SessionRow struct {
	Phone  string `gorm:"primary_key"`
	Status string `gorm:"not null"`
}

// TableName keeps the table names stable across gorm versions.
func (SessionRow) TableName() string { return "sessions" }

// MessageRow persists the protocol key, the full native message and the
// delivery status of one message, scoped by tenant.
type MessageRow struct {
	Phone     string `gorm:"primary_key"`
	MessageID string `gorm:"primary_key;column:message_id"`
	Key       string `gorm:"column:key_json"`
	Message   string `gorm:"column:message_json"`
	Status    string `gorm:"column:status"`
}

// TableName keeps the table names stable across gorm versions.
func (MessageRow) TableName() string { return "messages" }

// AliasRow maps an external message id onto the protocol id.
type AliasRow struct {
	Phone     string `gorm:"primary_key"`
	Alias     string `gorm:"primary_key"`
	MessageID string `gorm:"not null;column:message_id"`
}

// TableName keeps the table names stable across gorm versions.
func (AliasRow) TableName() string { return "id_aliases" }

// MediaRow persists the Cloud-API media descriptor for a message.
type MediaRow struct {
	Phone     string `gorm:"primary_key"`
	MessageID string `gorm:"primary_key;column:message_id"`
	Payload   string `gorm:"column:payload_json"`
}

// TableName keeps the table names stable across gorm versions.
func (MediaRow) TableName() string { return "media_payloads" }

// SQLStores backs SessionStore and DataStore with sqlite through gorm.
type SQLStores struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewSQLStores opens the database, migrates the schema and returns store
// handles sharing one connection.
func NewSQLStores(dsn string, logger zerolog.Logger) (*Stores, error) {
	db, err := gorm.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&SessionRow{}, &MessageRow{}, &AliasRow{}, &MediaRow{}).Error; err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	s := &SQLStores{db: db, logger: logger.With().Str("component", "sql-store").Logger()}
	return &Stores{Session: s, Data: s}, nil
}

// Close releases the database handle.
func (s *SQLStores) Close() error {
	return s.db.Close()
}

// GetStatus returns the stored session status, defaulting to disconnected.
func (s *SQLStores) GetStatus(_ context.Context, phone string) (string, error) {
	var row SessionRow
	err := s.db.Where("phone = ?", phone).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return "disconnected", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get session status: %w", err)
	}
	return row.Status, nil
}

// SetStatus upserts the session status for a tenant.
func (s *SQLStores) SetStatus(_ context.Context, phone, status string) error {
	row := SessionRow{Phone: phone, Status: status}
	if err := s.db.Where("phone = ?", phone).Assign(SessionRow{Status: status}).FirstOrCreate(&row).Error; err != nil {
		return fmt.Errorf("store: set session status: %w", err)
	}
	return nil
}

func (s *SQLStores) upsertMessage(phone, id string, apply func(*MessageRow) error) error {
	var row MessageRow
	err := s.db.Where("phone = ? AND message_id = ?", phone, id).First(&row).Error
	if err != nil && !gorm.IsRecordNotFoundError(err) {
		return fmt.Errorf("store: load message row: %w", err)
	}
	row.Phone = phone
	row.MessageID = id
	if err := apply(&row); err != nil {
		return err
	}
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("store: save message row: %w", err)
	}
	return nil
}

func (s *SQLStores) loadMessage(phone, id string) (*MessageRow, error) {
	var row MessageRow
	err := s.db.Where("phone = ? AND message_id = ?", phone, id).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load message row: %w", err)
	}
	return &row, nil
}

// SetKey stores the protocol key for a message id.
func (s *SQLStores) SetKey(_ context.Context, phone, id string, key models.NativeKey) error {
	return s.upsertMessage(phone, id, func(row *MessageRow) error {
		raw, err := json.Marshal(key)
		if err != nil {
			return fmt.Errorf("store: marshal key: %w", err)
		}
		row.Key = string(raw)
		return nil
	})
}

// GetKey returns the protocol key for a message id.
func (s *SQLStores) GetKey(_ context.Context, phone, id string) (*models.NativeKey, error) {
	row, err := s.loadMessage(phone, id)
	if err != nil {
		return nil, err
	}
	if row.Key == "" {
		return nil, ErrNotFound
	}
	var key models.NativeKey
	if err := json.Unmarshal([]byte(row.Key), &key); err != nil {
		return nil, fmt.Errorf("store: unmarshal key: %w", err)
	}
	return &key, nil
}

// SetMessage stores a full native message for later quote resolution.
func (s *SQLStores) SetMessage(_ context.Context, phone, id string, msg models.NativeMessage) error {
	return s.upsertMessage(phone, id, func(row *MessageRow) error {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("store: marshal message: %w", err)
		}
		row.Message = string(raw)
		return nil
	})
}

// GetMessage returns a stored native message.
func (s *SQLStores) GetMessage(_ context.Context, phone, id string) (*models.NativeMessage, error) {
	row, err := s.loadMessage(phone, id)
	if err != nil {
		return nil, err
	}
	if row.Message == "" {
		return nil, ErrNotFound
	}
	var msg models.NativeMessage
	if err := json.Unmarshal([]byte(row.Message), &msg); err != nil {
		return nil, fmt.Errorf("store: unmarshal message: %w", err)
	}
	return &msg, nil
}

// SetMessageStatus records the delivery status of a message.
func (s *SQLStores) SetMessageStatus(_ context.Context, phone, id, status string) error {
	return s.upsertMessage(phone, id, func(row *MessageRow) error {
		row.Status = status
		return nil
	})
}

// GetMessageStatus returns the stored delivery status of a message.
func (s *SQLStores) GetMessageStatus(_ context.Context, phone, id string) (string, error) {
	row, err := s.loadMessage(phone, id)
	if err != nil {
		return "", err
	}
	if row.Status == "" {
		return "", ErrNotFound
	}
	return row.Status, nil
}

// SetIDAlias maps an external id onto the protocol id it stands for.
func (s *SQLStores) SetIDAlias(_ context.Context, phone, alias, id string) error {
	row := AliasRow{Phone: phone, Alias: alias, MessageID: id}
	if err := s.db.Where("phone = ? AND alias = ?", phone, alias).Assign(AliasRow{MessageID: id}).FirstOrCreate(&row).Error; err != nil {
		return fmt.Errorf("store: set id alias: %w", err)
	}
	return nil
}

// GetIDByAlias resolves an external id alias.
func (s *SQLStores) GetIDByAlias(_ context.Context, phone, alias string) (string, error) {
	var row AliasRow
	err := s.db.Where("phone = ? AND alias = ?", phone, alias).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get id alias: %w", err)
	}
	return row.MessageID, nil
}

// SetMediaPayload stores the media descriptor for a message id.
func (s *SQLStores) SetMediaPayload(_ context.Context, phone, id string, payload MediaPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: marshal media payload: %w", err)
	}
	row := MediaRow{Phone: phone, MessageID: id, Payload: string(raw)}
	if err := s.db.Where("phone = ? AND message_id = ?", phone, id).Assign(MediaRow{Payload: string(raw)}).FirstOrCreate(&row).Error; err != nil {
		return fmt.Errorf("store: set media payload: %w", err)
	}
	return nil
}

// GetMediaPayload returns the stored media descriptor.
func (s *SQLStores) GetMediaPayload(_ context.Context, phone, id string) (*MediaPayload, error) {
	var row MediaRow
	err := s.db.Where("phone = ? AND message_id = ?", phone, id).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get media payload: %w", err)
	}
	var payload MediaPayload
	if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
		return nil, fmt.Errorf("store: unmarshal media payload: %w", err)
	}
	return &payload, nil
}
