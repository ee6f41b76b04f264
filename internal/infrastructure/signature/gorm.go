package signature

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Model is the durable row shape: single table keyed by (sessionId,
// entryKey) with indices on sessionId and timestamp.
type Model struct {
	SessionID string `gorm:"column:session_id;primaryKey;size:128"`
	EntryKey  string `gorm:"column:entry_key;primaryKey;size:160"` // model + textHash
	Signature string `gorm:"column:signature;type:text;not null"`
	Family    string `gorm:"column:family;size:32"`
	Timestamp int64  `gorm:"column:timestamp;index"`
}

func (Model) TableName() string { return "signatures" }

// OpenDB opens a gorm connection for the signature store.
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("signature: unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("signature: connect: %w", err)
	}
	if err := db.AutoMigrate(&Model{}); err != nil {
		return nil, fmt.Errorf("signature: migrate: %w", err)
	}
	return db, nil
}

// GormStore is the durable implementation of Store.
type GormStore struct {
	db  *gorm.DB
	cap int
	ttl int64
}

// NewGormStore builds a durable Store backed by db. A capPerSession or
// ttlMillis of 0 falls back to the defaults.
func NewGormStore(db *gorm.DB, capPerSession int, ttlMillis int64) *GormStore {
	if capPerSession <= 0 {
		capPerSession = DefaultCapPerSession
	}
	if ttlMillis <= 0 {
		ttlMillis = DefaultTTLMillis
	}
	return &GormStore{db: db, cap: capPerSession, ttl: ttlMillis}
}

func (s *GormStore) Save(ctx context.Context, key Key, sig, family string, nowMillis int64) error {
	row := Model{SessionID: key.SessionID, EntryKey: entryKey(key.Model, key.TextHash), Signature: sig, Family: family, Timestamp: nowMillis}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("signature: save: %w", err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Model{}).Where("session_id = ?", key.SessionID).Count(&count).Error; err != nil {
		return fmt.Errorf("signature: count: %w", err)
	}
	if int(count) <= s.cap {
		return nil
	}

	var stale []Model
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", key.SessionID).
		Order("timestamp asc").
		Limit(int(count) - s.cap).
		Find(&stale).Error; err != nil {
		return fmt.Errorf("signature: find stale: %w", err)
	}
	for _, m := range stale {
		if err := s.db.WithContext(ctx).Delete(&Model{}, "session_id = ? AND entry_key = ?", m.SessionID, m.EntryKey).Error; err != nil {
			return fmt.Errorf("signature: evict: %w", err)
		}
	}
	return nil
}

func (s *GormStore) Restore(ctx context.Context, key Key, nowMillis int64) (*Entry, bool, error) {
	if err := s.db.WithContext(ctx).
		Where("session_id = ? AND timestamp < ?", key.SessionID, nowMillis-s.ttl).
		Delete(&Model{}).Error; err != nil {
		return nil, false, fmt.Errorf("signature: sweep: %w", err)
	}

	var row Model
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND entry_key = ?", key.SessionID, entryKey(key.Model, key.TextHash)).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("signature: restore: %w", err)
	}
	return &Entry{Signature: row.Signature, Family: row.Family, Timestamp: row.Timestamp, SessionID: row.SessionID}, true, nil
}

func (s *GormStore) ClearSession(ctx context.Context, sessionID string) error {
	if err := s.db.WithContext(ctx).Delete(&Model{}, "session_id = ?", sessionID).Error; err != nil {
		return fmt.Errorf("signature: clear session: %w", err)
	}
	return nil
}

var _ Store = (*GormStore)(nil)
