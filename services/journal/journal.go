// Package journal persists committed events to a SQL database so operators
// can audit the node's history after the fact.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendcore/core/events"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Entry is one journaled event.
type Entry struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Seq        uint64            `gorm:"uniqueIndex;not null" json:"seq"`
	Type       string            `gorm:"index;not null" json:"type"`
	Attributes map[string]string `gorm:"serializer:json" json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func (Entry) TableName() string { return "journal_entries" }

// Filter narrows a journal query.
type Filter struct {
	Type     string
	AfterSeq uint64
	Limit    int
}

// Journal is an events.Emitter backed by gorm.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	nextSeq uint64
}

// Open connects to driver at dsn and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an open database.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	var last Entry
	err := db.Order("seq desc").Limit(1).Take(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("journal: load sequence: %w", err)
	}
	return &Journal{db: db, logger: log, now: time.Now, nextSeq: last.Seq + 1}, nil
}

// Emit records e. Write failures are logged; the node has already committed.
func (j *Journal) Emit(e events.Event) {
	if _, err := j.Append(context.Background(), e); err != nil {
		j.logger.Error("journal append failed", slog.String("type", e.EventType()), slog.Any("error", err))
	}
}

// Append stores e and returns the persisted entry.
func (j *Journal) Append(ctx context.Context, e events.Event) (*Entry, error) {
	if e == nil {
		return nil, errors.New("journal: nil event")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entry := &Entry{
		ID:         uuid.New(),
		Seq:        j.nextSeq,
		Type:       e.EventType(),
		Attributes: e.Attributes(),
		CreatedAt:  j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	j.nextSeq++
	return entry, nil
}

// Query lists entries in sequence order.
func (j *Journal) Query(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	q := j.db.WithContext(ctx).Where("seq > ?", f.AfterSeq)
	if t := strings.TrimSpace(f.Type); t != "" {
		q = q.Where("type = ?", t)
	}
	var out []Entry
	if err := q.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
