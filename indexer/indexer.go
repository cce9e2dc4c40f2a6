package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"runclub/core/events"
	"runclub/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"

	defaultPageSize = 100
	maxPageSize     = 1000
)

var ErrUnknownDriver = errors.New("indexer: unknown driver")

// addressKeys lists the attributes consulted, in order, for the row's
// principal address.
var addressKeys = []string{"user", "member", "from", "organizer", "to"}

// Event is the read model returned by queries.
type Event struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	ClubID     *uint64           `json:"clubId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Indexer persists committed events into a relational store. It implements
// events.Emitter so it can sit directly behind the runtime.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to the configured driver and prepares the schema.
func Open(driver, dsn string, logger *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	return New(db, logger)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	var last uint64
	if err := db.Model(&EventRecord{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("load index sequence: %w", err)
	}
	return &Indexer{
		db:     db,
		logger: logger.With(slog.String("component", "indexer")),
		now:    time.Now,
		seq:    last,
	}, nil
}

// Emit implements events.Emitter. Failures are logged; the state transition
// that produced the event has already committed.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || evt == nil {
		return
	}
	raw := events.Raw(evt)
	if raw == nil {
		raw = &types.Event{Type: evt.EventType()}
	}
	if err := i.Record(context.Background(), raw); err != nil {
		i.logger.Error("index event", slog.String("type", raw.Type), slog.Any("error", err))
	}
}

// Record stores a single event.
func (i *Indexer) Record(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	record := EventRecord{
		ID:         uuid.New(),
		Sequence:   i.seq + 1,
		Type:       evt.Type,
		ClubID:     parseClubID(attrs["clubId"]),
		Address:    principal(attrs),
		Attributes: string(encoded),
		CreatedAt:  i.now().UTC(),
	}
	if err := i.db.WithContext(ctx).Create(&record).Error; err != nil {
		return err
	}
	i.seq = record.Sequence
	return nil
}

// ClubEvents returns the events recorded for clubID in commit order, starting
// after the given sequence number.
func (i *Indexer) ClubEvents(ctx context.Context, clubID uint64, after uint64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	var rows []EventRecord
	err := i.db.WithContext(ctx).
		Where("club_id = ? AND sequence > ?", clubID, after).
		Order("sequence ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toEvents(rows)
}

// AddressEvents returns events whose principal address matches addr.
func (i *Indexer) AddressEvents(ctx context.Context, addr string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	var rows []EventRecord
	err := i.db.WithContext(ctx).
		Where("address = ?", strings.ToLower(addr)).
		Order("sequence ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toEvents(rows)
}

// HasEvent reports whether an event of eventType was recorded for clubID.
func (i *Indexer) HasEvent(ctx context.Context, eventType string, clubID uint64) (bool, error) {
	var count int64
	err := i.db.WithContext(ctx).
		Model(&EventRecord{}).
		Where("type = ? AND club_id = ?", eventType, clubID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toEvents(rows []EventRecord) ([]Event, error) {
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		attrs := map[string]string{}
		if row.Attributes != "" {
			if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("decode attributes of %s: %w", row.ID, err)
			}
		}
		out = append(out, Event{
			ID:         row.ID.String(),
			Sequence:   row.Sequence,
			Type:       row.Type,
			ClubID:     row.ClubID,
			Attributes: attrs,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out, nil
}

func parseClubID(raw string) *uint64 {
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func principal(attrs map[string]string) string {
	for _, key := range addressKeys {
		if v := attrs[key]; v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}
