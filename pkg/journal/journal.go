// Package journal persists announcement outcomes to SQLite so a session can
// be reviewed after the fact.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/teslashibe/go-wayfinder/pkg/announce"
)

const (
	// pruneEvery is how many records are written between prune passes.
	pruneEvery = 100

	// pendingBuffer is how many observed outcomes may wait for the writer.
	pendingBuffer = 256
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal: closed")

// Entry is one announcement outcome.
type Entry struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SessionID     string    `gorm:"type:varchar(36);index" json:"session_id"`
	MessageID     string    `gorm:"type:varchar(36);index" json:"message_id"`
	Text          string    `gorm:"type:text;not null" json:"text"`
	Priority      string    `gorm:"type:varchar(16)" json:"priority"`
	Interruptible bool      `json:"interruptible"`
	Mode          string    `gorm:"type:varchar(16)" json:"mode"`
	Status        string    `gorm:"type:varchar(16);index" json:"status"`
	Error         string    `gorm:"type:text" json:"error,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `gorm:"index" json:"finished_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName sets the table name.
func (Entry) TableName() string {
	return "announcements"
}

// Config configures the journal.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// MaxEntries caps the table size. Oldest rows are pruned first.
	// Zero keeps everything.
	MaxEntries int

	// SlowThreshold logs queries slower than this.
	SlowThreshold time.Duration
}

// DefaultConfig returns the default journal settings.
func DefaultConfig() Config {
	return Config{
		Path:          "wayfinder.db",
		MaxEntries:    10000,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("journal: path required")
	}
	if c.MaxEntries < 0 {
		return errors.New("journal: max entries must be >= 0")
	}
	return nil
}

// Journal records announcement outcomes.
type Journal struct {
	db      *gorm.DB
	config  Config
	session uuid.UUID
	logger  *slog.Logger

	written atomic.Int64
	dropped atomic.Int64
	closed  atomic.Bool

	// mu guards stopping and sends on pending.
	mu       sync.Mutex
	stopping bool
	pending  chan pendingWrite
	drained  chan struct{}
}

type pendingWrite struct {
	outcome announce.Outcome
	timeout time.Duration
}

// Open opens or creates the journal database and migrates its schema.
func Open(cfg Config, logger *slog.Logger) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "journal")

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.New(
			slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
			gormlogger.Config{
				SlowThreshold:             cfg.SlowThreshold,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", cfg.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("journal: get database instance: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&Entry{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}

	j := &Journal{
		db:      db,
		config:  cfg,
		session: uuid.New(),
		logger:  logger,
		pending: make(chan pendingWrite, pendingBuffer),
		drained: make(chan struct{}),
	}
	go j.writeLoop()
	logger.Info("journal opened", "path", cfg.Path, "session", j.session)
	return j, nil
}

// Session returns the id stamped on every entry written by this journal.
func (j *Journal) Session() uuid.UUID {
	return j.session
}

// Record stores one outcome.
func (j *Journal) Record(ctx context.Context, o announce.Outcome) error {
	if j.closed.Load() {
		return ErrClosed
	}

	entry := Entry{
		ID:            uuid.NewString(),
		SessionID:     j.session.String(),
		MessageID:     o.Message.ID.String(),
		Text:          o.Message.Text,
		Priority:      o.Message.Priority.String(),
		Interruptible: o.Message.Interruptible,
		Mode:          o.Message.Mode.String(),
		Status:        string(o.Status),
		Error:         o.Error(),
		EnqueuedAt:    o.Message.EnqueuedAt,
		StartedAt:     o.StartedAt,
		FinishedAt:    o.FinishedAt,
	}
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}

	if n := j.written.Add(1); j.config.MaxEntries > 0 && n%pruneEvery == 0 {
		if _, err := j.Prune(ctx, j.config.MaxEntries); err != nil {
			j.logger.Warn("prune failed", "error", err)
		}
	}
	return nil
}

// Observer returns a function suitable for announce.Scheduler.OnOutcome.
// It only queues the outcome; a background writer stores it with the given
// timeout. Outcomes are dropped when the queue is full.
func (j *Journal) Observer(timeout time.Duration) func(announce.Outcome) {
	return func(o announce.Outcome) {
		j.mu.Lock()
		defer j.mu.Unlock()
		if j.stopping {
			return
		}
		select {
		case j.pending <- pendingWrite{outcome: o, timeout: timeout}:
		default:
			j.dropped.Add(1)
			j.logger.Warn("journal queue full, dropping outcome", "message_id", o.Message.ID)
		}
	}
}

// Dropped returns how many observed outcomes were discarded.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *Journal) writeLoop() {
	defer close(j.drained)
	for w := range j.pending {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := j.Record(ctx, w.outcome); err != nil {
			j.logger.Warn("failed to record outcome", "message_id", w.outcome.Message.ID, "error", err)
		}
		cancel()
	}
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	var entries []Entry
	err := j.db.WithContext(ctx).
		Order("finished_at DESC").
		Order("created_at DESC").
		Limit(n).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return entries, nil
}

// Counts returns the number of entries per status.
func (j *Journal) Counts(ctx context.Context) (map[announce.Status]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := j.db.WithContext(ctx).
		Model(&Entry{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("journal: counts: %w", err)
	}

	counts := make(map[announce.Status]int64, len(rows))
	for _, r := range rows {
		counts[announce.Status(r.Status)] = r.N
	}
	return counts, nil
}

// Prune deletes all but the newest keep entries and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, keep int) (int64, error) {
	var total int64
	if err := j.db.WithContext(ctx).Model(&Entry{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	excess := total - int64(keep)
	if excess <= 0 {
		return 0, nil
	}

	oldest := j.db.Model(&Entry{}).
		Select("id").
		Order("finished_at ASC").
		Order("created_at ASC").
		Limit(int(excess))
	res := j.db.WithContext(ctx).Where("id IN (?)", oldest).Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("journal: prune: %w", res.Error)
	}
	j.logger.Debug("journal pruned", "removed", res.RowsAffected, "kept", keep)
	return res.RowsAffected, nil
}

// Close writes any queued outcomes and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.stopping {
		j.mu.Unlock()
		return nil
	}
	j.stopping = true
	close(j.pending)
	j.mu.Unlock()

	<-j.drained
	j.closed.Store(true)
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
