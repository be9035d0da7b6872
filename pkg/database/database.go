package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/stacks/pkg/config"
	"github.com/shishobooks/stacks/pkg/errcodes"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const memoryPath = ":memory:"

type key int

const ctxKey key = 0

func WithLogging(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey, true)
}

type logQueryHook struct {
	log logger.Logger
}

func (*logQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (qh *logQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	enabled, ok := ctx.Value(ctxKey).(bool)
	if !ok || !enabled {
		return
	}

	qh.log.Debug(event.Query)
}

// Store is the handle every service is constructed with. Reads go straight to
// the embedded *bun.DB; writes go through Write so there is one logical writer
// per process.
type Store struct {
	*bun.DB

	maxRetries int
	writeMu    sync.Mutex
}

func New(cfg *config.Config) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseFilePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Every connection to :memory: is its own database.
	if cfg.DatabaseFilePath == memoryPath {
		sqldb.SetMaxOpenConns(1)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	// print out all queries in debug mode
	if cfg.DatabaseDebug {
		db.AddQueryHook(&logQueryHook{logger.NewWithLevel("debug")})
	}

	// Retry up to a few times to ensure that the database can connect.
	for i := 0; i < cfg.DatabaseConnectRetryCount; i++ {
		_, err = db.Exec("SELECT 1")
		if err != nil {
			time.Sleep(cfg.DatabaseConnectRetryDelay)
			continue
		}
		break
	}
	if err != nil {
		return nil, errcodes.StorageUnavailable(err)
	}

	if cfg.DatabaseFilePath != memoryPath {
		// WAL lets snapshot reads run while the writer commits.
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			return nil, errors.Wrap(err, "failed to enable WAL mode")
		}
	}

	_, err = db.Exec("PRAGMA busy_timeout=?", cfg.DatabaseBusyTimeout.Milliseconds())
	if err != nil {
		return nil, errors.Wrap(err, "failed to set busy_timeout")
	}

	return &Store{DB: db, maxRetries: cfg.DatabaseMaxRetries}, nil
}

// Write runs fn in a transaction while holding the process-wide write lock.
// SQLITE_BUSY from other processes is retried with backoff; if it persists the
// error is reported as StorageUnavailable. fn may run more than once and must
// not have side effects outside tx.
func (s *Store) Write(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := retryWithBackoff(ctx, s.maxRetries, func() error {
		return s.RunInTx(ctx, nil, fn)
	})
	if isBusyError(err) {
		return errcodes.StorageUnavailable(err)
	}
	return err
}

// Read runs fn in a transaction without taking the write lock, so every query
// in fn sees the same snapshot.
func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	err := s.RunInTx(ctx, nil, fn)
	if isBusyError(err) {
		return errcodes.StorageUnavailable(err)
	}
	return err
}
