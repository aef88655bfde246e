package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
}

// Manager runs fn in a transaction and replays it from the top when Postgres
// reports a serialization failure or a deadlock. fn must therefore be safe to
// run more than once.
type Manager struct {
	DB *sql.DB
	// Isolation defaults to read committed.
	Isolation sql.IsolationLevel
	// MaxAttempts defaults to 5.
	MaxAttempts int
}

const (
	defaultMaxAttempts = 5
	conflictBackoff    = 10 * time.Millisecond
)

var ErrRetryExhausted = errors.New("transaction retry exhausted")

var _ Transactor = (*Manager)(nil)

func (m *Manager) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	attempts := m.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	isolation := m.Isolation
	if isolation == sql.LevelDefault {
		isolation = sql.LevelReadCommitted
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = m.runOnce(ctx, isolation, fn)
		if err == nil || !isSerializationError(err) {
			return err
		}

		observability.GetLogger(ctx).Warn("tx: conflict, replaying transaction",
			zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * conflictBackoff):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, attempts, err)
}

func (m *Manager) runOnce(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := m.DB.BeginTx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// isSerializationError matches SQLSTATE 40001 and 40P01.
func isSerializationError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return strings.Contains(err.Error(), "could not serialize")
}
