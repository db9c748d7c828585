package database

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the services react to.
const (
	ErrNumDuplicateEntry   = 1062
	ErrNumLockWaitTimeout  = 1205
	ErrNumDeadlock         = 1213
	ErrNumLockNotAvailable = 3572 // FOR UPDATE NOWAIT could not get the row lock
)

func mysqlNumber(err error) (uint16, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number, true
	}
	return 0, false
}

// IsLockNotAvailable reports whether err is a NOWAIT lock failure.
func IsLockNotAvailable(err error) bool {
	n, ok := mysqlNumber(err)
	return ok && n == ErrNumLockNotAvailable
}

func IsDuplicateKey(err error) bool {
	n, ok := mysqlNumber(err)
	return ok && n == ErrNumDuplicateEntry
}

// IsTransient reports errors where retrying the whole transaction may
// succeed: lock wait timeouts, deadlocks and an expired context.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	n, ok := mysqlNumber(err)
	return ok && (n == ErrNumLockWaitTimeout || n == ErrNumDeadlock)
}

// RetryTransient runs fn up to attempts times while it fails with a lock
// wait timeout or deadlock and ctx is still alive. fn must run a complete
// transaction so a retry starts from scratch.
func RetryTransient(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !IsTransient(err) || ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(i+1) * 20 * time.Millisecond):
		}
	}
	return err
}
