package storage

import (
	"errors"
	"time"

	"raffle/internal/logger"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	busyAttempts = 5
	busyBackoff  = 20 * time.Millisecond
)

type Func[T any] func() (T, error)

// retryBusy repeats fn while sqlite reports the database as busy or locked.
// Writes happen under the raffle lock, so the retry is bounded.
func retryBusy[T any](fn Func[T]) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		result, err = fn()
		if err == nil || !isBusy(err) {
			return result, err
		}
		logger.Debug("storage: database busy, retrying...", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * busyBackoff)
	}
	return result, err
}

func retryBusyExec(fn func() error) error {
	_, err := retryBusy(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func isBusy(err error) bool {
	var e sqlite3.Error
	return errors.As(err, &e) && (e.Code == sqlite3.ErrBusy || e.Code == sqlite3.ErrLocked)
}
