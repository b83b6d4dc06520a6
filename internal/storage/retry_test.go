package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryBusy(t *testing.T) {
	busy := fmt.Errorf("update snapshot: %w", sqlite3.Error{Code: sqlite3.ErrBusy})

	calls := 0
	result, err := retryBusy(func() (int, error) {
		calls++
		if calls < 3 {
			return 0, busy
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryBusyExec(func() error {
		calls++
		return errors.New("constraint failed")
	})
	require.EqualError(t, err, "constraint failed")
	assert.Equal(t, 1, calls)

	calls = 0
	err = retryBusyExec(func() error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrLocked}
	})
	require.Error(t, err)
	assert.True(t, isBusy(err))
	assert.Equal(t, busyAttempts, calls)
}
