package thorerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrappedSentinelMatchesErrorsIs(t *testing.T) {
	wrapped := fmt.Errorf("build split transaction: %w", ErrNotOldCommitTransaction)
	require.True(t, errors.Is(wrapped, ErrNotOldCommitTransaction))
	require.False(t, errors.Is(wrapped, ErrWrongRevocationSecretKey))
}

func TestInsufficientFundsErrorMessage(t *testing.T) {
	err := &InsufficientFundsError{Input: 100, Output: 150, Fee: 10_000}
	require.Contains(t, err.Error(), "input 100")
	require.Contains(t, err.Error(), "output 150")
	require.Contains(t, err.Error(), "fee 10000")
}

func TestUnexpectedMessageErrorMessage(t *testing.T) {
	err := &UnexpectedMessageError{Expected: "Create2", Received: "Update0"}
	require.Contains(t, err.Error(), "expected Create2")
	require.Contains(t, err.Error(), "received Update0")
}
