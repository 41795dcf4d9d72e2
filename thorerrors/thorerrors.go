// Package thorerrors collects the sentinel errors surfaced across the
// channel and swap protocols. Call sites wrap one of these with
// fmt.Errorf("...: %w", ...) for context; callers match with errors.Is or
// errors.As, the same convention the adaptor, dleq, keys, transaction and
// chanmsg packages already use for their own local errors.
package thorerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is returned when a plain ECDSA signature fails
	// to verify against the key and digest it was supposed to cover.
	ErrInvalidSignature = errors.New("thor: invalid signature")

	// ErrInvalidEncryptedSignature is returned when an adaptor signature,
	// or its accompanying DLEQ proof, fails to verify.
	ErrInvalidEncryptedSignature = errors.New("thor: invalid encrypted signature")

	// ErrIncompatibleTimeLocks is returned at channel-open round 0 when
	// the two parties propose different relative timelocks.
	ErrIncompatibleTimeLocks = errors.New("thor: incompatible time locks")

	// ErrNotOldCommitTransaction is returned when Punish is invoked on a
	// transaction that does not match any of the channel's revoked
	// commit transactions.
	ErrNotOldCommitTransaction = errors.New("thor: transaction is not a revoked commit transaction")

	// ErrNoSignatures is returned when a broadcast revoked commit
	// transaction's witness carries no ownership signature to recover a
	// publishing key from.
	ErrNoSignatures = errors.New("thor: revoked commit transaction witness carries no signatures")

	// ErrRecoveryFailure is returned when punishment's key-recovery step
	// fails: the supposed revoked commit transaction is malformed or its
	// witness does not match the channel's own records. The swap and the
	// swap-over-PTLC protocols also return it when recovering the secret
	// from a published signature fails.
	ErrRecoveryFailure = errors.New("thor: failed to recover publishing key from revoked commit transaction")

	// ErrWrongRevocationSecretKey is returned when a revealed revocation
	// secret key does not match the public key previously committed to
	// for that state.
	ErrWrongRevocationSecretKey = errors.New("thor: revealed revocation secret key does not match committed public key")

	// ErrPtlcSecretMismatch is returned when a revealed PTLC secret's
	// point does not match the PtlcPoint agreed on when the PTLC was
	// added to the channel.
	ErrPtlcSecretMismatch = errors.New("thor: ptlc secret does not match agreed point")

	// ErrChannelNotFound is returned by channelstore.Store.Get when no
	// channel is stored under the requested ID.
	ErrChannelNotFound = errors.New("thor: channel not found")

	// ErrInvalidDleqProof is returned when a swap counterparty's
	// cross-curve DLEQ proof binding their Bitcoin and Monero points
	// fails to verify.
	ErrInvalidDleqProof = errors.New("thor: invalid cross-curve dleq proof")

	// ErrSwapLockOutputMismatch is returned when the counterparty's
	// tx_lock funding PSBT does not actually pay the agreed amount to the
	// agreed 2-of-2 output.
	ErrSwapLockOutputMismatch = errors.New("thor: tx_lock funding psbt does not match agreed output")

	// ErrMoneroTransferInvalid is returned when CheckTransfer rejects the
	// counterparty's Monero lock proof.
	ErrMoneroTransferInvalid = errors.New("thor: monero transfer proof invalid")

	// ErrSwapCancelled is returned by RunAlice/RunBob when the swap was
	// aborted before tx_lock's Monero leg completed, and the caller should
	// proceed to the cancel/refund/punish path instead of treating the
	// error as fatal.
	ErrSwapCancelled = errors.New("thor: swap cancelled before completion")
)

// InsufficientFundsError reports that a transaction could not be built
// because its outputs plus fee would exceed its input.
type InsufficientFundsError struct {
	Input, Output, Fee int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("thor: insufficient funds: input %d < output %d + fee %d", e.Input, e.Output, e.Fee)
}

// UnexpectedMessageError reports that the transport delivered a message of
// a type inconsistent with the session's current round.
type UnexpectedMessageError struct {
	Expected, Received string
}

func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("thor: unexpected message: expected %s, received %s", e.Expected, e.Received)
}
