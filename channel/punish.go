package channel

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
)

// FindRevokedState locates, among the channel's revoked history, the state
// whose commit output matches broadcastCommitTx's single output — the
// evidence that the counterparty just published an old, superseded state.
// It returns an error if broadcastCommitTx does not match any revoked
// state, meaning either it is the current state (nothing to punish) or it
// belongs to a channel this Channel value never tracked.
func (c *Channel) FindRevokedState(broadcastCommitTx *wire.MsgTx) (*RevokedState, error) {
	if len(broadcastCommitTx.TxOut) != 1 {
		return nil, fmt.Errorf("channel: commit transaction has unexpected output count %d", len(broadcastCommitTx.TxOut))
	}
	pkScript := broadcastCommitTx.TxOut[0].PkScript
	for i := range c.Revoked {
		if bytes.Equal(c.Revoked[i].State.Standard.CommitOutput.PkScript, pkScript) {
			return &c.Revoked[i], nil
		}
	}
	return nil, fmt.Errorf("channel: %w: no revoked state matches broadcast commit transaction", thorerrors.ErrNotOldCommitTransaction)
}

// Punish builds and broadcasts the transaction draining a cheater's
// revoked commit output to toScript, after the counterparty broadcasts
// broadcastCommitTx for a state revoked.State that this Channel had
// already moved past. It recovers the cheater's publishing secret key from
// their own decrypted signature inside broadcastCommitTx's witness, and
// combines it with the revocation secret they handed over at the time,
// exactly the two pieces of evidence the commit script's punish branch
// demands.
func (c *Channel) Punish(ctx context.Context, broadcastCommitTx *wire.MsgTx, revoked RevokedState, toScript []byte) (*transaction.PunishTransaction, error) {
	std := revoked.State.Standard

	if !revoked.ROtherSecret.PublicKey().Equal(std.ROther) {
		return nil, fmt.Errorf("channel: %w", thorerrors.ErrWrongRevocationSecretKey)
	}

	if len(broadcastCommitTx.TxIn) != 1 || len(broadcastCommitTx.TxIn[0].Witness) < 2 {
		return nil, fmt.Errorf("channel: %w: malformed funding-output witness", thorerrors.ErrNoSignatures)
	}
	commitDigest, err := transaction.CommitSigHash(broadcastCommitTx, c.FundingOutput.Script, c.FundingOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("channel: recompute cheater commit sighash: %w", err)
	}
	selfSig, err := findOwnSignature(broadcastCommitTx.TxIn[0].Witness, c.XSelf.PublicKey(), commitDigest)
	if err != nil {
		return nil, err
	}

	ySecret, err := transaction.RecoverPublishingKey(std.YOther, selfSig, std.EncSigSelfAuthored)
	if err != nil {
		return nil, fmt.Errorf("channel: %w", thorerrors.ErrRecoveryFailure)
	}

	commitOutPoint := wire.OutPoint{Hash: broadcastCommitTx.TxHash(), Index: 0}
	punishTx := transaction.BuildPunishTransaction(commitOutPoint, std.CommitOutput.Amount, toScript)
	punishDigest, err := punishTx.SigHash(std.CommitOutput.Script, std.CommitOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("channel: punish sighash: %w", err)
	}
	sigSelf := c.XSelf.Sign(punishDigest)
	rSecret := revoked.ROtherSecret.SecretKey()

	if c.XSelf.PublicKey().Less(c.XOther) {
		// Self is party 0, the cheater is party 1: punish branch 1.
		punishTx.AttachPunish1(std.CommitOutput.Script, sigSelf, ySecret, rSecret, punishDigest)
	} else {
		punishTx.AttachPunish0(std.CommitOutput.Script, sigSelf, ySecret, rSecret, punishDigest)
	}

	if err := c.Wallet.BroadcastSignedTransaction(ctx, punishTx.Tx); err != nil {
		return nil, fmt.Errorf("channel: broadcast punish transaction: %w", err)
	}
	log.Warnf("channel %x: punished cheating counterparty, drained to %x", c.ID(), toScript)
	return punishTx, nil
}

// findOwnSignature returns whichever of a two-signature witness verifies
// under pub at digest, the caller's own signature as replayed by whoever
// broadcast the transaction.
func findOwnSignature(witness wire.TxWitness, pub keys.OwnershipPublicKey, digest [32]byte) (*ecdsa.Signature, error) {
	for _, raw := range witness[:2] {
		sig, err := ecdsa.ParseDERSignature(raw)
		if err != nil {
			continue
		}
		if pub.Verify(digest, sig) {
			return sig, nil
		}
	}
	return nil, fmt.Errorf("channel: %w: no witness signature matches own key", thorerrors.ErrInvalidSignature)
}
