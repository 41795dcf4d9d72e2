package swap

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/moneroiface"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
	"github.com/ptlc-labs/thor/walletiface"
)

// AbortOutcome reports how a swap that walked the cancel path settled.
type AbortOutcome int

const (
	// AbortRefunded means tx_refund appeared on-chain: Bob reclaimed his
	// Bitcoin, and in doing so leaked s_b, which Alice's side used to
	// reclaim the locked Monero.
	AbortRefunded AbortOutcome = iota
	// AbortPunished means Bob never refunded within punish_timelock and
	// Alice swept tx_cancel's output via tx_punish.
	AbortPunished
)

// aliceAbort captures, at the moment Alice finishes round 1, everything she
// needs to walk the cancel path unilaterally: broadcast tx_cancel once its
// timelock matures, recover s_b from Bob's tx_refund if he takes it, or
// sweep via tx_punish if he does not.
type aliceAbort struct {
	key *keys.OwnershipKeyPair

	lockOutput *transaction.SwapLockOutput

	cancelTx       *transaction.SwapCancelTransaction
	cancelDigest   [32]byte
	sigCancelOther *ecdsa.Signature

	punishTx       *transaction.SwapPunishTransaction
	punishDigest   [32]byte
	sigPunishOther *ecdsa.Signature

	refundTx     *transaction.SwapRefundTransaction
	refundDigest [32]byte
	encSigRefund *adaptor.EncryptedSignature
	sBBitcoin    keys.PtlcPoint

	sAMonero  keys.MoneroScalar
	jointView keys.MoneroScalar

	refundTimeLock uint32
	punishTimeLock uint32
	lockSeenMedian uint32
}

func (a *aliceAbort) run(ctx context.Context, wallet walletiface.BitcoinWallet, monero moneroiface.Wallet) (AbortOutcome, error) {
	if err := waitMedianDelta(ctx, wallet, a.lockSeenMedian, a.refundTimeLock); err != nil {
		return 0, fmt.Errorf("swap: alice: wait for tx_cancel maturity: %w", err)
	}

	sigCancelSelf, err := adaptor.FromECDSA(a.key.Sign(a.cancelDigest))
	if err != nil {
		return 0, fmt.Errorf("swap: alice: sign tx_cancel: %w", err)
	}
	sigCancelOther, err := adaptor.FromECDSA(a.sigCancelOther)
	if err != nil {
		return 0, fmt.Errorf("swap: alice: convert tx_cancel signature: %w", err)
	}
	sigA, sigB := orderedSwapSigs(a.lockOutput.A, a.key.PublicKey(), &sigCancelSelf, &sigCancelOther)
	a.cancelTx.Attach(a.lockOutput.Script, sigA, sigB)
	if err := wallet.BroadcastSignedTransaction(ctx, a.cancelTx.Tx); err != nil {
		return 0, fmt.Errorf("swap: alice: broadcast tx_cancel: %w", err)
	}
	cancelSeenMedian, err := wallet.MedianTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("swap: alice: read median time: %w", err)
	}
	log.Infof("swap: alice: broadcast tx_cancel %s, waiting for bob's refund", a.cancelTx.Tx.TxHash())

	refundTxid := a.refundTx.Tx.TxHash()
	t := ticker.New(PollInterval)
	t.Resume()
	defer t.Stop()

	for {
		if observed, err := wallet.GetRawTransaction(ctx, refundTxid); err == nil {
			publishedSig, err := findSignatureByKey(observed.TxIn[0].Witness, a.key.PublicKey(), a.refundDigest)
			if err != nil {
				return 0, fmt.Errorf("swap: alice: %w", err)
			}
			recovered, err := transaction.RecoverSwapSecret(a.sBBitcoin, publishedSig, a.encSigRefund)
			if err != nil {
				return 0, fmt.Errorf("swap: alice: %w: %v", thorerrors.ErrRecoveryFailure, err)
			}
			sBMonero, err := moneroScalarFromRecovered(recovered)
			if err != nil {
				return 0, fmt.Errorf("swap: alice: recovered s_b as monero scalar: %w", err)
			}
			combined := a.sAMonero.Add(sBMonero)
			if err := monero.ImportOutput(ctx, combined, a.jointView); err != nil {
				return 0, fmt.Errorf("swap: alice: import monero output: %w", err)
			}
			log.Infof("swap: alice: recovered s_b from bob's tx_refund, reclaimed monero")
			return AbortRefunded, nil
		}

		now, err := wallet.MedianTime(ctx)
		if err != nil {
			return 0, fmt.Errorf("swap: alice: read median time: %w", err)
		}
		if now-cancelSeenMedian >= a.punishTimeLock {
			sigPunishSelf := a.key.Sign(a.punishDigest)
			adaptorSelf, err := adaptor.FromECDSA(sigPunishSelf)
			if err != nil {
				return 0, fmt.Errorf("swap: alice: sign tx_punish: %w", err)
			}
			adaptorOther, err := adaptor.FromECDSA(a.sigPunishOther)
			if err != nil {
				return 0, fmt.Errorf("swap: alice: convert tx_punish signature: %w", err)
			}
			pA, pB := orderedSwapSigs(a.cancelTx.Output.A, a.key.PublicKey(), &adaptorSelf, &adaptorOther)
			a.punishTx.Attach(a.cancelTx.Output.Script, pA, pB)
			if err := wallet.BroadcastSignedTransaction(ctx, a.punishTx.Tx); err != nil {
				return 0, fmt.Errorf("swap: alice: broadcast tx_punish: %w", err)
			}
			log.Infof("swap: alice: bob never refunded, swept via tx_punish %s", a.punishTx.Tx.TxHash())
			return AbortPunished, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-t.Ticks():
		}
	}
}

// bobAbort captures, at the moment Bob broadcasts tx_lock, everything he
// needs to refund himself unilaterally: broadcast tx_cancel once its
// timelock matures, then decrypt Alice's encrypted refund signature with
// s_b and broadcast tx_refund, knowingly leaking s_b to her.
type bobAbort struct {
	key *keys.OwnershipKeyPair

	lockOutput *transaction.SwapLockOutput

	cancelTx       *transaction.SwapCancelTransaction
	cancelDigest   [32]byte
	sigCancelOther *ecdsa.Signature

	refundTx     *transaction.SwapRefundTransaction
	refundDigest [32]byte
	encSigRefund *adaptor.EncryptedSignature
	sBSecret     keys.PtlcSecret

	refundTimeLock      uint32
	lockBroadcastMedian uint32
}

func (b *bobAbort) run(ctx context.Context, wallet walletiface.BitcoinWallet) (AbortOutcome, error) {
	if err := waitMedianDelta(ctx, wallet, b.lockBroadcastMedian, b.refundTimeLock); err != nil {
		return 0, fmt.Errorf("swap: bob: wait for tx_cancel maturity: %w", err)
	}

	sigCancelSelf, err := adaptor.FromECDSA(b.key.Sign(b.cancelDigest))
	if err != nil {
		return 0, fmt.Errorf("swap: bob: sign tx_cancel: %w", err)
	}
	sigCancelOther, err := adaptor.FromECDSA(b.sigCancelOther)
	if err != nil {
		return 0, fmt.Errorf("swap: bob: convert tx_cancel signature: %w", err)
	}
	sigA, sigB := orderedSwapSigs(b.lockOutput.A, b.key.PublicKey(), &sigCancelSelf, &sigCancelOther)
	b.cancelTx.Attach(b.lockOutput.Script, sigA, sigB)
	if err := wallet.BroadcastSignedTransaction(ctx, b.cancelTx.Tx); err != nil {
		return 0, fmt.Errorf("swap: bob: broadcast tx_cancel: %w", err)
	}

	sigRefundAlice := adaptor.Decrypt(b.sBSecret.SecretKey(), b.encSigRefund)
	sigRefundSelf, err := adaptor.FromECDSA(b.key.Sign(b.refundDigest))
	if err != nil {
		return 0, fmt.Errorf("swap: bob: sign tx_refund: %w", err)
	}
	rA, rB := orderedSwapSigs(b.cancelTx.Output.A, b.key.PublicKey(), &sigRefundSelf, &sigRefundAlice)
	b.refundTx.Attach(b.cancelTx.Output.Script, rA, rB)
	if err := wallet.BroadcastSignedTransaction(ctx, b.refundTx.Tx); err != nil {
		return 0, fmt.Errorf("swap: bob: broadcast tx_refund: %w", err)
	}
	log.Infof("swap: bob: refunded tx_lock via tx_cancel %s and tx_refund %s", b.cancelTx.Tx.TxHash(), b.refundTx.Tx.TxHash())
	return AbortRefunded, nil
}

// waitMedianDelta blocks until wallet's median time has advanced by at
// least delta seconds past baseline, standing in for a BIP68 relative
// timelock maturing.
func waitMedianDelta(ctx context.Context, wallet walletiface.BitcoinWallet, baseline, delta uint32) error {
	t := ticker.New(PollInterval)
	t.Resume()
	defer t.Stop()

	for {
		now, err := wallet.MedianTime(ctx)
		if err != nil {
			return err
		}
		if now-baseline >= delta {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Ticks():
		}
	}
}
