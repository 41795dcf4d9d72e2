package swap

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/dleq"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/moneroiface"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
)

// RunBob runs the cross-chain swap's Bob side to completion: Bob sells
// Bitcoin, funding and broadcasting tx_lock himself, and is paid in Monero
// once Alice redeems tx_lock on the Bitcoin chain: her broadcast leaks her
// session secret s_a, which Bob recovers from the published signature and
// uses to open the joint Monero output.
func RunBob(ctx context.Context, p BobParams) (*Result, error) {
	bKey, err := keys.NewOwnershipKeyPair()
	if err != nil {
		return nil, fmt.Errorf("swap: bob: generate session key: %w", err)
	}

	remote0a, err := expectSwap0a(ctx, p.Transport)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: round 0a receive: %w", err)
	}
	if err := dleq.Verify(remote0a.DleqProofSA, remote0a.SABitcoin.Inner(), remote0a.SAMonero.Inner()); err != nil {
		return nil, fmt.Errorf("swap: bob: %w: %v", thorerrors.ErrInvalidDleqProof, err)
	}

	secretB, proofB, err := newSwapSecret()
	if err != nil {
		return nil, fmt.Errorf("swap: bob: sample session secret: %w", err)
	}
	sBBitcoin, err := bitcoinPoint(secretB)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: derive bitcoin point: %w", err)
	}
	sBMonero, err := moneroPointOf(secretB)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: derive monero point: %w", err)
	}
	sBMoneroScalar, err := moneroScalarOf(secretB)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: derive monero scalar: %w", err)
	}
	vB, err := keys.NewMoneroScalar()
	if err != nil {
		return nil, fmt.Errorf("swap: bob: generate view key share: %w", err)
	}

	refundAddr, err := p.Wallet.NewAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: refund address: %w", err)
	}
	refundScript, err := txscript.PayToAddrScript(refundAddr)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: refund script: %w", err)
	}

	lockOutput, err := transaction.BuildSwapLockOutput(remote0a.A, bKey.PublicKey(), p.AmountBitcoin)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: build tx_lock output: %w", err)
	}
	lockAddr, err := lockOutputAddress(lockOutput, p.Net)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: tx_lock address: %w", err)
	}
	lockPSBT, err := p.Wallet.BuildFundingPSBT(ctx, lockAddr, lockOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: build tx_lock funding psbt: %w", err)
	}

	// Round 0b.
	if err := p.Transport.Send(ctx, &chanmsg.Swap0b{
		B:               bKey.PublicKey(),
		SBMonero:        sBMonero,
		SBBitcoin:       sBBitcoin,
		DleqProofSB:     proofB,
		VB:              vB,
		RefundAddr:      refundScript,
		TxLockFeeInputs: lockPSBT,
	}); err != nil {
		return nil, fmt.Errorf("swap: bob: round 0b send: %w", err)
	}

	jointSpend := remote0a.SAMonero.Add(sBMonero)
	jointView := remote0a.VA.Add(vB)
	jointViewPub := jointView.Point()

	lockIdx, err := verifyLockFunding(lockPSBT, lockOutput)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: %w", err)
	}
	lockOutPoint := wire.OutPoint{Hash: lockPSBT.UnsignedTx.TxHash(), Index: lockIdx}

	cancelTx, err := transaction.BuildSwapCancelTransaction(lockOutPoint, lockOutput.Amount, remote0a.A, bKey.PublicKey(), p.RefundTimeLock)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: build tx_cancel: %w", err)
	}
	cancelDigest, err := cancelTx.SigHash(lockOutput.Script, lockOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: tx_cancel sighash: %w", err)
	}
	sigCancelSelf := bKey.Sign(cancelDigest)

	punishTx := transaction.BuildSwapPunishTransaction(cancelTx.OutPoint(), cancelTx.Output.Amount, remote0a.PunishAddr, p.PunishTimeLock)
	punishDigest, err := punishTx.SigHash(cancelTx.Output.Script, cancelTx.Output.Amount)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: tx_punish sighash: %w", err)
	}
	sigPunishSelf := bKey.Sign(punishDigest)

	signedLockPSBT, err := p.Wallet.SignFundingPSBT(ctx, lockPSBT)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: sign tx_lock funding psbt: %w", err)
	}

	// Round 1b.
	if err := p.Transport.Send(ctx, &chanmsg.Swap1b{
		SigTxCancel: sigCancelSelf,
		SigTxPunish: sigPunishSelf,
		TxLock:      signedLockPSBT,
	}); err != nil {
		return nil, fmt.Errorf("swap: bob: round 1b send: %w", err)
	}
	remote1a, err := expectSwap1a(ctx, p.Transport)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: round 1a receive: %w", err)
	}
	if !remote0a.A.Verify(cancelDigest, remote1a.SigTxCancel) {
		return nil, fmt.Errorf("swap: bob: %w: tx_cancel signature", thorerrors.ErrInvalidSignature)
	}
	refundTx := transaction.BuildSwapRefundTransaction(cancelTx.OutPoint(), cancelTx.Output.Amount, refundScript)
	refundDigest, err := refundTx.SigHash(cancelTx.Output.Script, cancelTx.Output.Amount)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: tx_refund sighash: %w", err)
	}
	if err := adaptor.Verify(remote0a.A.Inner(), sBBitcoin.Inner(), refundDigest, remote1a.EncSigTxRefund); err != nil {
		return nil, fmt.Errorf("swap: bob: %w: tx_refund encrypted signature: %v", thorerrors.ErrInvalidEncryptedSignature, err)
	}

	lockTx, err := finalizeSignedPSBT(signedLockPSBT)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: finalize tx_lock: %w", err)
	}
	if err := p.Wallet.BroadcastSignedTransaction(ctx, lockTx); err != nil {
		return nil, fmt.Errorf("swap: bob: broadcast tx_lock: %w", err)
	}
	log.Debugf("swap: bob: broadcast tx_lock %s, waiting for monero lock proof", lockOutPoint.Hash)

	lockBroadcastMedian, err := p.Wallet.MedianTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: read median time: %w", err)
	}
	sBSecret, err := ptlcSecretFromDleq(secretB)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: derive secp256k1 secret: %w", err)
	}
	abort := &bobAbort{
		key:                 bKey,
		lockOutput:          lockOutput,
		cancelTx:            cancelTx,
		cancelDigest:        cancelDigest,
		sigCancelOther:      remote1a.SigTxCancel,
		refundTx:            refundTx,
		refundDigest:        refundDigest,
		encSigRefund:        remote1a.EncSigTxRefund,
		sBSecret:            sBSecret,
		refundTimeLock:      p.RefundTimeLock,
		lockBroadcastMedian: lockBroadcastMedian,
	}

	// Round 3: wait for Alice's Monero lock and check it against the
	// joint spend/view keys before committing to redeem. If the proof
	// never arrives, refund via the cancel path instead, knowingly leaking
	// s_b so Alice can reclaim whatever Monero she did lock.
	clk := defaultClock(p.Clock)
	type recvProof struct {
		m   *chanmsg.SwapTxLockProof
		err error
	}
	recvCh := make(chan recvProof, 1)
	go func() {
		m, err := expectSwapTxLockProof(ctx, p.Transport)
		recvCh <- recvProof{m, err}
	}()
	var lockProof *chanmsg.SwapTxLockProof
	select {
	case r := <-recvCh:
		if r.err != nil {
			return nil, fmt.Errorf("swap: bob: wait for monero lock proof: %w: %w", thorerrors.ErrSwapCancelled, r.err)
		}
		lockProof = r.m
	case <-clk.TickAfter(time.Duration(p.RefundTimeLock) * time.Second):
		log.Infof("swap: bob: alice never locked monero, taking the cancel path")
		outcome, err := abort.run(ctx, p.Wallet)
		if err != nil {
			return nil, err
		}
		return &Result{TxLockTxid: lockOutPoint.Hash, Aborted: &outcome}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	proof := &moneroiface.TransferProof{TxHash: lockProof.TxHash, TxKey: lockProof.TxKey}
	if err := watchMoneroTransfer(ctx, p.Monero, jointSpend, jointViewPub, proof, p.AmountMonero); err != nil {
		return nil, fmt.Errorf("swap: bob: %w", err)
	}

	// Round 5: hand Alice an encrypted signature over tx_redeem and wait
	// for her to decrypt and broadcast it, which leaks s_a.
	redeemTx := transaction.BuildSwapRedeemTransaction(lockOutPoint, lockOutput.Amount, remote0a.RedeemAddr)
	redeemDigest, err := redeemTx.SigHash(lockOutput.Script, lockOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: tx_redeem sighash: %w", err)
	}
	encSigRedeem, err := bKey.EncSignPoint(remote0a.SABitcoin, redeemDigest)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: encrypt tx_redeem signature: %w", err)
	}
	if err := p.Transport.Send(ctx, &chanmsg.SwapRedeemEncSig{EncSig: encSigRedeem}); err != nil {
		return nil, fmt.Errorf("swap: bob: round 5 send: %w", err)
	}

	redeemTxid := redeemTx.Tx.TxHash()
	observed, err := watchBitcoinTx(ctx, p.Wallet, redeemTxid)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: wait for tx_redeem: %w: %w", thorerrors.ErrSwapCancelled, err)
	}
	publishedSig, err := findSignatureByKey(observed.TxIn[0].Witness, bKey.PublicKey(), redeemDigest)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: %w", err)
	}
	recoveredY, err := transaction.RecoverSwapSecret(remote0a.SABitcoin, publishedSig, encSigRedeem)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: %w: %v", thorerrors.ErrRecoveryFailure, err)
	}
	sAMoneroScalar, err := moneroScalarFromRecovered(recoveredY)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: recovered secret as monero scalar: %w", err)
	}
	secretYBytes := recoveredY.Serialize()
	var secretYArr [32]byte
	copy(secretYArr[:], secretYBytes)
	recoveredPtlcSecret, err := keys.PtlcSecretFromScalar(secretYArr)
	if err != nil {
		return nil, fmt.Errorf("swap: bob: recovered secret as ptlc secret: %w", err)
	}

	combinedSpend := sAMoneroScalar.Add(sBMoneroScalar)
	if err := p.Monero.ImportOutput(ctx, combinedSpend, jointView); err != nil {
		return nil, fmt.Errorf("swap: bob: import monero output: %w", err)
	}
	log.Infof("swap: bob: recovered s_a, imported monero output at joint spend key")

	return &Result{TxLockTxid: lockOutPoint.Hash, Secret: recoveredPtlcSecret}, nil
}
