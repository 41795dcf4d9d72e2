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
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
)

// RunAlice runs the cross-chain swap's Alice side to completion: Alice
// sells Monero, funded at round 3 once Bob's tx_lock is observed on the
// Bitcoin chain, and is paid in Bitcoin by redeeming tx_lock directly. The
// act of doing so leaks her session secret s_a on-chain, which is how Bob
// (RunBob) ultimately opens the Monero output.
func RunAlice(ctx context.Context, p AliceParams) (*Result, error) {
	aKey, err := keys.NewOwnershipKeyPair()
	if err != nil {
		return nil, fmt.Errorf("swap: alice: generate session key: %w", err)
	}
	secretA, proofA, err := newSwapSecret()
	if err != nil {
		return nil, fmt.Errorf("swap: alice: sample session secret: %w", err)
	}
	sASecret, err := ptlcSecretFromDleq(secretA)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: derive secp256k1 secret: %w", err)
	}
	sABitcoin, err := bitcoinPoint(secretA)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: derive bitcoin point: %w", err)
	}
	sAMonero, err := moneroPointOf(secretA)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: derive monero point: %w", err)
	}
	vA, err := keys.NewMoneroScalar()
	if err != nil {
		return nil, fmt.Errorf("swap: alice: generate view key share: %w", err)
	}

	redeemAddr, err := p.Wallet.NewAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: redeem address: %w", err)
	}
	redeemScript, err := txscript.PayToAddrScript(redeemAddr)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: redeem script: %w", err)
	}
	punishAddr, err := p.Wallet.NewAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: punish address: %w", err)
	}
	punishScript, err := txscript.PayToAddrScript(punishAddr)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: punish script: %w", err)
	}

	// Round 0a.
	if err := p.Transport.Send(ctx, &chanmsg.Swap0a{
		A:           aKey.PublicKey(),
		SAMonero:    sAMonero,
		SABitcoin:   sABitcoin,
		DleqProofSA: proofA,
		VA:          vA,
		RedeemAddr:  redeemScript,
		PunishAddr:  punishScript,
	}); err != nil {
		return nil, fmt.Errorf("swap: alice: round 0a send: %w", err)
	}
	remote0b, err := expectSwap0b(ctx, p.Transport)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: round 0b receive: %w", err)
	}
	if err := dleq.Verify(remote0b.DleqProofSB, remote0b.SBBitcoin.Inner(), remote0b.SBMonero.Inner()); err != nil {
		return nil, fmt.Errorf("swap: alice: %w: %v", thorerrors.ErrInvalidDleqProof, err)
	}

	jointSpend := sAMonero.Add(remote0b.SBMonero)
	jointView := vA.Add(remote0b.VB)
	jointViewPub := jointView.Point()

	lockOutput, err := transaction.BuildSwapLockOutput(aKey.PublicKey(), remote0b.B, p.AmountBitcoin)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: build tx_lock output: %w", err)
	}
	lockIdx, err := verifyLockFunding(remote0b.TxLockFeeInputs, lockOutput)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: %w", err)
	}
	lockOutPoint := wire.OutPoint{Hash: remote0b.TxLockFeeInputs.UnsignedTx.TxHash(), Index: lockIdx}

	cancelTx, err := transaction.BuildSwapCancelTransaction(lockOutPoint, lockOutput.Amount, aKey.PublicKey(), remote0b.B, p.RefundTimeLock)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: build tx_cancel: %w", err)
	}
	cancelDigest, err := cancelTx.SigHash(lockOutput.Script, lockOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: tx_cancel sighash: %w", err)
	}
	sigCancelSelf := aKey.Sign(cancelDigest)

	refundTx := transaction.BuildSwapRefundTransaction(cancelTx.OutPoint(), cancelTx.Output.Amount, remote0b.RefundAddr)
	refundDigest, err := refundTx.SigHash(cancelTx.Output.Script, cancelTx.Output.Amount)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: tx_refund sighash: %w", err)
	}
	encSigRefund, err := aKey.EncSignPoint(remote0b.SBBitcoin, refundDigest)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: encrypt tx_refund signature: %w", err)
	}

	// Round 1a.
	if err := p.Transport.Send(ctx, &chanmsg.Swap1a{SigTxCancel: sigCancelSelf, EncSigTxRefund: encSigRefund}); err != nil {
		return nil, fmt.Errorf("swap: alice: round 1a send: %w", err)
	}
	remote1b, err := expectSwap1b(ctx, p.Transport)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: round 1b receive: %w", err)
	}
	if !remote0b.B.Verify(cancelDigest, remote1b.SigTxCancel) {
		return nil, fmt.Errorf("swap: alice: %w: tx_cancel signature", thorerrors.ErrInvalidSignature)
	}
	punishTx := transaction.BuildSwapPunishTransaction(cancelTx.OutPoint(), cancelTx.Output.Amount, punishScript, p.PunishTimeLock)
	punishDigest, err := punishTx.SigHash(cancelTx.Output.Script, cancelTx.Output.Amount)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: tx_punish sighash: %w", err)
	}
	if !remote0b.B.Verify(punishDigest, remote1b.SigTxPunish) {
		return nil, fmt.Errorf("swap: alice: %w: tx_punish signature", thorerrors.ErrInvalidSignature)
	}

	log.Debugf("swap: alice: tx_cancel/tx_punish pre-signed, waiting for tx_lock %s", lockOutPoint.Hash)

	// Round 2: watch for tx_lock, funded and broadcast by Bob.
	if _, err := watchBitcoinTx(ctx, p.Wallet, lockOutPoint.Hash); err != nil {
		return nil, fmt.Errorf("swap: alice: wait for tx_lock: %w: %w", thorerrors.ErrSwapCancelled, err)
	}
	lockSeenMedian, err := p.Wallet.MedianTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: read median time: %w", err)
	}
	sAMoneroScalar, err := moneroScalarOf(secretA)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: derive monero scalar: %w", err)
	}
	abort := &aliceAbort{
		key:            aKey,
		lockOutput:     lockOutput,
		cancelTx:       cancelTx,
		cancelDigest:   cancelDigest,
		sigCancelOther: remote1b.SigTxCancel,
		punishTx:       punishTx,
		punishDigest:   punishDigest,
		sigPunishOther: remote1b.SigTxPunish,
		refundTx:       refundTx,
		refundDigest:   refundDigest,
		encSigRefund:   encSigRefund,
		sBBitcoin:      remote0b.SBBitcoin,
		sAMonero:       sAMoneroScalar,
		jointView:      jointView,
		refundTimeLock: p.RefundTimeLock,
		punishTimeLock: p.PunishTimeLock,
		lockSeenMedian: lockSeenMedian,
	}

	// Round 3: fund the Monero side of the swap into the joint address,
	// and tell Bob so he can check_tx_key it.
	proof, err := p.Monero.Transfer(ctx, jointSpend, jointViewPub, p.AmountMonero)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: transfer monero: %w", err)
	}
	if err := p.Transport.Send(ctx, &chanmsg.SwapTxLockProof{TxHash: proof.TxHash, TxKey: proof.TxKey}); err != nil {
		return nil, fmt.Errorf("swap: alice: round 3 send: %w", err)
	}

	// Round 5/6: receive Bob's encrypted tx_redeem signature, decrypt it
	// with s_a, and broadcast tx_redeem, leaking s_a to the chain. If Bob
	// goes silent instead, fall through to the cancel path once tx_cancel's
	// timelock would mature.
	clk := defaultClock(p.Clock)
	type recvRedeem struct {
		m   *chanmsg.SwapRedeemEncSig
		err error
	}
	recvCh := make(chan recvRedeem, 1)
	go func() {
		m, err := expectSwapRedeemEncSig(ctx, p.Transport)
		recvCh <- recvRedeem{m, err}
	}()
	var remote5 *chanmsg.SwapRedeemEncSig
	select {
	case r := <-recvCh:
		if r.err != nil {
			return nil, fmt.Errorf("swap: alice: round 5 receive: %w", r.err)
		}
		remote5 = r.m
	case <-clk.TickAfter(time.Duration(p.RefundTimeLock) * time.Second):
		log.Infof("swap: alice: bob went silent before round 5, taking the cancel path")
		outcome, err := abort.run(ctx, p.Wallet, p.Monero)
		if err != nil {
			return nil, err
		}
		return &Result{TxLockTxid: lockOutPoint.Hash, Aborted: &outcome}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	redeemTx := transaction.BuildSwapRedeemTransaction(lockOutPoint, lockOutput.Amount, redeemScript)
	redeemDigest, err := redeemTx.SigHash(lockOutput.Script, lockOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("swap: alice: tx_redeem sighash: %w", err)
	}
	sigBRedeem := adaptor.Decrypt(sASecret.SecretKey(), remote5.EncSig)
	sigASelf, err := adaptor.FromECDSA(aKey.Sign(redeemDigest))
	if err != nil {
		return nil, fmt.Errorf("swap: alice: sign tx_redeem: %w", err)
	}
	sigA, sigB := orderedSwapSigs(lockOutput.A, aKey.PublicKey(), &sigASelf, &sigBRedeem)
	redeemTx.Attach(lockOutput.Script, sigA, sigB)

	if err := p.Wallet.BroadcastSignedTransaction(ctx, redeemTx.Tx); err != nil {
		return nil, fmt.Errorf("swap: alice: broadcast tx_redeem: %w", err)
	}
	log.Infof("swap: alice: redeemed tx_lock %s via tx_redeem %s", lockOutPoint.Hash, redeemTx.Tx.TxHash())

	return &Result{TxLockTxid: lockOutPoint.Hash, Secret: sASecret}, nil
}
