package swap

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/ptlc-labs/thor/channeltest"
	"github.com/ptlc-labs/thor/dleq"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/transaction"
)

// abortFixture wires up the shared transaction set both abort paths walk:
// tx_lock's output, the pre-signed tx_cancel, tx_refund with Alice's
// adaptor-encrypted signature, and tx_punish with Bob's signature.
type abortFixture struct {
	aKey *keys.OwnershipKeyPair

	cancelTx *transaction.SwapCancelTransaction
	punishTx *transaction.SwapPunishTransaction

	refundTx     *transaction.SwapRefundTransaction
	refundDigest [32]byte

	sBSecret  keys.PtlcSecret
	sBBitcoin keys.PtlcPoint
}

func buildAbortFixture(t *testing.T) (*abortFixture, *bobAbort, *aliceAbort, *channeltest.Wallet, *channeltest.MoneroWallet) {
	t.Helper()

	const (
		lockAmount     = 1_000_000
		refundTimeLock = 72
		punishTimeLock = 36
	)

	wallet, err := channeltest.NewWallet(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	monero := channeltest.NewMoneroWallet()

	aKey, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	bKey, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)

	secretA := dleq.NewSecret(0xA11CE)
	secretB := dleq.NewSecret(0xB0B)
	sBSecret, err := ptlcSecretFromDleq(secretB)
	require.NoError(t, err)
	sBBitcoin, err := bitcoinPoint(secretB)
	require.NoError(t, err)
	sAMonero, err := moneroScalarOf(secretA)
	require.NoError(t, err)
	jointView, err := keys.NewMoneroScalar()
	require.NoError(t, err)

	lockOutput, err := transaction.BuildSwapLockOutput(aKey.PublicKey(), bKey.PublicKey(), lockAmount)
	require.NoError(t, err)
	lockTx := wire.NewMsgTx(2)
	lockTx.AddTxOut(lockOutput.TxOut())
	lockOutPoint := wire.OutPoint{Hash: lockTx.TxHash(), Index: 0}

	cancelTx, err := transaction.BuildSwapCancelTransaction(lockOutPoint, lockOutput.Amount, aKey.PublicKey(), bKey.PublicKey(), refundTimeLock)
	require.NoError(t, err)
	cancelDigest, err := cancelTx.SigHash(lockOutput.Script, lockOutput.Amount)
	require.NoError(t, err)

	refundTx := transaction.BuildSwapRefundTransaction(cancelTx.OutPoint(), cancelTx.Output.Amount, []byte{0x00, 0x14, 0x0B})
	refundDigest, err := refundTx.SigHash(cancelTx.Output.Script, cancelTx.Output.Amount)
	require.NoError(t, err)
	encSigRefund, err := aKey.EncSignPoint(sBBitcoin, refundDigest)
	require.NoError(t, err)

	punishTx := transaction.BuildSwapPunishTransaction(cancelTx.OutPoint(), cancelTx.Output.Amount, []byte{0x00, 0x14, 0x0A}, punishTimeLock)
	punishDigest, err := punishTx.SigHash(cancelTx.Output.Script, cancelTx.Output.Amount)
	require.NoError(t, err)

	baseline, err := wallet.MedianTime(context.Background())
	require.NoError(t, err)

	bob := &bobAbort{
		key:                 bKey,
		lockOutput:          lockOutput,
		cancelTx:            cancelTx,
		cancelDigest:        cancelDigest,
		sigCancelOther:      aKey.Sign(cancelDigest),
		refundTx:            refundTx,
		refundDigest:        refundDigest,
		encSigRefund:        encSigRefund,
		sBSecret:            sBSecret,
		refundTimeLock:      refundTimeLock,
		lockBroadcastMedian: baseline,
	}
	alice := &aliceAbort{
		key:            aKey,
		lockOutput:     lockOutput,
		cancelTx:       cancelTx,
		cancelDigest:   cancelDigest,
		sigCancelOther: bKey.Sign(cancelDigest),
		punishTx:       punishTx,
		punishDigest:   punishDigest,
		sigPunishOther: bKey.Sign(punishDigest),
		refundTx:       refundTx,
		refundDigest:   refundDigest,
		encSigRefund:   encSigRefund,
		sBBitcoin:      sBBitcoin,
		sAMonero:       sAMonero,
		jointView:      jointView,
		refundTimeLock: refundTimeLock,
		punishTimeLock: punishTimeLock,
		lockSeenMedian: baseline,
	}

	fixture := &abortFixture{
		aKey:         aKey,
		cancelTx:     cancelTx,
		punishTx:     punishTx,
		refundTx:     refundTx,
		refundDigest: refundDigest,
		sBSecret:     sBSecret,
		sBBitcoin:    sBBitcoin,
	}
	return fixture, bob, alice, wallet, monero
}

// TestBobRefundLeaksSecretToAlice walks both parties' cancel paths against
// a shared fake chain: Bob refunds himself, which necessarily publishes the
// decryption of Alice's adaptor signature; Alice's side then recovers s_b
// from the published witness and opens the Monero output at s_a + s_b.
func TestBobRefundLeaksSecretToAlice(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fixture, bob, alice, wallet, monero := buildAbortFixture(t)

	// The refund timelock matures.
	wallet.AdvanceMedianTime(100)

	outcome, err := bob.run(ctx, wallet)
	require.NoError(t, err)
	require.Equal(t, AbortRefunded, outcome)

	// Bob's refund is on the chain; the recovery equation
	// recover(S_b, sig_tx_refund, encsig_tx_refund) = s_b holds.
	observed, err := wallet.GetRawTransaction(ctx, fixture.refundTx.Tx.TxHash())
	require.NoError(t, err)
	publishedSig, err := findSignatureByKey(observed.TxIn[0].Witness, fixture.aKey.PublicKey(), fixture.refundDigest)
	require.NoError(t, err)
	recovered, err := transaction.RecoverSwapSecret(fixture.sBBitcoin, publishedSig, bob.encSigRefund)
	require.NoError(t, err)
	require.Equal(t, fixture.sBSecret.SecretKey().Serialize(), recovered.Serialize())

	// Alice's own watcher reaches the same conclusion and imports the
	// joint Monero output.
	aliceOutcome, err := alice.run(ctx, wallet, monero)
	require.NoError(t, err)
	require.Equal(t, AbortRefunded, aliceOutcome)

	sBMonero, err := moneroScalarFromRecovered(recovered)
	require.NoError(t, err)
	require.True(t, monero.Imported(alice.sAMonero.Add(sBMonero)))
}

// TestAlicePunishesWhenBobNeverRefunds drives Alice's cancel path with no
// refund ever appearing: once punish_timelock elapses past tx_cancel she
// sweeps its output via tx_punish.
func TestAlicePunishesWhenBobNeverRefunds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fixture, _, alice, wallet, monero := buildAbortFixture(t)

	// The refund timelock matures; the punish timelock matures only after
	// Alice has already broadcast tx_cancel.
	wallet.AdvanceMedianTime(100)

	done := make(chan error, 1)
	var outcome AbortOutcome
	go func() {
		var err error
		outcome, err = alice.run(ctx, wallet, monero)
		done <- err
	}()

	// Let tx_cancel land, then walk the chain past the punish timelock.
	require.Eventually(t, func() bool {
		_, err := wallet.GetRawTransaction(ctx, fixture.cancelTx.Tx.TxHash())
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
	wallet.AdvanceMedianTime(100)

	require.NoError(t, <-done)
	require.Equal(t, AbortPunished, outcome)

	punished, err := wallet.GetRawTransaction(ctx, fixture.punishTx.Tx.TxHash())
	require.NoError(t, err)
	require.Len(t, punished.TxIn[0].Witness, 3)
}
