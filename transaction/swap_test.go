package transaction

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/keys"
)

func bytesEqualPub(a, b keys.OwnershipPublicKey) bool {
	return bytes.Equal(a.SerializeCompressed(), b.SerializeCompressed())
}

func plainAdaptorSig(t *testing.T, signer *keys.OwnershipKeyPair, digest [32]byte) *adaptor.Signature {
	t.Helper()
	sig := signer.Sign(digest)
	parsed, err := adaptor.ParseDERSignature(sig.Serialize())
	require.NoError(t, err)
	return &parsed
}

func TestSwapLockCancelRefundChain(t *testing.T) {
	a, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	b, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)

	lockOutput, err := BuildSwapLockOutput(a.PublicKey(), b.PublicKey(), 1_000_000)
	require.NoError(t, err)

	lockTx := wire.NewMsgTx(2)
	lockTx.AddTxOut(lockOutput.TxOut())
	lockOutPoint := wire.OutPoint{Hash: lockTx.TxHash(), Index: 0}

	cancelTx, err := BuildSwapCancelTransaction(lockOutPoint, lockOutput.Amount, a.PublicKey(), b.PublicKey(), 144)
	require.NoError(t, err)

	cancelDigest, err := cancelTx.SigHash(lockOutput.Script, lockOutput.Amount)
	require.NoError(t, err)

	signerA, signerB := a, b
	if !bytesEqualPub(cancelTx.Output.A, a.PublicKey()) {
		signerA, signerB = b, a
	}
	sigA := plainAdaptorSig(t, signerA, cancelDigest)
	sigB := plainAdaptorSig(t, signerB, cancelDigest)
	cancelTx.Attach(lockOutput.Script, sigA, sigB)
	require.Len(t, cancelTx.Tx.TxIn[0].Witness, 3)

	// Bob's per-swap Bitcoin key for the cross-curve secret, used here only
	// as the encryption key for Alice's adaptor-signed tx_refund.
	sBKey, err := keys.NewPublishingKeyPair()
	require.NoError(t, err)

	refundTx := BuildSwapRefundTransaction(cancelTx.OutPoint(), cancelTx.Output.Amount, []byte{0x00, 0x14})
	refundDigest, err := refundTx.SigHash(cancelTx.Output.Script, cancelTx.Output.Amount)
	require.NoError(t, err)

	encSigRefund, err := a.EncSign(sBKey.PublicKey(), refundDigest)
	require.NoError(t, err)
	require.NoError(t, adaptor.Verify(a.PublicKey().Inner(), sBKey.PublicKey().Inner(), refundDigest, encSigRefund))

	decryptedA := adaptor.Decrypt(sBKey.SecretKey(), encSigRefund)
	sigBPlain := plainAdaptorSig(t, b, refundDigest)

	var refundSigA, refundSigB *adaptor.Signature
	if bytesEqualPub(cancelTx.Output.A, a.PublicKey()) {
		refundSigA, refundSigB = &decryptedA, sigBPlain
	} else {
		refundSigA, refundSigB = sigBPlain, &decryptedA
	}
	refundTx.Attach(cancelTx.Output.Script, refundSigA, refundSigB)
	require.Len(t, refundTx.Tx.TxIn[0].Witness, 3)

	recovered, err := adaptor.Recover(sBKey.PublicKey().Inner(), decryptedA, encSigRefund)
	require.NoError(t, err)
	require.Equal(t, sBKey.SecretKey().Serialize(), recovered.Serialize())
}

func TestSwapRedeemDirectFromLock(t *testing.T) {
	a, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	b, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)

	lockOutput, err := BuildSwapLockOutput(a.PublicKey(), b.PublicKey(), 500_000)
	require.NoError(t, err)

	lockTx := wire.NewMsgTx(2)
	lockTx.AddTxOut(lockOutput.TxOut())
	lockOutPoint := wire.OutPoint{Hash: lockTx.TxHash(), Index: 0}

	redeemTx := BuildSwapRedeemTransaction(lockOutPoint, lockOutput.Amount, []byte{0x00, 0x14})
	digest, err := redeemTx.SigHash(lockOutput.Script, lockOutput.Amount)
	require.NoError(t, err)

	sAKey, err := keys.NewPublishingKeyPair()
	require.NoError(t, err)

	encSigRedeem, err := b.EncSign(sAKey.PublicKey(), digest)
	require.NoError(t, err)
	decryptedB := adaptor.Decrypt(sAKey.SecretKey(), encSigRedeem)

	var sigA, sigB *adaptor.Signature
	if bytesEqualPub(lockOutput.A, a.PublicKey()) {
		sigA = plainAdaptorSig(t, a, digest)
		sigB = &decryptedB
	} else {
		sigA = &decryptedB
		sigB = plainAdaptorSig(t, a, digest)
	}
	redeemTx.Attach(lockOutput.Script, sigA, sigB)
	require.Len(t, redeemTx.Tx.TxIn[0].Witness, 3)

	recoveredSA, err := adaptor.Recover(sAKey.PublicKey().Inner(), decryptedB, encSigRedeem)
	require.NoError(t, err)
	require.Equal(t, sAKey.SecretKey().Serialize(), recoveredSA.Serialize())
}

func TestSwapPunishAfterCancel(t *testing.T) {
	a, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	b, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)

	lockOutput, err := BuildSwapLockOutput(a.PublicKey(), b.PublicKey(), 750_000)
	require.NoError(t, err)
	lockTx := wire.NewMsgTx(2)
	lockTx.AddTxOut(lockOutput.TxOut())
	lockOutPoint := wire.OutPoint{Hash: lockTx.TxHash(), Index: 0}

	cancelTx, err := BuildSwapCancelTransaction(lockOutPoint, lockOutput.Amount, a.PublicKey(), b.PublicKey(), 144)
	require.NoError(t, err)

	punishTx := BuildSwapPunishTransaction(cancelTx.OutPoint(), cancelTx.Output.Amount, []byte{0x00, 0x14}, 288)
	digest, err := punishTx.SigHash(cancelTx.Output.Script, cancelTx.Output.Amount)
	require.NoError(t, err)

	signerA, signerB := a, b
	if !bytesEqualPub(cancelTx.Output.A, a.PublicKey()) {
		signerA, signerB = b, a
	}
	sigA := plainAdaptorSig(t, signerA, digest)
	sigB := plainAdaptorSig(t, signerB, digest)
	punishTx.Attach(cancelTx.Output.Script, sigA, sigB)
	require.Len(t, punishTx.Tx.TxIn[0].Witness, 3)
	require.Equal(t, uint32(288), punishTx.Tx.TxIn[0].Sequence)
}
