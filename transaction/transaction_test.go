package transaction

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/thorerrors"
)

func testCommitParties(t *testing.T) (CommitPartyKeys, CommitPartyKeys, *keys.OwnershipKeyPair, *keys.OwnershipKeyPair) {
	t.Helper()
	xA, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	xB, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	rA, err := keys.NewRevocationKeyPair()
	require.NoError(t, err)
	rB, err := keys.NewRevocationKeyPair()
	require.NoError(t, err)
	yA, err := keys.NewPublishingKeyPair()
	require.NoError(t, err)
	yB, err := keys.NewPublishingKeyPair()
	require.NoError(t, err)

	partyA := CommitPartyKeys{Ownership: xA.PublicKey(), Revocation: rA.PublicKey(), Publishing: yA.PublicKey()}
	partyB := CommitPartyKeys{Ownership: xB.PublicKey(), Revocation: rB.PublicKey(), Publishing: yB.PublicKey()}
	return partyA, partyB, xA, xB
}

func TestFundingOutputIgnoresArgumentOrder(t *testing.T) {
	a, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	b, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)

	ab, err := BuildFundingOutput(a.PublicKey(), b.PublicKey(), 2_000_000)
	require.NoError(t, err)
	ba, err := BuildFundingOutput(b.PublicKey(), a.PublicKey(), 2_000_000)
	require.NoError(t, err)

	require.Equal(t, ab.Script, ba.Script)
	require.Equal(t, ab.PkScript, ba.PkScript)
	require.True(t, ab.X0.Less(ab.X1))
}

func TestCommitOutputIgnoresArgumentOrder(t *testing.T) {
	partyA, partyB, _, _ := testCommitParties(t)

	ab, err := BuildCommitOutput(partyA, partyB, 144, 1_990_000)
	require.NoError(t, err)
	ba, err := BuildCommitOutput(partyB, partyA, 144, 1_990_000)
	require.NoError(t, err)

	require.Equal(t, ab.Script, ba.Script)
	require.Equal(t, ab.PkScript, ba.PkScript)
}

func TestCommitValuePlusFeeEqualsFundValue(t *testing.T) {
	const fundValue = 2_000_000
	partyA, partyB, _, _ := testCommitParties(t)

	fund, err := BuildFundingOutput(partyA.Ownership, partyB.Ownership, fundValue)
	require.NoError(t, err)
	fundTx := wire.NewMsgTx(2)
	fundTx.AddTxOut(fund.TxOut())
	fundOutPoint := wire.OutPoint{Hash: fundTx.TxHash(), Index: 0}

	commitOutput, err := BuildCommitOutput(partyA, partyB, 144, fundValue-TxFee)
	require.NoError(t, err)
	commitTx := BuildCommitTransaction(fundOutPoint, fundValue, commitOutput)

	require.Len(t, commitTx.Tx.TxOut, 1)
	require.Equal(t, int64(fundValue), commitTx.Tx.TxOut[0].Value+TxFee)
}

func TestSplitTransactionSortsOutputsByScript(t *testing.T) {
	partyA, partyB, _, _ := testCommitParties(t)
	commitOutput, err := BuildCommitOutput(partyA, partyB, 144, 1_990_000)
	require.NoError(t, err)
	commitOutPoint := wire.OutPoint{Index: 0}

	outputs := []SplitOutput{
		&BalanceOutput{Amount: 900_000, ScriptPubKey: []byte{0x00, 0x14, 0xFF}},
		&BalanceOutput{Amount: 1_000_000, ScriptPubKey: []byte{0x00, 0x14, 0x01}},
	}
	splitTx, err := BuildSplitTransaction(commitOutPoint, commitOutput.Amount, 144, outputs)
	require.NoError(t, err)

	require.Equal(t, uint32(144), splitTx.Tx.TxIn[0].Sequence)
	require.Len(t, splitTx.Tx.TxOut, 2)
	require.True(t, bytes.Compare(splitTx.Tx.TxOut[0].PkScript, splitTx.Tx.TxOut[1].PkScript) < 0)
}

func TestSplitTransactionRejectsInsufficientFunds(t *testing.T) {
	outputs := []SplitOutput{
		&BalanceOutput{Amount: 1_000_000, ScriptPubKey: []byte{0x00, 0x14, 0x01}},
	}
	_, err := BuildSplitTransaction(wire.OutPoint{}, 1_000_000, 144, outputs)
	var insufficient *thorerrors.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, int64(1_000_000), insufficient.Input)
	require.Equal(t, int64(TxFee), insufficient.Fee)
}

func TestSplitOutputFeeSharesCoverStageFee(t *testing.T) {
	for n := 1; n <= 5; n++ {
		shares := SplitOutputFeeShares(n)
		require.Len(t, shares, n)
		var total int64
		for i, s := range shares {
			total += s
			if i > 0 {
				require.LessOrEqual(t, s, shares[i-1])
			}
		}
		require.Equal(t, int64(SplitStageFee), total)
	}
}

func TestCloseTransactionSplitsFeeEvenly(t *testing.T) {
	scriptA := []byte{0x00, 0x14, 0x01}
	scriptB := []byte{0x00, 0x14, 0xFF}

	closeTx, err := BuildCloseTransaction(wire.OutPoint{}, 1_000_000, 1_000_000, scriptA, scriptB)
	require.NoError(t, err)

	require.Len(t, closeTx.Tx.TxOut, 2)
	var total int64
	for _, out := range closeTx.Tx.TxOut {
		total += out.Value
	}
	require.Equal(t, int64(2_000_000-TxFee), total)
	require.True(t, bytes.Compare(closeTx.Tx.TxOut[0].PkScript, closeTx.Tx.TxOut[1].PkScript) < 0)
}

func TestCloseTransactionRejectsDustBalance(t *testing.T) {
	_, err := BuildCloseTransaction(wire.OutPoint{}, TxFee/2, 1_000_000, []byte{0x01}, []byte{0x02})
	var insufficient *thorerrors.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
}

func TestPunishTransactionDrainsCommitMinusFee(t *testing.T) {
	toScript := []byte{0x00, 0x14, 0xAA}
	punishTx := BuildPunishTransaction(wire.OutPoint{}, 1_990_000, toScript)

	require.Len(t, punishTx.Tx.TxOut, 1)
	require.Equal(t, int64(1_990_000-TxFee), punishTx.Tx.TxOut[0].Value)
	require.Equal(t, toScript, punishTx.Tx.TxOut[0].PkScript)
}

func TestPtlcSpendSequences(t *testing.T) {
	funder, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	redeemer, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	secret, err := keys.NewPtlcSecret()
	require.NoError(t, err)

	ptlc, err := BuildPtlcOutput(funder.PublicKey(), redeemer.PublicKey(), secret.Point(), 72, 500_000)
	require.NoError(t, err)

	redeemTx := BuildRedeemTransaction(wire.OutPoint{}, ptlc, []byte{0x00, 0x14, 0x01})
	refundTx := BuildRefundTransaction(wire.OutPoint{}, ptlc, []byte{0x00, 0x14, 0x02})

	require.Equal(t, uint32(0xFFFFFFFF), redeemTx.Tx.TxIn[0].Sequence)
	require.Equal(t, uint32(72), refundTx.Tx.TxIn[0].Sequence)
	require.Equal(t, int64(500_000-TxFee), redeemTx.Tx.TxOut[0].Value)
	require.Equal(t, int64(500_000-TxFee), refundTx.Tx.TxOut[0].Value)
}

func TestPtlcOutputSharesFundingScriptShape(t *testing.T) {
	funder, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	redeemer, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	secret, err := keys.NewPtlcSecret()
	require.NoError(t, err)

	ptlc, err := BuildPtlcOutput(funder.PublicKey(), redeemer.PublicKey(), secret.Point(), 72, 500_000)
	require.NoError(t, err)
	fund, err := BuildFundingOutput(funder.PublicKey(), redeemer.PublicKey(), 500_000)
	require.NoError(t, err)

	require.Equal(t, fund.Script, ptlc.Script)
	require.Equal(t, fund.PkScript, ptlc.PkScript)
}

func TestSpliceTransactionLayout(t *testing.T) {
	a, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	b, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)

	newFund, err := BuildFundingOutput(a.PublicKey(), b.PublicKey(), 2_500_000)
	require.NoError(t, err)

	oldFundOutPoint := wire.OutPoint{Index: 0}
	spliceIns := []wire.OutPoint{{Index: 3}, {Index: 7}}
	spliceOut := wire.NewTxOut(200_000, []byte{0x00, 0x14, 0x09})

	spliceTx := BuildSpliceTransaction(oldFundOutPoint, spliceIns, newFund, []*wire.TxOut{spliceOut})

	require.Equal(t, oldFundOutPoint, spliceTx.Tx.TxIn[0].PreviousOutPoint)
	require.Len(t, spliceTx.Tx.TxIn, 3)
	require.Equal(t, newFund.PkScript, spliceTx.Tx.TxOut[0].PkScript)
	require.Equal(t, int64(2_500_000), spliceTx.Tx.TxOut[0].Value)
	require.Equal(t, spliceOut, spliceTx.Tx.TxOut[1])
	require.Equal(t, uint32(0), spliceTx.OutPoint().Index)
}

// TestCommitWitnessRoundTrip drives a commit transaction's spend of the
// fund output end to end: both parties sign the commit transaction's
// digest over the fund output's 2-of-2 script, and the witness is
// assembled in sorted-key order.
func TestCommitWitnessRoundTrip(t *testing.T) {
	const fundValue = 2_000_000
	partyA, partyB, xA, xB := testCommitParties(t)

	fund, err := BuildFundingOutput(partyA.Ownership, partyB.Ownership, fundValue)
	require.NoError(t, err)
	fundTx := wire.NewMsgTx(2)
	fundTx.AddTxOut(fund.TxOut())

	commitOutput, err := BuildCommitOutput(partyA, partyB, 144, fundValue-TxFee)
	require.NoError(t, err)
	commitTx := BuildCommitTransaction(wire.OutPoint{Hash: fundTx.TxHash(), Index: 0}, fundValue, commitOutput)

	digest, err := commitTx.SigHash(fund.Script)
	require.NoError(t, err)

	signer0, signer1 := xA, xB
	if !bytesEqualPub(fund.X0, xA.PublicKey()) {
		signer0, signer1 = xB, xA
	}
	sig0 := plainAdaptorSig(t, signer0, digest)
	sig1 := plainAdaptorSig(t, signer1, digest)
	commitTx.Attach(fund.Script, sig0, sig1)

	witness := commitTx.Tx.TxIn[0].Witness
	require.Len(t, witness, 3)
	require.Equal(t, fund.Script, []byte(witness[2]))
	// X0's signature sits on top of the stack, directly below the script.
	require.Equal(t, sig0.DER(), []byte(witness[1]))
	require.Equal(t, sig1.DER(), []byte(witness[0]))
}
