package transaction

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/adaptor"
)

// ptlcWitness builds the witness stack spending a PtlcOutput's 2-of-2
// script from the funder's and redeemer's signatures, laid out in the
// X0/X1 (sorted-key) order twoOfTwoScript expects.
func ptlcWitness(script []byte, ptlc *PtlcOutput, sigFunder, sigRedeemer *adaptor.Signature) wire.TxWitness {
	x0, _ := sortOwnershipKeys(ptlc.XFunder, ptlc.XRedeemer)
	if x0 == ptlc.XFunder {
		return spendTwoOfTwo(script, sigFunder, sigRedeemer)
	}
	return spendTwoOfTwo(script, sigRedeemer, sigFunder)
}

// PtlcTransaction is the shared shape of both the redeem and refund
// transactions spending a PTLC output: each is a single-input,
// single-output transaction differing only in nSequence and which party's
// decryption key is needed to complete the witness.
type PtlcTransaction struct {
	Tx *wire.MsgTx
}

func buildPtlcSpendTransaction(ptlcOutPoint wire.OutPoint, ptlc *PtlcOutput, sequence uint32, toScript []byte) *PtlcTransaction {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: ptlcOutPoint,
		Sequence:         sequence,
	})
	tx.AddTxOut(wire.NewTxOut(ptlc.Amount-TxFee, toScript))
	return &PtlcTransaction{Tx: tx}
}

// BuildRedeemTransaction builds the PTLC redeem transaction: spendable
// immediately (sequence 0xFFFFFFFF) by the redeemer, once they know the
// PTLC secret, paying to the redeemer's own payout script.
func BuildRedeemTransaction(ptlcOutPoint wire.OutPoint, ptlc *PtlcOutput, toScript []byte) *PtlcTransaction {
	return buildPtlcSpendTransaction(ptlcOutPoint, ptlc, 0xFFFFFFFF, toScript)
}

// BuildRefundTransaction builds the PTLC refund transaction: spendable by
// the funder after ptlc.RefundTimeLock (a relative timelock from TX_s),
// reclaiming the PTLC amount if it was never redeemed.
func BuildRefundTransaction(ptlcOutPoint wire.OutPoint, ptlc *PtlcOutput, toScript []byte) *PtlcTransaction {
	return buildPtlcSpendTransaction(ptlcOutPoint, ptlc, ptlc.RefundTimeLock, toScript)
}

// SigHash computes the BIP143 witness digest for this transaction's single
// input, spending the PTLC output's 2-of-2 witness script.
func (p *PtlcTransaction) SigHash(ptlcScript []byte, ptlcAmount int64) ([32]byte, error) {
	return computeWitnessDigest(p.Tx, 0, ptlcScript, ptlcAmount)
}

// Attach finalizes the transaction with the witness spending the PTLC
// output, built via ptlcWitness from both parties' decrypted signatures.
func (p *PtlcTransaction) Attach(ptlc *PtlcOutput, sigFunder, sigRedeemer *adaptor.Signature) {
	p.Tx.TxIn[0].Witness = ptlcWitness(ptlc.Script, ptlc, sigFunder, sigRedeemer)
}
