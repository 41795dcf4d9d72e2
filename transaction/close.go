package transaction

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/thorerrors"
)

// CloseTransaction spends the fund output directly to each party's
// balance, skipping the commit/split staging area entirely. Used for a
// cooperative close, where both parties are online and agree to settle
// immediately rather than waiting out a commit transaction's timelock.
type CloseTransaction struct {
	Tx *wire.MsgTx
}

// BuildCloseTransaction builds an unsigned cooperative close transaction
// spending the fund output into the two parties' balance outputs, sorted
// ascending by scriptPubKey, with the flat TxFee split evenly between them.
func BuildCloseTransaction(fundOutPoint wire.OutPoint, selfAmount, theirAmount int64, selfScript, theirScript []byte) (*CloseTransaction, error) {
	half := int64(TxFee) / 2
	outs := []*BalanceOutput{
		{Amount: selfAmount - half, ScriptPubKey: selfScript},
		{Amount: theirAmount - (TxFee - half), ScriptPubKey: theirScript},
	}
	for _, o := range outs {
		if o.Amount <= 0 {
			return nil, fmt.Errorf("build close transaction: %w", &thorerrors.InsufficientFundsError{Input: selfAmount + theirAmount, Output: selfAmount + theirAmount - TxFee, Fee: TxFee})
		}
	}
	sort.Slice(outs, func(i, j int) bool {
		return bytes.Compare(outs[i].ScriptPubKey, outs[j].ScriptPubKey) < 0
	})

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: fundOutPoint})
	for _, o := range outs {
		tx.AddTxOut(o.txOut())
	}
	return &CloseTransaction{Tx: tx}, nil
}

// SigHash computes the BIP143 witness digest for the close transaction's
// single input, spending the fund output's 2-of-2 witness script.
func (c *CloseTransaction) SigHash(fundScript []byte, fundAmount int64) ([32]byte, error) {
	return computeWitnessDigest(c.Tx, 0, fundScript, fundAmount)
}

// Attach finalizes the transaction with the witness spending the fund
// output's 2-of-2 script, built via spendTwoOfTwo from both parties'
// decrypted signatures.
func (c *CloseTransaction) Attach(witness wire.TxWitness) {
	c.Tx.TxIn[0].Witness = witness
}
