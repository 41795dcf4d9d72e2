package transaction

import (
	"github.com/btcsuite/btcd/wire"
)

// SpliceTransaction spends the previous funding transaction's fund output,
// plus any splice-in inputs either party contributed, replacing it with a
// new fund output (and any splice-out payments) that becomes the channel's
// new TX_f once co-signed.
type SpliceTransaction struct {
	Tx     *wire.MsgTx
	Output *FundingOutput
}

// BuildSpliceTransaction builds the unsigned splice transaction: the
// previous fund outpoint is always input 0, followed by spliceIns (already
// sorted by consensus serialization bytes by the caller), and the new fund
// output is always output 0, followed by any splice-out payments.
func BuildSpliceTransaction(oldFundOutPoint wire.OutPoint, spliceIns []wire.OutPoint, newFundOutput *FundingOutput, spliceOuts []*wire.TxOut) *SpliceTransaction {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: oldFundOutPoint})
	for _, in := range spliceIns {
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: in})
	}
	tx.AddTxOut(newFundOutput.TxOut())
	for _, out := range spliceOuts {
		tx.AddTxOut(out)
	}
	return &SpliceTransaction{Tx: tx, Output: newFundOutput}
}

// SigHash computes the BIP143 digest for the splice transaction's input
// spending the previous fund output, always input 0.
func (s *SpliceTransaction) SigHash(oldFundScript []byte, oldFundAmount int64) ([32]byte, error) {
	return computeWitnessDigest(s.Tx, 0, oldFundScript, oldFundAmount)
}

// Attach finalizes the previous-fund-output input's witness. Any splice-in
// inputs are finalized separately from each party's own signed PSBT, the
// same way a funding transaction's inputs are.
func (s *SpliceTransaction) Attach(witness wire.TxWitness) {
	s.Tx.TxIn[0].Witness = witness
}

// OutPoint returns the outpoint of the splice transaction's new fund
// output, the input every subsequent commit transaction against the
// spliced channel spends.
func (s *SpliceTransaction) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: s.Tx.TxHash(), Index: 0}
}
