package transaction

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/keys"
)

// FundingOutput is the 2-of-2 output a channel's funding transaction pays
// to: spendable only with signatures from both parties' ownership keys.
type FundingOutput struct {
	Script   []byte
	PkScript []byte
	Amount   int64
	X0, X1   keys.OwnershipPublicKey
}

// BuildFundingOutput builds the funding output for a channel between the
// two given ownership keys, in any order; the keys are sorted internally.
func BuildFundingOutput(a, b keys.OwnershipPublicKey, amount int64) (*FundingOutput, error) {
	x0, x1 := sortOwnershipKeys(a, b)
	script, err := twoOfTwoScript(x0, x1)
	if err != nil {
		return nil, fmt.Errorf("build funding script: %w", err)
	}
	return &FundingOutput{
		Script:   script,
		PkScript: witnessScriptHash(script),
		Amount:   amount,
		X0:       x0,
		X1:       x1,
	}, nil
}

// TxOut returns the wire.TxOut paying into this output.
func (f *FundingOutput) TxOut() *wire.TxOut {
	return wire.NewTxOut(f.Amount, f.PkScript)
}

// FundingTransaction is the on-chain transaction that locks both parties'
// initial balances into the channel's 2-of-2 output. Building it is the
// responsibility of each party's own Bitcoin wallet (see walletiface);
// this type only tracks the resulting outpoint and output.
type FundingTransaction struct {
	Tx       *wire.MsgTx
	Output   *FundingOutput
	OutIndex uint32
}

// OutPoint returns the outpoint of the channel's 2-of-2 output, the input
// every subsequent commit transaction spends.
func (f *FundingTransaction) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: f.Tx.TxHash(), Index: f.OutIndex}
}

// NewFundingTransaction wraps an externally constructed, fully signed
// funding transaction together with the channel output it created.
func NewFundingTransaction(tx *wire.MsgTx, output *FundingOutput, outIndex uint32) *FundingTransaction {
	return &FundingTransaction{Tx: tx, Output: output, OutIndex: outIndex}
}

// SpendFundingOutput builds the witness spending a FundingOutput's 2-of-2
// script. Shared by any transaction that spends a fund output directly
// rather than through a commit transaction's branches, namely a
// cooperative CloseTransaction and a SpliceTransaction's prior-fund-output
// input.
func SpendFundingOutput(script []byte, sig0, sig1 *adaptor.Signature) wire.TxWitness {
	return spendTwoOfTwo(script, sig0, sig1)
}
