package transaction

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/thorerrors"
)

// SplitRole identifies which side of a PTLC output a split output
// represents, for the party building their own split outputs.
type SplitRole int

const (
	// RoleFunder is the party whose balance funds the PTLC and who can
	// reclaim it via TX_ptlc_refund after the refund timelock.
	RoleFunder SplitRole = iota
	// RoleRedeemer is the party who can claim the PTLC via
	// TX_ptlc_redeem by revealing the PTLC secret.
	RoleRedeemer
)

// SplitOutput is one output of a split transaction: either a plain balance
// payment to an external address, or a PTLC locked between a funder and a
// redeemer.
type SplitOutput interface {
	scriptPubKey() []byte
	amount() int64
	txOut() *wire.TxOut
}

// BalanceOutput pays amount directly to an externally supplied output
// script, e.g. the on-chain wallet address a party wants their share paid
// to when the channel closes unilaterally.
type BalanceOutput struct {
	Amount       int64
	ScriptPubKey []byte
}

func (b *BalanceOutput) scriptPubKey() []byte { return b.ScriptPubKey }
func (b *BalanceOutput) amount() int64        { return b.Amount }
func (b *BalanceOutput) txOut() *wire.TxOut   { return wire.NewTxOut(b.Amount, b.ScriptPubKey) }

// PtlcOutput locks amount between a funder and a redeemer: the redeemer
// can claim it any time by revealing the PTLC secret; the funder can
// reclaim it after RefundTimeLock (a relative timelock from TX_s).
type PtlcOutput struct {
	Amount          int64
	XFunder         keys.OwnershipPublicKey
	XRedeemer       keys.OwnershipPublicKey
	Point           keys.PtlcPoint
	RefundTimeLock  uint32
	Script          []byte
	PkScript        []byte
}

func (p *PtlcOutput) scriptPubKey() []byte { return p.PkScript }
func (p *PtlcOutput) amount() int64        { return p.Amount }
func (p *PtlcOutput) txOut() *wire.TxOut   { return wire.NewTxOut(p.Amount, p.PkScript) }

// BuildPtlcOutput builds the 2-of-2 output a PTLC is embedded in: spendable
// by the funder and redeemer together (the PTLC redeem/refund transactions
// below are the only intended spenders).
func BuildPtlcOutput(funder, redeemer keys.OwnershipPublicKey, point keys.PtlcPoint, refundTimeLock uint32, amount int64) (*PtlcOutput, error) {
	x0, x1 := sortOwnershipKeys(funder, redeemer)
	script, err := twoOfTwoScript(x0, x1)
	if err != nil {
		return nil, fmt.Errorf("build ptlc script: %w", err)
	}
	return &PtlcOutput{
		Amount:         amount,
		XFunder:        funder,
		XRedeemer:      redeemer,
		Point:          point,
		RefundTimeLock: refundTimeLock,
		Script:         script,
		PkScript:       witnessScriptHash(script),
	}, nil
}

// SplitStageFee is the total fee a channel state's split outputs absorb:
// one TxFee for the commit transaction itself and another TxFee for the
// split transaction spending it, since neither has any output of its own
// to draw a mining fee from besides the parties' eventual balances ("fees
// from TX_c and TX_s are split evenly across all split outputs").
const SplitStageFee = 2 * TxFee

// SplitOutputFeeShares divides SplitStageFee evenly across n split
// outputs, assigning the remainder (when SplitStageFee does not divide n
// evenly) to the first shares. Callers apply shares to outputs already in
// their canonical scriptPubKey order, so two parties building the same
// outputs independently from either side deduct identical per-output
// shares.
func SplitOutputFeeShares(n int) []int64 {
	shares := make([]int64, n)
	base := SplitStageFee / int64(n)
	remainder := SplitStageFee % int64(n)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares
}

// SplitTransaction spends a commit transaction's channel-state branch
// (sequence = the commit output's relative timelock), realizing the
// parties' balances and any PTLC outputs.
type SplitTransaction struct {
	Tx      *wire.MsgTx
	Outputs []SplitOutput
}

// BuildSplitTransaction builds an unsigned split transaction spending
// commitOutPoint (the commit transaction's single output, worth
// commitAmount) into outputs, sorted ascending by scriptPubKey as required
// for both parties to derive an identical transaction independently.
func BuildSplitTransaction(commitOutPoint wire.OutPoint, commitAmount int64, relativeTimeLock uint32, outputs []SplitOutput) (*SplitTransaction, error) {
	sorted := make([]SplitOutput, len(outputs))
	copy(sorted, outputs)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].scriptPubKey(), sorted[j].scriptPubKey()) < 0
	})

	var total int64
	for _, o := range sorted {
		total += o.amount()
	}
	if total+TxFee > commitAmount {
		return nil, fmt.Errorf("build split transaction: %w", &thorerrors.InsufficientFundsError{Input: commitAmount, Output: total, Fee: TxFee})
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: commitOutPoint,
		Sequence:         relativeTimeLock,
	})
	for _, o := range sorted {
		tx.AddTxOut(o.txOut())
	}

	return &SplitTransaction{Tx: tx, Outputs: sorted}, nil
}

// SigHash computes the BIP143 witness digest for the split transaction's
// single input, spending the commit output's witness script.
func (s *SplitTransaction) SigHash(commitScript []byte, commitAmount int64) ([32]byte, error) {
	return computeWitnessDigest(s.Tx, 0, commitScript, commitAmount)
}

// Attach finalizes the transaction with the witness spending the commit
// output's channel-state branch, built via SpendCommitChannelState.
func (s *SplitTransaction) Attach(witness wire.TxWitness) {
	s.Tx.TxIn[0].Witness = witness
}

// OutPointFor returns the outpoint of the split output at index idx,
// e.g. for building a PTLC redeem/refund transaction.
func (s *SplitTransaction) OutPointFor(idx int) wire.OutPoint {
	return wire.OutPoint{Hash: s.Tx.TxHash(), Index: uint32(idx)}
}

// SplitOutputLocator pins down a specific split output together with the
// outpoint it can be spent from, e.g. for building a PTLC redeem or refund
// transaction once the split transaction has confirmed.
type SplitOutputLocator struct {
	OutPoint wire.OutPoint
	Output   *PtlcOutput
}

// IndexOf returns the position a given output ended up at after sorting,
// or -1 if it is not part of this split transaction.
func (s *SplitTransaction) IndexOf(o SplitOutput) int {
	for i, got := range s.Outputs {
		if bytes.Equal(got.scriptPubKey(), o.scriptPubKey()) && got.amount() == o.amount() {
			return i
		}
	}
	return -1
}
