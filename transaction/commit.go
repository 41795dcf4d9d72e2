package transaction

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/keys"
)

// CommitOutput is the three-path output a commit transaction pays all of
// the channel's funds into: cooperatively spendable by both ownership
// keys after a relative timelock, or immediately by whichever party can
// prove the other published a revoked state.
type CommitOutput struct {
	Script           []byte
	PkScript         []byte
	Amount           int64
	RelativeTimeLock uint32
	Keys             [2]commitKeySet
}

// CommitPartyKeys are the per-party public keys needed to build a single
// party's commit output: their ownership key, the revocation key for this
// particular state, and the publishing key for this particular commit
// transaction.
type CommitPartyKeys struct {
	Ownership  keys.OwnershipPublicKey
	Revocation keys.RevocationPublicKey
	Publishing keys.PublishingPublicKey
}

// BuildCommitOutput builds a commit output funding the channel state held
// by party a and party b. a and b need not be pre-sorted; the ownership
// keys determine the canonical X0/X1 order, and a/b's revocation and
// publishing keys travel along with their ownership key.
func BuildCommitOutput(a, b CommitPartyKeys, relativeTimeLock uint32, amount int64) (*CommitOutput, error) {
	ksA := commitKeySet{X: a.Ownership, R: a.Revocation, Y: a.Publishing}
	ksB := commitKeySet{X: b.Ownership, R: b.Revocation, Y: b.Publishing}

	var ordered [2]commitKeySet
	if a.Ownership.Less(b.Ownership) {
		ordered = [2]commitKeySet{ksA, ksB}
	} else {
		ordered = [2]commitKeySet{ksB, ksA}
	}

	script, err := buildCommitScript(ordered, relativeTimeLock)
	if err != nil {
		return nil, fmt.Errorf("build commit script: %w", err)
	}

	return &CommitOutput{
		Script:           script,
		PkScript:         witnessScriptHash(script),
		Amount:           amount,
		RelativeTimeLock: relativeTimeLock,
		Keys:             ordered,
	}, nil
}

// CommitTransaction spends the channel's fund output into a single
// CommitOutput. Each party holds their own commit transaction, signed only
// by the counterparty, so that broadcasting it unilaterally closes the
// channel at that state.
type CommitTransaction struct {
	Tx     *wire.MsgTx
	Output *CommitOutput
	// PrevAmount is the value of the output this transaction spends, used
	// to compute the BIP143 witness digest.
	PrevAmount int64
}

// BuildCommitTransaction constructs an unsigned commit transaction
// spending prevOut (worth prevAmount) into output; the fee paid is
// prevAmount minus output.Amount.
func BuildCommitTransaction(prevOut wire.OutPoint, prevAmount int64, output *CommitOutput) *CommitTransaction {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: prevOut})
	tx.AddTxOut(output.TxOut())
	return &CommitTransaction{Tx: tx, Output: output, PrevAmount: prevAmount}
}

// SigHash computes the BIP143 witness signature digest for this
// transaction's single input, spending prevScript (the fund output's
// witness script).
func (c *CommitTransaction) SigHash(prevScript []byte) ([32]byte, error) {
	return computeWitnessDigest(c.Tx, 0, prevScript, c.PrevAmount)
}

// Attach finalizes the transaction with the witness spending the funding
// output's plain 2-of-2 script, once both parties' signatures over it are
// available. Unlike the commit output this transaction pays into, the
// funding output carries no punish branches, so spending it only ever
// takes this one form.
func (c *CommitTransaction) Attach(fundingScript []byte, sig0, sig1 *adaptor.Signature) {
	c.Tx.TxIn[0].Witness = spendTwoOfTwo(fundingScript, sig0, sig1)
}

// TxOut returns the wire.TxOut paying into this output.
func (o *CommitOutput) TxOut() *wire.TxOut {
	return wire.NewTxOut(o.Amount, o.PkScript)
}

// RelativeTimeLockSequence is the nSequence value a transaction spending
// this commit output's channel-state branch must set on its input, per
// BIP68, to satisfy the OP_CHECKSEQUENCEVERIFY in the witness script.
func (o *CommitOutput) RelativeTimeLockSequence() uint32 {
	return o.RelativeTimeLock
}
