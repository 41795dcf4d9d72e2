// Package channel implements the channel side of the protocol: opening,
// updating (optionally with an embedded PTLC), splicing, collaboratively
// closing, force-closing, and punishing a two-party Bitcoin payment
// channel. A Channel value owns its own keys and a monotonically growing
// log of revoked states; every protocol entry point here takes an
// exclusive reference, mutates it only on success, and leaves it untouched
// on failure, mirroring lnwallet.LightningChannel's contract.
package channel

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
	"github.com/ptlc-labs/thor/walletiface"
)

// Balance is a channel's claimed split of its funds between the two
// parties, from one party's point of view: Ours is what this party
// believes they can claim, Theirs is what the counterparty can claim. In
// the counterparty's own view the fields are swapped; before any
// broadcast this is only a claim, made enforceable by the held
// transactions and signatures.
type Balance struct {
	Ours, Theirs int64
}

// Total returns the sum of both parties' shares, the amount the channel's
// fund output must hold.
func (b Balance) Total() int64 { return b.Ours + b.Theirs }

// StandardState is one version of the channel's state: the balance split,
// the commit and split transactions realizing it, and the per-state key
// material needed to force-close or be punished for it.
type StandardState struct {
	Balance  Balance
	TimeLock uint32

	RSelf  *keys.RevocationKeyPair
	ROther keys.RevocationPublicKey
	YSelf  *keys.PublishingKeyPair
	YOther keys.PublishingPublicKey

	CommitOutput *transaction.CommitOutput
	CommitTx     *transaction.CommitTransaction

	// EncSigSelfAuthored is self's own signature over CommitTx, encrypted
	// under YOther and sent to the counterparty in the message that set up
	// this state (Create4 at open, Update2 at update, Splice2 at splice). Self
	// keeps it so that, if this state is later revoked and the
	// counterparty broadcasts it anyway, self can recover the
	// counterparty's decryption key from the witness (see Punish).
	EncSigSelfAuthored *adaptor.EncryptedSignature

	// EncSigReceived is the counterparty's signature over CommitTx,
	// encrypted under YSelf and received from the counterparty. Self
	// decrypts it with YSelf's secret key to force-close unilaterally.
	EncSigReceived *adaptor.EncryptedSignature

	SplitOutputs []transaction.SplitOutput
	SplitTx      *transaction.SplitTransaction
}

// Role identifies which side of a PTLC a party plays.
type Role = transaction.SplitRole

const (
	RoleFunder   = transaction.RoleFunder
	RoleRedeemer = transaction.RoleRedeemer
)

// PtlcState augments a StandardState with the channel's single embedded
// PTLC output, if the current state has one.
type PtlcState struct {
	Output *transaction.PtlcOutput
	Role   Role

	RedeemTx *transaction.PtlcTransaction
	RefundTx *transaction.PtlcTransaction

	EncSigRedeemFunder *adaptor.EncryptedSignature
	SigRedeemRedeemer  *ecdsa.Signature
	SigRefundFunder    *ecdsa.Signature
	SigRefundRedeemer  *ecdsa.Signature

	// Secret is populated once the redeemer has learned the PTLC
	// preimage, either by generating it themselves (the swap-over-PTLC
	// "Alice" role) or by observing a broadcast redeem transaction.
	Secret *keys.PtlcSecret
}

// ChannelState is the channel's current (or a past, revoked) state: a
// StandardState, plus an optional embedded PTLC.
type ChannelState struct {
	Standard StandardState
	Ptlc     *PtlcState
}

// RevokedState is a past ChannelState together with the revocation secret
// the counterparty revealed when they moved on from it, the two pieces of
// evidence Punish needs.
type RevokedState struct {
	State        ChannelState
	ROtherSecret keys.RevocationSecretKey
}

// Channel is a two-party payment channel: it owns the long-term ownership
// keypair, the counterparty's public key, both parties' final payout
// scripts, the channel's funding transaction, its current state, and every
// state it has since revoked.
type Channel struct {
	Wallet    walletiface.BitcoinWallet
	Transport chanmsg.Transport

	XSelf  *keys.OwnershipKeyPair
	XOther keys.OwnershipPublicKey

	FinalScriptSelf  []byte
	FinalScriptOther []byte

	FundingTx     *transaction.FundingTransaction
	FundingOutput *transaction.FundingOutput

	Current ChannelState
	Revoked []RevokedState
}

// ID returns the channel's identifier: the funding transaction's txid.
func (c *Channel) ID() [32]byte {
	return c.FundingTx.Tx.TxHash()
}

// fundOutPoint returns the outpoint the channel's commit transactions
// spend: the funding transaction's single fund output, or, after a
// splice, the replacement fund output.
func (c *Channel) fundOutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: c.FundingTx.Tx.TxHash(), Index: c.FundingTx.OutIndex}
}

// commitOutPoint returns the outpoint a split transaction for the current
// state spends: the current state's commit transaction's single output.
func commitOutPoint(commitTx *transaction.CommitTransaction) wire.OutPoint {
	return wire.OutPoint{Hash: commitTx.Tx.TxHash(), Index: 0}
}

// SplitOutputsFor builds the two plain balance outputs a split transaction
// pays into, each carrying its share of transaction.SplitOutputFeeShares
// (the commit and split transactions' combined fee). Shares are assigned
// after sorting both outputs by scriptPubKey, so both parties derive
// identical amounts independently regardless of which one is "self".
func SplitOutputsFor(balance Balance, selfScript, otherScript []byte) ([]transaction.SplitOutput, error) {
	type pending struct {
		amount int64
		script []byte
	}
	entries := []pending{
		{balance.Ours, selfScript},
		{balance.Theirs, otherScript},
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].script, entries[j].script) < 0
	})
	shares := transaction.SplitOutputFeeShares(len(entries))

	outputs := make([]transaction.SplitOutput, len(entries))
	for i, e := range entries {
		reduced := e.amount - shares[i]
		if reduced <= 0 {
			return nil, fmt.Errorf("channel: %w", &thorerrors.InsufficientFundsError{Input: e.amount, Output: 0, Fee: shares[i]})
		}
		outputs[i] = &transaction.BalanceOutput{Amount: reduced, ScriptPubKey: e.script}
	}
	return outputs, nil
}

// splitOutputsForPtlc builds a channel state's split outputs when exactly
// one of them is a PTLC: the two balance outputs plus ptlc, each paying
// its share of transaction.SplitOutputFeeShares, assigned after sorting
// all three outputs canonically by scriptPubKey, the three-output analogue
// of SplitOutputsFor.
func splitOutputsForPtlc(balance Balance, selfScript, otherScript []byte, ptlc *transaction.PtlcOutput) ([]transaction.SplitOutput, error) {
	type pending struct {
		amount int64
		script []byte
		kind   int
	}
	entries := []pending{
		{balance.Ours, selfScript, 0},
		{balance.Theirs, otherScript, 1},
		{ptlc.Amount, ptlc.PkScript, 2},
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].script, entries[j].script) < 0
	})
	shares := transaction.SplitOutputFeeShares(len(entries))

	outputs := make([]transaction.SplitOutput, len(entries))
	for i, e := range entries {
		reduced := e.amount - shares[i]
		if reduced <= 0 {
			return nil, fmt.Errorf("channel: %w", &thorerrors.InsufficientFundsError{Input: e.amount, Output: 0, Fee: shares[i]})
		}
		switch e.kind {
		case 0:
			outputs[i] = &transaction.BalanceOutput{Amount: reduced, ScriptPubKey: selfScript}
		case 1:
			outputs[i] = &transaction.BalanceOutput{Amount: reduced, ScriptPubKey: otherScript}
		default:
			reducedPtlc := *ptlc
			reducedPtlc.Amount = reduced
			outputs[i] = &reducedPtlc
		}
	}
	return outputs, nil
}

func sortedOwnershipKeyRank(xSelf keys.OwnershipPublicKey, xOther keys.OwnershipPublicKey) (selfIsX0 bool) {
	return xSelf.Less(xOther)
}

func checkRelativeTimeLocksMatch(selfLock, otherLock uint32) error {
	if selfLock != otherLock {
		return fmt.Errorf("channel: incompatible time locks %d != %d: %w", selfLock, otherLock, thorerrors.ErrIncompatibleTimeLocks)
	}
	return nil
}
