// Package transaction builds and satisfies the Bitcoin transactions that
// make up a channel: the funding, commit, split, close, punish and PTLC
// redeem/refund transactions. Each transaction type owns the witness script
// its output pays to, and knows how to compute its own BIP143 sighash and
// assemble a satisfying witness once both parties' signatures are in hand.
package transaction

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/keys"
)

// TxFee is the flat fee, in satoshis, subtracted from an output's value
// whenever a new transaction spends it. Every transaction in a channel
// pays a fixed fee rather than negotiating one, to keep every party able
// to compute every future transaction's exact weight and digest upfront.
const TxFee = 10_000

// sortOwnershipKeys returns X0, X1 such that X0 < X1 lexicographically by
// compressed encoding. Both parties must derive scripts from this ordering,
// not from who happens to be "self" versus "counterparty".
func sortOwnershipKeys(a, b keys.OwnershipPublicKey) (keys.OwnershipPublicKey, keys.OwnershipPublicKey) {
	if a.Less(b) {
		return a, b
	}
	return b, a
}

// twoOfTwoScript builds the witness script requiring signatures from both
// X0 and X1, in that order: equivalent to the miniscript fragment
// `c:and_v(v:pk(X0),pk_k(X1))` used for the fund, PTLC and split outputs.
func twoOfTwoScript(x0, x1 keys.OwnershipPublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddData(x0.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(x1.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	return builder.Script()
}

// witnessScriptHash wraps a witness script in its P2WSH scriptPubKey.
func witnessScriptHash(script []byte) []byte {
	h := sha256.Sum256(script)
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(h[:])
	out, err := builder.Script()
	if err != nil {
		// Building a fixed-shape 34-byte script cannot fail.
		panic(err)
	}
	return out
}

// spendTwoOfTwo builds the witness stack for twoOfTwoScript. sig0 and sig1
// are the signatures under X0 and X1 respectively; sig0 goes on top of the
// stack (last witness item before the script) because the script verifies
// X0's signature first.
func spendTwoOfTwo(script []byte, sig0, sig1 *adaptor.Signature) wire.TxWitness {
	return wire.TxWitness{sig1.DER(), sig0.DER(), script}
}

// commitKeySet bundles the per-party keys that feed into the commit
// output's three-branch script: the ownership key, the revocation key
// published for this state, and the publishing key generated for this
// specific commit transaction.
type commitKeySet struct {
	X keys.OwnershipPublicKey
	R keys.RevocationPublicKey
	Y keys.PublishingPublicKey
}

// buildCommitScript builds the commit transaction's three-path witness
// script:
//
//	OP_IF
//	    OP_IF          -- punish party 0 (their channel state was revoked)
//	        <X1> CHECKSIGVERIFY <Y0> CHECKSIGVERIFY <R0> CHECKSIG
//	    OP_ELSE         -- punish party 1
//	        <X0> CHECKSIGVERIFY <Y1> CHECKSIGVERIFY <R1> CHECKSIG
//	    OP_ENDIF
//	OP_ELSE             -- cooperative channel state, after the relative timelock
//	    <relativeTimeLock> CHECKSEQUENCEVERIFY DROP
//	    <X0> CHECKSIGVERIFY <X1> CHECKSIG
//	OP_ENDIF
//
// keys must already be sorted so keys[0] corresponds to X0.
func buildCommitScript(k [2]commitKeySet, relativeTimeLock uint32) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(k[1].X.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(k[0].Y.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(k[0].R.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddData(k[0].X.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(k[1].Y.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(k[1].R.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(int64(relativeTimeLock))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(k[0].X.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(k[1].X.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

var (
	boolTrue  = []byte{1}
	boolFalse = []byte{}
)

// SpendCommitChannelState builds the witness spending a CommitOutput's
// cooperative channel-state branch, once the relative timelock has passed:
// this is the witness a SplitTransaction attaches to realize the channel's
// current balances.
func SpendCommitChannelState(script []byte, sigX1, sigX0 *ecdsa.Signature) wire.TxWitness {
	return wire.TxWitness{sigX1.Serialize(), sigX0.Serialize(), boolFalse, script}
}

// spendCommitPunish0 builds the witness draining a commit transaction whose
// owner (party 0) published a revoked state: it requires party 1's
// ownership signature, the recovered decryption key for party 0's
// publishing key, and party 0's revealed revocation secret.
func spendCommitPunish0(script []byte, sigX1 *ecdsa.Signature, sigY0, sigR0 *ecdsa.Signature) wire.TxWitness {
	return wire.TxWitness{
		sigR0.Serialize(), sigY0.Serialize(), sigX1.Serialize(),
		boolTrue, boolTrue, script,
	}
}

// spendCommitPunish1 is the mirror image of spendCommitPunish0, draining a
// commit transaction whose owner (party 1) published a revoked state.
func spendCommitPunish1(script []byte, sigX0 *ecdsa.Signature, sigY1, sigR1 *ecdsa.Signature) wire.TxWitness {
	return wire.TxWitness{
		sigR1.Serialize(), sigY1.Serialize(), sigX0.Serialize(),
		boolFalse, boolTrue, script,
	}
}

// CommitSigHash computes the BIP143 witness digest an externally observed
// transaction's single input would have signed, spending prevScript at
// prevAmount. Used during punishment to identify, among a broadcast commit
// transaction's two witness signatures, which one verifies under a given
// ownership key.
func CommitSigHash(tx *wire.MsgTx, prevScript []byte, prevAmount int64) ([32]byte, error) {
	return computeWitnessDigest(tx, 0, prevScript, prevAmount)
}

func computeWitnessDigest(tx *wire.MsgTx, inputIndex int, witnessScript []byte, amount int64) ([32]byte, error) {
	sigHashes := txscript.NewTxSigHashes(tx, txscript.NewCannedPrevOutputFetcher(nil, 0))
	digest, err := txscript.CalcWitnessSigHash(witnessScript, sigHashes, txscript.SigHashAll, tx, inputIndex, amount)
	if err != nil {
		return [32]byte{}, fmt.Errorf("compute witness digest: %w", err)
	}
	var out [32]byte
	copy(out[:], digest)
	return out, nil
}
