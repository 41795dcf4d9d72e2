package transaction

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/keys"
)

// SwapLockOutput is the swap's tx_lock output: a 2-of-2 of the swap's own
// per-session Bitcoin keys (A, B), distinct from either party's channel
// ownership keys. Both tx_cancel and tx_redeem spend it.
type SwapLockOutput struct {
	Script   []byte
	PkScript []byte
	Amount   int64
	A, B     keys.OwnershipPublicKey
}

// BuildSwapLockOutput builds tx_lock's 2-of-2 output between the swap's two
// per-session keys, in any order; the keys are sorted internally exactly as
// a channel's funding output sorts its ownership keys.
func BuildSwapLockOutput(a, b keys.OwnershipPublicKey, amount int64) (*SwapLockOutput, error) {
	x0, x1 := sortOwnershipKeys(a, b)
	script, err := twoOfTwoScript(x0, x1)
	if err != nil {
		return nil, fmt.Errorf("build swap lock script: %w", err)
	}
	return &SwapLockOutput{
		Script:   script,
		PkScript: witnessScriptHash(script),
		Amount:   amount,
		A:        x0,
		B:        x1,
	}, nil
}

// TxOut returns the wire.TxOut paying into this output.
func (o *SwapLockOutput) TxOut() *wire.TxOut {
	return wire.NewTxOut(o.Amount, o.PkScript)
}

// SwapLockTransaction is tx_lock: the BTC side of the swap, funded from
// Bob's wallet since Bob is the party paying BTC for Alice's Monero.
// Building it from his wallet's own inputs is walletiface's responsibility;
// this type only tracks the resulting outpoint and output, mirroring
// FundingTransaction.
type SwapLockTransaction struct {
	Tx       *wire.MsgTx
	Output   *SwapLockOutput
	OutIndex uint32
}

// NewSwapLockTransaction wraps an externally constructed, fully signed
// tx_lock together with the output it created.
func NewSwapLockTransaction(tx *wire.MsgTx, output *SwapLockOutput, outIndex uint32) *SwapLockTransaction {
	return &SwapLockTransaction{Tx: tx, Output: output, OutIndex: outIndex}
}

// OutPoint returns the outpoint of tx_lock's 2-of-2 output.
func (l *SwapLockTransaction) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: l.Tx.TxHash(), Index: l.OutIndex}
}

// SwapCancelOutput is tx_cancel's output: a fresh 2-of-2 of the same swap
// keys that tx_refund and tx_punish both spend, separated from tx_lock's
// output so tx_refund and tx_punish can carry distinct relative timelocks
// without racing each other directly against tx_lock.
type SwapCancelOutput struct {
	Script   []byte
	PkScript []byte
	Amount   int64
	A, B     keys.OwnershipPublicKey
}

// SwapCancelTransaction is tx_cancel: spends tx_lock's output after
// refund_timelock, cooperatively signed by both parties before tx_lock is
// even broadcast, pre-committing to the refund/punish path.
type SwapCancelTransaction struct {
	Tx     *wire.MsgTx
	Output *SwapCancelOutput
}

// BuildSwapCancelTransaction builds an unsigned tx_cancel spending
// lockOutPoint (tx_lock's 2-of-2 output) into a new 2-of-2 output between
// the same swap keys, sequence = refundTimeLock.
func BuildSwapCancelTransaction(lockOutPoint wire.OutPoint, lockAmount int64, a, b keys.OwnershipPublicKey, refundTimeLock uint32) (*SwapCancelTransaction, error) {
	x0, x1 := sortOwnershipKeys(a, b)
	script, err := twoOfTwoScript(x0, x1)
	if err != nil {
		return nil, fmt.Errorf("build swap cancel script: %w", err)
	}
	output := &SwapCancelOutput{
		Script:   script,
		PkScript: witnessScriptHash(script),
		Amount:   lockAmount - TxFee,
		A:        x0,
		B:        x1,
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: lockOutPoint, Sequence: refundTimeLock})
	tx.AddTxOut(wire.NewTxOut(output.Amount, output.PkScript))

	return &SwapCancelTransaction{Tx: tx, Output: output}, nil
}

// SigHash computes the BIP143 witness digest for tx_cancel's single input,
// spending tx_lock's 2-of-2 output.
func (c *SwapCancelTransaction) SigHash(lockScript []byte, lockAmount int64) ([32]byte, error) {
	return computeWitnessDigest(c.Tx, 0, lockScript, lockAmount)
}

// Attach finalizes tx_cancel with both parties' signatures over
// lockScript, ordered to match the sorted (A, B) key order.
func (c *SwapCancelTransaction) Attach(lockScript []byte, sigA, sigB *adaptor.Signature) {
	c.Tx.TxIn[0].Witness = spendTwoOfTwo(lockScript, sigA, sigB)
}

// OutPoint returns the outpoint of tx_cancel's output, the input tx_refund
// and tx_punish both spend.
func (c *SwapCancelTransaction) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: c.Tx.TxHash(), Index: 0}
}

// SwapRefundTransaction is tx_refund: spends tx_cancel to Bob's refund
// address. Alice's signature is adaptor-encrypted under S_b_bitcoin at
// swap round 1a; Bob decrypting and broadcasting it leaks s_b, the scalar
// that lets him recover the Monero-side viewing key share.
type SwapRefundTransaction struct {
	Tx *wire.MsgTx
}

// BuildSwapRefundTransaction builds an unsigned tx_refund spending
// cancelOutPoint to toScript, no additional timelock beyond tx_cancel's own
// refund_timelock.
func BuildSwapRefundTransaction(cancelOutPoint wire.OutPoint, cancelAmount int64, toScript []byte) *SwapRefundTransaction {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: cancelOutPoint})
	tx.AddTxOut(wire.NewTxOut(cancelAmount-TxFee, toScript))
	return &SwapRefundTransaction{Tx: tx}
}

// SigHash computes the BIP143 witness digest for tx_refund's single input,
// spending tx_cancel's 2-of-2 output.
func (r *SwapRefundTransaction) SigHash(cancelScript []byte, cancelAmount int64) ([32]byte, error) {
	return computeWitnessDigest(r.Tx, 0, cancelScript, cancelAmount)
}

// Attach finalizes tx_refund with Alice's (decrypted) and Bob's signatures,
// ordered to match cancelOutput's sorted (A, B) key order.
func (r *SwapRefundTransaction) Attach(cancelScript []byte, sigA, sigB *adaptor.Signature) {
	r.Tx.TxIn[0].Witness = spendTwoOfTwo(cancelScript, sigA, sigB)
}

// SwapPunishTransaction is tx_punish: spends tx_cancel to Alice's punish
// address once punish_timelock has elapsed without a refund, penalizing
// Bob for stalling after tx_cancel was broadcast.
type SwapPunishTransaction struct {
	Tx *wire.MsgTx
}

// BuildSwapPunishTransaction builds an unsigned tx_punish spending
// cancelOutPoint to toScript, sequence = punishTimeLock.
func BuildSwapPunishTransaction(cancelOutPoint wire.OutPoint, cancelAmount int64, toScript []byte, punishTimeLock uint32) *SwapPunishTransaction {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: cancelOutPoint, Sequence: punishTimeLock})
	tx.AddTxOut(wire.NewTxOut(cancelAmount-TxFee, toScript))
	return &SwapPunishTransaction{Tx: tx}
}

// SigHash computes the BIP143 witness digest for tx_punish's single input,
// spending tx_cancel's 2-of-2 output.
func (p *SwapPunishTransaction) SigHash(cancelScript []byte, cancelAmount int64) ([32]byte, error) {
	return computeWitnessDigest(p.Tx, 0, cancelScript, cancelAmount)
}

// Attach finalizes tx_punish with both parties' signatures, ordered to
// match cancelOutput's sorted (A, B) key order.
func (p *SwapPunishTransaction) Attach(cancelScript []byte, sigA, sigB *adaptor.Signature) {
	p.Tx.TxIn[0].Witness = spendTwoOfTwo(cancelScript, sigA, sigB)
}

// SwapRedeemTransaction is tx_redeem: spends tx_lock directly, bypassing
// tx_cancel, to Alice's redeem address. Bob's signature is
// adaptor-encrypted under S_a_bitcoin at swap round 5; Alice decrypting and
// broadcasting it leaks s_a, the scalar Bob needs to open the Monero lock
// output.
type SwapRedeemTransaction struct {
	Tx *wire.MsgTx
}

// BuildSwapRedeemTransaction builds an unsigned tx_redeem spending
// lockOutPoint (tx_lock's 2-of-2 output) directly to toScript.
func BuildSwapRedeemTransaction(lockOutPoint wire.OutPoint, lockAmount int64, toScript []byte) *SwapRedeemTransaction {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: lockOutPoint})
	tx.AddTxOut(wire.NewTxOut(lockAmount-TxFee, toScript))
	return &SwapRedeemTransaction{Tx: tx}
}

// SigHash computes the BIP143 witness digest for tx_redeem's single input,
// spending tx_lock's 2-of-2 output.
func (r *SwapRedeemTransaction) SigHash(lockScript []byte, lockAmount int64) ([32]byte, error) {
	return computeWitnessDigest(r.Tx, 0, lockScript, lockAmount)
}

// Attach finalizes tx_redeem with Alice's and Bob's (decrypted) signatures,
// ordered to match lockOutput's sorted (A, B) key order.
func (r *SwapRedeemTransaction) Attach(lockScript []byte, sigA, sigB *adaptor.Signature) {
	r.Tx.TxIn[0].Witness = spendTwoOfTwo(lockScript, sigA, sigB)
}

// RecoverSwapSecret recovers the secret scalar leaked by a broadcast
// tx_refund or tx_redeem: the counterparty holds the encrypted signature
// exchanged at swap round 1a or round 5, and the published witness carries
// the corresponding decrypted signature in the clear.
func RecoverSwapSecret(encryptionKey keys.PtlcPoint, publishedSig *ecdsa.Signature, encsig *adaptor.EncryptedSignature) (*secp256k1.PrivateKey, error) {
	decrypted, err := adaptor.ParseDERSignature(publishedSig.Serialize())
	if err != nil {
		return nil, fmt.Errorf("recover swap secret: %w", err)
	}

	y, err := adaptor.Recover(encryptionKey.Inner(), decrypted, encsig)
	if err != nil {
		return nil, fmt.Errorf("recover swap secret: %w", err)
	}
	return y, nil
}
