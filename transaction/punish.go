package transaction

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/keys"
)

// PunishTransaction drains a commit output whose owner broadcast a revoked
// state, via the punish_0 or punish_1 branch of the commit script.
type PunishTransaction struct {
	Tx *wire.MsgTx
}

// BuildPunishTransaction builds an unsigned transaction spending a cheating
// commit output to a single output controlled by the punishing party.
func BuildPunishTransaction(commitOutPoint wire.OutPoint, commitAmount int64, toScript []byte) *PunishTransaction {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: commitOutPoint})
	tx.AddTxOut(wire.NewTxOut(commitAmount-TxFee, toScript))
	return &PunishTransaction{Tx: tx}
}

// SigHash computes the BIP143 witness digest for the punish transaction's
// single input, spending the cheater's commit output.
func (p *PunishTransaction) SigHash(commitScript []byte, commitAmount int64) ([32]byte, error) {
	return computeWitnessDigest(p.Tx, 0, commitScript, commitAmount)
}

// AttachPunish0 finalizes the transaction draining a commit output whose
// owner was party 0, given party 1's signature over this transaction and
// the recovered publishing/revocation secret keys.
func (p *PunishTransaction) AttachPunish0(commitScript []byte, sigX1 *ecdsa.Signature, y0, r0 *secp256k1.PrivateKey, digest [32]byte) *ecdsa.Signature {
	sigY0 := ecdsa.Sign(y0, digest[:])
	sigR0 := ecdsa.Sign(r0, digest[:])
	p.Tx.TxIn[0].Witness = spendCommitPunish0(commitScript, sigX1, sigY0, sigR0)
	return sigY0
}

// AttachPunish1 is the mirror image of AttachPunish0, draining a commit
// output whose owner was party 1.
func (p *PunishTransaction) AttachPunish1(commitScript []byte, sigX0 *ecdsa.Signature, y1, r1 *secp256k1.PrivateKey, digest [32]byte) *ecdsa.Signature {
	sigY1 := ecdsa.Sign(y1, digest[:])
	sigR1 := ecdsa.Sign(r1, digest[:])
	p.Tx.TxIn[0].Witness = spendCommitPunish1(commitScript, sigX0, sigY1, sigR1)
	return sigY1
}

// RecoverPublishingKey recovers the publishing secret key leaked by a
// broadcast commit transaction's channel-state witness: the counterparty
// holds the encrypted self-signature encsig they received when this state
// was current, and the published witness carries the corresponding
// decrypted signature in the clear.
//
// publishedSig is the ownership signature found in the broadcast commit
// transaction's witness (the channel-state branch's self-signature,
// produced by decrypting encsig with the cheater's own publishing key).
func RecoverPublishingKey(encryptionKey keys.PublishingPublicKey, publishedSig *ecdsa.Signature, encsig *adaptor.EncryptedSignature) (*secp256k1.PrivateKey, error) {
	decrypted, err := adaptor.ParseDERSignature(publishedSig.Serialize())
	if err != nil {
		return nil, fmt.Errorf("recover publishing key: %w", err)
	}

	y, err := adaptor.Recover(encryptionKey.Inner(), decrypted, encsig)
	if err != nil {
		return nil, fmt.Errorf("recover publishing key: %w", err)
	}
	return y, nil
}
