package chanmsg

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/dleq"
	"github.com/ptlc-labs/thor/keys"
)

// Swap0a is swap round 0, Alice to Bob: Alice's per-swap Bitcoin key, her
// Monero and Bitcoin points for the shared swap secret with their
// cross-curve dleq proof, her Monero view key share, and the addresses
// she'll be paid to on redeem or punish.
type Swap0a struct {
	A           keys.OwnershipPublicKey
	SAMonero    keys.MoneroPoint
	SABitcoin   keys.PtlcPoint
	DleqProofSA *dleq.Proof
	VA          keys.MoneroScalar
	RedeemAddr  []byte
	PunishAddr  []byte
}

func (m *Swap0a) MsgType() MessageType     { return MsgSwap0a }
func (m *Swap0a) MaxPayloadLength() uint32 { return MaxMessagePayload }

func (m *Swap0a) Encode(w io.Writer) error {
	if err := writeOwnershipPub(w, m.A); err != nil {
		return err
	}
	sAMoneroBytes := m.SAMonero.Bytes()
	if err := writeFixed(w, sAMoneroBytes[:]); err != nil {
		return err
	}
	if err := writePtlcPoint(w, m.SABitcoin); err != nil {
		return err
	}
	if err := writeDleqProof(w, m.DleqProofSA); err != nil {
		return err
	}
	vaBytes := m.VA.Bytes()
	if err := writeFixed(w, vaBytes[:]); err != nil {
		return err
	}
	if err := writeVarBytes(w, m.RedeemAddr); err != nil {
		return err
	}
	return writeVarBytes(w, m.PunishAddr)
}

func (m *Swap0a) Decode(r io.Reader) error {
	a, err := readOwnershipPub(r)
	if err != nil {
		return err
	}
	sAMoneroBytes, err := readFixed(r, 32)
	if err != nil {
		return err
	}
	sAMonero, err := keys.ParseMoneroPoint(sAMoneroBytes)
	if err != nil {
		return err
	}
	sABitcoin, err := readPtlcPoint(r)
	if err != nil {
		return err
	}
	proof, err := readDleqProof(r)
	if err != nil {
		return err
	}
	vaBytes, err := readFixed(r, 32)
	if err != nil {
		return err
	}
	var vaFixed [32]byte
	copy(vaFixed[:], vaBytes)
	va, err := keys.MoneroScalarFromCanonicalBytes(vaFixed)
	if err != nil {
		return err
	}
	redeemAddr, err := readVarBytes(r)
	if err != nil {
		return err
	}
	punishAddr, err := readVarBytes(r)
	if err != nil {
		return err
	}

	m.A = a
	m.SAMonero = sAMonero
	m.SABitcoin = sABitcoin
	m.DleqProofSA = proof
	m.VA = va
	m.RedeemAddr = redeemAddr
	m.PunishAddr = punishAddr
	return nil
}

// Swap0b is swap round 0, Bob to Alice: the mirror of Swap0a, plus the
// address Bob wants a refund paid to and Bob's contribution to tx_lock's
// fee-paying inputs.
type Swap0b struct {
	B               keys.OwnershipPublicKey
	SBMonero        keys.MoneroPoint
	SBBitcoin       keys.PtlcPoint
	DleqProofSB     *dleq.Proof
	VB              keys.MoneroScalar
	RefundAddr      []byte
	TxLockFeeInputs *psbt.Packet
}

func (m *Swap0b) MsgType() MessageType     { return MsgSwap0b }
func (m *Swap0b) MaxPayloadLength() uint32 { return MaxMessagePayload }

func (m *Swap0b) Encode(w io.Writer) error {
	if err := writeOwnershipPub(w, m.B); err != nil {
		return err
	}
	sBMoneroBytes := m.SBMonero.Bytes()
	if err := writeFixed(w, sBMoneroBytes[:]); err != nil {
		return err
	}
	if err := writePtlcPoint(w, m.SBBitcoin); err != nil {
		return err
	}
	if err := writeDleqProof(w, m.DleqProofSB); err != nil {
		return err
	}
	vbBytes := m.VB.Bytes()
	if err := writeFixed(w, vbBytes[:]); err != nil {
		return err
	}
	if err := writeVarBytes(w, m.RefundAddr); err != nil {
		return err
	}
	return writePSBT(w, m.TxLockFeeInputs)
}

func (m *Swap0b) Decode(r io.Reader) error {
	b, err := readOwnershipPub(r)
	if err != nil {
		return err
	}
	sBMoneroBytes, err := readFixed(r, 32)
	if err != nil {
		return err
	}
	sBMonero, err := keys.ParseMoneroPoint(sBMoneroBytes)
	if err != nil {
		return err
	}
	sBBitcoin, err := readPtlcPoint(r)
	if err != nil {
		return err
	}
	proof, err := readDleqProof(r)
	if err != nil {
		return err
	}
	vbBytes, err := readFixed(r, 32)
	if err != nil {
		return err
	}
	var vbFixed [32]byte
	copy(vbFixed[:], vbBytes)
	vb, err := keys.MoneroScalarFromCanonicalBytes(vbFixed)
	if err != nil {
		return err
	}
	refundAddr, err := readVarBytes(r)
	if err != nil {
		return err
	}
	inputs, err := readPSBT(r)
	if err != nil {
		return err
	}

	m.B = b
	m.SBMonero = sBMonero
	m.SBBitcoin = sBBitcoin
	m.DleqProofSB = proof
	m.VB = vb
	m.RefundAddr = refundAddr
	m.TxLockFeeInputs = inputs
	return nil
}

// Swap1a is swap round 1, Alice to Bob: Alice's signature over tx_cancel
// and her encrypted signature over tx_refund (decryptable with s_b).
type Swap1a struct {
	SigTxCancel    *ecdsa.Signature
	EncSigTxRefund *adaptor.EncryptedSignature
}

func (m *Swap1a) MsgType() MessageType     { return MsgSwap1a }
func (m *Swap1a) MaxPayloadLength() uint32 { return 80 + 33 + 33 + 32 + 32 + 32 }

func (m *Swap1a) Encode(w io.Writer) error {
	if err := writeEcdsaSig(w, m.SigTxCancel); err != nil {
		return err
	}
	return writeEncSig(w, m.EncSigTxRefund)
}

func (m *Swap1a) Decode(r io.Reader) error {
	sig, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	encsig, err := readEncSig(r)
	if err != nil {
		return err
	}
	m.SigTxCancel, m.EncSigTxRefund = sig, encsig
	return nil
}

// Swap1b is swap round 1, Bob to Alice: Bob's signatures over tx_cancel
// and tx_punish, and the partially (Bob-)signed tx_lock.
type Swap1b struct {
	SigTxCancel *ecdsa.Signature
	SigTxPunish *ecdsa.Signature
	TxLock      *psbt.Packet
}

func (m *Swap1b) MsgType() MessageType     { return MsgSwap1b }
func (m *Swap1b) MaxPayloadLength() uint32 { return MaxMessagePayload }

func (m *Swap1b) Encode(w io.Writer) error {
	if err := writeEcdsaSig(w, m.SigTxCancel); err != nil {
		return err
	}
	if err := writeEcdsaSig(w, m.SigTxPunish); err != nil {
		return err
	}
	return writePSBT(w, m.TxLock)
}

func (m *Swap1b) Decode(r io.Reader) error {
	sigCancel, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	sigPunish, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	txLock, err := readPSBT(r)
	if err != nil {
		return err
	}
	m.SigTxCancel, m.SigTxPunish, m.TxLock = sigCancel, sigPunish, txLock
	return nil
}

// SwapTxLockProof is swap round 3, Alice to Bob: proof that Alice
// broadcast the Monero lock transaction, for Bob to check with
// check_tx_key before accepting the swap as funded on both legs.
type SwapTxLockProof struct {
	TxHash []byte
	TxKey  []byte
}

func (m *SwapTxLockProof) MsgType() MessageType     { return MsgSwapTxLockProof }
func (m *SwapTxLockProof) MaxPayloadLength() uint32 { return 4096 }

func (m *SwapTxLockProof) Encode(w io.Writer) error {
	if err := writeVarBytes(w, m.TxHash); err != nil {
		return err
	}
	return writeVarBytes(w, m.TxKey)
}

func (m *SwapTxLockProof) Decode(r io.Reader) error {
	hash, err := readVarBytes(r)
	if err != nil {
		return err
	}
	key, err := readVarBytes(r)
	if err != nil {
		return err
	}
	m.TxHash, m.TxKey = hash, key
	return nil
}

// SwapRedeemEncSig is swap round 5, Bob to Alice: Bob's encrypted
// signature over tx_redeem, decryptable with s_a. Decrypting and
// broadcasting it leaks s_a, completing the swap on the Monero side.
type SwapRedeemEncSig struct {
	EncSig *adaptor.EncryptedSignature
}

func (m *SwapRedeemEncSig) MsgType() MessageType     { return MsgSwapRedeemEncSig }
func (m *SwapRedeemEncSig) MaxPayloadLength() uint32 { return 33 + 33 + 32 + 32 + 32 }

func (m *SwapRedeemEncSig) Encode(w io.Writer) error { return writeEncSig(w, m.EncSig) }
func (m *SwapRedeemEncSig) Decode(r io.Reader) error {
	sig, err := readEncSig(r)
	if err != nil {
		return err
	}
	m.EncSig = sig
	return nil
}
