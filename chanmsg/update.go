package chanmsg

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/keys"
)

// Update0 is update round 0 (ShareKeys): each party shares a fresh
// revocation and publishing key pair for the new state being negotiated,
// along with the relative timelock it proposes for the new commit output.
// The proposed timelocks must agree or the update aborts.
type Update0 struct {
	R        keys.RevocationPublicKey
	Y        keys.PublishingPublicKey
	TimeLock uint32
}

func (m *Update0) MsgType() MessageType     { return MsgUpdate0 }
func (m *Update0) MaxPayloadLength() uint32 { return 33 + 33 + 4 }

func (m *Update0) Encode(w io.Writer) error {
	if err := writeRevocationPub(w, m.R); err != nil {
		return err
	}
	if err := writePublishingPub(w, m.Y); err != nil {
		return err
	}
	return writeUint32(w, m.TimeLock)
}

func (m *Update0) Decode(r io.Reader) error {
	rev, err := readRevocationPub(r)
	if err != nil {
		return err
	}
	pub, err := readPublishingPub(r)
	if err != nil {
		return err
	}
	lock, err := readUint32(r)
	if err != nil {
		return err
	}
	m.R, m.Y, m.TimeLock = rev, pub, lock
	return nil
}

// UpdatePtlcFunder is round 0.5, sent by the party funding a new PTLC
// output: an encrypted redeem signature (decryptable by whoever learns the
// PTLC secret) and a plain refund signature.
type UpdatePtlcFunder struct {
	EncSigRedeem *adaptor.EncryptedSignature
	SigRefund    *ecdsa.Signature
}

func (m *UpdatePtlcFunder) MsgType() MessageType     { return MsgUpdatePtlcFunder }
func (m *UpdatePtlcFunder) MaxPayloadLength() uint32 { return 33 + 33 + 32 + 32 + 32 + 80 }

func (m *UpdatePtlcFunder) Encode(w io.Writer) error {
	if err := writeEncSig(w, m.EncSigRedeem); err != nil {
		return err
	}
	return writeEcdsaSig(w, m.SigRefund)
}

func (m *UpdatePtlcFunder) Decode(r io.Reader) error {
	encsig, err := readEncSig(r)
	if err != nil {
		return err
	}
	sig, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	m.EncSigRedeem, m.SigRefund = encsig, sig
	return nil
}

// UpdatePtlcRedeemer is round 0.5, sent by the party who can redeem a new
// PTLC output by revealing its secret: plain signatures over both the
// redeem and refund transactions.
type UpdatePtlcRedeemer struct {
	SigRedeem *ecdsa.Signature
	SigRefund *ecdsa.Signature
}

func (m *UpdatePtlcRedeemer) MsgType() MessageType     { return MsgUpdatePtlcRedeemer }
func (m *UpdatePtlcRedeemer) MaxPayloadLength() uint32 { return 160 }

func (m *UpdatePtlcRedeemer) Encode(w io.Writer) error {
	if err := writeEcdsaSig(w, m.SigRedeem); err != nil {
		return err
	}
	return writeEcdsaSig(w, m.SigRefund)
}

func (m *UpdatePtlcRedeemer) Decode(r io.Reader) error {
	sigRedeem, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	sigRefund, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	m.SigRedeem, m.SigRefund = sigRedeem, sigRefund
	return nil
}

// Update1 (ShareSplitSignature): each party signs the new split
// transaction and sends its signature.
type Update1 struct {
	Sig *ecdsa.Signature
}

func (m *Update1) MsgType() MessageType     { return MsgUpdate1 }
func (m *Update1) MaxPayloadLength() uint32 { return 80 }

func (m *Update1) Encode(w io.Writer) error { return writeEcdsaSig(w, m.Sig) }
func (m *Update1) Decode(r io.Reader) error {
	sig, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	m.Sig = sig
	return nil
}

// Update2 (ShareCommitEncryptedSignature): each party sends an encrypted
// self-signature over the new commit transaction.
type Update2 struct {
	EncSig *adaptor.EncryptedSignature
}

func (m *Update2) MsgType() MessageType     { return MsgUpdate2 }
func (m *Update2) MaxPayloadLength() uint32 { return 33 + 33 + 32 + 32 + 32 }

func (m *Update2) Encode(w io.Writer) error { return writeEncSig(w, m.EncSig) }
func (m *Update2) Decode(r io.Reader) error {
	sig, err := readEncSig(r)
	if err != nil {
		return err
	}
	m.EncSig = sig
	return nil
}

// Update3 (RevealRevocationSecretKey): each party reveals the revocation
// secret key for the state just superseded, which the counterparty checks
// against the RevocationPublicKey published when that state was created.
type Update3 struct {
	Secret [32]byte
}

func (m *Update3) MsgType() MessageType     { return MsgUpdate3 }
func (m *Update3) MaxPayloadLength() uint32 { return 32 }

func (m *Update3) Encode(w io.Writer) error { return writeRevocationSecret(w, m.Secret) }
func (m *Update3) Decode(r io.Reader) error {
	secret, err := readRevocationSecret(r)
	if err != nil {
		return err
	}
	m.Secret = secret
	return nil
}
