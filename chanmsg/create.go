package chanmsg

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/keys"
)

// Create0 is round 0 of channel open: each party announces its ownership
// key, the output script it wants its final balance paid to on an eventual
// close, and the relative timelock it proposes for the commit output. The
// proposed timelocks must agree or the open aborts.
type Create0 struct {
	X            keys.OwnershipPublicKey
	FinalAddress []byte
	TimeLock     uint32
}

func (m *Create0) MsgType() MessageType     { return MsgCreate0 }
func (m *Create0) MaxPayloadLength() uint32 { return 33 + 4 + 10_000 + 4 }

func (m *Create0) Encode(w io.Writer) error {
	if err := writeOwnershipPub(w, m.X); err != nil {
		return err
	}
	if err := writeVarBytes(w, m.FinalAddress); err != nil {
		return err
	}
	return writeUint32(w, m.TimeLock)
}

func (m *Create0) Decode(r io.Reader) error {
	x, err := readOwnershipPub(r)
	if err != nil {
		return err
	}
	addr, err := readVarBytes(r)
	if err != nil {
		return err
	}
	lock, err := readUint32(r)
	if err != nil {
		return err
	}
	m.X, m.FinalAddress, m.TimeLock = x, addr, lock
	return nil
}

// Create1 is round 1: each party sends a partially-signed funding PSBT
// covering their own inputs into the shared fund output.
type Create1 struct {
	PSBT *psbt.Packet
}

func (m *Create1) MsgType() MessageType     { return MsgCreate1 }
func (m *Create1) MaxPayloadLength() uint32 { return MaxMessagePayload }

func (m *Create1) Encode(w io.Writer) error { return writePSBT(w, m.PSBT) }
func (m *Create1) Decode(r io.Reader) error {
	p, err := readPSBT(r)
	if err != nil {
		return err
	}
	m.PSBT = p
	return nil
}

// Create2 is round 2: each party sends the revocation and publishing keys
// for the channel's initial state.
type Create2 struct {
	R keys.RevocationPublicKey
	Y keys.PublishingPublicKey
}

func (m *Create2) MsgType() MessageType     { return MsgCreate2 }
func (m *Create2) MaxPayloadLength() uint32 { return 33 + 33 }

func (m *Create2) Encode(w io.Writer) error {
	if err := writeRevocationPub(w, m.R); err != nil {
		return err
	}
	return writePublishingPub(w, m.Y)
}

func (m *Create2) Decode(r io.Reader) error {
	rev, err := readRevocationPub(r)
	if err != nil {
		return err
	}
	pub, err := readPublishingPub(r)
	if err != nil {
		return err
	}
	m.R, m.Y = rev, pub
	return nil
}

// Create3 is round 3: each party signs the initial split transaction and
// sends its signature.
type Create3 struct {
	Sig *ecdsa.Signature
}

func (m *Create3) MsgType() MessageType     { return MsgCreate3 }
func (m *Create3) MaxPayloadLength() uint32 { return 80 }

func (m *Create3) Encode(w io.Writer) error { return writeEcdsaSig(w, m.Sig) }
func (m *Create3) Decode(r io.Reader) error {
	sig, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	m.Sig = sig
	return nil
}

// Create4 is round 4: each party sends an encrypted self-signature over
// the initial commit transaction, encrypted under the counterparty's
// publishing key, allowing the counterparty to force-close unilaterally.
type Create4 struct {
	EncSig *adaptor.EncryptedSignature
}

func (m *Create4) MsgType() MessageType     { return MsgCreate4 }
func (m *Create4) MaxPayloadLength() uint32 { return 33 + 33 + 32 + 32 + 32 }

func (m *Create4) Encode(w io.Writer) error { return writeEncSig(w, m.EncSig) }
func (m *Create4) Decode(r io.Reader) error {
	sig, err := readEncSig(r)
	if err != nil {
		return err
	}
	m.EncSig = sig
	return nil
}

// Create5 is round 5: each party signs the counterparty's half of the
// funding PSBT and returns it, completing TX_f.
type Create5 struct {
	PSBT *psbt.Packet
}

func (m *Create5) MsgType() MessageType     { return MsgCreate5 }
func (m *Create5) MaxPayloadLength() uint32 { return MaxMessagePayload }

func (m *Create5) Encode(w io.Writer) error { return writePSBT(w, m.PSBT) }
func (m *Create5) Decode(r io.Reader) error {
	p, err := readPSBT(r)
	if err != nil {
		return err
	}
	m.PSBT = p
	return nil
}
