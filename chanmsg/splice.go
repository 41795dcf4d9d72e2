package chanmsg

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/adaptor"
)

// SpliceKind identifies which of the three splice intents a party
// declared for a given splice round.
type SpliceKind byte

const (
	SpliceNone SpliceKind = iota
	SpliceIn
	SpliceOut
)

// SpliceIntent is one party's declared action for a splice: add funds
// (SpliceIn, funded by the unsigned skeleton of a wallet-supplied PSBT
// input so both parties can agree on the new fund outpoint before any
// signing happens), remove funds to an external output (SpliceOut), or
// leave their balance untouched.
type SpliceIntent struct {
	Kind     SpliceKind
	InAmount int64
	InPSBT   *psbt.Packet
	OutTxOut *wire.TxOut
}

func writeSpliceIntent(w io.Writer, s SpliceIntent) error {
	if _, err := w.Write([]byte{byte(s.Kind)}); err != nil {
		return err
	}
	switch s.Kind {
	case SpliceIn:
		if err := writeUint64(w, uint64(s.InAmount)); err != nil {
			return err
		}
		return writePSBT(w, s.InPSBT)
	case SpliceOut:
		if err := writeUint64(w, uint64(s.OutTxOut.Value)); err != nil {
			return err
		}
		return writeVarBytes(w, s.OutTxOut.PkScript)
	case SpliceNone:
		return nil
	default:
		return fmt.Errorf("chanmsg: unknown splice kind %d", s.Kind)
	}
}

func readSpliceIntent(r io.Reader) (SpliceIntent, error) {
	var kindBuf [1]byte
	if _, err := io.ReadFull(r, kindBuf[:]); err != nil {
		return SpliceIntent{}, err
	}
	kind := SpliceKind(kindBuf[0])
	switch kind {
	case SpliceIn:
		amt, err := readUint64(r)
		if err != nil {
			return SpliceIntent{}, err
		}
		p, err := readPSBT(r)
		if err != nil {
			return SpliceIntent{}, err
		}
		return SpliceIntent{Kind: kind, InAmount: int64(amt), InPSBT: p}, nil
	case SpliceOut:
		amt, err := readUint64(r)
		if err != nil {
			return SpliceIntent{}, err
		}
		script, err := readVarBytes(r)
		if err != nil {
			return SpliceIntent{}, err
		}
		return SpliceIntent{Kind: kind, OutTxOut: wire.NewTxOut(int64(amt), script)}, nil
	case SpliceNone:
		return SpliceIntent{Kind: kind}, nil
	default:
		return SpliceIntent{}, fmt.Errorf("chanmsg: unknown splice kind %d", kind)
	}
}

// Splice0 is round 0: each party declares its splice intent.
type Splice0 struct {
	Intent SpliceIntent
}

func (m *Splice0) MsgType() MessageType     { return MsgSplice0 }
func (m *Splice0) MaxPayloadLength() uint32 { return MaxMessagePayload }

func (m *Splice0) Encode(w io.Writer) error { return writeSpliceIntent(w, m.Intent) }
func (m *Splice0) Decode(r io.Reader) error {
	intent, err := readSpliceIntent(r)
	if err != nil {
		return err
	}
	m.Intent = intent
	return nil
}

// Splice1 is round 1: each party shares the fresh revocation/publishing
// keys for the spliced channel's new initial state, same shape as Update0.
type Splice1 struct {
	Update0
}

func (m *Splice1) MsgType() MessageType { return MsgSplice1 }

// Splice2 is round 2: each party sends its plain signature over the new
// split transaction and an encrypted self-signature over the new commit
// transaction, encrypted under the counterparty's fresh publishing key —
// the same pairing Create3/Create4 establish at open, so the spliced
// state stays punishable once it is later revoked.
type Splice2 struct {
	EncSigCommit *adaptor.EncryptedSignature
	SigSplit     *ecdsa.Signature
}

func (m *Splice2) MsgType() MessageType     { return MsgSplice2 }
func (m *Splice2) MaxPayloadLength() uint32 { return 33 + 33 + 32 + 32 + 32 + 80 }

func (m *Splice2) Encode(w io.Writer) error {
	if err := writeEncSig(w, m.EncSigCommit); err != nil {
		return err
	}
	return writeEcdsaSig(w, m.SigSplit)
}

func (m *Splice2) Decode(r io.Reader) error {
	encSig, err := readEncSig(r)
	if err != nil {
		return err
	}
	sigSplit, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	m.EncSigCommit, m.SigSplit = encSig, sigSplit
	return nil
}

// Splice3 is round 3: each party sends the signature spending its share of
// the old fund output, plus its signed splice-in PSBT (if any), completing
// the splice transaction.
type Splice3 struct {
	SigOldFund *ecdsa.Signature
	SpliceIn   *psbt.Packet
}

func (m *Splice3) MsgType() MessageType     { return MsgSplice3 }
func (m *Splice3) MaxPayloadLength() uint32 { return MaxMessagePayload }

func (m *Splice3) Encode(w io.Writer) error {
	if err := writeEcdsaSig(w, m.SigOldFund); err != nil {
		return err
	}
	hasIn := m.SpliceIn != nil
	if _, err := w.Write([]byte{boolByte(hasIn)}); err != nil {
		return err
	}
	if !hasIn {
		return nil
	}
	return writePSBT(w, m.SpliceIn)
}

func (m *Splice3) Decode(r io.Reader) error {
	sig, err := readEcdsaSig(r)
	if err != nil {
		return err
	}
	var hasInBuf [1]byte
	if _, err := io.ReadFull(r, hasInBuf[:]); err != nil {
		return err
	}
	m.SigOldFund = sig
	if hasInBuf[0] == 0 {
		return nil
	}
	p, err := readPSBT(r)
	if err != nil {
		return err
	}
	m.SpliceIn = p
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
