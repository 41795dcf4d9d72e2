package channelstore

// Codec for a Channel's durable state. Rather than serializing every
// derived field (commit/split/ptlc transactions, scripts), this codec
// persists only the inputs that deterministically rebuild them: the
// channel's keys, balances, timelocks, and split outputs. Loading a
// channel replays the same Build* calls channel.Update/Open use, so the
// rebuilt state is byte-identical to the one that was saved. This mirrors
// breez-lightninglib/channeldb's own bucket-of-fields approach, adapted
// here to avoid duplicating unexported fields (e.g. CommitOutput's key
// ordering) that the transaction package already knows how to rebuild.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/channel"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/transaction"
)

// maxFieldSize bounds any single var-length field read from a stored
// record, guarding against a corrupt length prefix driving an unbounded
// allocation.
const maxFieldSize = 1 << 24

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeBool(w io.Writer, v bool) error {
	var b [1]byte
	if v {
		b[0] = 1
	}
	_, err := w.Write(b[:])
	return err
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] == 1, nil
}

func writeFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func readFixed(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeVarBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > maxFieldSize {
		return nil, fmt.Errorf("channelstore: field of %d bytes exceeds maximum", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeOwnershipPriv(w io.Writer, k *keys.OwnershipKeyPair) error {
	b := k.Bytes()
	return writeFixed(w, b[:])
}

func readOwnershipPriv(r io.Reader) (*keys.OwnershipKeyPair, error) {
	b, err := readFixed(r, 32)
	if err != nil {
		return nil, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return keys.OwnershipKeyPairFromBytes(arr), nil
}

func writeOwnershipPub(w io.Writer, k keys.OwnershipPublicKey) error {
	return writeFixed(w, k.SerializeCompressed())
}

func readOwnershipPub(r io.Reader) (keys.OwnershipPublicKey, error) {
	b, err := readFixed(r, 33)
	if err != nil {
		return keys.OwnershipPublicKey{}, err
	}
	return keys.ParseOwnershipPublicKey(b)
}

func writeRevocationPriv(w io.Writer, k *keys.RevocationKeyPair) error {
	b := k.Bytes()
	return writeFixed(w, b[:])
}

func readRevocationPriv(r io.Reader) (*keys.RevocationKeyPair, error) {
	b, err := readFixed(r, 32)
	if err != nil {
		return nil, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return keys.RevocationKeyPairFromBytes(arr), nil
}

func writeRevocationPub(w io.Writer, k keys.RevocationPublicKey) error {
	return writeFixed(w, k.SerializeCompressed())
}

func readRevocationPub(r io.Reader) (keys.RevocationPublicKey, error) {
	b, err := readFixed(r, 33)
	if err != nil {
		return keys.RevocationPublicKey{}, err
	}
	return keys.ParseRevocationPublicKey(b)
}

func writeRevocationSecret(w io.Writer, s keys.RevocationSecretKey) error {
	b := s.Bytes()
	return writeFixed(w, b[:])
}

func readRevocationSecret(r io.Reader) (keys.RevocationSecretKey, error) {
	b, err := readFixed(r, 32)
	if err != nil {
		return keys.RevocationSecretKey{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return keys.DecodeRevocationSecretKey(arr), nil
}

func writePublishingPriv(w io.Writer, k *keys.PublishingKeyPair) error {
	b := k.Bytes()
	return writeFixed(w, b[:])
}

func readPublishingPriv(r io.Reader) (*keys.PublishingKeyPair, error) {
	b, err := readFixed(r, 32)
	if err != nil {
		return nil, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return keys.PublishingKeyPairFromBytes(arr), nil
}

func writePublishingPub(w io.Writer, k keys.PublishingPublicKey) error {
	return writeFixed(w, k.SerializeCompressed())
}

func readPublishingPub(r io.Reader) (keys.PublishingPublicKey, error) {
	b, err := readFixed(r, 33)
	if err != nil {
		return keys.PublishingPublicKey{}, err
	}
	return keys.ParsePublishingPublicKey(b)
}

func writePtlcPoint(w io.Writer, p keys.PtlcPoint) error {
	return writeFixed(w, p.SerializeCompressed())
}

func readPtlcPoint(r io.Reader) (keys.PtlcPoint, error) {
	b, err := readFixed(r, 33)
	if err != nil {
		return keys.PtlcPoint{}, err
	}
	return keys.ParsePtlcPoint(b)
}

func writePtlcSecret(w io.Writer, s keys.PtlcSecret) error {
	b := s.Bytes()
	return writeFixed(w, b[:])
}

func readPtlcSecret(r io.Reader) (keys.PtlcSecret, error) {
	b, err := readFixed(r, 32)
	if err != nil {
		return keys.PtlcSecret{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return keys.PtlcSecretFromScalar(arr)
}

func writeEcdsaSig(w io.Writer, sig *ecdsa.Signature) error {
	return writeVarBytes(w, sig.Serialize())
}

func readEcdsaSig(r io.Reader) (*ecdsa.Signature, error) {
	b, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	return ecdsa.ParseDERSignature(b)
}

// writeEncSig/readEncSig duplicate chanmsg's own (unexported) adaptor
// signature codec; see chanmsg/codec.go.
func writeEncSig(w io.Writer, sig *adaptor.EncryptedSignature) error {
	if err := writeFixed(w, sig.R.SerializeCompressed()); err != nil {
		return err
	}
	if err := writeFixed(w, sig.RTilde.SerializeCompressed()); err != nil {
		return err
	}
	sHatBytes := sig.SHat.Bytes()
	if err := writeFixed(w, sHatBytes[:]); err != nil {
		return err
	}
	eBytes := sig.Proof.E.Bytes()
	zBytes := sig.Proof.Z.Bytes()
	if err := writeFixed(w, eBytes[:]); err != nil {
		return err
	}
	return writeFixed(w, zBytes[:])
}

func readEncSig(r io.Reader) (*adaptor.EncryptedSignature, error) {
	rBytes, err := readFixed(r, 33)
	if err != nil {
		return nil, err
	}
	rPub, err := parseSecpPub(rBytes)
	if err != nil {
		return nil, err
	}
	rTildeBytes, err := readFixed(r, 33)
	if err != nil {
		return nil, err
	}
	rTildePub, err := parseSecpPub(rTildeBytes)
	if err != nil {
		return nil, err
	}
	sHatBytes, err := readFixed(r, 32)
	if err != nil {
		return nil, err
	}
	eBytes, err := readFixed(r, 32)
	if err != nil {
		return nil, err
	}
	zBytes, err := readFixed(r, 32)
	if err != nil {
		return nil, err
	}
	return &adaptor.EncryptedSignature{
		R:      rPub,
		RTilde: rTildePub,
		SHat:   parseSecpScalar(sHatBytes),
		Proof: adaptor.DLEQProof{
			E: parseSecpScalarValue(eBytes),
			Z: parseSecpScalarValue(zBytes),
		},
	}, nil
}

// parseSecpPub/parseSecpScalar duplicate chanmsg's own (unexported)
// parsing helpers; see chanmsg/codec.go.
func parseSecpPub(b []byte) (*secp256k1.PublicKey, error) {
	return secp256k1.ParsePubKey(b)
}

func parseSecpScalar(b []byte) *secp256k1.ModNScalar {
	s := parseSecpScalarValue(b)
	return &s
}

func parseSecpScalarValue(b []byte) secp256k1.ModNScalar {
	var s secp256k1.ModNScalar
	s.SetByteSlice(b)
	return s
}

func writeTx(w io.Writer, tx *wire.MsgTx) error {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return err
	}
	return writeVarBytes(w, buf.Bytes())
}

func readTx(r io.Reader) (*wire.MsgTx, error) {
	b, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return tx, nil
}

// splitOutputTag discriminates the two concrete transaction.SplitOutput
// implementations on the wire.
type splitOutputTag byte

const (
	tagBalanceOutput splitOutputTag = 0
	tagPtlcOutput    splitOutputTag = 1
)

func writeWitness(w io.Writer, witness wire.TxWitness) error {
	if err := writeUint32(w, uint32(len(witness))); err != nil {
		return err
	}
	for _, item := range witness {
		if err := writeVarBytes(w, item); err != nil {
			return err
		}
	}
	return nil
}

func readWitness(r io.Reader) (wire.TxWitness, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > 256 {
		return nil, fmt.Errorf("channelstore: witness of %d items exceeds maximum", n)
	}
	witness := make(wire.TxWitness, n)
	for i := range witness {
		if witness[i], err = readVarBytes(r); err != nil {
			return nil, err
		}
	}
	return witness, nil
}

func writeSplitOutputs(w io.Writer, outputs []transaction.SplitOutput) error {
	if err := writeUint32(w, uint32(len(outputs))); err != nil {
		return err
	}
	for _, o := range outputs {
		switch v := o.(type) {
		case *transaction.BalanceOutput:
			if err := writeFixed(w, []byte{byte(tagBalanceOutput)}); err != nil {
				return err
			}
			if err := writeUint64(w, uint64(v.Amount)); err != nil {
				return err
			}
			if err := writeVarBytes(w, v.ScriptPubKey); err != nil {
				return err
			}
		case *transaction.PtlcOutput:
			if err := writeFixed(w, []byte{byte(tagPtlcOutput)}); err != nil {
				return err
			}
			if err := writePtlcOutputFields(w, v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("channelstore: unknown split output type %T", o)
		}
	}
	return nil
}

func readSplitOutputs(r io.Reader) ([]transaction.SplitOutput, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	outputs := make([]transaction.SplitOutput, 0, n)
	for i := uint32(0); i < n; i++ {
		tagByte, err := readFixed(r, 1)
		if err != nil {
			return nil, err
		}
		switch splitOutputTag(tagByte[0]) {
		case tagBalanceOutput:
			amount, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			script, err := readVarBytes(r)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, &transaction.BalanceOutput{Amount: int64(amount), ScriptPubKey: script})
		case tagPtlcOutput:
			ptlc, err := readPtlcOutputFields(r)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, ptlc)
		default:
			return nil, fmt.Errorf("channelstore: unknown split output tag %d", tagByte[0])
		}
	}
	return outputs, nil
}

// writePtlcOutputFields/readPtlcOutputFields persist only a PtlcOutput's
// inputs (Amount, XFunder, XRedeemer, Point, RefundTimeLock); Script and
// PkScript are rebuilt via transaction.BuildPtlcOutput on load, which is
// deterministic in these inputs.
func writePtlcOutputFields(w io.Writer, p *transaction.PtlcOutput) error {
	if err := writeUint64(w, uint64(p.Amount)); err != nil {
		return err
	}
	if err := writeOwnershipPub(w, p.XFunder); err != nil {
		return err
	}
	if err := writeOwnershipPub(w, p.XRedeemer); err != nil {
		return err
	}
	if err := writePtlcPoint(w, p.Point); err != nil {
		return err
	}
	return writeUint32(w, p.RefundTimeLock)
}

func readPtlcOutputFields(r io.Reader) (*transaction.PtlcOutput, error) {
	amount, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	xFunder, err := readOwnershipPub(r)
	if err != nil {
		return nil, err
	}
	xRedeemer, err := readOwnershipPub(r)
	if err != nil {
		return nil, err
	}
	point, err := readPtlcPoint(r)
	if err != nil {
		return nil, err
	}
	refundTimeLock, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return transaction.BuildPtlcOutput(xFunder, xRedeemer, point, refundTimeLock, int64(amount))
}

// persistedStandardState is StandardState stripped to the fields that
// can't be recomputed: balances, timelock, per-state keys, the agreed
// split outputs, the two cross-signed commit signatures, and the split
// transaction's aggregated witness (the two parties' split signatures are
// never stored individually, only their combined witness stack).
type persistedStandardState struct {
	Balance  channel.Balance
	TimeLock uint32

	RSelf  *keys.RevocationKeyPair
	ROther keys.RevocationPublicKey
	YSelf  *keys.PublishingKeyPair
	YOther keys.PublishingPublicKey

	SplitOutputs []transaction.SplitOutput
	SplitWitness wire.TxWitness

	HasEncSigSelfAuthored bool
	EncSigSelfAuthored    *adaptor.EncryptedSignature
	HasEncSigReceived     bool
	EncSigReceived        *adaptor.EncryptedSignature
}

func writeStandardState(w io.Writer, s persistedStandardState) error {
	if err := writeUint64(w, uint64(s.Balance.Ours)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(s.Balance.Theirs)); err != nil {
		return err
	}
	if err := writeUint32(w, s.TimeLock); err != nil {
		return err
	}
	if err := writeRevocationPriv(w, s.RSelf); err != nil {
		return err
	}
	if err := writeRevocationPub(w, s.ROther); err != nil {
		return err
	}
	if err := writePublishingPriv(w, s.YSelf); err != nil {
		return err
	}
	if err := writePublishingPub(w, s.YOther); err != nil {
		return err
	}
	if err := writeSplitOutputs(w, s.SplitOutputs); err != nil {
		return err
	}
	if err := writeWitness(w, s.SplitWitness); err != nil {
		return err
	}
	if err := writeBool(w, s.HasEncSigSelfAuthored); err != nil {
		return err
	}
	if s.HasEncSigSelfAuthored {
		if err := writeEncSig(w, s.EncSigSelfAuthored); err != nil {
			return err
		}
	}
	if err := writeBool(w, s.HasEncSigReceived); err != nil {
		return err
	}
	if s.HasEncSigReceived {
		if err := writeEncSig(w, s.EncSigReceived); err != nil {
			return err
		}
	}
	return nil
}

func readStandardState(r io.Reader) (persistedStandardState, error) {
	var s persistedStandardState
	ours, err := readUint64(r)
	if err != nil {
		return s, err
	}
	theirs, err := readUint64(r)
	if err != nil {
		return s, err
	}
	s.Balance = channel.Balance{Ours: int64(ours), Theirs: int64(theirs)}
	if s.TimeLock, err = readUint32(r); err != nil {
		return s, err
	}
	if s.RSelf, err = readRevocationPriv(r); err != nil {
		return s, err
	}
	if s.ROther, err = readRevocationPub(r); err != nil {
		return s, err
	}
	if s.YSelf, err = readPublishingPriv(r); err != nil {
		return s, err
	}
	if s.YOther, err = readPublishingPub(r); err != nil {
		return s, err
	}
	if s.SplitOutputs, err = readSplitOutputs(r); err != nil {
		return s, err
	}
	if s.SplitWitness, err = readWitness(r); err != nil {
		return s, err
	}
	if s.HasEncSigSelfAuthored, err = readBool(r); err != nil {
		return s, err
	}
	if s.HasEncSigSelfAuthored {
		if s.EncSigSelfAuthored, err = readEncSig(r); err != nil {
			return s, err
		}
	}
	if s.HasEncSigReceived, err = readBool(r); err != nil {
		return s, err
	}
	if s.HasEncSigReceived {
		if s.EncSigReceived, err = readEncSig(r); err != nil {
			return s, err
		}
	}
	return s, nil
}

// persistedPtlcState is PtlcState stripped to Output's inputs plus the
// exchanged signatures and, if known, the secret; RedeemTx/RefundTx and
// Role are rebuilt on load.
type persistedPtlcState struct {
	Output *transaction.PtlcOutput

	EncSigRedeemFunder *adaptor.EncryptedSignature
	SigRedeemRedeemer  *ecdsa.Signature
	SigRefundFunder    *ecdsa.Signature
	SigRefundRedeemer  *ecdsa.Signature

	HasSecret bool
	Secret    keys.PtlcSecret
}

func writePtlcState(w io.Writer, s persistedPtlcState) error {
	if err := writePtlcOutputFields(w, s.Output); err != nil {
		return err
	}
	if err := writeEncSig(w, s.EncSigRedeemFunder); err != nil {
		return err
	}
	if err := writeEcdsaSig(w, s.SigRedeemRedeemer); err != nil {
		return err
	}
	if err := writeEcdsaSig(w, s.SigRefundFunder); err != nil {
		return err
	}
	if err := writeEcdsaSig(w, s.SigRefundRedeemer); err != nil {
		return err
	}
	if err := writeBool(w, s.HasSecret); err != nil {
		return err
	}
	if s.HasSecret {
		if err := writePtlcSecret(w, s.Secret); err != nil {
			return err
		}
	}
	return nil
}

func readPtlcState(r io.Reader) (persistedPtlcState, error) {
	var s persistedPtlcState
	var err error
	if s.Output, err = readPtlcOutputFields(r); err != nil {
		return s, err
	}
	if s.EncSigRedeemFunder, err = readEncSig(r); err != nil {
		return s, err
	}
	if s.SigRedeemRedeemer, err = readEcdsaSig(r); err != nil {
		return s, err
	}
	if s.SigRefundFunder, err = readEcdsaSig(r); err != nil {
		return s, err
	}
	if s.SigRefundRedeemer, err = readEcdsaSig(r); err != nil {
		return s, err
	}
	if s.HasSecret, err = readBool(r); err != nil {
		return s, err
	}
	if s.HasSecret {
		if s.Secret, err = readPtlcSecret(r); err != nil {
			return s, err
		}
	}
	return s, nil
}

// persistedChannelState is a ChannelState stripped to its persisted form.
type persistedChannelState struct {
	Standard persistedStandardState
	HasPtlc  bool
	Ptlc     persistedPtlcState
}

func writeChannelState(w io.Writer, s persistedChannelState) error {
	if err := writeStandardState(w, s.Standard); err != nil {
		return err
	}
	if err := writeBool(w, s.HasPtlc); err != nil {
		return err
	}
	if s.HasPtlc {
		return writePtlcState(w, s.Ptlc)
	}
	return nil
}

func readChannelState(r io.Reader) (persistedChannelState, error) {
	var s persistedChannelState
	var err error
	if s.Standard, err = readStandardState(r); err != nil {
		return s, err
	}
	if s.HasPtlc, err = readBool(r); err != nil {
		return s, err
	}
	if s.HasPtlc {
		if s.Ptlc, err = readPtlcState(r); err != nil {
			return s, err
		}
	}
	return s, nil
}

func writeRevokedState(w io.Writer, s persistedRevokedState) error {
	if err := writeChannelState(w, s.State); err != nil {
		return err
	}
	return writeRevocationSecret(w, s.ROtherSecret)
}

func readRevokedState(r io.Reader) (persistedRevokedState, error) {
	var s persistedRevokedState
	var err error
	if s.State, err = readChannelState(r); err != nil {
		return s, err
	}
	if s.ROtherSecret, err = readRevocationSecret(r); err != nil {
		return s, err
	}
	return s, nil
}

type persistedRevokedState struct {
	State        persistedChannelState
	ROtherSecret keys.RevocationSecretKey
}

// persistedChannel is the whole of Channel's durable state.
type persistedChannel struct {
	XSelf  *keys.OwnershipKeyPair
	XOther keys.OwnershipPublicKey

	FinalScriptSelf  []byte
	FinalScriptOther []byte

	FundingTx     *wire.MsgTx
	FundingOutIdx uint32

	Current persistedChannelState
	Revoked []persistedRevokedState
}

const channelFormatVersion = 1

func encodeChannel(c persistedChannel) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeUint32(&buf, channelFormatVersion); err != nil {
		return nil, err
	}
	if err := writeOwnershipPriv(&buf, c.XSelf); err != nil {
		return nil, err
	}
	if err := writeOwnershipPub(&buf, c.XOther); err != nil {
		return nil, err
	}
	if err := writeVarBytes(&buf, c.FinalScriptSelf); err != nil {
		return nil, err
	}
	if err := writeVarBytes(&buf, c.FinalScriptOther); err != nil {
		return nil, err
	}
	if err := writeTx(&buf, c.FundingTx); err != nil {
		return nil, err
	}
	if err := writeUint32(&buf, c.FundingOutIdx); err != nil {
		return nil, err
	}
	if err := writeChannelState(&buf, c.Current); err != nil {
		return nil, err
	}
	if err := writeUint32(&buf, uint32(len(c.Revoked))); err != nil {
		return nil, err
	}
	for _, rs := range c.Revoked {
		if err := writeRevokedState(&buf, rs); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeChannel(b []byte) (persistedChannel, error) {
	var c persistedChannel
	r := bytes.NewReader(b)
	version, err := readUint32(r)
	if err != nil {
		return c, err
	}
	if version != channelFormatVersion {
		return c, fmt.Errorf("channelstore: unsupported channel format version %d", version)
	}
	if c.XSelf, err = readOwnershipPriv(r); err != nil {
		return c, err
	}
	if c.XOther, err = readOwnershipPub(r); err != nil {
		return c, err
	}
	if c.FinalScriptSelf, err = readVarBytes(r); err != nil {
		return c, err
	}
	if c.FinalScriptOther, err = readVarBytes(r); err != nil {
		return c, err
	}
	if c.FundingTx, err = readTx(r); err != nil {
		return c, err
	}
	if c.FundingOutIdx, err = readUint32(r); err != nil {
		return c, err
	}
	if c.Current, err = readChannelState(r); err != nil {
		return c, err
	}
	n, err := readUint32(r)
	if err != nil {
		return c, err
	}
	c.Revoked = make([]persistedRevokedState, 0, n)
	for i := uint32(0); i < n; i++ {
		rs, err := readRevokedState(r)
		if err != nil {
			return c, err
		}
		c.Revoked = append(c.Revoked, rs)
	}
	return c, nil
}
