package chanmsg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/dleq"
	"github.com/ptlc-labs/thor/keys"
)

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
	if n > MaxMessagePayload {
		return nil, fmt.Errorf("chanmsg: var bytes field of %d bytes exceeds maximum", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
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

func writeRevocationSecret(w io.Writer, b [32]byte) error {
	return writeFixed(w, b[:])
}

func readRevocationSecret(r io.Reader) ([32]byte, error) {
	var out [32]byte
	b, err := readFixed(r, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
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
	sHat := parseSecpScalar(sHatBytes)

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
		SHat:   sHat,
		Proof: adaptor.DLEQProof{
			E: parseSecpScalarValue(eBytes),
			Z: parseSecpScalarValue(zBytes),
		},
	}, nil
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

func writePSBT(w io.Writer, p *psbt.Packet) error {
	var buf bytes.Buffer
	if err := p.Serialize(&buf); err != nil {
		return err
	}
	return writeVarBytes(w, buf.Bytes())
}

func readPSBT(r io.Reader) (*psbt.Packet, error) {
	b, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	return psbt.NewFromRawBytes(bytes.NewReader(b), false)
}

func writeDleqProof(w io.Writer, p *dleq.Proof) error {
	b, err := p.Bytes()
	if err != nil {
		return err
	}
	return writeVarBytes(w, b)
}

func readDleqProof(r io.Reader) (*dleq.Proof, error) {
	b, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	return dleq.ParseProof(b)
}

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
