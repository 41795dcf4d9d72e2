package dleq

import (
	"bytes"
	"fmt"
	"io"
	"math/big"

	"filippo.io/edwards25519"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Bytes serializes a Proof for transmission over the wire. The encoding is
// a fixed sequence of curve points and big-endian integers; every integer
// that is bound across both curves is written as a fixed 32-byte field so
// decoding can reconstruct it exactly via secpScalarFromBigInt/
// edScalarFromBigInt.
func (p *Proof) Bytes() ([]byte, error) {
	if len(p.CommitSecp) != Bits || len(p.CommitEd) != Bits || len(p.Bits) != Bits {
		return nil, fmt.Errorf("dleq: proof does not cover %d bits", Bits)
	}

	var buf bytes.Buffer
	for i := 0; i < Bits; i++ {
		buf.Write(p.CommitSecp[i].SerializeCompressed())
		buf.Write(p.CommitEd[i].Bytes())
	}
	for i := 0; i < Bits; i++ {
		bp := p.Bits[i]
		buf.Write(bp.A0Secp.SerializeCompressed())
		buf.Write(bp.A1Secp.SerializeCompressed())
		buf.Write(bp.A0Ed.Bytes())
		buf.Write(bp.A1Ed.Bytes())
		writeFixedInt(&buf, bp.E0)
		writeFixedInt(&buf, bp.E1)
		s0Secp := bp.S0Secp.Bytes()
		buf.Write(s0Secp[:])
		s1Secp := bp.S1Secp.Bytes()
		buf.Write(s1Secp[:])
		buf.Write(bp.S0Ed.Bytes())
		buf.Write(bp.S1Ed.Bytes())
	}
	buf.Write(p.Aggregate.TSecp.SerializeCompressed())
	buf.Write(p.Aggregate.TEd.Bytes())
	writeFixedInt(&buf, p.Aggregate.E)
	writeFixedInt(&buf, p.Aggregate.Z)

	return buf.Bytes(), nil
}

// writeFixedInt writes v as a 32-byte big-endian field, panicking if v does
// not fit: every value passed here is bound by one of this package's
// moduli, all well under 2^256.
func writeFixedInt(buf *bytes.Buffer, v *big.Int) {
	var b [32]byte
	v.FillBytes(b[:])
	buf.Write(b[:])
}

// ParseProof deserializes a Proof produced by Proof.Bytes.
func ParseProof(b []byte) (*Proof, error) {
	r := bytes.NewReader(b)

	commitSecp := make([]*secp256k1.PublicKey, Bits)
	commitEd := make([]*edwards25519.Point, Bits)
	for i := 0; i < Bits; i++ {
		pk, err := readSecpPoint(r)
		if err != nil {
			return nil, fmt.Errorf("commit secp %d: %w", i, err)
		}
		commitSecp[i] = pk

		pt, err := readEdPoint(r)
		if err != nil {
			return nil, fmt.Errorf("commit ed %d: %w", i, err)
		}
		commitEd[i] = pt
	}

	bitProofs := make([]bitProof, Bits)
	for i := 0; i < Bits; i++ {
		var bp bitProof
		var err error
		if bp.A0Secp, err = readSecpPoint(r); err != nil {
			return nil, fmt.Errorf("bit %d A0Secp: %w", i, err)
		}
		if bp.A1Secp, err = readSecpPoint(r); err != nil {
			return nil, fmt.Errorf("bit %d A1Secp: %w", i, err)
		}
		if bp.A0Ed, err = readEdPoint(r); err != nil {
			return nil, fmt.Errorf("bit %d A0Ed: %w", i, err)
		}
		if bp.A1Ed, err = readEdPoint(r); err != nil {
			return nil, fmt.Errorf("bit %d A1Ed: %w", i, err)
		}
		if bp.E0, err = readFixedInt(r); err != nil {
			return nil, fmt.Errorf("bit %d E0: %w", i, err)
		}
		if bp.E1, err = readFixedInt(r); err != nil {
			return nil, fmt.Errorf("bit %d E1: %w", i, err)
		}
		if bp.S0Secp, err = readSecpScalar(r); err != nil {
			return nil, fmt.Errorf("bit %d S0Secp: %w", i, err)
		}
		if bp.S1Secp, err = readSecpScalar(r); err != nil {
			return nil, fmt.Errorf("bit %d S1Secp: %w", i, err)
		}
		if bp.S0Ed, err = readEdScalar(r); err != nil {
			return nil, fmt.Errorf("bit %d S0Ed: %w", i, err)
		}
		if bp.S1Ed, err = readEdScalar(r); err != nil {
			return nil, fmt.Errorf("bit %d S1Ed: %w", i, err)
		}
		bitProofs[i] = bp
	}

	var agg aggregateProof
	var err error
	if agg.TSecp, err = readSecpPoint(r); err != nil {
		return nil, fmt.Errorf("aggregate TSecp: %w", err)
	}
	if agg.TEd, err = readEdPoint(r); err != nil {
		return nil, fmt.Errorf("aggregate TEd: %w", err)
	}
	if agg.E, err = readFixedInt(r); err != nil {
		return nil, fmt.Errorf("aggregate E: %w", err)
	}
	if agg.Z, err = readFixedInt(r); err != nil {
		return nil, fmt.Errorf("aggregate Z: %w", err)
	}

	return &Proof{
		CommitSecp: commitSecp,
		CommitEd:   commitEd,
		Bits:       bitProofs,
		Aggregate:  agg,
	}, nil
}

func readSecpPoint(r *bytes.Reader) (*secp256k1.PublicKey, error) {
	var b [33]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	return secp256k1.ParsePubKey(b[:])
}

func readEdPoint(r *bytes.Reader) (*edwards25519.Point, error) {
	var b [32]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	return new(edwards25519.Point).SetBytes(b[:])
}

func readSecpScalar(r *bytes.Reader) (*secp256k1.ModNScalar, error) {
	var b [32]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	var s secp256k1.ModNScalar
	s.SetBytes(&b)
	return &s, nil
}

func readEdScalar(r *bytes.Reader) (*edwards25519.Scalar, error) {
	var b [32]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	return edwards25519.NewScalar().SetCanonicalBytes(b[:])
}

func readFixedInt(r *bytes.Reader) (*big.Int, error) {
	var b [32]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b[:]), nil
}
