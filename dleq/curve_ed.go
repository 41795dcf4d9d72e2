package dleq

import (
	"crypto/sha256"
	"crypto/sha512"
	"math/big"

	"filippo.io/edwards25519"
)

var (
	edG = edwards25519.NewGeneratorPoint()
	edH = deriveEdH()
)

// deriveEdH derives a second ed25519 generator with no known discrete log
// relative to G, via the same nothing-up-my-sleeve approach as deriveSecpH.
func deriveEdH() *edwards25519.Point {
	digest := sha256.Sum256([]byte("thor/dleq/ed25519/H"))
	s := edScalarFromWideBytes(digest[:])
	return new(edwards25519.Point).ScalarBaseMult(s)
}

// edScalarFromWideBytes reduces an arbitrary-length byte string into a
// canonical ed25519 scalar via SetUniformBytes, which expects 64 bytes of
// uniform input; the input is always hashed with SHA-512 to produce them.
func edScalarFromWideBytes(b []byte) *edwards25519.Scalar {
	wide := sha512.Sum512(b)
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic(err)
	}
	return s
}

func edScalarFromUint32(v uint32) *edwards25519.Scalar {
	var buf [32]byte
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
	s, err := edwards25519.NewScalar().SetCanonicalBytes(buf[:])
	if err != nil {
		panic(err)
	}
	return s
}

// edScalarFromBigInt converts a big.Int known to be less than the ed25519
// group order into a Scalar, encoding it little-endian as the library
// expects.
func edScalarFromBigInt(v *big.Int) *edwards25519.Scalar {
	be := make([]byte, 32)
	v.FillBytes(be)
	le := make([]byte, 32)
	for i := 0; i < 32; i++ {
		le[i] = be[31-i]
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(le)
	if err != nil {
		panic(err)
	}
	return s
}

func edSub(a, b *edwards25519.Point) *edwards25519.Point {
	return new(edwards25519.Point).Subtract(a, b)
}

func edAdd(a, b *edwards25519.Point) *edwards25519.Point {
	return new(edwards25519.Point).Add(a, b)
}

func edScalarMult(s *edwards25519.Scalar, p *edwards25519.Point) *edwards25519.Point {
	return new(edwards25519.Point).ScalarMult(s, p)
}

func edScalarBaseMult(s *edwards25519.Scalar) *edwards25519.Point {
	return new(edwards25519.Point).ScalarBaseMult(s)
}

// pedersenCommitEd computes bit*G + blind*H on ed25519.
func pedersenCommitEd(bit uint32, blind *big.Int) *edwards25519.Point {
	blindPoint := edScalarMult(edScalarFromBigInt(blind), edH)
	if bit == 0 {
		return blindPoint
	}
	return edAdd(edG, blindPoint)
}
