package dleq

import (
	"crypto/sha256"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	secpH = deriveSecpH()
	secpG = secpScalarBaseMult(secpScalarOne())
)

func secpScalarOne() *secp256k1.ModNScalar {
	var s secp256k1.ModNScalar
	s.SetInt(1)
	return &s
}

// deriveSecpH derives a second secp256k1 generator with no known discrete
// log relative to G, by hashing a fixed label into a scalar and multiplying
// the base point by it. This is a simple nothing-up-my-sleeve construction,
// adequate for this implementation; it is not the result of a verifiable
// hash-to-curve function.
func deriveSecpH() *secp256k1.PublicKey {
	digest := sha256.Sum256([]byte("thor/dleq/secp256k1/H"))
	var s secp256k1.ModNScalar
	s.SetByteSlice(digest[:])
	return secpScalarBaseMult(&s)
}

func secpScalarFromUint32(v uint32) *secp256k1.ModNScalar {
	var buf [32]byte
	buf[28] = byte(v >> 24)
	buf[29] = byte(v >> 16)
	buf[30] = byte(v >> 8)
	buf[31] = byte(v)
	var s secp256k1.ModNScalar
	s.SetBytes(&buf)
	return &s
}

func secpScalarFromBigInt(v *big.Int) *secp256k1.ModNScalar {
	var buf [32]byte
	v.FillBytes(buf[:])
	var s secp256k1.ModNScalar
	s.SetBytes(&buf)
	return &s
}

func secpJacobianToPub(p *secp256k1.JacobianPoint) *secp256k1.PublicKey {
	p.ToAffine()
	return secp256k1.NewPublicKey(&p.X, &p.Y)
}

func secpScalarBaseMult(k *secp256k1.ModNScalar) *secp256k1.PublicKey {
	var result secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &result)
	return secpJacobianToPub(&result)
}

func secpScalarMult(k *secp256k1.ModNScalar, point *secp256k1.PublicKey) *secp256k1.PublicKey {
	var jp, result secp256k1.JacobianPoint
	point.AsJacobian(&jp)
	secp256k1.ScalarMultNonConst(k, &jp, &result)
	return secpJacobianToPub(&result)
}

func secpAdd(a, b *secp256k1.PublicKey) *secp256k1.PublicKey {
	var ja, jb, result secp256k1.JacobianPoint
	a.AsJacobian(&ja)
	b.AsJacobian(&jb)
	secp256k1.AddNonConst(&ja, &jb, &result)
	return secpJacobianToPub(&result)
}

func secpNegate(a *secp256k1.PublicKey) *secp256k1.PublicKey {
	var jp secp256k1.JacobianPoint
	a.AsJacobian(&jp)
	jp.ToAffine()
	jp.Y.Negate(1)
	jp.Y.Normalize()
	return secp256k1.NewPublicKey(&jp.X, &jp.Y)
}

func secpSub(a, b *secp256k1.PublicKey) *secp256k1.PublicKey {
	return secpAdd(a, secpNegate(b))
}

// pedersenCommitSecp computes bit*G + blind*H on secp256k1.
func pedersenCommitSecp(bit uint32, blind *big.Int) *secp256k1.PublicKey {
	blindPoint := secpScalarMult(secpScalarFromBigInt(blind), secpH)
	if bit == 0 {
		return blindPoint
	}
	return secpAdd(secpG, blindPoint)
}
