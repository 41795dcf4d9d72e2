// Package dleq implements a cross-curve discrete logarithm equality proof
// between secp256k1 and ed25519: given public points S = s*G_secp and
// T = s*G_ed, a Proof convinces a verifier that the same scalar s underlies
// both without revealing s. This is the primitive the Bitcoin/Monero swap
// protocol uses to bind the two legs of the swap to a single secret.
//
// Because secp256k1 and ed25519 have different group orders, s cannot be
// proven equal directly with a single Schnorr-style proof; instead s is
// decomposed into bits, each bit is committed to on both curves with a
// shared blinding factor, and a linked OR-proof shows each commitment opens
// to 0 or 1 consistently on both curves. See the Bits constant for the
// scope of the decomposition this implementation uses.
package dleq

import (
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"math/big"

	"filippo.io/edwards25519"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Bits is the number of low-order bits of the shared scalar that this proof
// covers. A full implementation covers every bit below min(order_secp256k1,
// order_ed25519) (around 252 bits); this implementation covers only the low
// 32 bits to keep the proof's size and the risk of an unverified
// implementation bounded, and is suited to binding swap amounts/secrets
// that fit in 32 bits of entropy rather than a full 256-bit scalar. See
// DESIGN.md for the rationale.
const Bits = 32

// challengeModulus bounds the plain-integer bookkeeping used to link
// per-bit OR-proof challenges across the two curves: every challenge share
// is drawn from [0, challengeModulus), which is comfortably below both
// curves' group orders so that a single integer value can be fed unreduced
// into either curve's scalar arithmetic.
var challengeModulus = new(big.Int).Lsh(big.NewInt(1), 250)

// blindModulus bounds each bit's Pedersen blinding factor. Bounding it
// tightly (rather than using the full challengeModulus range) keeps the
// weighted sum of all Bits blinding factors — the aggregate opening proved
// by proveAggregate — well below both curves' group orders even after
// being multiplied by an aggregate-proof challenge.
var blindModulus = new(big.Int).Lsh(big.NewInt(1), 40)

// aggregateChallengeModulus bounds the aggregate Chaum-Pedersen proof's
// challenge, chosen small enough that challenge*aggregateBlind stays far
// below both curves' group orders.
var aggregateChallengeModulus = new(big.Int).Lsh(big.NewInt(1), 64)

// aggregateNonceModulus bounds the aggregate proof's Schnorr nonce.
var aggregateNonceModulus = new(big.Int).Lsh(big.NewInt(1), 160)

// Secret is a scalar known to be valid (< 2^Bits) on both curves.
type Secret struct {
	value uint32
}

// NewSecret wraps a raw value. The caller is responsible for ensuring the
// value is meant to be proven, e.g. a PTLC/adaptor secret's low bits.
func NewSecret(value uint32) Secret { return Secret{value: value} }

// Value returns the wrapped scalar.
func (s Secret) Value() uint32 { return s.value }

// PointSecp returns s*G on secp256k1.
func (s Secret) PointSecp() *secp256k1.PublicKey {
	return secpScalarBaseMult(secpScalarFromUint32(s.value))
}

// PointEd returns s*G on ed25519.
func (s Secret) PointEd() *edwards25519.Point {
	return new(edwards25519.Point).ScalarBaseMult(edScalarFromUint32(s.value))
}

// Secp256k1ScalarBytes returns the secp256k1 big-endian scalar encoding of
// the wrapped value, e.g. for handing to keys.PtlcSecretFromScalar.
func (s Secret) Secp256k1ScalarBytes() [32]byte {
	var out [32]byte
	b := secpScalarFromUint32(s.value).Bytes()
	copy(out[:], b[:])
	return out
}

// Ed25519ScalarBytes returns the ed25519 canonical little-endian scalar
// encoding of the wrapped value, e.g. for handing to
// keys.MoneroScalarFromCanonicalBytes.
func (s Secret) Ed25519ScalarBytes() [32]byte {
	var out [32]byte
	copy(out[:], edScalarFromUint32(s.value).Bytes())
	return out
}

// bitBlind holds the shared witness for one bit's commitment: the bit value
// and a blinding factor valid on both curves.
type bitBlind struct {
	bit   uint32
	blind *big.Int
}

// Proof is a cross-curve DLEQ proof over Bits bits of a shared secret.
type Proof struct {
	CommitSecp []*secp256k1.PublicKey
	CommitEd   []*edwards25519.Point
	Bits       []bitProof

	// Aggregate is a Chaum-Pedersen proof that the same blinding
	// aggregate ties the bit commitments back to PointSecp/PointEd.
	Aggregate aggregateProof
}

type bitProof struct {
	A0Secp, A1Secp *secp256k1.PublicKey
	A0Ed, A1Ed     *edwards25519.Point
	E0, E1         *big.Int
	S0Secp, S1Secp *secp256k1.ModNScalar
	S0Ed, S1Ed     *edwards25519.Scalar
}

type aggregateProof struct {
	TSecp *secp256k1.PublicKey
	TEd   *edwards25519.Point
	E     *big.Int
	Z     *big.Int
}

// Prove builds a cross-curve DLEQ proof for secret, whose public points are
// returned as (S, T) — PointSecp()/PointEd() of the secret.
func Prove(secret Secret) (*Proof, error) {
	blinds := make([]*bitBlind, Bits)
	for i := 0; i < Bits; i++ {
		bit := (secret.value >> uint(i)) & 1
		blind, err := randomBelow(blindModulus)
		if err != nil {
			return nil, fmt.Errorf("sample bit blind: %w", err)
		}
		blinds[i] = &bitBlind{bit: bit, blind: blind}
	}

	commitSecp := make([]*secp256k1.PublicKey, Bits)
	commitEd := make([]*edwards25519.Point, Bits)
	bitProofs := make([]bitProof, Bits)

	aggregateBlind := new(big.Int)
	for i, b := range blinds {
		commitSecp[i] = pedersenCommitSecp(b.bit, b.blind)
		commitEd[i] = pedersenCommitEd(b.bit, b.blind)

		bp, err := proveBit(i, b, commitSecp[i], commitEd[i])
		if err != nil {
			return nil, fmt.Errorf("prove bit %d: %w", i, err)
		}
		bitProofs[i] = bp

		weight := new(big.Int).Lsh(big.NewInt(1), uint(i))
		term := new(big.Int).Mul(weight, b.blind)
		aggregateBlind.Add(aggregateBlind, term)
	}

	agg, err := proveAggregate(aggregateBlind, commitSecp, commitEd, secret)
	if err != nil {
		return nil, fmt.Errorf("prove aggregate: %w", err)
	}

	return &Proof{
		CommitSecp: commitSecp,
		CommitEd:   commitEd,
		Bits:       bitProofs,
		Aggregate:  agg,
	}, nil
}

// Verify checks that proof demonstrates the same scalar underlies both S
// (on secp256k1) and T (on ed25519).
func Verify(proof *Proof, S *secp256k1.PublicKey, T *edwards25519.Point) error {
	if len(proof.CommitSecp) != Bits || len(proof.CommitEd) != Bits || len(proof.Bits) != Bits {
		return fmt.Errorf("dleq: proof does not cover %d bits", Bits)
	}

	for i := range proof.Bits {
		if err := verifyBit(i, proof.CommitSecp[i], proof.CommitEd[i], proof.Bits[i]); err != nil {
			return fmt.Errorf("bit %d: %w", i, err)
		}
	}

	if err := verifyAggregate(proof.Aggregate, proof.CommitSecp, proof.CommitEd, S, T); err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	return nil
}

func randomBelow(max *big.Int) (*big.Int, error) {
	return rand.Int(rand.Reader, max)
}

func hashToChallenge(data ...[]byte) *big.Int {
	return hashToChallengeMod(challengeModulus, data...)
}

func hashToChallengeMod(mod *big.Int, data ...[]byte) *big.Int {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	digest := h.Sum(nil)
	e := new(big.Int).SetBytes(digest)
	return e.Mod(e, mod)
}
