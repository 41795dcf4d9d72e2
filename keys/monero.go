package keys

import (
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
)

// MoneroScalar is an ed25519 scalar used on the Monero side of the
// cross-chain swap: a private view key share (v_a, v_b) or the low bits of
// the shared swap secret, proven equal to its secp256k1 counterpart by a
// dleq.Proof.
type MoneroScalar struct {
	s *edwards25519.Scalar
}

// MoneroPoint is the public point corresponding to a MoneroScalar (a
// Monero public spend or view key component).
type MoneroPoint struct {
	p *edwards25519.Point
}

// NewMoneroScalar generates a fresh random ed25519 scalar, e.g. a private
// view key share.
func NewMoneroScalar() (MoneroScalar, error) {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return MoneroScalar{}, fmt.Errorf("generate monero scalar: %w", err)
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(buf[:])
	if err != nil {
		return MoneroScalar{}, fmt.Errorf("generate monero scalar: %w", err)
	}
	return MoneroScalar{s: s}, nil
}

// MoneroScalarFromCanonicalBytes parses a 32-byte little-endian canonical
// scalar encoding, as used by a PtlcSecret's ed25519 half once the
// cross-curve dleq proof has bound it to the same value as the secp256k1
// scalar.
func MoneroScalarFromCanonicalBytes(b [32]byte) (MoneroScalar, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		return MoneroScalar{}, fmt.Errorf("parse monero scalar: %w", err)
	}
	return MoneroScalar{s: s}, nil
}

// Point returns the public point s*B for this scalar.
func (s MoneroScalar) Point() MoneroPoint {
	return MoneroPoint{p: new(edwards25519.Point).ScalarBaseMult(s.s)}
}

// Add returns the scalar sum s + other, used to combine Alice's and Bob's
// private view key shares into the swap's joint viewing key v = v_a + v_b.
func (s MoneroScalar) Add(other MoneroScalar) MoneroScalar {
	return MoneroScalar{s: new(edwards25519.Scalar).Add(s.s, other.s)}
}

// Bytes returns the scalar's 32-byte little-endian canonical encoding.
func (s MoneroScalar) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], s.s.Bytes())
	return out
}

// Inner exposes the underlying edwards25519 scalar.
func (s MoneroScalar) Inner() *edwards25519.Scalar { return s.s }

// Add returns the point sum of two public points, used to combine Alice's
// and Bob's spend key shares into the swap's joint spend key S = S_a + S_b.
func (p MoneroPoint) Add(other MoneroPoint) MoneroPoint {
	return MoneroPoint{p: new(edwards25519.Point).Add(p.p, other.p)}
}

// Bytes returns the point's 32-byte compressed encoding.
func (p MoneroPoint) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], p.p.Bytes())
	return out
}

// Inner exposes the underlying edwards25519 point.
func (p MoneroPoint) Inner() *edwards25519.Point { return p.p }

// ParseMoneroPoint parses a compressed ed25519 point encoding.
func ParseMoneroPoint(b []byte) (MoneroPoint, error) {
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return MoneroPoint{}, fmt.Errorf("parse monero point: %w", err)
	}
	return MoneroPoint{p: p}, nil
}
