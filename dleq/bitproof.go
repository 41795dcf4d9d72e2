package dleq

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"

	"filippo.io/edwards25519"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func randomSecpScalar() (*secp256k1.ModNScalar, error) {
	for {
		var buf [32]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, err
		}
		var s secp256k1.ModNScalar
		overflow := s.SetBytes(&buf)
		if overflow == 0 && !s.IsZero() {
			return &s, nil
		}
	}
}

func randomEdScalar() (*edwards25519.Scalar, error) {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return edwards25519.NewScalar().SetUniformBytes(buf[:])
}

// proveBit builds a linked OR-proof that (commitSecp, commitEd) are
// Pedersen commitments to the same bit b, using the shared witness in bb.
func proveBit(index int, bb *bitBlind, commitSecp *secp256k1.PublicKey, commitEd *edwards25519.Point) (bitProof, error) {
	real := bb.bit
	fake := uint32(1) - real

	kRealSecp, err := randomSecpScalar()
	if err != nil {
		return bitProof{}, err
	}
	kRealEd, err := randomEdScalar()
	if err != nil {
		return bitProof{}, err
	}
	aRealSecp := secpScalarMult(kRealSecp, secpH)
	aRealEd := edScalarMult(kRealEd, edH)

	sFakeSecp, err := randomSecpScalar()
	if err != nil {
		return bitProof{}, err
	}
	sFakeEd, err := randomEdScalar()
	if err != nil {
		return bitProof{}, err
	}
	eFake, err := randomBelow(challengeModulus)
	if err != nil {
		return bitProof{}, err
	}

	cMinusSecp := commitSecp
	cMinusEd := commitEd
	if fake == 1 {
		cMinusSecp = secpSub(commitSecp, secpG)
		cMinusEd = edSub(commitEd, edG)
	}
	aFakeSecp := secpSub(secpScalarMult(sFakeSecp, secpH), secpScalarMult(secpScalarFromBigInt(eFake), cMinusSecp))
	aFakeEd := edSub(edScalarMult(sFakeEd, edH), edScalarMult(edScalarFromBigInt(eFake), cMinusEd))

	var a0Secp, a1Secp *secp256k1.PublicKey
	var a0Ed, a1Ed *edwards25519.Point
	if real == 0 {
		a0Secp, a1Secp = aRealSecp, aFakeSecp
		a0Ed, a1Ed = aRealEd, aFakeEd
	} else {
		a0Secp, a1Secp = aFakeSecp, aRealSecp
		a0Ed, a1Ed = aFakeEd, aRealEd
	}

	eJoint := hashBitChallenge(index, commitSecp, commitEd, a0Secp, a1Secp, a0Ed, a1Ed)

	eReal := new(big.Int).Sub(eJoint, eFake)
	eReal.Mod(eReal, challengeModulus)

	sRealSecp := new(secp256k1.ModNScalar).Set(secpScalarFromBigInt(eReal))
	sRealSecp.Mul(secpScalarFromBigInt(bb.blind)).Add(kRealSecp)

	sRealEd := new(edwards25519.Scalar).Multiply(edScalarFromBigInt(eReal), edScalarFromBigInt(bb.blind))
	sRealEd.Add(sRealEd, kRealEd)

	var e0, e1 *big.Int
	var s0Secp, s1Secp *secp256k1.ModNScalar
	var s0Ed, s1Ed *edwards25519.Scalar
	if real == 0 {
		e0, e1 = eReal, eFake
		s0Secp, s1Secp = sRealSecp, sFakeSecp
		s0Ed, s1Ed = sRealEd, sFakeEd
	} else {
		e0, e1 = eFake, eReal
		s0Secp, s1Secp = sFakeSecp, sRealSecp
		s0Ed, s1Ed = sFakeEd, sRealEd
	}

	return bitProof{
		A0Secp: a0Secp, A1Secp: a1Secp,
		A0Ed: a0Ed, A1Ed: a1Ed,
		E0: e0, E1: e1,
		S0Secp: s0Secp, S1Secp: s1Secp,
		S0Ed: s0Ed, S1Ed: s1Ed,
	}, nil
}

func verifyBit(index int, commitSecp *secp256k1.PublicKey, commitEd *edwards25519.Point, bp bitProof) error {
	sum := new(big.Int).Add(bp.E0, bp.E1)
	sum.Mod(sum, challengeModulus)

	eJoint := hashBitChallenge(index, commitSecp, commitEd, bp.A0Secp, bp.A1Secp, bp.A0Ed, bp.A1Ed)
	if sum.Cmp(eJoint) != 0 {
		return fmt.Errorf("challenge shares do not sum to the joint challenge")
	}

	lhs0Secp := secpScalarMult(bp.S0Secp, secpH)
	rhs0Secp := secpAdd(bp.A0Secp, secpScalarMult(secpScalarFromBigInt(bp.E0), commitSecp))
	if !lhs0Secp.IsEqual(rhs0Secp) {
		return fmt.Errorf("secp256k1 branch 0 equation failed")
	}

	commitMinusGSecp := secpSub(commitSecp, secpG)
	lhs1Secp := secpScalarMult(bp.S1Secp, secpH)
	rhs1Secp := secpAdd(bp.A1Secp, secpScalarMult(secpScalarFromBigInt(bp.E1), commitMinusGSecp))
	if !lhs1Secp.IsEqual(rhs1Secp) {
		return fmt.Errorf("secp256k1 branch 1 equation failed")
	}

	lhs0Ed := edScalarMult(bp.S0Ed, edH)
	rhs0Ed := edAdd(bp.A0Ed, edScalarMult(edScalarFromBigInt(bp.E0), commitEd))
	if lhs0Ed.Equal(rhs0Ed) != 1 {
		return fmt.Errorf("ed25519 branch 0 equation failed")
	}

	commitMinusGEd := edSub(commitEd, edG)
	lhs1Ed := edScalarMult(bp.S1Ed, edH)
	rhs1Ed := edAdd(bp.A1Ed, edScalarMult(edScalarFromBigInt(bp.E1), commitMinusGEd))
	if lhs1Ed.Equal(rhs1Ed) != 1 {
		return fmt.Errorf("ed25519 branch 1 equation failed")
	}

	return nil
}

func hashBitChallenge(index int, commitSecp *secp256k1.PublicKey, commitEd *edwards25519.Point, a0Secp, a1Secp *secp256k1.PublicKey, a0Ed, a1Ed *edwards25519.Point) *big.Int {
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], uint32(index))
	return hashToChallenge(
		idxBuf[:],
		commitSecp.SerializeCompressed(), commitEd.Bytes(),
		a0Secp.SerializeCompressed(), a1Secp.SerializeCompressed(),
		a0Ed.Bytes(), a1Ed.Bytes(),
	)
}

// proveAggregate proves that rho, the weighted sum of all bit blinding
// factors, ties the bit commitments back to the secret's public points on
// both curves.
func proveAggregate(rho *big.Int, commitSecp []*secp256k1.PublicKey, commitEd []*edwards25519.Point, secret Secret) (aggregateProof, error) {
	dSecp, dEd := aggregateDiff(commitSecp, commitEd, secret.PointSecp(), secret.PointEd())

	t, err := randomBelow(aggregateNonceModulus)
	if err != nil {
		return aggregateProof{}, err
	}
	tSecp := secpScalarMult(secpScalarFromBigInt(t), secpH)
	tEd := edScalarMult(edScalarFromBigInt(t), edH)

	e := hashToChallengeMod(aggregateChallengeModulus, tSecp.SerializeCompressed(), tEd.Bytes(), dSecp.SerializeCompressed(), dEd.Bytes())

	z := new(big.Int).Mul(e, rho)
	z.Add(z, t)

	return aggregateProof{TSecp: tSecp, TEd: tEd, E: e, Z: z}, nil
}

func verifyAggregate(proof aggregateProof, commitSecp []*secp256k1.PublicKey, commitEd []*edwards25519.Point, S *secp256k1.PublicKey, T *edwards25519.Point) error {
	dSecp, dEd := aggregateDiff(commitSecp, commitEd, S, T)

	e := hashToChallengeMod(aggregateChallengeModulus, proof.TSecp.SerializeCompressed(), proof.TEd.Bytes(), dSecp.SerializeCompressed(), dEd.Bytes())
	if e.Cmp(proof.E) != 0 {
		return fmt.Errorf("aggregate challenge mismatch")
	}

	lhsSecp := secpScalarMult(secpScalarFromBigInt(proof.Z), secpH)
	rhsSecp := secpAdd(proof.TSecp, secpScalarMult(secpScalarFromBigInt(proof.E), dSecp))
	if !lhsSecp.IsEqual(rhsSecp) {
		return fmt.Errorf("secp256k1 aggregate equation failed")
	}

	lhsEd := edScalarMult(edScalarFromBigInt(proof.Z), edH)
	rhsEd := edAdd(proof.TEd, edScalarMult(edScalarFromBigInt(proof.E), dEd))
	if lhsEd.Equal(rhsEd) != 1 {
		return fmt.Errorf("ed25519 aggregate equation failed")
	}

	return nil
}

func aggregateDiff(commitSecp []*secp256k1.PublicKey, commitEd []*edwards25519.Point, S *secp256k1.PublicKey, T *edwards25519.Point) (*secp256k1.PublicKey, *edwards25519.Point) {
	sumSecp := commitSecp[0]
	sumEd := commitEd[0]
	for i := 1; i < len(commitSecp); i++ {
		weight := new(big.Int).Lsh(big.NewInt(1), uint(i))
		sumSecp = secpAdd(sumSecp, secpScalarMult(secpScalarFromBigInt(weight), commitSecp[i]))
		sumEd = edAdd(sumEd, edScalarMult(edScalarFromBigInt(weight), commitEd[i]))
	}
	return secpSub(sumSecp, S), edSub(sumEd, T)
}
