// Package adaptor implements ECDSA adaptor (encrypted) signatures on
// secp256k1: encrypting a signature under a public "encryption key" Y such
// that decrypting it requires knowledge of y = log(Y), and such that
// observing both the encrypted and decrypted signature lets anyone recover
// y. This is the primitive the channel and swap protocols build revocation
// and atomicity on top of.
package adaptor

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"
)

// EncryptedSignature is a pre-signature that verifies against a signing
// public key and an encryption public key, but does not by itself authorize
// spending anything: it must be decrypted first.
type EncryptedSignature struct {
	// R is the public nonce commitment, R = k*G.
	R *secp256k1.PublicKey
	// RTilde is the encrypted nonce commitment, RTilde = k*Y = y*R.
	RTilde *secp256k1.PublicKey
	// SHat is the encrypted s-value.
	SHat *secp256k1.ModNScalar
	// Proof demonstrates that log_G(R) == log_Y(RTilde), without
	// revealing k.
	Proof DLEQProof
}

// DLEQProof is a same-curve Chaum-Pedersen proof that two points share a
// discrete log relative to two different bases.
type DLEQProof struct {
	E secp256k1.ModNScalar
	Z secp256k1.ModNScalar
}

func hashToScalar(data ...[]byte) secp256k1.ModNScalar {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	digest := h.Sum(nil)
	var s secp256k1.ModNScalar
	s.SetByteSlice(digest)
	return s
}

func jacobianToPubKey(p *secp256k1.JacobianPoint) *secp256k1.PublicKey {
	p.ToAffine()
	return secp256k1.NewPublicKey(&p.X, &p.Y)
}

func scalarMult(k *secp256k1.ModNScalar, point *secp256k1.PublicKey) *secp256k1.PublicKey {
	var jp, result secp256k1.JacobianPoint
	point.AsJacobian(&jp)
	secp256k1.ScalarMultNonConst(k, &jp, &result)
	return jacobianToPubKey(&result)
}

func scalarBaseMult(k *secp256k1.ModNScalar) *secp256k1.PublicKey {
	var result secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &result)
	return jacobianToPubKey(&result)
}

func addPoints(a, b *secp256k1.PublicKey) *secp256k1.PublicKey {
	var ja, jb, result secp256k1.JacobianPoint
	a.AsJacobian(&ja)
	b.AsJacobian(&jb)
	secp256k1.AddNonConst(&ja, &jb, &result)
	return jacobianToPubKey(&result)
}

func negatePoint(a *secp256k1.PublicKey) *secp256k1.PublicKey {
	var jp secp256k1.JacobianPoint
	a.AsJacobian(&jp)
	jp.ToAffine()
	jp.Y.Negate(1)
	jp.Y.Normalize()
	return secp256k1.NewPublicKey(&jp.X, &jp.Y)
}

// xCoordBytes returns the big-endian encoding of a point's affine
// x-coordinate, used to derive the ECDSA r value from a nonce point.
func xCoordBytes(p *secp256k1.PublicKey) [32]byte {
	var jp secp256k1.JacobianPoint
	p.AsJacobian(&jp)
	jp.ToAffine()
	return *jp.X.Bytes()
}

// proveDLEQ proves that log_G(R) == log_Y(RTilde) == k, for R = k*G and
// RTilde = k*Y.
func proveDLEQ(k *secp256k1.ModNScalar, Y, R, RTilde *secp256k1.PublicKey) (DLEQProof, error) {
	t, err := randomScalar()
	if err != nil {
		return DLEQProof{}, err
	}
	T1 := scalarBaseMult(t)
	T2 := scalarMult(t, Y)

	e := hashToScalar(
		Y.SerializeCompressed(), R.SerializeCompressed(), RTilde.SerializeCompressed(),
		T1.SerializeCompressed(), T2.SerializeCompressed(),
	)

	var z secp256k1.ModNScalar
	z.Set(k).Mul(&e).Add(t)

	return DLEQProof{E: e, Z: z}, nil
}

// verifyDLEQ checks a DLEQProof produced by proveDLEQ.
func verifyDLEQ(proof DLEQProof, Y, R, RTilde *secp256k1.PublicKey) bool {
	negER := scalarMult(&proof.E, R)
	negER = negatePoint(negER)
	T1 := addPoints(scalarBaseMult(&proof.Z), negER)

	negERTilde := scalarMult(&proof.E, RTilde)
	negERTilde = negatePoint(negERTilde)
	T2 := addPoints(scalarMult(&proof.Z, Y), negERTilde)

	e := hashToScalar(
		Y.SerializeCompressed(), R.SerializeCompressed(), RTilde.SerializeCompressed(),
		T1.SerializeCompressed(), T2.SerializeCompressed(),
	)

	return e.Equals(&proof.E)
}

func randomScalar() (*secp256k1.ModNScalar, error) {
	var buf [32]byte
	for {
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

// deriveNonce produces a deterministic per-signature nonce from the signing
// key, message digest and encryption key, in the spirit of RFC6979 but
// expanded through HKDF and salted with the encryption key so that
// encrypting the same digest under two different encryption keys never
// reuses a nonce.
func deriveNonce(sk *secp256k1.PrivateKey, digest, salt []byte) (*secp256k1.ModNScalar, error) {
	expand := hkdf.New(sha256.New, sk.Serialize(), digest, salt)
	for i := 0; i < 128; i++ {
		var buf [32]byte
		if _, err := io.ReadFull(expand, buf[:]); err != nil {
			return nil, fmt.Errorf("derive nonce: %w", err)
		}

		var s secp256k1.ModNScalar
		overflow := s.SetBytes(&buf)
		if overflow == 0 && !s.IsZero() {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("failed to derive a valid nonce")
}

// EncSign produces an adaptor signature over digest, under signing key sk,
// encrypted for encryptionKey.
func EncSign(sk *secp256k1.PrivateKey, encryptionKey *secp256k1.PublicKey, digest [32]byte) (*EncryptedSignature, error) {
	var m secp256k1.ModNScalar
	m.SetByteSlice(digest[:])

	for {
		k, err := deriveNonce(sk, digest[:], encryptionKey.SerializeCompressed())
		if err != nil {
			return nil, fmt.Errorf("derive adaptor nonce: %w", err)
		}

		R := scalarBaseMult(k)
		RTilde := scalarMult(k, encryptionKey)

		var r secp256k1.ModNScalar
		xBytes := xCoordBytes(RTilde)
		r.SetByteSlice(xBytes[:])
		if r.IsZero() {
			continue
		}

		kInv := new(secp256k1.ModNScalar).Set(k).InverseNonConst()

		var sHat secp256k1.ModNScalar
		sHat.Set(&sk.Key).Mul(&r).Add(&m).Mul(kInv)
		if sHat.IsZero() {
			continue
		}

		proof, err := proveDLEQ(k, encryptionKey, R, RTilde)
		if err != nil {
			return nil, err
		}

		return &EncryptedSignature{
			R:      R,
			RTilde: RTilde,
			SHat:   &sHat,
			Proof:  proof,
		}, nil
	}
}

// Verify checks that an encrypted signature is well-formed for the given
// signing public key, encryption key, and message digest.
func Verify(verificationKey *secp256k1.PublicKey, encryptionKey *secp256k1.PublicKey, digest [32]byte, sig *EncryptedSignature) error {
	if !verifyDLEQ(sig.Proof, encryptionKey, sig.R, sig.RTilde) {
		return fmt.Errorf("adaptor signature: invalid DLEQ proof")
	}

	var m secp256k1.ModNScalar
	m.SetByteSlice(digest[:])

	xBytes := xCoordBytes(sig.RTilde)
	var r secp256k1.ModNScalar
	r.SetByteSlice(xBytes[:])

	sInv := new(secp256k1.ModNScalar).Set(sig.SHat).InverseNonConst()

	var u1, u2 secp256k1.ModNScalar
	u1.Set(&m).Mul(sInv)
	u2.Set(&r).Mul(sInv)

	RCheck := addPoints(scalarBaseMult(&u1), scalarMult(&u2, verificationKey))

	if !RCheck.IsEqual(sig.R) {
		return fmt.Errorf("adaptor signature: does not verify against signing key")
	}
	return nil
}

// Signature is a plain ECDSA signature, exposed with its raw scalars so the
// punish-transaction logic can recover an encryption key from a witness
// stack signature without having to re-parse DER encodings.
type Signature struct {
	R secp256k1.ModNScalar
	S secp256k1.ModNScalar
}

// DER returns the standard strict-DER encoding used in Bitcoin witnesses.
func (s Signature) DER() []byte {
	return ecdsa.NewSignature(&s.R, &s.S).Serialize()
}

// FromECDSA converts a plain btcec ECDSA signature into a Signature, for
// callers that hold an ordinary (non-adaptor) signature but need to feed it
// into a witness-building helper that accepts this package's type, such as
// transaction.SpendFundingOutput or a PTLC witness. It round-trips through
// DER encoding rather than reaching into the signature's internals, since
// that is the only stable accessor both btcec's and this package's
// Signature types agree on.
func FromECDSA(sig *ecdsa.Signature) (Signature, error) {
	return ParseDERSignature(sig.Serialize())
}

// ParseDERSignature parses a strict-DER encoded ECDSA signature of the form
// SEQUENCE { INTEGER r, INTEGER s }, as found in a commit or punish
// transaction's witness stack.
func ParseDERSignature(b []byte) (Signature, error) {
	if _, err := ecdsa.ParseDERSignature(b); err != nil {
		return Signature{}, fmt.Errorf("parse DER signature: %w", err)
	}

	rBytes, rest, err := readDERInteger(b)
	if err != nil {
		return Signature{}, fmt.Errorf("parse DER signature: %w", err)
	}
	sBytes, _, err := readDERInteger(rest)
	if err != nil {
		return Signature{}, fmt.Errorf("parse DER signature: %w", err)
	}

	var sig Signature
	sig.R.SetByteSlice(rBytes)
	sig.S.SetByteSlice(sBytes)
	return sig, nil
}

// readDERInteger strips the outer SEQUENCE header (on the first call) and
// reads the next INTEGER TLV, returning its value and the remaining bytes.
func readDERInteger(b []byte) (value []byte, rest []byte, err error) {
	if len(b) > 0 && b[0] == 0x30 {
		if len(b) < 2 {
			return nil, nil, fmt.Errorf("truncated sequence header")
		}
		b = b[2:]
	}
	if len(b) < 2 || b[0] != 0x02 {
		return nil, nil, fmt.Errorf("expected ASN.1 INTEGER tag")
	}
	length := int(b[1])
	if len(b) < 2+length {
		return nil, nil, fmt.Errorf("truncated integer")
	}
	value = b[2 : 2+length]
	rest = b[2+length:]
	for len(value) > 1 && value[0] == 0x00 {
		value = value[1:]
	}
	return value, rest, nil
}

// Decrypt converts an encrypted signature into a standard ECDSA signature,
// using the decryption key y (the discrete log of the encryption key the
// signature was encrypted under). The result verifies under the signing
// public key with the standard ECDSA verification equation.
func Decrypt(y *secp256k1.PrivateKey, sig *EncryptedSignature) Signature {
	var r secp256k1.ModNScalar
	xBytes := xCoordBytes(sig.RTilde)
	r.SetByteSlice(xBytes[:])

	yInv := new(secp256k1.ModNScalar).Set(&y.Key).InverseNonConst()

	var s secp256k1.ModNScalar
	s.Set(sig.SHat).Mul(yInv)

	if s.IsOverHalfOrder() {
		s.Negate()
	}

	return Signature{R: r, S: s}
}

// VerifySignature checks a plain (decrypted) signature against a signing
// public key and message digest using the standard ECDSA verification
// equation.
func VerifySignature(verificationKey *secp256k1.PublicKey, digest [32]byte, sig Signature) bool {
	parsed := ecdsa.NewSignature(&sig.R, &sig.S)
	return parsed.Verify(digest[:], verificationKey)
}

// Recover extracts the decryption key y from an encrypted signature and its
// corresponding decrypted signature, e.g. as observed on-chain. It returns
// an error if sig is not in fact the decryption of encsig.
func Recover(encryptionKey *secp256k1.PublicKey, sig Signature, encsig *EncryptedSignature) (*secp256k1.PrivateKey, error) {
	sInv := new(secp256k1.ModNScalar).Set(&sig.S).InverseNonConst()

	var yCandidate secp256k1.ModNScalar
	yCandidate.Set(encsig.SHat).Mul(sInv)

	if candidateMatches(&yCandidate, encryptionKey) {
		return secp256k1.NewPrivateKey(&yCandidate), nil
	}

	yCandidate.Negate()
	if candidateMatches(&yCandidate, encryptionKey) {
		return secp256k1.NewPrivateKey(&yCandidate), nil
	}

	return nil, fmt.Errorf("adaptor signature: recovery failed, signature does not decrypt encsig")
}

func candidateMatches(y *secp256k1.ModNScalar, encryptionKey *secp256k1.PublicKey) bool {
	candidatePub := scalarBaseMult(y)
	return candidatePub.IsEqual(encryptionKey)
}
