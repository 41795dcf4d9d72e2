// Package keys defines the key-pair types used throughout the channel and
// swap protocols: plain signing keys, revocation keys, publishing keys used
// as adaptor-signature encryption keys, and PTLC points.
package keys

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ptlc-labs/thor/adaptor"
)

// OwnershipKeyPair is a channel party's long-term signing key for a given
// channel. Funding, commit, split and close transactions are all signed (or
// adaptor-signed) with this key.
type OwnershipKeyPair struct {
	sk *btcec.PrivateKey
}

// OwnershipPublicKey is the public half of an OwnershipKeyPair.
type OwnershipPublicKey struct {
	pk *btcec.PublicKey
}

// NewOwnershipKeyPair generates a fresh random ownership key pair.
func NewOwnershipKeyPair() (*OwnershipKeyPair, error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ownership key: %w", err)
	}
	return &OwnershipKeyPair{sk: sk}, nil
}

// PublicKey returns the public key corresponding to the key pair.
func (o *OwnershipKeyPair) PublicKey() OwnershipPublicKey {
	return OwnershipPublicKey{pk: o.sk.PubKey()}
}

// Sign produces a standard DER-encoded ECDSA signature over digest.
func (o *OwnershipKeyPair) Sign(digest [32]byte) *ecdsa.Signature {
	return ecdsa.Sign(o.sk, digest[:])
}

// EncSign produces an adaptor (encrypted) signature over digest, encrypted
// under encryptionKey. The resulting encrypted signature can be decrypted by
// whoever knows the discrete log of encryptionKey, and the act of decrypting
// and publishing it leaks that discrete log to anyone who observes both the
// encrypted and decrypted signature (see adaptor.Recover).
func (o *OwnershipKeyPair) EncSign(encryptionKey PublishingPublicKey, digest [32]byte) (*adaptor.EncryptedSignature, error) {
	return adaptor.EncSign(o.sk, encryptionKey.pk, digest)
}

// EncSignPoint is EncSign generalized to an arbitrary secp256k1 encryption
// point rather than a PublishingPublicKey, for the cross-chain swap's
// adaptor signatures over tx_refund/tx_redeem, which encrypt under the
// per-session PTLC points S_b_bitcoin/S_a_bitcoin rather than a channel
// state's publishing key.
func (o *OwnershipKeyPair) EncSignPoint(encryptionKey PtlcPoint, digest [32]byte) (*adaptor.EncryptedSignature, error) {
	return adaptor.EncSign(o.sk, encryptionKey.pk, digest)
}

// Verify checks a standard ECDSA signature produced by the holder of pub.
func (pub OwnershipPublicKey) Verify(digest [32]byte, sig *ecdsa.Signature) bool {
	return sig.Verify(digest[:], pub.pk)
}

// Inner exposes the underlying curve point, for transaction scripts that
// need raw pubkey bytes.
func (pub OwnershipPublicKey) Inner() *btcec.PublicKey { return pub.pk }

// SerializeCompressed returns the 33-byte compressed SEC1 encoding.
func (pub OwnershipPublicKey) SerializeCompressed() []byte {
	return pub.pk.SerializeCompressed()
}

// ParseOwnershipPublicKey parses a compressed SEC1-encoded public key.
func ParseOwnershipPublicKey(b []byte) (OwnershipPublicKey, error) {
	pk, err := btcec.ParsePubKey(b)
	if err != nil {
		return OwnershipPublicKey{}, fmt.Errorf("parse ownership public key: %w", err)
	}
	return OwnershipPublicKey{pk: pk}, nil
}

// Bytes returns the 32-byte big-endian scalar encoding of the secret key,
// for persisting a channel's long-term signing key to storage.
func (o *OwnershipKeyPair) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], o.sk.Serialize())
	return out
}

// OwnershipKeyPairFromBytes restores an ownership key pair from its scalar
// encoding, as persisted by Bytes.
func OwnershipKeyPairFromBytes(b [32]byte) *OwnershipKeyPair {
	sk, _ := btcec.PrivKeyFromBytes(b[:])
	return &OwnershipKeyPair{sk: sk}
}

// Less provides a deterministic total order over public keys, used to sort
// the two parties' keys lexicographically by compressed encoding before
// building 2-of-2 scripts.
func (pub OwnershipPublicKey) Less(other OwnershipPublicKey) bool {
	a := pub.SerializeCompressed()
	b := other.SerializeCompressed()
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// RevocationKeyPair is generated fresh for every channel state and is
// revealed to the counterparty once that state is superseded, allowing them
// to punish a cheating broadcast of the now-revoked commit transaction.
type RevocationKeyPair struct {
	sk *secp256k1.PrivateKey
}

// RevocationPublicKey is the public half of a RevocationKeyPair, shared when
// the state is created, before the corresponding secret key is revealed.
type RevocationPublicKey struct {
	pk *secp256k1.PublicKey
}

// NewRevocationKeyPair generates a fresh random revocation key pair.
func NewRevocationKeyPair() (*RevocationKeyPair, error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate revocation key: %w", err)
	}
	return &RevocationKeyPair{sk: sk}, nil
}

// PublicKey returns the public key corresponding to the key pair.
func (r *RevocationKeyPair) PublicKey() RevocationPublicKey {
	return RevocationPublicKey{pk: r.sk.PubKey()}
}

// Bytes returns the 32-byte big-endian scalar encoding of the secret key,
// the form this key is revealed to the counterparty in.
func (r *RevocationKeyPair) Bytes() [32]byte {
	var out [32]byte
	b := r.sk.Serialize()
	copy(out[:], b)
	return out
}

// RevocationKeyPairFromBytes restores a revocation key pair from its
// scalar encoding, as persisted by Bytes.
func RevocationKeyPairFromBytes(b [32]byte) *RevocationKeyPair {
	return &RevocationKeyPair{sk: secp256k1.PrivKeyFromBytes(b[:])}
}

// RevocationSecretKey is a revealed revocation secret, as received from the
// counterparty once they move on from a channel state.
type RevocationSecretKey struct {
	sk *secp256k1.PrivateKey
}

// DecodeRevocationSecretKey parses a 32-byte scalar revealed by the
// counterparty.
func DecodeRevocationSecretKey(b [32]byte) RevocationSecretKey {
	sk := secp256k1.PrivKeyFromBytes(b[:])
	return RevocationSecretKey{sk: sk}
}

// PublicKey derives the public key corresponding to the revealed secret, to
// be checked against the RevocationPublicKey published when the state was
// first created.
func (r RevocationSecretKey) PublicKey() RevocationPublicKey {
	return RevocationPublicKey{pk: r.sk.PubKey()}
}

// Bytes returns the scalar's big-endian encoding.
func (r RevocationSecretKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], r.sk.Serialize())
	return out
}

// SecretKey exposes the raw scalar so it can be handed to a punish
// transaction's signing step.
func (r RevocationSecretKey) SecretKey() *secp256k1.PrivateKey { return r.sk }

// Equal reports whether two revocation public keys are the same point. This
// is used to verify a revealed RevocationSecretKey actually corresponds to
// the RevocationPublicKey published earlier for that state; a mismatch is a
// protocol violation (ErrWrongRevocationSecretKey upstream).
func (pub RevocationPublicKey) Equal(other RevocationPublicKey) bool {
	return pub.pk.IsEqual(other.pk)
}

// SerializeCompressed returns the 33-byte compressed encoding.
func (pub RevocationPublicKey) SerializeCompressed() []byte {
	return pub.pk.SerializeCompressed()
}

// ParseRevocationPublicKey parses a compressed public key.
func ParseRevocationPublicKey(b []byte) (RevocationPublicKey, error) {
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return RevocationPublicKey{}, fmt.Errorf("parse revocation public key: %w", err)
	}
	return RevocationPublicKey{pk: pk}, nil
}

// PublishingKeyPair is generated fresh per commit transaction and used as
// the adaptor-signature encryption key for that commit transaction's
// encrypted self-signature. Publishing the commit transaction necessarily
// reveals its decryption key, which is what lets a counterparty recover it
// and, combined with a revealed revocation secret, build a punish
// transaction.
type PublishingKeyPair struct {
	sk *secp256k1.PrivateKey
}

// PublishingPublicKey is the public half of a PublishingKeyPair.
type PublishingPublicKey struct {
	pk *secp256k1.PublicKey
}

// NewPublishingKeyPair generates a fresh random publishing key pair.
func NewPublishingKeyPair() (*PublishingKeyPair, error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate publishing key: %w", err)
	}
	return &PublishingKeyPair{sk: sk}, nil
}

// PublicKey returns the public key corresponding to the key pair.
func (p *PublishingKeyPair) PublicKey() PublishingPublicKey {
	return PublishingPublicKey{pk: p.sk.PubKey()}
}

// SecretKey exposes the raw scalar so it can be handed to adaptor.Decrypt.
func (p *PublishingKeyPair) SecretKey() *secp256k1.PrivateKey { return p.sk }

// Bytes returns the scalar's big-endian encoding, for persisting a commit
// state's publishing key to storage.
func (p *PublishingKeyPair) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], p.sk.Serialize())
	return out
}

// PublishingKeyPairFromBytes restores a publishing key pair from its
// scalar encoding, as persisted by Bytes.
func PublishingKeyPairFromBytes(b [32]byte) *PublishingKeyPair {
	return &PublishingKeyPair{sk: secp256k1.PrivKeyFromBytes(b[:])}
}

// SerializeCompressed returns the 33-byte compressed encoding.
func (pub PublishingPublicKey) SerializeCompressed() []byte {
	return pub.pk.SerializeCompressed()
}

// Inner exposes the raw curve point.
func (pub PublishingPublicKey) Inner() *secp256k1.PublicKey { return pub.pk }

// ParsePublishingPublicKey parses a compressed public key.
func ParsePublishingPublicKey(b []byte) (PublishingPublicKey, error) {
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return PublishingPublicKey{}, fmt.Errorf("parse publishing public key: %w", err)
	}
	return PublishingPublicKey{pk: pk}, nil
}

// PtlcSecret is the preimage of a point time-locked contract: knowing it
// lets the redeemer build a valid adaptor-signature decryption key for the
// PTLC output.
type PtlcSecret struct {
	sk *secp256k1.PrivateKey
}

// PtlcPoint is the public point corresponding to a PtlcSecret, shared
// between the parties when the PTLC is set up.
type PtlcPoint struct {
	pk *secp256k1.PublicKey
}

// NewPtlcSecret generates a fresh random PTLC secret.
func NewPtlcSecret() (PtlcSecret, error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return PtlcSecret{}, fmt.Errorf("generate ptlc secret: %w", err)
	}
	return PtlcSecret{sk: sk}, nil
}

// PtlcSecretFromScalar builds a PtlcSecret from a known scalar, used when
// the secret originates from a DLEQ-proven cross-chain swap secret rather
// than being generated locally.
func PtlcSecretFromScalar(b [32]byte) (PtlcSecret, error) {
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetBytes((*[32]byte)(&b)); overflow != 0 {
		return PtlcSecret{}, fmt.Errorf("ptlc secret scalar overflows group order")
	}
	sk := secp256k1.NewPrivateKey(&scalar)
	return PtlcSecret{sk: sk}, nil
}

// Point returns the public PtlcPoint for this secret.
func (s PtlcSecret) Point() PtlcPoint {
	return PtlcPoint{pk: s.sk.PubKey()}
}

// SecretKey exposes the raw scalar so it can be handed to adaptor.Decrypt.
func (s PtlcSecret) SecretKey() *secp256k1.PrivateKey { return s.sk }

// Bytes returns the scalar's big-endian encoding.
func (s PtlcSecret) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], s.sk.Serialize())
	return out
}

// SerializeCompressed returns the 33-byte compressed encoding of the point.
func (p PtlcPoint) SerializeCompressed() []byte {
	return p.pk.SerializeCompressed()
}

// Inner exposes the raw curve point.
func (p PtlcPoint) Inner() *secp256k1.PublicKey { return p.pk }

// ParsePtlcPoint parses a compressed public key.
func ParsePtlcPoint(b []byte) (PtlcPoint, error) {
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return PtlcPoint{}, fmt.Errorf("parse ptlc point: %w", err)
	}
	return PtlcPoint{pk: pk}, nil
}

// RandomScalar samples a scalar uniformly from [1, n-1] on secp256k1, for
// use by packages that need fresh randomness on the same curve as the
// channel's signing keys.
func RandomScalar() (*secp256k1.ModNScalar, error) {
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
