package keys

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOwnershipKeyPairSignVerify(t *testing.T) {
	kp, err := NewOwnershipKeyPair()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("fund tx digest"))
	sig := kp.Sign(digest)

	require.True(t, kp.PublicKey().Verify(digest, sig))
}

func TestOwnershipKeyPairEncSign(t *testing.T) {
	kp, err := NewOwnershipKeyPair()
	require.NoError(t, err)

	pub, err := NewPublishingKeyPair()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("commit tx digest"))
	_, err = kp.EncSign(pub.PublicKey(), digest)
	require.NoError(t, err)
}

func TestRevocationKeyPairReveal(t *testing.T) {
	kp, err := NewRevocationKeyPair()
	require.NoError(t, err)

	revealed := DecodeRevocationSecretKey(kp.Bytes())
	require.True(t, revealed.PublicKey().Equal(kp.PublicKey()))
}

func TestPtlcSecretPoint(t *testing.T) {
	secret, err := NewPtlcSecret()
	require.NoError(t, err)

	point := secret.Point()
	roundTripped, err := ParsePtlcPoint(point.SerializeCompressed())
	require.NoError(t, err)
	require.Equal(t, point.SerializeCompressed(), roundTripped.SerializeCompressed())
}

func TestOwnershipPublicKeyOrdering(t *testing.T) {
	a, err := NewOwnershipKeyPair()
	require.NoError(t, err)
	b, err := NewOwnershipKeyPair()
	require.NoError(t, err)

	pa, pb := a.PublicKey(), b.PublicKey()
	require.NotEqual(t, pa.Less(pb), pb.Less(pa))
}
