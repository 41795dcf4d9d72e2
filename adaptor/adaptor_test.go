package adaptor

import (
	"crypto/sha256"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func TestEncSignDecryptRoundTrip(t *testing.T) {
	signingKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	encryptionKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("commit transaction digest"))

	encsig, err := EncSign(signingKey, encryptionKey.PubKey(), digest)
	require.NoError(t, err)

	err = Verify(signingKey.PubKey(), encryptionKey.PubKey(), digest, encsig)
	require.NoError(t, err)

	sig := Decrypt(encryptionKey, encsig)
	require.True(t, VerifySignature(signingKey.PubKey(), digest, sig))
}

func TestRecoverDecryptionKey(t *testing.T) {
	signingKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	encryptionKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("another digest"))

	encsig, err := EncSign(signingKey, encryptionKey.PubKey(), digest)
	require.NoError(t, err)

	sig := Decrypt(encryptionKey, encsig)

	recovered, err := Recover(encryptionKey.PubKey(), sig, encsig)
	require.NoError(t, err)
	require.True(t, recovered.PubKey().IsEqual(encryptionKey.PubKey()))
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	signingKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	encryptionKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("digest"))

	encsig, err := EncSign(signingKey, encryptionKey.PubKey(), digest)
	require.NoError(t, err)

	tampered := *encsig
	tamperedSHat := *encsig.SHat
	tamperedSHat.Add(&tamperedSHat)
	tampered.SHat = &tamperedSHat

	err = Verify(signingKey.PubKey(), encryptionKey.PubKey(), digest, &tampered)
	require.Error(t, err)
}

func TestDERRoundTrip(t *testing.T) {
	signingKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("plain digest"))
	encryptionKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	encsig, err := EncSign(signingKey, encryptionKey.PubKey(), digest)
	require.NoError(t, err)
	sig := Decrypt(encryptionKey, encsig)

	der := sig.DER()
	parsed, err := ParseDERSignature(der)
	require.NoError(t, err)
	require.True(t, parsed.R.Equals(&sig.R))
	require.True(t, parsed.S.Equals(&sig.S))
}
