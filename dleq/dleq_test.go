package dleq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProveVerifyRoundTrip(t *testing.T) {
	secret := NewSecret(0xC0FFEE)

	proof, err := Prove(secret)
	require.NoError(t, err)

	err = Verify(proof, secret.PointSecp(), secret.PointEd())
	require.NoError(t, err)
}

func TestVerifyRejectsMismatchedSecret(t *testing.T) {
	secret := NewSecret(42)
	other := NewSecret(43)

	proof, err := Prove(secret)
	require.NoError(t, err)

	err = Verify(proof, other.PointSecp(), other.PointEd())
	require.Error(t, err)
}

func TestVerifyRejectsCrossCurveMismatch(t *testing.T) {
	secret := NewSecret(7)
	other := NewSecret(8)

	proof, err := Prove(secret)
	require.NoError(t, err)

	err = Verify(proof, secret.PointSecp(), other.PointEd())
	require.Error(t, err)
}
