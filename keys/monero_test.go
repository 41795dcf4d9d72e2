package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMoneroScalarPointRoundTrip(t *testing.T) {
	s, err := NewMoneroScalar()
	require.NoError(t, err)

	point := s.Point()
	pointBytes := point.Bytes()
	parsed, err := ParseMoneroPoint(pointBytes[:])
	require.NoError(t, err)
	require.Equal(t, point.Bytes(), parsed.Bytes())
}

func TestMoneroScalarAddMatchesPointAdd(t *testing.T) {
	a, err := NewMoneroScalar()
	require.NoError(t, err)
	b, err := NewMoneroScalar()
	require.NoError(t, err)

	sum := a.Add(b)
	pointSum := a.Point().Add(b.Point())

	require.Equal(t, sum.Point().Bytes(), pointSum.Bytes())
}
