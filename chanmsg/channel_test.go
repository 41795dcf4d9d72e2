package chanmsg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ptlc-labs/thor/keys"
)

func TestCreate0CarriesTimeLock(t *testing.T) {
	x, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)

	msg := &Create0{
		X:            x.PublicKey(),
		FinalAddress: []byte{0x00, 0x14, 0x01, 0x02},
		TimeLock:     144,
	}

	var buf bytes.Buffer
	require.NoError(t, msg.Encode(&buf))

	var decoded Create0
	require.NoError(t, decoded.Decode(&buf))

	require.Equal(t, msg.X.SerializeCompressed(), decoded.X.SerializeCompressed())
	require.Equal(t, msg.FinalAddress, decoded.FinalAddress)
	require.Equal(t, uint32(144), decoded.TimeLock)
}

func TestUpdate0CarriesTimeLock(t *testing.T) {
	r, err := keys.NewRevocationKeyPair()
	require.NoError(t, err)
	y, err := keys.NewPublishingKeyPair()
	require.NoError(t, err)

	msg := &Update0{R: r.PublicKey(), Y: y.PublicKey(), TimeLock: 72}

	var buf bytes.Buffer
	require.NoError(t, msg.Encode(&buf))

	var decoded Update0
	require.NoError(t, decoded.Decode(&buf))

	require.Equal(t, msg.R.SerializeCompressed(), decoded.R.SerializeCompressed())
	require.Equal(t, msg.Y.SerializeCompressed(), decoded.Y.SerializeCompressed())
	require.Equal(t, uint32(72), decoded.TimeLock)
}

func TestSplice2RoundTrip(t *testing.T) {
	signer, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	encKey, err := keys.NewPublishingKeyPair()
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], []byte("splice-commit-digest-test-value"))
	encSig, err := signer.EncSign(encKey.PublicKey(), digest)
	require.NoError(t, err)
	sigSplit := signer.Sign(digest)

	msg := &Splice2{EncSigCommit: encSig, SigSplit: sigSplit}

	var buf bytes.Buffer
	require.NoError(t, msg.Encode(&buf))

	var decoded Splice2
	require.NoError(t, decoded.Decode(&buf))

	require.Equal(t, msg.EncSigCommit.R.SerializeCompressed(), decoded.EncSigCommit.R.SerializeCompressed())
	require.True(t, decoded.SigSplit.Verify(digest[:], signer.PublicKey().Inner()))
}

func TestReadMessageRejectsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF})

	_, err := ReadMessage(&buf)
	require.Error(t, err)
}
