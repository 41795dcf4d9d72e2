package chanmsg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ptlc-labs/thor/dleq"
	"github.com/ptlc-labs/thor/keys"
)

func TestSwap0aRoundTrip(t *testing.T) {
	a, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	secret := dleq.NewSecret(12345)
	proof, err := dleq.Prove(secret)
	require.NoError(t, err)
	sABitcoin, err := keys.PtlcSecretFromScalar(secret.Secp256k1ScalarBytes())
	require.NoError(t, err)
	va, err := keys.NewMoneroScalar()
	require.NoError(t, err)
	sAMonero, err := keys.MoneroScalarFromCanonicalBytes(secret.Ed25519ScalarBytes())
	require.NoError(t, err)

	msg := &Swap0a{
		A:           a.PublicKey(),
		SAMonero:    sAMonero.Point(),
		SABitcoin:   sABitcoin.Point(),
		DleqProofSA: proof,
		VA:          va,
		RedeemAddr:  []byte("bcrt1qredeem"),
		PunishAddr:  []byte("bcrt1qpunish"),
	}

	var buf bytes.Buffer
	require.NoError(t, msg.Encode(&buf))

	var decoded Swap0a
	require.NoError(t, decoded.Decode(&buf))

	require.Equal(t, msg.A.SerializeCompressed(), decoded.A.SerializeCompressed())
	require.Equal(t, msg.SAMonero.Bytes(), decoded.SAMonero.Bytes())
	require.Equal(t, msg.SABitcoin.SerializeCompressed(), decoded.SABitcoin.SerializeCompressed())
	require.Equal(t, msg.VA.Bytes(), decoded.VA.Bytes())
	require.Equal(t, msg.RedeemAddr, decoded.RedeemAddr)
	require.Equal(t, msg.PunishAddr, decoded.PunishAddr)
}

func TestSwap1aRoundTrip(t *testing.T) {
	signer, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	encKey, err := keys.NewPublishingKeyPair()
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], []byte("deterministic-test-digest-value"))
	sig := signer.Sign(digest)
	encSig, err := signer.EncSign(encKey.PublicKey(), digest)
	require.NoError(t, err)

	msg := &Swap1a{SigTxCancel: sig, EncSigTxRefund: encSig}

	var buf bytes.Buffer
	require.NoError(t, msg.Encode(&buf))

	var decoded Swap1a
	require.NoError(t, decoded.Decode(&buf))

	require.True(t, decoded.SigTxCancel.Verify(digest[:], signer.PublicKey().Inner()))
	require.Equal(t, msg.EncSigTxRefund.R.SerializeCompressed(), decoded.EncSigTxRefund.R.SerializeCompressed())
}

func TestSwapTxLockProofRoundTrip(t *testing.T) {
	msg := &SwapTxLockProof{
		TxHash: []byte{0x01, 0x02, 0x03},
		TxKey:  []byte{0x04, 0x05, 0x06},
	}

	var buf bytes.Buffer
	require.NoError(t, msg.Encode(&buf))

	var decoded SwapTxLockProof
	require.NoError(t, decoded.Decode(&buf))

	require.Equal(t, msg.TxHash, decoded.TxHash)
	require.Equal(t, msg.TxKey, decoded.TxKey)
}

func TestSwapRedeemEncSigRoundTrip(t *testing.T) {
	signer, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	encKey, err := keys.NewPublishingKeyPair()
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], []byte("another-deterministic-digest-32"))
	encSig, err := signer.EncSign(encKey.PublicKey(), digest)
	require.NoError(t, err)

	msg := &SwapRedeemEncSig{EncSig: encSig}

	var buf bytes.Buffer
	require.NoError(t, msg.Encode(&buf))

	var decoded SwapRedeemEncSig
	require.NoError(t, decoded.Decode(&buf))

	require.Equal(t, msg.EncSig.R.SerializeCompressed(), decoded.EncSig.R.SerializeCompressed())
	require.Equal(t, msg.EncSig.RTilde.SerializeCompressed(), decoded.EncSig.RTilde.SerializeCompressed())
}

func TestSwapMessageFramingThroughWriteReadMessage(t *testing.T) {
	msg := &SwapTxLockProof{TxHash: []byte("hash"), TxKey: []byte("key")}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, msg)
	require.NoError(t, err)

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.IsType(t, &SwapTxLockProof{}, decoded)
	require.Equal(t, MsgSwapTxLockProof, decoded.MsgType())
}
