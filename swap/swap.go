// Package swap implements the cross-chain atomic swap between a Bitcoin
// amount and a Monero amount: Alice sells Monero and buys Bitcoin, Bob sells
// Bitcoin and buys Monero. The two sides are bound by adaptor signatures
// over a shared secret s_a, itself proven (via a cross-curve DLEQ proof) to
// equal the scalar behind Alice's Monero-side spend key share, the same way
// original_source/baldr/src/alice.rs's State0..State5 bind the two legs.
package swap

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/dleq"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/moneroiface"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
	"github.com/ptlc-labs/thor/walletiface"
)

// PollInterval is how often the swap's on-chain watchers poll the wallet or
// Monero backend for confirmation.
const PollInterval = 1 * time.Second

// AliceParams bundles Alice's session inputs to RunAlice. Alice sells
// Monero and is paid in Bitcoin by redeeming tx_lock, which Bob funds.
type AliceParams struct {
	Transport chanmsg.Transport
	Wallet    walletiface.BitcoinWallet
	Monero    moneroiface.Wallet
	Net       *chaincfg.Params
	Clock     clock.Clock

	AmountBitcoin  int64
	AmountMonero   uint64
	RefundTimeLock uint32
	PunishTimeLock uint32
}

// BobParams bundles Bob's session inputs to RunBob. Bob sells Bitcoin,
// funding tx_lock, and is paid in Monero.
type BobParams struct {
	Transport chanmsg.Transport
	Wallet    walletiface.BitcoinWallet
	Monero    moneroiface.Wallet
	Net       *chaincfg.Params
	Clock     clock.Clock

	AmountBitcoin  int64
	AmountMonero   uint64
	RefundTimeLock uint32
	PunishTimeLock uint32
}

// Result is what a completed swap leaves its caller. Secret is only
// meaningful when Aborted is nil; a swap that settled via the cancel path
// reports how it settled instead.
type Result struct {
	TxLockTxid chainhash.Hash
	Secret     keys.PtlcSecret
	Aborted    *AbortOutcome
}

func defaultClock(c clock.Clock) clock.Clock {
	if c != nil {
		return c
	}
	return clock.NewDefaultClock()
}

// newSwapSecret samples a fresh per-session cross-curve secret (s_a or s_b)
// and proves it, following cross_curve_dleq::Scalar::random in the original
// source.
func newSwapSecret() (dleq.Secret, *dleq.Proof, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return dleq.Secret{}, nil, fmt.Errorf("swap: sample secret: %w", err)
	}
	value := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	secret := dleq.NewSecret(value)
	proof, err := dleq.Prove(secret)
	if err != nil {
		return dleq.Secret{}, nil, fmt.Errorf("swap: prove dleq: %w", err)
	}
	return secret, proof, nil
}

func bitcoinPoint(s dleq.Secret) (keys.PtlcPoint, error) {
	return keys.ParsePtlcPoint(s.PointSecp().SerializeCompressed())
}

func moneroPointOf(s dleq.Secret) (keys.MoneroPoint, error) {
	return keys.ParseMoneroPoint(s.PointEd().Bytes())
}

func moneroScalarOf(s dleq.Secret) (keys.MoneroScalar, error) {
	return keys.MoneroScalarFromCanonicalBytes(s.Ed25519ScalarBytes())
}

func ptlcSecretFromDleq(s dleq.Secret) (keys.PtlcSecret, error) {
	return keys.PtlcSecretFromScalar(s.Secp256k1ScalarBytes())
}

// moneroScalarFromRecovered converts a secp256k1 scalar recovered from a
// published swap signature (RecoverSwapSecret) into the ed25519 scalar its
// dleq.Proof already bound it to. newSwapSecret only ever samples the low
// 32 bits of a scalar (dleq.Bits), so the conversion is exactly the inverse
// of secpScalarFromUint32/edScalarFromUint32: take the low 4 bytes of the
// big-endian secp256k1 encoding and lay them out little-endian.
func moneroScalarFromRecovered(y *secp256k1.PrivateKey) (keys.MoneroScalar, error) {
	skBytes := y.Serialize()
	var le [32]byte
	le[0] = skBytes[31]
	le[1] = skBytes[30]
	le[2] = skBytes[29]
	le[3] = skBytes[28]
	return keys.MoneroScalarFromCanonicalBytes(le)
}

// lockOutputAddress derives the P2WSH address tx_lock's 2-of-2 output pays
// to, so the funding party's wallet can build a PSBT targeting it.
func lockOutputAddress(out *transaction.SwapLockOutput, net *chaincfg.Params) (btcutil.Address, error) {
	hash := sha256.Sum256(out.Script)
	return btcutil.NewAddressWitnessScriptHash(hash[:], net)
}

// verifyLockFunding checks that a funding PSBT for tx_lock actually pays
// out's amount to out's witness program among its outputs, returning that
// output's index.
func verifyLockFunding(pkt *psbt.Packet, out *transaction.SwapLockOutput) (uint32, error) {
	for i, txOut := range pkt.UnsignedTx.TxOut {
		if txOut.Value == out.Amount && bytes.Equal(txOut.PkScript, out.PkScript) {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("swap: %w", thorerrors.ErrSwapLockOutputMismatch)
}

func publicKeyEqualSwap(a, b keys.OwnershipPublicKey) bool {
	return bytes.Equal(a.SerializeCompressed(), b.SerializeCompressed())
}

// orderedSwapSigs returns (sigForOutputA, sigForOutputB), given which of the
// two per-session keys self holds.
func orderedSwapSigs(outputA, selfKey keys.OwnershipPublicKey, selfSig, otherSig *adaptor.Signature) (*adaptor.Signature, *adaptor.Signature) {
	if publicKeyEqualSwap(outputA, selfKey) {
		return selfSig, otherSig
	}
	return otherSig, selfSig
}

// watchBitcoinTx polls wallet for txid's transaction until it appears
// on-chain or ctx is done, standing in for watch_for_lock_btc/
// watch_for_redeem_btc in the original source.
func watchBitcoinTx(ctx context.Context, wallet walletiface.BitcoinWallet, txid chainhash.Hash) (*wire.MsgTx, error) {
	t := ticker.New(PollInterval)
	t.Resume()
	defer t.Stop()

	for {
		tx, err := wallet.GetRawTransaction(ctx, txid)
		if err == nil {
			return tx, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.Ticks():
		}
	}
}

// watchMoneroTransfer polls CheckTransfer until it accepts the proof or ctx
// is done, standing in for watch_for_lock_monero.
func watchMoneroTransfer(ctx context.Context, wallet moneroiface.Wallet, spendKey, viewKey keys.MoneroPoint, proof *moneroiface.TransferProof, amount uint64) error {
	t := ticker.New(PollInterval)
	t.Resume()
	defer t.Stop()

	for {
		err := wallet.CheckTransfer(ctx, spendKey, viewKey, proof, amount)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("swap: %w: %v", thorerrors.ErrMoneroTransferInvalid, err)
		case <-t.Ticks():
		}
	}
}

// findSignatureByKey returns whichever of a two-signature witness verifies
// under pub at digest, mirroring channel.findOwnSignature.
func findSignatureByKey(witness wire.TxWitness, pub keys.OwnershipPublicKey, digest [32]byte) (*ecdsa.Signature, error) {
	for i := 0; i < len(witness) && i < 2; i++ {
		sig, err := ecdsa.ParseDERSignature(witness[i])
		if err != nil {
			continue
		}
		if pub.Verify(digest, sig) {
			return sig, nil
		}
	}
	return nil, fmt.Errorf("swap: %w: no witness signature matches key", thorerrors.ErrInvalidSignature)
}

func expectSwap0a(ctx context.Context, t chanmsg.Transport) (*chanmsg.Swap0a, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Swap0a)
	if !ok {
		return nil, unexpectedSwap("Swap0a", msg)
	}
	return m, nil
}

func expectSwap0b(ctx context.Context, t chanmsg.Transport) (*chanmsg.Swap0b, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Swap0b)
	if !ok {
		return nil, unexpectedSwap("Swap0b", msg)
	}
	return m, nil
}

func expectSwap1a(ctx context.Context, t chanmsg.Transport) (*chanmsg.Swap1a, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Swap1a)
	if !ok {
		return nil, unexpectedSwap("Swap1a", msg)
	}
	return m, nil
}

func expectSwap1b(ctx context.Context, t chanmsg.Transport) (*chanmsg.Swap1b, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Swap1b)
	if !ok {
		return nil, unexpectedSwap("Swap1b", msg)
	}
	return m, nil
}

func expectSwapTxLockProof(ctx context.Context, t chanmsg.Transport) (*chanmsg.SwapTxLockProof, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.SwapTxLockProof)
	if !ok {
		return nil, unexpectedSwap("SwapTxLockProof", msg)
	}
	return m, nil
}

func expectSwapRedeemEncSig(ctx context.Context, t chanmsg.Transport) (*chanmsg.SwapRedeemEncSig, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.SwapRedeemEncSig)
	if !ok {
		return nil, unexpectedSwap("SwapRedeemEncSig", msg)
	}
	return m, nil
}

func unexpectedSwap(expected string, got chanmsg.Message) error {
	return &thorerrors.UnexpectedMessageError{Expected: expected, Received: fmt.Sprintf("%T", got)}
}
