package swap_test

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/ptlc-labs/thor/channeltest"
	"github.com/ptlc-labs/thor/swap"
)

// TestSwapCompletesAtomically runs RunAlice and RunBob concurrently against
// loopback fakes for both chains and checks that both sides agree on
// tx_lock's txid and recover the same shared secret: Alice from sampling
// it, Bob from recovering it off the Bitcoin chain.
func TestSwapCompletesAtomically(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	net := &chaincfg.RegressionNetParams
	// A single wallet/monero pair stands in for the shared chains both
	// parties observe: Bob's tx_lock broadcast must be visible to
	// Alice's watchBitcoinTx, and Alice's Monero transfer must be
	// visible to Bob's watchMoneroTransfer.
	btcChain, err := channeltest.NewWallet(net)
	require.NoError(t, err)
	moneroChain := channeltest.NewMoneroWallet()

	transportA, transportB := channeltest.NewLoopback()

	const amountBitcoin = 1_000_000
	const amountMonero = 2_000_000_000_000

	type aliceResult struct {
		res *swap.Result
		err error
	}
	type bobResult struct {
		res *swap.Result
		err error
	}
	resA := make(chan aliceResult, 1)
	resB := make(chan bobResult, 1)

	go func() {
		res, err := swap.RunAlice(ctx, swap.AliceParams{
			Transport:      transportA,
			Wallet:         btcChain,
			Monero:         moneroChain,
			Net:            net,
			AmountBitcoin:  amountBitcoin,
			AmountMonero:   amountMonero,
			RefundTimeLock: 72,
			PunishTimeLock: 36,
		})
		resA <- aliceResult{res, err}
	}()
	go func() {
		res, err := swap.RunBob(ctx, swap.BobParams{
			Transport:      transportB,
			Wallet:         btcChain,
			Monero:         moneroChain,
			Net:            net,
			AmountBitcoin:  amountBitcoin,
			AmountMonero:   amountMonero,
			RefundTimeLock: 72,
			PunishTimeLock: 36,
		})
		resB <- bobResult{res, err}
	}()

	ra := <-resA
	rb := <-resB
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)

	require.Equal(t, ra.res.TxLockTxid, rb.res.TxLockTxid)
	require.Equal(t, ra.res.Secret.Bytes(), rb.res.Secret.Bytes())
}
