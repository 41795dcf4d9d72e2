package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/channel"
)

// TestSpliceInBothSidesAdjustsBalances exercises spec scenario 5: both
// parties splice funds into an already-open channel, each keeping its own
// balance whole, and the resulting channel's total reflects both
// contributions while remaining independently derived byte-for-byte.
func TestSpliceInBothSidesAdjustsBalances(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, bob, _, _ := openTestChannel(t, ctx)
	net := &chaincfg.RegressionNetParams

	type result struct {
		c   *channel.Channel
		err error
	}
	resA := make(chan result, 1)
	resB := make(chan result, 1)
	go func() {
		c, err := alice.Splice(ctx, net, chanmsg.SpliceIntent{Kind: chanmsg.SpliceIn, InAmount: 500_000})
		resA <- result{c, err}
	}()
	go func() {
		c, err := bob.Splice(ctx, net, chanmsg.SpliceIntent{Kind: chanmsg.SpliceIn, InAmount: 100_000})
		resB <- result{c, err}
	}()

	ra := <-resA
	rb := <-resB
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)

	require.Equal(t, ra.c.FundingTx.Tx.TxHash(), rb.c.FundingTx.Tx.TxHash())
	require.Equal(t, int64(1_500_000), ra.c.Current.Standard.Balance.Ours)
	require.Equal(t, int64(1_100_000), ra.c.Current.Standard.Balance.Theirs)
	require.Equal(t, int64(1_100_000), rb.c.Current.Standard.Balance.Ours)
	require.Equal(t, int64(1_500_000), rb.c.Current.Standard.Balance.Theirs)
}

// TestSpliceOutReducesSplicerBalance exercises a party withdrawing funds:
// its own balance drops by the withdrawn amount plus TX_FEE, the
// counterparty's balance is untouched, and both parties still agree on the
// resulting splice transaction.
func TestSpliceOutReducesSplicerBalance(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, bob, walletA, _ := openTestChannel(t, ctx)
	net := &chaincfg.RegressionNetParams

	withdrawAddr, err := walletA.NewAddress(ctx)
	require.NoError(t, err)
	withdrawScript, err := txscript.PayToAddrScript(withdrawAddr)
	require.NoError(t, err)

	type result struct {
		c   *channel.Channel
		err error
	}
	resA := make(chan result, 1)
	resB := make(chan result, 1)
	go func() {
		c, err := alice.Splice(ctx, net, chanmsg.SpliceIntent{
			Kind:     chanmsg.SpliceOut,
			OutTxOut: wire.NewTxOut(200_000, withdrawScript),
		})
		resA <- result{c, err}
	}()
	go func() {
		c, err := bob.Splice(ctx, net, chanmsg.SpliceIntent{Kind: chanmsg.SpliceNone})
		resB <- result{c, err}
	}()

	ra := <-resA
	rb := <-resB
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)

	require.Equal(t, ra.c.FundingTx.Tx.TxHash(), rb.c.FundingTx.Tx.TxHash())
	require.Equal(t, int64(790_000), ra.c.Current.Standard.Balance.Ours)
	require.Equal(t, int64(1_000_000), ra.c.Current.Standard.Balance.Theirs)
}
