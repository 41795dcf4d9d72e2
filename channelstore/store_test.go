package channelstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/ptlc-labs/thor/channel"
	"github.com/ptlc-labs/thor/channelstore"
	"github.com/ptlc-labs/thor/channeltest"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/transaction"
)

func openTestChannelPair(t *testing.T, ctx context.Context) (alice, bob *channel.Channel, walletA, walletB *channeltest.Wallet) {
	t.Helper()
	net := &chaincfg.RegressionNetParams

	walletA, err := channeltest.NewWallet(net)
	require.NoError(t, err)
	walletB, err = channeltest.NewWallet(net)
	require.NoError(t, err)

	transportA, transportB := channeltest.NewLoopback()

	xAlice, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)
	xBob, err := keys.NewOwnershipKeyPair()
	require.NoError(t, err)

	addrAlice, err := walletA.NewAddress(ctx)
	require.NoError(t, err)
	addrBob, err := walletB.NewAddress(ctx)
	require.NoError(t, err)

	type result struct {
		c   *channel.Channel
		err error
	}
	resA := make(chan result, 1)
	resB := make(chan result, 1)
	go func() {
		c, err := channel.Open(ctx, channel.OpenParams{
			Transport: transportA, Wallet: walletA, Net: net, XSelf: xAlice,
			AmountSelf: 1_000_000, AmountOther: 1_000_000, TimeLock: 144, FinalAddress: addrAlice,
		})
		resA <- result{c, err}
	}()
	go func() {
		c, err := channel.Open(ctx, channel.OpenParams{
			Transport: transportB, Wallet: walletB, Net: net, XSelf: xBob,
			AmountSelf: 1_000_000, AmountOther: 1_000_000, TimeLock: 144, FinalAddress: addrBob,
		})
		resB <- result{c, err}
	}()
	ra, rb := <-resA, <-resB
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)
	return ra.c, rb.c, walletA, walletB
}

// TestPutGetRoundTripsCurrentState verifies that a freshly opened channel
// survives a Put/Get round trip: the rebuilt commit, split, and funding
// transactions must come back byte-identical.
func TestPutGetRoundTripsCurrentState(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, _, walletA, _ := openTestChannelPair(t, ctx)

	store, err := channelstore.Open(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(alice))

	loaded, err := store.Get(alice.ID(), walletA, nil)
	require.NoError(t, err)

	require.Equal(t, alice.ID(), loaded.ID())
	require.Equal(t, alice.Current.Standard.Balance, loaded.Current.Standard.Balance)
	require.Equal(t, alice.Current.Standard.TimeLock, loaded.Current.Standard.TimeLock)
	require.Equal(t, alice.Current.Standard.CommitTx.Tx.TxHash(), loaded.Current.Standard.CommitTx.Tx.TxHash())
	require.Equal(t, alice.Current.Standard.SplitTx.Tx.TxHash(), loaded.Current.Standard.SplitTx.Tx.TxHash())
	require.Equal(t, alice.FundingTx.Tx.TxHash(), loaded.FundingTx.Tx.TxHash())
	require.Equal(t, alice.XOther.SerializeCompressed(), loaded.XOther.SerializeCompressed())
}

// TestPutGetRoundTripsRevokedHistory verifies that the revoked-state log
// built up by Update survives a round trip, including its PTLC-free split
// outputs and revocation secrets.
func TestPutGetRoundTripsRevokedHistory(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, bob, walletA, _ := openTestChannelPair(t, ctx)

	newOutputsFor := func(c *channel.Channel, ours, theirs int64) []transaction.SplitOutput {
		outputs, err := channel.SplitOutputsFor(channel.Balance{Ours: ours, Theirs: theirs}, c.FinalScriptSelf, c.FinalScriptOther)
		require.NoError(t, err)
		return outputs
	}
	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() {
		errA <- alice.Update(ctx, channel.UpdateParams{
			NewSplitOutputs: newOutputsFor(alice, 700_000, 1_300_000),
			NewTimeLock:     144,
			NewBalance:      channel.Balance{Ours: 700_000, Theirs: 1_300_000},
		})
	}()
	go func() {
		errB <- bob.Update(ctx, channel.UpdateParams{
			NewSplitOutputs: newOutputsFor(bob, 1_300_000, 700_000),
			NewTimeLock:     144,
			NewBalance:      channel.Balance{Ours: 1_300_000, Theirs: 700_000},
		})
	}()
	require.NoError(t, <-errA)
	require.NoError(t, <-errB)
	require.Len(t, alice.Revoked, 1)

	store, err := channelstore.Open(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Put(alice))

	loaded, err := store.Get(alice.ID(), walletA, nil)
	require.NoError(t, err)

	require.Len(t, loaded.Revoked, 1)
	require.Equal(t, alice.Revoked[0].State.Standard.Balance, loaded.Revoked[0].State.Standard.Balance)
	require.Equal(t, alice.Revoked[0].State.Standard.CommitTx.Tx.TxHash(), loaded.Revoked[0].State.Standard.CommitTx.Tx.TxHash())
	require.Equal(t, alice.Revoked[0].ROtherSecret.Bytes(), loaded.Revoked[0].ROtherSecret.Bytes())
	require.Equal(t, int64(700_000), loaded.Current.Standard.Balance.Ours)
}

// TestGetUnknownChannelReturnsNotFound verifies the not-found path.
func TestGetUnknownChannelReturnsNotFound(t *testing.T) {
	store, err := channelstore.Open(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	defer store.Close()

	var id [32]byte
	_, err = store.Get(id, nil, nil)
	require.ErrorIs(t, err, channelstore.ErrNotFound)
}

// TestDeleteRemovesRecord verifies Delete actually removes a stored
// channel and reports ErrNotFound on a second call.
func TestDeleteRemovesRecord(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	alice, _, _, _ := openTestChannelPair(t, ctx)

	store, err := channelstore.Open(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(alice))
	require.NoError(t, store.Delete(alice.ID()))
	require.ErrorIs(t, store.Delete(alice.ID()), channelstore.ErrNotFound)
}

// TestListReturnsAllStoredChannels verifies List surfaces every persisted
// channel ID.
func TestListReturnsAllStoredChannels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	alice, _, _, _ := openTestChannelPair(t, ctx)
	alice2, _, _, _ := openTestChannelPair(t, ctx)

	store, err := channelstore.Open(filepath.Join(t.TempDir(), "channels.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(alice))
	require.NoError(t, store.Put(alice2))

	ids, err := store.List()
	require.NoError(t, err)
	require.Len(t, ids, 2)
}
