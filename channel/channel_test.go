package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/channel"
	"github.com/ptlc-labs/thor/channeltest"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/transaction"
)

func openTestChannel(t *testing.T, ctx context.Context) (alice, bob *channel.Channel, walletA, walletB *channeltest.Wallet) {
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
			Transport:    transportA,
			Wallet:       walletA,
			Net:          net,
			XSelf:        xAlice,
			AmountSelf:   1_000_000,
			AmountOther:  1_000_000,
			TimeLock:     144,
			FinalAddress: addrAlice,
		})
		resA <- result{c, err}
	}()
	go func() {
		c, err := channel.Open(ctx, channel.OpenParams{
			Transport:    transportB,
			Wallet:       walletB,
			Net:          net,
			XSelf:        xBob,
			AmountSelf:   1_000_000,
			AmountOther:  1_000_000,
			TimeLock:     144,
			FinalAddress: addrBob,
		})
		resB <- result{c, err}
	}()

	ra := <-resA
	rb := <-resB
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)
	return ra.c, rb.c, walletA, walletB
}

func TestOpenProducesMatchingFundingTransaction(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, bob, _, _ := openTestChannel(t, ctx)

	require.Equal(t, alice.FundingTx.Tx.TxHash(), bob.FundingTx.Tx.TxHash())
	require.Equal(t, alice.ID(), bob.ID())
	require.Equal(t, int64(1_000_000), alice.Current.Standard.Balance.Ours)
	require.Equal(t, int64(1_000_000), alice.Current.Standard.Balance.Theirs)
}

func TestCloseSettlesCooperatively(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, bob, walletA, walletB := openTestChannel(t, ctx)

	type result struct {
		tx  *transaction.CloseTransaction
		err error
	}
	resA := make(chan result, 1)
	resB := make(chan result, 1)
	go func() { tx, err := alice.Close(ctx); resA <- result{tx, err} }()
	go func() { tx, err := bob.Close(ctx); resB <- result{tx, err} }()

	ra := <-resA
	rb := <-resB
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)
	require.Equal(t, ra.tx.Tx.TxHash(), rb.tx.Tx.TxHash())

	_, err := walletA.GetRawTransaction(ctx, ra.tx.Tx.TxHash())
	require.NoError(t, err)
	_, err = walletB.GetRawTransaction(ctx, ra.tx.Tx.TxHash())
	require.NoError(t, err)
}

func TestUpdateRevokesPreviousState(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, bob, _, _ := openTestChannel(t, ctx)
	oldCommitScript := alice.Current.Standard.CommitOutput.PkScript

	newOutputsFor := func(c *channel.Channel, ours, theirs int64) []transaction.SplitOutput {
		outs, err := channel.SplitOutputsFor(channel.Balance{Ours: ours, Theirs: theirs}, c.FinalScriptSelf, c.FinalScriptOther)
		require.NoError(t, err)
		return outs
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

	require.Equal(t, int64(700_000), alice.Current.Standard.Balance.Ours)
	require.Equal(t, int64(1_300_000), bob.Current.Standard.Balance.Ours)
	require.Len(t, alice.Revoked, 1)
	require.Len(t, bob.Revoked, 1)
	require.Equal(t, oldCommitScript, alice.Revoked[0].State.Standard.CommitOutput.PkScript)
}

func TestForceCloseThenPunishDrainsCheater(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, bob, walletA, walletB := openTestChannel(t, ctx)

	newOutputsFor := func(c *channel.Channel, ours, theirs int64) []transaction.SplitOutput {
		outs, err := channel.SplitOutputsFor(channel.Balance{Ours: ours, Theirs: theirs}, c.FinalScriptSelf, c.FinalScriptOther)
		require.NoError(t, err)
		return outs
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

	// Bob cheats: broadcasts his now-revoked first commit transaction,
	// completing its witness exactly as ForceClose would from his own
	// revoked standard state.
	revokedBob := bob.Revoked[0]
	std := revokedBob.State.Standard
	cheaterCommitTx := std.CommitTx

	aliceSig := adaptor.Decrypt(std.YSelf.SecretKey(), std.EncSigReceived)
	commitDigest, err := cheaterCommitTx.SigHash(bob.FundingOutput.Script)
	require.NoError(t, err)
	bobPlainSig := bob.XSelf.Sign(commitDigest)
	bobSig, err := adaptor.FromECDSA(bobPlainSig)
	require.NoError(t, err)
	if bob.XSelf.PublicKey().Less(bob.XOther) {
		cheaterCommitTx.Attach(bob.FundingOutput.Script, &bobSig, &aliceSig)
	} else {
		cheaterCommitTx.Attach(bob.FundingOutput.Script, &aliceSig, &bobSig)
	}

	// Each party's wallet stands in for their own view of the shared
	// chain, so the cheating broadcast lands in both.
	require.NoError(t, walletB.BroadcastSignedTransaction(ctx, cheaterCommitTx.Tx))
	require.NoError(t, walletA.BroadcastSignedTransaction(ctx, cheaterCommitTx.Tx))

	broadcastTx, err := walletA.GetRawTransaction(ctx, cheaterCommitTx.Tx.TxHash())
	require.NoError(t, err)

	revoked, err := alice.FindRevokedState(broadcastTx)
	require.NoError(t, err)

	_, err = alice.Punish(ctx, broadcastTx, *revoked, alice.FinalScriptSelf)
	require.NoError(t, err)
}
