package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/channel"
	"github.com/ptlc-labs/thor/keys"
)

// TestSwapBetaPTLCCooperativeMerge runs a swap-over-PTLC to completion on
// both sides, where Bob stays online long enough to cooperate on folding
// the PTLC back into a plain balance: the common case, and the only one
// that doesn't force either side to wait out mergeGracePeriod.
func TestSwapBetaPTLCCooperativeMerge(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	alice, bob, _, _ := openTestChannel(t, ctx)

	const ptlcAmount = 100_000
	const refundTimeLock = 72

	aliceSecrets, aliceResult := alice.SwapBetaPTLCAlice(ctx, channel.SwapBetaPTLCAliceParams{
		Amount:         ptlcAmount,
		RefundTimeLock: refundTimeLock,
	})
	bobSecrets, bobResult := bob.SwapBetaPTLCBob(ctx, channel.SwapBetaPTLCBobParams{})

	var aliceSecret, bobSecret keys.PtlcSecret
	select {
	case aliceSecret = <-aliceSecrets:
	case <-ctx.Done():
		t.Fatal("timed out waiting for alice's secret")
	}
	select {
	case bobSecret = <-bobSecrets:
	case <-ctx.Done():
		t.Fatal("timed out waiting for bob's secret")
	}
	require.Equal(t, aliceSecret.Bytes(), bobSecret.Bytes())

	require.NoError(t, aliceResult())
	require.NoError(t, bobResult())

	require.Equal(t, int64(1_100_000), alice.Current.Standard.Balance.Ours)
	require.Equal(t, int64(900_000), alice.Current.Standard.Balance.Theirs)
	require.Equal(t, int64(900_000), bob.Current.Standard.Balance.Ours)
	require.Equal(t, int64(1_100_000), bob.Current.Standard.Balance.Theirs)
	require.Nil(t, alice.Current.Ptlc)
	require.Nil(t, bob.Current.Ptlc)
}

// TestSwapBetaPTLCAliceRejectsOversizedProposal verifies Alice refuses to
// propose a PTLC larger than Bob's current balance, without sending
// anything over the transport.
func TestSwapBetaPTLCAliceRejectsOversizedProposal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, _, _, _ := openTestChannel(t, ctx)

	_, result := alice.SwapBetaPTLCAlice(ctx, channel.SwapBetaPTLCAliceParams{
		Amount:         alice.Current.Standard.Balance.Theirs + 1,
		RefundTimeLock: 72,
	})
	require.Error(t, result())
}

// TestSwapBetaPTLCBobRejectsOversizedProposal verifies Bob refuses a
// proposal exceeding his own balance, sent directly over the transport so
// the check is exercised without going through Alice's own balance guard.
func TestSwapBetaPTLCBobRejectsOversizedProposal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, bob, _, _ := openTestChannel(t, ctx)

	secret, err := keys.NewPtlcSecret()
	require.NoError(t, err)

	_, bobResult := bob.SwapBetaPTLCBob(ctx, channel.SwapBetaPTLCBobParams{})

	require.NoError(t, alice.Transport.Send(ctx, &chanmsg.SwapPtlcPropose{
		Point:          secret.Point(),
		Amount:         bob.Current.Standard.Balance.Ours + 1,
		RefundTimeLock: 72,
	}))

	require.Error(t, bobResult())
}
