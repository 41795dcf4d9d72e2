package channelstore

// Rebuilds a channel.Channel from its persisted form, replaying the same
// transaction Build* calls channel.Open/Update use so the commit, split,
// and PTLC transactions come back byte-identical to the ones that were
// current when the channel was saved. Grounded on channel/open.go's
// buildCommitOutputFor and channel/update.go's scriptForRole, duplicated
// here (unexported in their own package) the way swap/psbt.go duplicates channel.decodeWitness.

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/channel"
	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/transaction"
	"github.com/ptlc-labs/thor/walletiface"
)

func buildCommitOutputFor(xSelf, xOther keys.OwnershipPublicKey, rSelf, rOther keys.RevocationPublicKey, ySelf, yOther keys.PublishingPublicKey, timeLock uint32, amount int64) (*transaction.CommitOutput, error) {
	a := transaction.CommitPartyKeys{Ownership: xSelf, Revocation: rSelf, Publishing: ySelf}
	b := transaction.CommitPartyKeys{Ownership: xOther, Revocation: rOther, Publishing: yOther}
	return transaction.BuildCommitOutput(a, b, timeLock, amount-transaction.TxFee)
}

func publicKeyEqual(a, b keys.OwnershipPublicKey) bool {
	return !a.Less(b) && !b.Less(a)
}

func scriptForRole(ptlc *transaction.PtlcOutput, xSelf keys.OwnershipPublicKey, finalScriptSelf, finalScriptOther []byte, role channel.Role) []byte {
	selfIsFunder := publicKeyEqual(ptlc.XFunder, xSelf)
	if (role == channel.RoleFunder) == selfIsFunder {
		return finalScriptSelf
	}
	return finalScriptOther
}

// rebuildChannelState rebuilds a channel.ChannelState's derived fields
// (commit output/transaction, split transaction, and, if present, the
// PTLC's redeem/refund transactions) from a persistedChannelState.
func rebuildChannelState(ps persistedChannelState, xSelf keys.OwnershipPublicKey, xOther keys.OwnershipPublicKey, finalScriptSelf, finalScriptOther []byte, fundOutPoint wire.OutPoint, fundAmount int64) (channel.ChannelState, error) {
	std := ps.Standard

	commitOutput, err := buildCommitOutputFor(xSelf, xOther, std.RSelf.PublicKey(), std.ROther, std.YSelf.PublicKey(), std.YOther, std.TimeLock, fundAmount)
	if err != nil {
		return channel.ChannelState{}, fmt.Errorf("channelstore: rebuild commit output: %w", err)
	}
	commitTx := transaction.BuildCommitTransaction(fundOutPoint, fundAmount, commitOutput)
	commitOutPoint := wire.OutPoint{Hash: commitTx.Tx.TxHash(), Index: 0}
	splitTx, err := transaction.BuildSplitTransaction(commitOutPoint, commitOutput.Amount, std.TimeLock, std.SplitOutputs)
	if err != nil {
		return channel.ChannelState{}, fmt.Errorf("channelstore: rebuild split transaction: %w", err)
	}
	if len(std.SplitWitness) > 0 {
		splitTx.Attach(std.SplitWitness)
	}

	state := channel.ChannelState{
		Standard: channel.StandardState{
			Balance:  std.Balance,
			TimeLock: std.TimeLock,

			RSelf:  std.RSelf,
			ROther: std.ROther,
			YSelf:  std.YSelf,
			YOther: std.YOther,

			CommitOutput: commitOutput,
			CommitTx:     commitTx,

			SplitOutputs: std.SplitOutputs,
			SplitTx:      splitTx,
		},
	}
	if std.HasEncSigSelfAuthored {
		state.Standard.EncSigSelfAuthored = std.EncSigSelfAuthored
	}
	if std.HasEncSigReceived {
		state.Standard.EncSigReceived = std.EncSigReceived
	}

	if !ps.HasPtlc {
		return state, nil
	}

	pp := ps.Ptlc
	idx := splitTx.IndexOf(pp.Output)
	if idx < 0 {
		return channel.ChannelState{}, fmt.Errorf("channelstore: persisted ptlc output missing from rebuilt split transaction")
	}
	ptlcOutPoint := splitTx.OutPointFor(idx)

	role := channel.RoleRedeemer
	if publicKeyEqual(pp.Output.XFunder, xSelf) {
		role = channel.RoleFunder
	}
	redeemScript := scriptForRole(pp.Output, xSelf, finalScriptSelf, finalScriptOther, channel.RoleRedeemer)
	funderScript := scriptForRole(pp.Output, xSelf, finalScriptSelf, finalScriptOther, channel.RoleFunder)

	redeemTx := transaction.BuildRedeemTransaction(ptlcOutPoint, pp.Output, redeemScript)
	refundTx := transaction.BuildRefundTransaction(ptlcOutPoint, pp.Output, funderScript)

	state.Ptlc = &channel.PtlcState{
		Output:   pp.Output,
		Role:     role,
		RedeemTx: redeemTx,
		RefundTx: refundTx,

		EncSigRedeemFunder: pp.EncSigRedeemFunder,
		SigRedeemRedeemer:  pp.SigRedeemRedeemer,
		SigRefundFunder:    pp.SigRefundFunder,
		SigRefundRedeemer:  pp.SigRefundRedeemer,
	}
	if pp.HasSecret {
		secret := pp.Secret
		state.Ptlc.Secret = &secret
	}
	return state, nil
}

// rebuildChannel rebuilds a full channel.Channel from its persisted form,
// attaching the caller-supplied wallet and transport (neither of which is
// persisted: both are re-established per process, not per channel).
func rebuildChannel(pc persistedChannel, wallet walletiface.BitcoinWallet, transport chanmsg.Transport) (*channel.Channel, error) {
	fundOutPoint := wire.OutPoint{Hash: pc.FundingTx.TxHash(), Index: pc.FundingOutIdx}

	fundingOutput, err := transaction.BuildFundingOutput(pc.XSelf.PublicKey(), pc.XOther, pc.FundingTx.TxOut[pc.FundingOutIdx].Value)
	if err != nil {
		return nil, fmt.Errorf("channelstore: rebuild funding output: %w", err)
	}

	current, err := rebuildChannelState(pc.Current, pc.XSelf.PublicKey(), pc.XOther, pc.FinalScriptSelf, pc.FinalScriptOther, fundOutPoint, fundingOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("channelstore: rebuild current state: %w", err)
	}

	revoked := make([]channel.RevokedState, 0, len(pc.Revoked))
	for i, rs := range pc.Revoked {
		st, err := rebuildChannelState(rs.State, pc.XSelf.PublicKey(), pc.XOther, pc.FinalScriptSelf, pc.FinalScriptOther, fundOutPoint, fundingOutput.Amount)
		if err != nil {
			return nil, fmt.Errorf("channelstore: rebuild revoked state %d: %w", i, err)
		}
		revoked = append(revoked, channel.RevokedState{State: st, ROtherSecret: rs.ROtherSecret})
	}

	return &channel.Channel{
		Wallet:    wallet,
		Transport: transport,

		XSelf:  pc.XSelf,
		XOther: pc.XOther,

		FinalScriptSelf:  pc.FinalScriptSelf,
		FinalScriptOther: pc.FinalScriptOther,

		FundingTx:     transaction.NewFundingTransaction(pc.FundingTx, fundingOutput, pc.FundingOutIdx),
		FundingOutput: fundingOutput,

		Current: current,
		Revoked: revoked,
	}, nil
}

// snapshotChannel captures a channel.Channel's persistable fields.
func snapshotChannel(c *channel.Channel) persistedChannel {
	return persistedChannel{
		XSelf:  c.XSelf,
		XOther: c.XOther,

		FinalScriptSelf:  c.FinalScriptSelf,
		FinalScriptOther: c.FinalScriptOther,

		FundingTx:     c.FundingTx.Tx,
		FundingOutIdx: c.FundingTx.OutIndex,

		Current: snapshotChannelState(c.Current),
		Revoked: snapshotRevokedStates(c.Revoked),
	}
}

func snapshotChannelState(s channel.ChannelState) persistedChannelState {
	ps := persistedChannelState{
		Standard: persistedStandardState{
			Balance:  s.Standard.Balance,
			TimeLock: s.Standard.TimeLock,

			RSelf:  s.Standard.RSelf,
			ROther: s.Standard.ROther,
			YSelf:  s.Standard.YSelf,
			YOther: s.Standard.YOther,

			SplitOutputs: s.Standard.SplitOutputs,
			SplitWitness: s.Standard.SplitTx.Tx.TxIn[0].Witness,
		},
	}
	if s.Standard.EncSigSelfAuthored != nil {
		ps.Standard.HasEncSigSelfAuthored = true
		ps.Standard.EncSigSelfAuthored = s.Standard.EncSigSelfAuthored
	}
	if s.Standard.EncSigReceived != nil {
		ps.Standard.HasEncSigReceived = true
		ps.Standard.EncSigReceived = s.Standard.EncSigReceived
	}
	if s.Ptlc != nil {
		ps.HasPtlc = true
		ps.Ptlc = persistedPtlcState{
			Output:             s.Ptlc.Output,
			EncSigRedeemFunder: s.Ptlc.EncSigRedeemFunder,
			SigRedeemRedeemer:  s.Ptlc.SigRedeemRedeemer,
			SigRefundFunder:    s.Ptlc.SigRefundFunder,
			SigRefundRedeemer:  s.Ptlc.SigRefundRedeemer,
		}
		if s.Ptlc.Secret != nil {
			ps.Ptlc.HasSecret = true
			ps.Ptlc.Secret = *s.Ptlc.Secret
		}
	}
	return ps
}

func snapshotRevokedStates(revoked []channel.RevokedState) []persistedRevokedState {
	out := make([]persistedRevokedState, 0, len(revoked))
	for _, rs := range revoked {
		out = append(out, persistedRevokedState{
			State:        snapshotChannelState(rs.State),
			ROtherSecret: rs.ROtherSecret,
		})
	}
	return out
}
