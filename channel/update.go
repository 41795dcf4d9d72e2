package channel

import (
	"context"
	"fmt"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
)

// UpdateParams describes the new state an Update call negotiates: the full
// replacement list of split outputs (balances and, for at most one of
// them, an embedded PTLC) and the new state's relative timelock.
type UpdateParams struct {
	NewSplitOutputs []transaction.SplitOutput
	NewTimeLock     uint32
	NewBalance      Balance
}

// Update runs the channel's four-round update protocol (with an inserted
// 0.5 round when the new state embeds a PTLC), replacing the channel's
// current state and pushing the superseded one onto its revoked history.
// Verification failure at any round aborts the call and leaves the channel
// in its prior state; Update either fully succeeds or changes nothing.
func (c *Channel) Update(ctx context.Context, p UpdateParams) error {
	ptlcOut, selfRole, hasPtlc := findPtlcOutput(p.NewSplitOutputs, c.XSelf.PublicKey())

	// Round 0 (ShareKeys): exchange fresh (R, Y).
	rSelf, err := keys.NewRevocationKeyPair()
	if err != nil {
		return fmt.Errorf("channel: generate revocation key: %w", err)
	}
	ySelf, err := keys.NewPublishingKeyPair()
	if err != nil {
		return fmt.Errorf("channel: generate publishing key: %w", err)
	}
	if err := c.Transport.Send(ctx, &chanmsg.Update0{R: rSelf.PublicKey(), Y: ySelf.PublicKey(), TimeLock: p.NewTimeLock}); err != nil {
		return fmt.Errorf("channel: update round 0 send: %w", err)
	}
	remote0, err := expectUpdate0(ctx, c.Transport)
	if err != nil {
		return err
	}
	if err := checkRelativeTimeLocksMatch(p.NewTimeLock, remote0.TimeLock); err != nil {
		return err
	}

	commitOutput, err := buildCommitOutputFor(c.XSelf.PublicKey(), c.XOther, rSelf.PublicKey(), remote0.R, ySelf.PublicKey(), remote0.Y, p.NewTimeLock, c.FundingOutput.Amount)
	if err != nil {
		return fmt.Errorf("channel: build commit output: %w", err)
	}
	commitTx := transaction.BuildCommitTransaction(c.fundOutPoint(), c.FundingOutput.Amount, commitOutput)
	splitTx, err := transaction.BuildSplitTransaction(commitOutPoint(commitTx), commitOutput.Amount, p.NewTimeLock, p.NewSplitOutputs)
	if err != nil {
		return fmt.Errorf("channel: build split transaction: %w", err)
	}

	var ptlcState *PtlcState
	if hasPtlc {
		ptlcState, err = negotiatePtlc(ctx, c, splitTx, ptlcOut, selfRole)
		if err != nil {
			return fmt.Errorf("channel: negotiate ptlc: %w", err)
		}
	}

	// Round 1 (ShareSplitSignature).
	splitDigest, err := splitTx.SigHash(commitOutput.Script, commitOutput.Amount)
	if err != nil {
		return fmt.Errorf("channel: split sighash: %w", err)
	}
	sigSplitSelf := c.XSelf.Sign(splitDigest)
	if err := c.Transport.Send(ctx, &chanmsg.Update1{Sig: sigSplitSelf}); err != nil {
		return fmt.Errorf("channel: update round 1 send: %w", err)
	}
	remote1, err := expectUpdate1(ctx, c.Transport)
	if err != nil {
		return err
	}
	if !c.XOther.Verify(splitDigest, remote1.Sig) {
		return fmt.Errorf("channel: %w: split transaction signature", thorerrors.ErrInvalidSignature)
	}
	selfIsX0 := c.XSelf.PublicKey().Less(c.XOther)
	attachSplitWitness(splitTx, commitOutput.Script, selfIsX0, sigSplitSelf, remote1.Sig)

	// Round 2 (ShareCommitEncryptedSignature).
	commitDigest, err := commitTx.SigHash(c.FundingOutput.Script)
	if err != nil {
		return fmt.Errorf("channel: commit sighash: %w", err)
	}
	encSigSelf, err := c.XSelf.EncSign(remote0.Y, commitDigest)
	if err != nil {
		return fmt.Errorf("channel: encrypt commit signature: %w", err)
	}
	if err := c.Transport.Send(ctx, &chanmsg.Update2{EncSig: encSigSelf}); err != nil {
		return fmt.Errorf("channel: update round 2 send: %w", err)
	}
	remote2, err := expectUpdate2(ctx, c.Transport)
	if err != nil {
		return err
	}
	if err := adaptor.Verify(c.XOther.Inner(), ySelf.PublicKey().Inner(), commitDigest, remote2.EncSig); err != nil {
		return fmt.Errorf("channel: %w: commit encrypted signature: %v", thorerrors.ErrInvalidEncryptedSignature, err)
	}

	// Round 3 (RevealRevocationSecretKey): reveal the now-superseded
	// state's revocation secret, and check the counterparty's revealed
	// secret matches the public key they gave us when that state was
	// created.
	oldRSecret := c.Current.Standard.RSelf.Bytes()
	if err := c.Transport.Send(ctx, &chanmsg.Update3{Secret: oldRSecret}); err != nil {
		return fmt.Errorf("channel: update round 3 send: %w", err)
	}
	remote3, err := expectUpdate3(ctx, c.Transport)
	if err != nil {
		return err
	}
	revealedOther := keys.DecodeRevocationSecretKey(remote3.Secret)
	if !revealedOther.PublicKey().Equal(c.Current.Standard.ROther) {
		return fmt.Errorf("channel: %w", thorerrors.ErrWrongRevocationSecretKey)
	}

	newState := StandardState{
		Balance:            p.NewBalance,
		TimeLock:           p.NewTimeLock,
		RSelf:              rSelf,
		ROther:             remote0.R,
		YSelf:              ySelf,
		YOther:             remote0.Y,
		CommitOutput:       commitOutput,
		CommitTx:           commitTx,
		EncSigSelfAuthored: encSigSelf,
		EncSigReceived:     remote2.EncSig,
		SplitOutputs:       p.NewSplitOutputs,
		SplitTx:            splitTx,
	}

	c.Revoked = append(c.Revoked, RevokedState{State: c.Current, ROtherSecret: revealedOther})
	c.Current = ChannelState{Standard: newState, Ptlc: ptlcState}

	log.Infof("channel %x updated: balance ours=%d theirs=%d ptlc=%v", c.ID(), p.NewBalance.Ours, p.NewBalance.Theirs, hasPtlc)
	return nil
}

// findPtlcOutput locates the (at most one) PtlcOutput among a proposed
// split-output list and reports self's role in it.
func findPtlcOutput(outputs []transaction.SplitOutput, xSelf keys.OwnershipPublicKey) (*transaction.PtlcOutput, Role, bool) {
	for _, o := range outputs {
		if ptlc, ok := o.(*transaction.PtlcOutput); ok {
			if publicKeyEqual(ptlc.XFunder, xSelf) {
				return ptlc, RoleFunder, true
			}
			return ptlc, RoleRedeemer, true
		}
	}
	return nil, 0, false
}

func publicKeyEqual(a, b keys.OwnershipPublicKey) bool {
	return !a.Less(b) && !b.Less(a)
}

// negotiatePtlc runs update round 0.5: the asymmetric exchange of redeem
// and refund signatures for a newly embedded PTLC output.
func negotiatePtlc(ctx context.Context, c *Channel, splitTx *transaction.SplitTransaction, ptlc *transaction.PtlcOutput, role Role) (*PtlcState, error) {
	idx := splitTx.IndexOf(ptlc)
	if idx < 0 {
		return nil, fmt.Errorf("channel: ptlc output missing from split transaction")
	}
	ptlcOutPoint := splitTx.OutPointFor(idx)

	redeemScript := c.scriptForRole(ptlc, RoleRedeemer)
	funderScript := c.scriptForRole(ptlc, RoleFunder)
	redeemTx := transaction.BuildRedeemTransaction(ptlcOutPoint, ptlc, redeemScript)
	refundTx := transaction.BuildRefundTransaction(ptlcOutPoint, ptlc, funderScript)

	redeemDigest, err := redeemTx.SigHash(ptlc.Script, ptlc.Amount)
	if err != nil {
		return nil, fmt.Errorf("channel: ptlc redeem sighash: %w", err)
	}
	refundDigest, err := refundTx.SigHash(ptlc.Script, ptlc.Amount)
	if err != nil {
		return nil, fmt.Errorf("channel: ptlc refund sighash: %w", err)
	}

	state := &PtlcState{Output: ptlc, Role: role, RedeemTx: redeemTx, RefundTx: refundTx}

	if role == RoleFunder {
		encKey, err := ptlcPointAsEncryptionKey(ptlc.Point)
		if err != nil {
			return nil, err
		}
		encSigRedeem, err := c.XSelf.EncSign(encKey, redeemDigest)
		if err != nil {
			return nil, fmt.Errorf("channel: encrypt ptlc redeem signature: %w", err)
		}
		sigRefund := c.XSelf.Sign(refundDigest)
		if err := c.Transport.Send(ctx, &chanmsg.UpdatePtlcFunder{EncSigRedeem: encSigRedeem, SigRefund: sigRefund}); err != nil {
			return nil, fmt.Errorf("channel: update round 0.5 send: %w", err)
		}
		msg, err := c.Transport.Receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("channel: update round 0.5 receive: %w", err)
		}
		remote, ok := msg.(*chanmsg.UpdatePtlcRedeemer)
		if !ok {
			return nil, unexpected("UpdatePtlcRedeemer", msg)
		}
		if !c.XOther.Verify(redeemDigest, remote.SigRedeem) {
			return nil, fmt.Errorf("channel: %w: ptlc redeem signature", thorerrors.ErrInvalidSignature)
		}
		if !c.XOther.Verify(refundDigest, remote.SigRefund) {
			return nil, fmt.Errorf("channel: %w: ptlc refund signature", thorerrors.ErrInvalidSignature)
		}
		state.EncSigRedeemFunder = encSigRedeem
		state.SigRedeemRedeemer = remote.SigRedeem
		state.SigRefundFunder = sigRefund
		state.SigRefundRedeemer = remote.SigRefund
		return state, nil
	}

	sigRedeem := c.XSelf.Sign(redeemDigest)
	sigRefund := c.XSelf.Sign(refundDigest)
	if err := c.Transport.Send(ctx, &chanmsg.UpdatePtlcRedeemer{SigRedeem: sigRedeem, SigRefund: sigRefund}); err != nil {
		return nil, fmt.Errorf("channel: update round 0.5 send: %w", err)
	}
	msg, err := c.Transport.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("channel: update round 0.5 receive: %w", err)
	}
	remote, ok := msg.(*chanmsg.UpdatePtlcFunder)
	if !ok {
		return nil, unexpected("UpdatePtlcFunder", msg)
	}
	if err := adaptor.Verify(c.XOther.Inner(), ptlc.Point.Inner(), redeemDigest, remote.EncSigRedeem); err != nil {
		return nil, fmt.Errorf("channel: %w: ptlc encrypted redeem signature: %v", thorerrors.ErrInvalidEncryptedSignature, err)
	}
	if !c.XOther.Verify(refundDigest, remote.SigRefund) {
		return nil, fmt.Errorf("channel: %w: ptlc refund signature", thorerrors.ErrInvalidSignature)
	}
	state.EncSigRedeemFunder = remote.EncSigRedeem
	state.SigRedeemRedeemer = sigRedeem
	state.SigRefundFunder = remote.SigRefund
	state.SigRefundRedeemer = sigRefund
	return state, nil
}

func (c *Channel) scriptForRole(ptlc *transaction.PtlcOutput, role Role) []byte {
	selfIsFunder := publicKeyEqual(ptlc.XFunder, c.XSelf.PublicKey())
	if (role == RoleFunder) == selfIsFunder {
		return c.FinalScriptSelf
	}
	return c.FinalScriptOther
}

func ptlcPointAsEncryptionKey(pt keys.PtlcPoint) (keys.PublishingPublicKey, error) {
	return keys.ParsePublishingPublicKey(pt.SerializeCompressed())
}

func expectUpdate0(ctx context.Context, t chanmsg.Transport) (*chanmsg.Update0, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Update0)
	if !ok {
		return nil, unexpected("Update0", msg)
	}
	return m, nil
}

func expectUpdate1(ctx context.Context, t chanmsg.Transport) (*chanmsg.Update1, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Update1)
	if !ok {
		return nil, unexpected("Update1", msg)
	}
	return m, nil
}

func expectUpdate2(ctx context.Context, t chanmsg.Transport) (*chanmsg.Update2, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Update2)
	if !ok {
		return nil, unexpected("Update2", msg)
	}
	return m, nil
}

func expectUpdate3(ctx context.Context, t chanmsg.Transport) (*chanmsg.Update3, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Update3)
	if !ok {
		return nil, unexpected("Update3", msg)
	}
	return m, nil
}
