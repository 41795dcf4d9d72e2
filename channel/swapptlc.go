package channel

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
)

// mergeGracePeriod is how long a party that has just revealed (or received)
// a PTLC secret waits for the counterparty to cooperate on the update that
// folds the PTLC back into a plain balance, before force-closing. It is
// also the margin near_refund watches for: Bob force-closes once this much
// time remains before the PTLC's own refund timelock matures, leaving
// enough of a window to still broadcast the refund once it does.
const mergeGracePeriod = 10 * time.Second

// swapPollInterval is how often a force-closed party polls the wallet's
// median time while waiting for a relative timelock to mature, or for a
// competing PTLC transaction to confirm.
const swapPollInterval = 1 * time.Second

// SwapBetaPTLCAliceParams describes the PTLC Alice (the redeemer) proposes
// and embeds into the channel, funded out of Bob's balance, as her half of
// a swap conducted over an existing channel instead of directly on-chain.
type SwapBetaPTLCAliceParams struct {
	Amount         int64
	RefundTimeLock uint32
}

// SwapBetaPTLCBobParams mirrors SwapBetaPTLCAliceParams from Bob's (the
// funder's) side; Bob accepts whatever point, amount and timelock Alice
// proposes rather than choosing them himself.
type SwapBetaPTLCBobParams struct{}

// SwapBetaPTLCAlice runs the redeemer's side of a swap-over-PTLC: it
// proposes and embeds a PTLC funded by Bob's balance via Update, reveals
// the secret over the channel transport, and then races a cooperative
// merge update (folding the PTLC back into Alice's own balance) against
// mergeGracePeriod. If the merge does not land in time, it force-closes
// and, once the commit output's timelock matures, redeems the PTLC
// directly on-chain using the signatures exchanged during the PTLC's
// negotiation.
//
// It returns a channel the secret is published on at most once (immediately
// after it is embedded; the channel is closed without a value if the run
// fails before that, mirroring the "generator that yields a secret"
// shape Bob's side needs for symmetry) and a function the caller waits on
// for the run's terminal error.
func (c *Channel) SwapBetaPTLCAlice(ctx context.Context, p SwapBetaPTLCAliceParams) (<-chan keys.PtlcSecret, func() error) {
	secrets := make(chan keys.PtlcSecret, 1)
	result := make(chan error, 1)

	go func() {
		defer close(secrets)
		result <- runSwapBetaPTLCAlice(ctx, c, p, secrets)
	}()

	return secrets, func() error { return <-result }
}

func runSwapBetaPTLCAlice(ctx context.Context, c *Channel, p SwapBetaPTLCAliceParams, secrets chan<- keys.PtlcSecret) error {
	balance := c.Current.Standard.Balance
	if p.Amount > balance.Theirs {
		return fmt.Errorf("channel: swap ptlc: %w", &thorerrors.InsufficientFundsError{Input: balance.Theirs, Output: p.Amount, Fee: 0})
	}

	secret, err := keys.NewPtlcSecret()
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: generate secret: %w", err)
	}

	if err := c.Transport.Send(ctx, &chanmsg.SwapPtlcPropose{Point: secret.Point(), Amount: p.Amount, RefundTimeLock: p.RefundTimeLock}); err != nil {
		return fmt.Errorf("channel: swap ptlc: propose: %w", err)
	}
	if _, err := expectSwapPtlcAccept(ctx, c.Transport); err != nil {
		return fmt.Errorf("channel: swap ptlc: wait for accept: %w", err)
	}

	ptlcOut, err := transaction.BuildPtlcOutput(c.XOther, c.XSelf.PublicKey(), secret.Point(), p.RefundTimeLock, p.Amount)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: build output: %w", err)
	}
	embeddedBalance := Balance{Ours: balance.Ours, Theirs: balance.Theirs - p.Amount}
	embeddedOutputs, err := splitOutputsForPtlc(embeddedBalance, c.FinalScriptSelf, c.FinalScriptOther, ptlcOut)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: %w", err)
	}
	if err := c.Update(ctx, UpdateParams{NewSplitOutputs: embeddedOutputs, NewTimeLock: c.Current.Standard.TimeLock, NewBalance: embeddedBalance}); err != nil {
		return fmt.Errorf("channel: swap ptlc: embed ptlc: %w", err)
	}

	secrets <- secret

	if err := c.Transport.Send(ctx, &chanmsg.SecretMsg{Secret: secret.Bytes()}); err != nil {
		return fmt.Errorf("channel: swap ptlc: reveal secret: %w", err)
	}

	mergedBalance := Balance{Ours: embeddedBalance.Ours + p.Amount, Theirs: embeddedBalance.Theirs}
	mergedOutputs, err := SplitOutputsFor(mergedBalance, c.FinalScriptSelf, c.FinalScriptOther)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: %w", err)
	}
	mergeCtx, cancel := context.WithTimeout(ctx, mergeGracePeriod)
	mergeErr := c.Update(mergeCtx, UpdateParams{
		NewSplitOutputs: mergedOutputs,
		NewTimeLock:     c.Current.Standard.TimeLock,
		NewBalance:      mergedBalance,
	})
	cancel()
	if mergeErr == nil {
		log.Infof("channel %x: swap ptlc merged cooperatively", c.ID())
		return nil
	}
	log.Infof("channel %x: swap ptlc merge did not land in time, force-closing: %v", c.ID(), mergeErr)

	return forceCloseAndRedeemPtlc(ctx, c, secret)
}

// forceCloseAndRedeemPtlc force-closes the channel, waits for the commit
// output's relative timelock to mature, broadcasts the split transaction,
// and redeems the embedded PTLC using secret against the funder's
// already-exchanged encrypted redeem signature.
func forceCloseAndRedeemPtlc(ctx context.Context, c *Channel, secret keys.PtlcSecret) error {
	if c.Current.Ptlc == nil {
		return fmt.Errorf("channel: swap ptlc: no ptlc embedded in current state")
	}
	ptlc := c.Current.Ptlc

	if err := c.ForceClose(ctx); err != nil {
		return fmt.Errorf("channel: swap ptlc: force-close: %w", err)
	}
	if err := waitForMaturity(ctx, c.Wallet, c.Current.Standard.TimeLock); err != nil {
		return fmt.Errorf("channel: swap ptlc: wait for commit maturity: %w", err)
	}
	if err := c.BroadcastSplit(ctx); err != nil {
		return fmt.Errorf("channel: swap ptlc: broadcast split: %w", err)
	}

	sigFunder := adaptor.Decrypt(secret.SecretKey(), ptlc.EncSigRedeemFunder)
	sigRedeemerSelf, err := adaptor.FromECDSA(ptlc.SigRedeemRedeemer)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: convert own redeem signature: %w", err)
	}
	ptlc.RedeemTx.Attach(ptlc.Output, &sigFunder, &sigRedeemerSelf)
	if err := c.Wallet.BroadcastSignedTransaction(ctx, ptlc.RedeemTx.Tx); err != nil {
		return fmt.Errorf("channel: swap ptlc: broadcast redeem: %w", err)
	}
	log.Infof("channel %x: swap ptlc redeemed via %s", c.ID(), ptlc.RedeemTx.Tx.TxHash())
	return nil
}

// SwapBetaPTLCBob runs the funder's side of a swap-over-PTLC: it accepts
// and embeds the PTLC Alice proposed, then races receiving the revealed
// secret against the PTLC's refund timelock approaching. On the secret it
// cooperates on the merge update (folding the PTLC into Alice's balance);
// on near-expiry it force-closes and either claims the refund once the
// PTLC's own timelock matures, or, if Alice force-closed and redeemed
// first, recovers the secret from her published redeem transaction.
//
// Like SwapBetaPTLCAlice, it returns a channel the learned secret is
// published on (once, if ever) and a function the caller waits on for the
// run's terminal error.
func (c *Channel) SwapBetaPTLCBob(ctx context.Context, p SwapBetaPTLCBobParams) (<-chan keys.PtlcSecret, func() error) {
	secrets := make(chan keys.PtlcSecret, 1)
	result := make(chan error, 1)

	go func() {
		defer close(secrets)
		result <- runSwapBetaPTLCBob(ctx, c, p, secrets)
	}()

	return secrets, func() error { return <-result }
}

func runSwapBetaPTLCBob(ctx context.Context, c *Channel, p SwapBetaPTLCBobParams, secrets chan<- keys.PtlcSecret) error {
	proposal, err := expectSwapPtlcPropose(ctx, c.Transport)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: wait for proposal: %w", err)
	}
	balance := c.Current.Standard.Balance
	if proposal.Amount > balance.Ours {
		return fmt.Errorf("channel: swap ptlc: %w", &thorerrors.InsufficientFundsError{Input: balance.Ours, Output: proposal.Amount, Fee: 0})
	}
	if err := c.Transport.Send(ctx, &chanmsg.SwapPtlcAccept{}); err != nil {
		return fmt.Errorf("channel: swap ptlc: accept: %w", err)
	}

	ptlcOut, err := transaction.BuildPtlcOutput(c.XSelf.PublicKey(), c.XOther, proposal.Point, proposal.RefundTimeLock, proposal.Amount)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: build output: %w", err)
	}
	embeddedBalance := Balance{Ours: balance.Ours - proposal.Amount, Theirs: balance.Theirs}
	embeddedOutputs, err := splitOutputsForPtlc(embeddedBalance, c.FinalScriptSelf, c.FinalScriptOther, ptlcOut)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: %w", err)
	}
	if err := c.Update(ctx, UpdateParams{NewSplitOutputs: embeddedOutputs, NewTimeLock: c.Current.Standard.TimeLock, NewBalance: embeddedBalance}); err != nil {
		return fmt.Errorf("channel: swap ptlc: embed ptlc: %w", err)
	}

	baseline, err := c.Wallet.MedianTime(ctx)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: read median time: %w", err)
	}

	secretCh := make(chan chanmsg.SecretMsg, 1)
	secretErrCh := make(chan error, 1)
	go func() {
		msg, err := c.Transport.Receive(ctx)
		if err != nil {
			secretErrCh <- err
			return
		}
		sm, ok := msg.(*chanmsg.SecretMsg)
		if !ok {
			secretErrCh <- unexpected("SecretMsg", msg)
			return
		}
		secretCh <- *sm
	}()

	t := ticker.New(swapPollInterval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-secretErrCh:
			return fmt.Errorf("channel: swap ptlc: wait for secret: %w", err)

		case sm := <-secretCh:
			secret, err := keys.PtlcSecretFromScalar(sm.Secret)
			if err != nil {
				return fmt.Errorf("channel: swap ptlc: decode revealed secret: %w", err)
			}
			if !bytes.Equal(secret.Point().SerializeCompressed(), proposal.Point.SerializeCompressed()) {
				// A mismatched scalar buys Alice nothing; keep waiting
				// for the refund timelock instead of aborting.
				log.Warnf("channel %x: swap ptlc: %v, waiting out refund timelock", c.ID(), thorerrors.ErrPtlcSecretMismatch)
				continue
			}
			secrets <- secret

			mergedBalance := Balance{Ours: embeddedBalance.Ours, Theirs: embeddedBalance.Theirs + proposal.Amount}
			mergedOutputs, err := SplitOutputsFor(mergedBalance, c.FinalScriptSelf, c.FinalScriptOther)
			if err != nil {
				return fmt.Errorf("channel: swap ptlc: %w", err)
			}
			mergeCtx, cancel := context.WithTimeout(ctx, mergeGracePeriod)
			mergeErr := c.Update(mergeCtx, UpdateParams{
				NewSplitOutputs: mergedOutputs,
				NewTimeLock:     c.Current.Standard.TimeLock,
				NewBalance:      mergedBalance,
			})
			cancel()
			if mergeErr == nil {
				log.Infof("channel %x: swap ptlc merged cooperatively", c.ID())
				return nil
			}
			log.Infof("channel %x: swap ptlc merge did not land in time after learning secret: %v", c.ID(), mergeErr)
			return forceCloseAndSettlePtlcRefund(ctx, c, proposal.RefundTimeLock)

		case <-t.Ticks():
			now, err := c.Wallet.MedianTime(ctx)
			if err != nil {
				return fmt.Errorf("channel: swap ptlc: read median time: %w", err)
			}
			elapsed := time.Duration(now-baseline) * time.Second
			remaining := time.Duration(proposal.RefundTimeLock)*time.Second - elapsed
			if remaining <= mergeGracePeriod {
				log.Infof("channel %x: swap ptlc near refund expiry, force-closing", c.ID())
				return forceCloseAndSettlePtlcRefund(ctx, c, proposal.RefundTimeLock)
			}
		}
	}
}

// forceCloseAndSettlePtlcRefund force-closes the channel and waits for
// whichever of two outcomes happens first: the PTLC's refund timelock
// matures, letting Bob broadcast tx_ptlc_refund himself, or Alice's
// tx_ptlc_redeem appears on-chain first, letting Bob recover the secret it
// leaks from his own previously-sent encrypted redeem signature.
func forceCloseAndSettlePtlcRefund(ctx context.Context, c *Channel, refundTimeLock uint32) error {
	if c.Current.Ptlc == nil {
		return fmt.Errorf("channel: swap ptlc: no ptlc embedded in current state")
	}
	ptlc := c.Current.Ptlc

	if err := c.ForceClose(ctx); err != nil {
		return fmt.Errorf("channel: swap ptlc: force-close: %w", err)
	}
	if err := waitForMaturity(ctx, c.Wallet, c.Current.Standard.TimeLock); err != nil {
		return fmt.Errorf("channel: swap ptlc: wait for commit maturity: %w", err)
	}
	if err := c.BroadcastSplit(ctx); err != nil {
		return fmt.Errorf("channel: swap ptlc: broadcast split: %w", err)
	}

	redeemDigest, err := ptlc.RedeemTx.SigHash(ptlc.Output.Script, ptlc.Output.Amount)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: redeem sighash: %w", err)
	}
	redeemTxid := ptlc.RedeemTx.Tx.TxHash()

	t := ticker.New(swapPollInterval)
	t.Resume()
	defer t.Stop()

	baseline, err := c.Wallet.MedianTime(ctx)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: read median time: %w", err)
	}

	for {
		if observed, err := c.Wallet.GetRawTransaction(ctx, redeemTxid); err == nil {
			return recoverPtlcSecretFromRedeem(c, ptlc, observed, redeemDigest)
		}

		now, err := c.Wallet.MedianTime(ctx)
		if err != nil {
			return fmt.Errorf("channel: swap ptlc: read median time: %w", err)
		}
		if time.Duration(now-baseline)*time.Second >= time.Duration(refundTimeLock)*time.Second {
			sigFunder, err := adaptor.FromECDSA(ptlc.SigRefundFunder)
			if err != nil {
				return fmt.Errorf("channel: swap ptlc: convert refund signature: %w", err)
			}
			sigRedeemer, err := adaptor.FromECDSA(ptlc.SigRefundRedeemer)
			if err != nil {
				return fmt.Errorf("channel: swap ptlc: convert refund signature: %w", err)
			}
			ptlc.RefundTx.Attach(ptlc.Output, &sigFunder, &sigRedeemer)
			if err := c.Wallet.BroadcastSignedTransaction(ctx, ptlc.RefundTx.Tx); err != nil {
				return fmt.Errorf("channel: swap ptlc: broadcast refund: %w", err)
			}
			log.Infof("channel %x: swap ptlc refunded via %s", c.ID(), ptlc.RefundTx.Tx.TxHash())
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Ticks():
		}
	}
}

// recoverPtlcSecretFromRedeem recovers the PTLC secret leaked by Alice's
// broadcast tx_ptlc_redeem: its witness carries, in the clear, the
// decrypted form of the encrypted redeem signature Bob (the funder) sent
// during the PTLC's negotiation. Bob still holds the original encrypted
// signature, so adaptor.Recover yields the secret scalar behind the agreed
// PTLC point.
func recoverPtlcSecretFromRedeem(c *Channel, ptlc *PtlcState, observed *wire.MsgTx, digest [32]byte) error {
	publishedSig, err := findOwnSignatureInWitness(observed.TxIn[0].Witness, c.XSelf.PublicKey(), digest)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: %w", err)
	}
	encKey, err := ptlcPointAsEncryptionKey(ptlc.Output.Point)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: %w", err)
	}
	decrypted, err := adaptor.ParseDERSignature(publishedSig.Serialize())
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: %w", err)
	}
	y, err := adaptor.Recover(encKey.Inner(), decrypted, ptlc.EncSigRedeemFunder)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: %w: %v", thorerrors.ErrRecoveryFailure, err)
	}
	var secretBytes [32]byte
	copy(secretBytes[:], y.Serialize())
	secret, err := keys.PtlcSecretFromScalar(secretBytes)
	if err != nil {
		return fmt.Errorf("channel: swap ptlc: recovered secret: %w", err)
	}
	ptlc.Secret = &secret
	log.Infof("channel %x: swap ptlc recovered secret from alice's redeem", c.ID())
	return nil
}

// findOwnSignatureInWitness returns whichever of a two-signature witness
// verifies under pub at digest. Duplicated from swap.findSignatureByKey,
// which is unexported across package boundaries; both packages recover a
// leaked secret from a two-of-two witness the same way.
func findOwnSignatureInWitness(witness [][]byte, pub keys.OwnershipPublicKey, digest [32]byte) (*ecdsa.Signature, error) {
	for i := 0; i < len(witness) && i < 2; i++ {
		sig, err := ecdsa.ParseDERSignature(witness[i])
		if err != nil {
			continue
		}
		if pub.Verify(digest, sig) {
			return sig, nil
		}
	}
	return nil, fmt.Errorf("%w: no witness signature matches key", thorerrors.ErrInvalidSignature)
}

// waitForMaturity blocks until wallet's median time has advanced by at
// least relativeLock seconds past its value when this call began, or ctx is
// done, standing in for a BIP68 height-based wait the way channeltest's
// MedianTime/AdvanceMedianTime pair simulates it for tests.
func waitForMaturity(ctx context.Context, wallet interface {
	MedianTime(ctx context.Context) (uint32, error)
}, relativeLock uint32) error {
	baseline, err := wallet.MedianTime(ctx)
	if err != nil {
		return err
	}

	t := ticker.New(swapPollInterval)
	t.Resume()
	defer t.Stop()

	for {
		now, err := wallet.MedianTime(ctx)
		if err != nil {
			return err
		}
		if now-baseline >= relativeLock {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Ticks():
		}
	}
}

func expectSwapPtlcPropose(ctx context.Context, t chanmsg.Transport) (*chanmsg.SwapPtlcPropose, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.SwapPtlcPropose)
	if !ok {
		return nil, unexpected("SwapPtlcPropose", msg)
	}
	return m, nil
}

func expectSwapPtlcAccept(ctx context.Context, t chanmsg.Transport) (*chanmsg.SwapPtlcAccept, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.SwapPtlcAccept)
	if !ok {
		return nil, unexpected("SwapPtlcAccept", msg)
	}
	return m, nil
}
