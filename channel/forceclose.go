package channel

import (
	"context"
	"fmt"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/transaction"
)

// ForceClose unilaterally closes the channel at its current state: it
// decrypts the counterparty's encrypted commit signature with self's own
// publishing secret key, combines it with self's own plain signature, and
// broadcasts TX_c. TX_s is broadcast separately, by BroadcastSplit, once
// TX_c's relative timelock has matured. The counterparty can broadcast the same
// TX_c at any time; ForceClose exists for when they won't cooperate on a
// collaborative Close.
func (c *Channel) ForceClose(ctx context.Context) error {
	std := c.Current.Standard

	otherSig := adaptor.Decrypt(std.YSelf.SecretKey(), std.EncSigReceived)

	commitDigest, err := std.CommitTx.SigHash(c.FundingOutput.Script)
	if err != nil {
		return fmt.Errorf("channel: force-close commit sighash: %w", err)
	}
	selfPlainSig := c.XSelf.Sign(commitDigest)
	selfSig, err := adaptor.FromECDSA(selfPlainSig)
	if err != nil {
		return fmt.Errorf("channel: force-close convert self signature: %w", err)
	}

	if c.XSelf.PublicKey().Less(c.XOther) {
		std.CommitTx.Attach(c.FundingOutput.Script, &selfSig, &otherSig)
	} else {
		std.CommitTx.Attach(c.FundingOutput.Script, &otherSig, &selfSig)
	}

	if err := c.Wallet.BroadcastSignedTransaction(ctx, std.CommitTx.Tx); err != nil {
		return fmt.Errorf("channel: broadcast commit transaction: %w", err)
	}
	log.Infof("channel %x force-closed: broadcast commit transaction %s", c.ID(), std.CommitTx.Tx.TxHash())

	// TX_s only becomes valid once the commit output's relative timelock
	// has matured; the caller is expected to wait (e.g. via a ticker
	// polling Wallet.MedianTime) before calling BroadcastSplit.
	return nil
}

// BroadcastSplit broadcasts the current state's split transaction, settling
// both parties' balances (and any embedded PTLC) once TX_c has confirmed
// and its relative timelock has matured.
func (c *Channel) BroadcastSplit(ctx context.Context) error {
	if err := c.Wallet.BroadcastSignedTransaction(ctx, c.Current.Standard.SplitTx.Tx); err != nil {
		return fmt.Errorf("channel: broadcast split transaction: %w", err)
	}
	log.Infof("channel %x: broadcast split transaction %s", c.ID(), c.Current.Standard.SplitTx.Tx.TxHash())
	return nil
}

// PtlcOutPoint returns the outpoint of the channel's embedded PTLC output
// within the current state's split transaction, for building a redeem or
// refund transaction once TX_s has confirmed.
func (c *Channel) PtlcOutPoint() (outPoint transaction.SplitOutputLocator, err error) {
	if c.Current.Ptlc == nil {
		return transaction.SplitOutputLocator{}, fmt.Errorf("channel: no ptlc embedded in current state")
	}
	idx := c.Current.Standard.SplitTx.IndexOf(c.Current.Ptlc.Output)
	if idx < 0 {
		return transaction.SplitOutputLocator{}, fmt.Errorf("channel: ptlc output not found in split transaction")
	}
	return transaction.SplitOutputLocator{
		OutPoint: c.Current.Standard.SplitTx.OutPointFor(idx),
		Output:   c.Current.Ptlc.Output,
	}, nil
}
