package channel

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
)

// Close runs the channel's single collaborative-close round: both parties
// sign a transaction paying their current balances directly out of the
// fund output, skip the commit/split staging area entirely, and broadcast
// it. Close only succeeds while both parties are online and cooperative;
// ForceClose is the fallback.
func (c *Channel) Close(ctx context.Context) (*transaction.CloseTransaction, error) {
	balance := c.Current.Standard.Balance
	closeTx, err := transaction.BuildCloseTransaction(c.FundingTx.OutPoint(), balance.Ours, balance.Theirs, c.FinalScriptSelf, c.FinalScriptOther)
	if err != nil {
		return nil, fmt.Errorf("channel: build close transaction: %w", err)
	}

	digest, err := closeTx.SigHash(c.FundingOutput.Script, c.FundingOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("channel: close sighash: %w", err)
	}
	selfSig := c.XSelf.Sign(digest)

	if err := c.Transport.Send(ctx, &chanmsg.Close0{Sig: selfSig}); err != nil {
		return nil, fmt.Errorf("channel: close round 0 send: %w", err)
	}
	msg, err := c.Transport.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("channel: close round 0 receive: %w", err)
	}
	remote, ok := msg.(*chanmsg.Close0)
	if !ok {
		return nil, unexpected("Close0", msg)
	}
	if !c.XOther.Verify(digest, remote.Sig) {
		return nil, fmt.Errorf("channel: %w: close transaction signature", thorerrors.ErrInvalidSignature)
	}

	witness, err := closeWitness(c.FundingOutput.Script, c.XSelf.PublicKey().Less(c.XOther), selfSig, remote.Sig)
	if err != nil {
		return nil, fmt.Errorf("channel: build close witness: %w", err)
	}
	closeTx.Attach(witness)

	if err := c.Wallet.BroadcastSignedTransaction(ctx, closeTx.Tx); err != nil {
		return nil, fmt.Errorf("channel: broadcast close transaction: %w", err)
	}
	log.Infof("channel %x closed cooperatively: %s", c.ID(), closeTx.Tx.TxHash())
	return closeTx, nil
}

func closeWitness(fundingScript []byte, selfIsX0 bool, sigSelf, sigOther *ecdsa.Signature) (wire.TxWitness, error) {
	adaptorSelf, err := adaptor.FromECDSA(sigSelf)
	if err != nil {
		return nil, err
	}
	adaptorOther, err := adaptor.FromECDSA(sigOther)
	if err != nil {
		return nil, err
	}
	if selfIsX0 {
		return transaction.SpendFundingOutput(fundingScript, &adaptorSelf, &adaptorOther), nil
	}
	return transaction.SpendFundingOutput(fundingScript, &adaptorOther, &adaptorSelf), nil
}
