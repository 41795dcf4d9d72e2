package channel

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
)

// Splice runs the channel's four-round splice protocol: each party
// declares a SpliceIn, SpliceOut, or SpliceNone intent, a new fund output
// is built reflecting both intents, and a brand new channel is opened
// against it in a single co-signing pass. Splice returns an independent
// Channel value; the caller discards the old one once Splice succeeds.
func (c *Channel) Splice(ctx context.Context, net *chaincfg.Params, intent chanmsg.SpliceIntent) (*Channel, error) {
	if intent.Kind == chanmsg.SpliceIn && intent.InPSBT == nil {
		spliceInPSBT, err := c.buildSpliceInPSBT(ctx, net, intent.InAmount)
		if err != nil {
			return nil, fmt.Errorf("channel: build splice-in psbt: %w", err)
		}
		intent.InPSBT = spliceInPSBT
	}

	// Round 0: exchange splice intents.
	if err := c.Transport.Send(ctx, &chanmsg.Splice0{Intent: intent}); err != nil {
		return nil, fmt.Errorf("channel: splice round 0 send: %w", err)
	}
	remote0, err := expectSplice0(ctx, c.Transport)
	if err != nil {
		return nil, err
	}

	selfIsX0 := c.XSelf.PublicKey().Less(c.XOther)
	newBalance := Balance{
		Ours:   adjustBalance(c.Current.Standard.Balance.Ours, intent),
		Theirs: adjustBalance(c.Current.Standard.Balance.Theirs, remote0.Intent),
	}
	newFundOutput, err := transaction.BuildFundingOutput(c.XSelf.PublicKey(), c.XOther, newBalance.Total())
	if err != nil {
		return nil, fmt.Errorf("channel: build new fund output: %w", err)
	}

	spliceIns := sortSpliceInputs(collectSpliceInputs(intent), collectSpliceInputs(remote0.Intent))
	spliceOuts := sortSpliceOutputs(collectSpliceOutput(intent), collectSpliceOutput(remote0.Intent))
	spliceTx := transaction.BuildSpliceTransaction(c.fundOutPoint(), spliceIns, newFundOutput, spliceOuts)
	newFundOutPoint := spliceTx.OutPoint()

	log.Debugf("splice: new fund output %s, %d splice-in input(s)", newFundOutPoint.Hash, len(spliceIns))

	// Round 1: exchange (R, Y) for the new channel's initial state.
	rSelf, err := keys.NewRevocationKeyPair()
	if err != nil {
		return nil, fmt.Errorf("channel: generate revocation key: %w", err)
	}
	ySelf, err := keys.NewPublishingKeyPair()
	if err != nil {
		return nil, fmt.Errorf("channel: generate publishing key: %w", err)
	}
	if err := c.Transport.Send(ctx, &chanmsg.Splice1{Update0: chanmsg.Update0{R: rSelf.PublicKey(), Y: ySelf.PublicKey(), TimeLock: c.Current.Standard.TimeLock}}); err != nil {
		return nil, fmt.Errorf("channel: splice round 1 send: %w", err)
	}
	remote1, err := expectSplice1(ctx, c.Transport)
	if err != nil {
		return nil, err
	}
	if err := checkRelativeTimeLocksMatch(c.Current.Standard.TimeLock, remote1.TimeLock); err != nil {
		return nil, err
	}

	commitOutput, err := buildCommitOutputFor(c.XSelf.PublicKey(), c.XOther, rSelf.PublicKey(), remote1.R, ySelf.PublicKey(), remote1.Y, c.Current.Standard.TimeLock, newBalance.Total())
	if err != nil {
		return nil, fmt.Errorf("channel: build commit output: %w", err)
	}
	commitTx := transaction.BuildCommitTransaction(newFundOutPoint, newBalance.Total(), commitOutput)
	splitOutputs, err := SplitOutputsFor(newBalance, c.FinalScriptSelf, c.FinalScriptOther)
	if err != nil {
		return nil, fmt.Errorf("channel: %w", err)
	}
	splitTx, err := transaction.BuildSplitTransaction(commitOutPoint(commitTx), commitOutput.Amount, c.Current.Standard.TimeLock, splitOutputs)
	if err != nil {
		return nil, fmt.Errorf("channel: build split transaction: %w", err)
	}

	// Round 2: exchange the split signature and an encrypted commit
	// signature, the same pairing Open's rounds 3-4 establish, so the
	// spliced state stays punishable once a later update revokes it. The
	// commit transaction stays unattached; force-close decrypts the
	// counterparty's signature on demand.
	commitDigest, err := commitTx.SigHash(newFundOutput.Script)
	if err != nil {
		return nil, fmt.Errorf("channel: commit sighash: %w", err)
	}
	splitDigest, err := splitTx.SigHash(commitOutput.Script, commitOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("channel: split sighash: %w", err)
	}
	encSigSelf, err := c.XSelf.EncSign(remote1.Y, commitDigest)
	if err != nil {
		return nil, fmt.Errorf("channel: encrypt commit signature: %w", err)
	}
	sigSplitSelf := c.XSelf.Sign(splitDigest)
	if err := c.Transport.Send(ctx, &chanmsg.Splice2{EncSigCommit: encSigSelf, SigSplit: sigSplitSelf}); err != nil {
		return nil, fmt.Errorf("channel: splice round 2 send: %w", err)
	}
	remote2, err := expectSplice2(ctx, c.Transport)
	if err != nil {
		return nil, err
	}
	if err := adaptor.Verify(c.XOther.Inner(), ySelf.PublicKey().Inner(), commitDigest, remote2.EncSigCommit); err != nil {
		return nil, fmt.Errorf("channel: %w: commit encrypted signature: %v", thorerrors.ErrInvalidEncryptedSignature, err)
	}
	if !c.XOther.Verify(splitDigest, remote2.SigSplit) {
		return nil, fmt.Errorf("channel: %w: split transaction signature", thorerrors.ErrInvalidSignature)
	}
	attachSplitWitness(splitTx, commitOutput.Script, selfIsX0, sigSplitSelf, remote2.SigSplit)

	// Round 3: exchange the signature spending the previous fund output,
	// plus each party's signed splice-in PSBT (if any), completing the
	// splice transaction.
	oldFundDigest, err := spliceTx.SigHash(c.FundingOutput.Script, c.FundingOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("channel: old fund sighash: %w", err)
	}
	sigOldFundSelf := c.XSelf.Sign(oldFundDigest)
	var selfSignedPSBT *psbt.Packet
	if intent.Kind == chanmsg.SpliceIn {
		selfSignedPSBT, err = c.Wallet.SignFundingPSBT(ctx, intent.InPSBT)
		if err != nil {
			return nil, fmt.Errorf("channel: sign splice-in psbt: %w", err)
		}
	}
	if err := c.Transport.Send(ctx, &chanmsg.Splice3{SigOldFund: sigOldFundSelf, SpliceIn: selfSignedPSBT}); err != nil {
		return nil, fmt.Errorf("channel: splice round 3 send: %w", err)
	}
	remote3, err := expectSplice3(ctx, c.Transport)
	if err != nil {
		return nil, err
	}
	if !c.XOther.Verify(oldFundDigest, remote3.SigOldFund) {
		return nil, fmt.Errorf("channel: %w: old fund output signature", thorerrors.ErrInvalidSignature)
	}
	oldFundWitness, err := oldFundOutputWitness(c.FundingOutput.Script, selfIsX0, sigOldFundSelf, remote3.SigOldFund)
	if err != nil {
		return nil, fmt.Errorf("channel: build old fund witness: %w", err)
	}
	spliceTx.Attach(oldFundWitness)

	if err := attachSpliceInWitnesses(spliceTx, selfSignedPSBT, remote3.SpliceIn); err != nil {
		return nil, fmt.Errorf("channel: attach splice-in witnesses: %w", err)
	}

	if err := c.Wallet.BroadcastSignedTransaction(ctx, spliceTx.Tx); err != nil {
		return nil, fmt.Errorf("channel: broadcast splice transaction: %w", err)
	}

	newState := StandardState{
		Balance:            newBalance,
		TimeLock:           c.Current.Standard.TimeLock,
		RSelf:              rSelf,
		ROther:             remote1.R,
		YSelf:              ySelf,
		YOther:             remote1.Y,
		CommitOutput:       commitOutput,
		CommitTx:           commitTx,
		EncSigSelfAuthored: encSigSelf,
		EncSigReceived:     remote2.EncSigCommit,
		SplitOutputs:       splitOutputs,
		SplitTx:            splitTx,
	}
	newChannel := &Channel{
		Wallet:           c.Wallet,
		Transport:        c.Transport,
		XSelf:            c.XSelf,
		XOther:           c.XOther,
		FinalScriptSelf:  c.FinalScriptSelf,
		FinalScriptOther: c.FinalScriptOther,
		FundingTx:        transaction.NewFundingTransaction(spliceTx.Tx, newFundOutput, 0),
		FundingOutput:    newFundOutput,
		Current:          ChannelState{Standard: newState},
	}

	log.Infof("channel %x spliced into %x: balance ours=%d theirs=%d", c.ID(), newChannel.ID(), newBalance.Ours, newBalance.Theirs)
	return newChannel, nil
}

// buildSpliceInPSBT asks the wallet for an unsigned PSBT covering amount;
// only its inputs are used by the splice transaction, so the output it is
// nominally paid to is a throwaway address derived from the channel's
// current fund output, never broadcast on its own.
func (c *Channel) buildSpliceInPSBT(ctx context.Context, net *chaincfg.Params, amount int64) (*psbt.Packet, error) {
	hash := sha256.Sum256(c.FundingOutput.Script)
	addr, err := btcutil.NewAddressWitnessScriptHash(hash[:], net)
	if err != nil {
		return nil, err
	}
	return c.Wallet.BuildFundingPSBT(ctx, addr, amount)
}

func adjustBalance(balance int64, intent chanmsg.SpliceIntent) int64 {
	switch intent.Kind {
	case chanmsg.SpliceIn:
		return balance + intent.InAmount
	case chanmsg.SpliceOut:
		return balance - intent.OutTxOut.Value - transaction.TxFee
	default:
		return balance
	}
}

func collectSpliceInputs(intent chanmsg.SpliceIntent) []wire.OutPoint {
	if intent.Kind != chanmsg.SpliceIn || intent.InPSBT == nil {
		return nil
	}
	outs := make([]wire.OutPoint, 0, len(intent.InPSBT.UnsignedTx.TxIn))
	for _, in := range intent.InPSBT.UnsignedTx.TxIn {
		outs = append(outs, in.PreviousOutPoint)
	}
	return outs
}

func collectSpliceOutput(intent chanmsg.SpliceIntent) *wire.TxOut {
	if intent.Kind != chanmsg.SpliceOut {
		return nil
	}
	return intent.OutTxOut
}

// sortSpliceInputs unions both parties' splice-in outpoints and sorts them
// by consensus serialization bytes, so both parties independently derive
// the same splice transaction.
func sortSpliceInputs(self, other []wire.OutPoint) []wire.OutPoint {
	all := append(append([]wire.OutPoint{}, self...), other...)
	sort.Slice(all, func(i, j int) bool {
		return bytes.Compare(serializeOutPoint(all[i]), serializeOutPoint(all[j])) < 0
	})
	return all
}

func sortSpliceOutputs(self, other *wire.TxOut) []*wire.TxOut {
	var outs []*wire.TxOut
	if self != nil {
		outs = append(outs, self)
	}
	if other != nil {
		outs = append(outs, other)
	}
	sort.Slice(outs, func(i, j int) bool {
		return bytes.Compare(outs[i].PkScript, outs[j].PkScript) < 0
	})
	return outs
}

func serializeOutPoint(op wire.OutPoint) []byte {
	b := make([]byte, 36)
	copy(b[:32], op.Hash[:])
	binary.LittleEndian.PutUint32(b[32:], op.Index)
	return b
}

func oldFundOutputWitness(fundingScript []byte, selfIsX0 bool, sigSelf, sigOther *ecdsa.Signature) (wire.TxWitness, error) {
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

// attachSpliceInWitnesses pulls each splice-in input's finalized witness
// from whichever party's signed PSBT funded it and attaches it to the
// splice transaction.
func attachSpliceInWitnesses(spliceTx *transaction.SpliceTransaction, selfSigned, otherSigned *psbt.Packet) error {
	for i := 1; i < len(spliceTx.Tx.TxIn); i++ {
		op := spliceTx.Tx.TxIn[i].PreviousOutPoint
		raw, ok := witnessForOutPoint(selfSigned, op)
		if !ok {
			raw, ok = witnessForOutPoint(otherSigned, op)
		}
		if !ok {
			return fmt.Errorf("channel: splice-in input %s never finalized by either party", op)
		}
		witness, err := decodeWitness(raw)
		if err != nil {
			return fmt.Errorf("channel: decode splice-in witness: %w", err)
		}
		spliceTx.Tx.TxIn[i].Witness = witness
	}
	return nil
}

func witnessForOutPoint(pkt *psbt.Packet, op wire.OutPoint) ([]byte, bool) {
	if pkt == nil {
		return nil, false
	}
	for i, in := range pkt.UnsignedTx.TxIn {
		if in.PreviousOutPoint == op {
			raw := pkt.Inputs[i].FinalScriptWitness
			if len(raw) == 0 {
				return nil, false
			}
			return raw, true
		}
	}
	return nil, false
}

func expectSplice0(ctx context.Context, t chanmsg.Transport) (*chanmsg.Splice0, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Splice0)
	if !ok {
		return nil, unexpected("Splice0", msg)
	}
	return m, nil
}

func expectSplice1(ctx context.Context, t chanmsg.Transport) (*chanmsg.Splice1, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Splice1)
	if !ok {
		return nil, unexpected("Splice1", msg)
	}
	return m, nil
}

func expectSplice2(ctx context.Context, t chanmsg.Transport) (*chanmsg.Splice2, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Splice2)
	if !ok {
		return nil, unexpected("Splice2", msg)
	}
	return m, nil
}

func expectSplice3(ctx context.Context, t chanmsg.Transport) (*chanmsg.Splice3, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Splice3)
	if !ok {
		return nil, unexpected("Splice3", msg)
	}
	return m, nil
}
