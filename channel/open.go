package channel

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/adaptor"
	"github.com/ptlc-labs/thor/chanmsg"
	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/thorerrors"
	"github.com/ptlc-labs/thor/transaction"
	"github.com/ptlc-labs/thor/walletiface"
)

// OpenParams bundles the caller-supplied inputs to Open. Both parties in a
// channel call Open with parameters that agree on amounts and TimeLock but
// describe their own side (XSelf, AmountSelf, FinalAddress); the protocol
// itself takes care of sorting the two parties' contributions into a
// canonical, independently-reproducible transaction.
type OpenParams struct {
	Transport chanmsg.Transport
	Wallet    walletiface.BitcoinWallet
	Net       *chaincfg.Params

	XSelf        *keys.OwnershipKeyPair
	AmountSelf   int64
	AmountOther  int64
	TimeLock     uint32
	FinalAddress btcutil.Address
}

// Open runs the channel-open protocol's six rounds over params.Transport and
// returns the resulting Channel together with its fully signed, ready to
// broadcast funding transaction. §4.1's key-sorting discipline guarantees
// both parties derive byte-identical TX_f, TX_c and TX_s independently, so
// nothing here needs to special-case "who proposed the channel".
func Open(ctx context.Context, p OpenParams) (*Channel, error) {
	finalScriptSelf, err := txscript.PayToAddrScript(p.FinalAddress)
	if err != nil {
		return nil, fmt.Errorf("channel: final address script: %w", err)
	}

	// Round 0: exchange (X, final_address, time_lock).
	if err := p.Transport.Send(ctx, &chanmsg.Create0{X: p.XSelf.PublicKey(), FinalAddress: finalScriptSelf, TimeLock: p.TimeLock}); err != nil {
		return nil, fmt.Errorf("channel: open round 0 send: %w", err)
	}
	remote0, err := expectCreate0(ctx, p.Transport)
	if err != nil {
		return nil, err
	}
	if err := checkRelativeTimeLocksMatch(p.TimeLock, remote0.TimeLock); err != nil {
		return nil, err
	}
	selfIsX0 := p.XSelf.PublicKey().Less(remote0.X)

	balance := Balance{Ours: p.AmountSelf, Theirs: p.AmountOther}
	fundOutput, err := transaction.BuildFundingOutput(p.XSelf.PublicKey(), remote0.X, balance.Total())
	if err != nil {
		return nil, fmt.Errorf("channel: build fund output: %w", err)
	}
	fundAddr, err := fundOutputAddress(fundOutput, p.Net)
	if err != nil {
		return nil, fmt.Errorf("channel: fund output address: %w", err)
	}

	// Round 1: exchange funding PSBT skeletons and merge them into the
	// joint, still-unsigned funding transaction. Segwit's txid excludes
	// witness data, so this transaction's id — and therefore every later
	// transaction's outpoint chasing it — is already final, well before
	// round 5 actually produces signatures.
	selfPSBT, err := p.Wallet.BuildFundingPSBT(ctx, fundAddr, p.AmountSelf)
	if err != nil {
		return nil, fmt.Errorf("channel: build funding psbt: %w", err)
	}
	if err := p.Transport.Send(ctx, &chanmsg.Create1{PSBT: selfPSBT}); err != nil {
		return nil, fmt.Errorf("channel: open round 1 send: %w", err)
	}
	remote1, err := expectCreate1(ctx, p.Transport)
	if err != nil {
		return nil, err
	}
	joint, err := mergeFundingPSBTs(fundOutput.PkScript, fundOutput.Amount, p.XSelf.PublicKey(), selfPSBT, remote0.X, remote1.PSBT)
	if err != nil {
		return nil, fmt.Errorf("channel: merge funding psbts: %w", err)
	}
	fundOutPoint := wire.OutPoint{Hash: joint.UnsignedTx.TxHash(), Index: 0}

	log.Debugf("open: joint funding transaction %s, fund output index 0", fundOutPoint.Hash)

	// Round 2: exchange (R, Y) for the channel's initial state.
	rSelf, err := keys.NewRevocationKeyPair()
	if err != nil {
		return nil, fmt.Errorf("channel: generate revocation key: %w", err)
	}
	ySelf, err := keys.NewPublishingKeyPair()
	if err != nil {
		return nil, fmt.Errorf("channel: generate publishing key: %w", err)
	}
	if err := p.Transport.Send(ctx, &chanmsg.Create2{R: rSelf.PublicKey(), Y: ySelf.PublicKey()}); err != nil {
		return nil, fmt.Errorf("channel: open round 2 send: %w", err)
	}
	remote2, err := expectCreate2(ctx, p.Transport)
	if err != nil {
		return nil, err
	}

	commitOutput, err := buildCommitOutputFor(p.XSelf.PublicKey(), remote0.X, rSelf.PublicKey(), remote2.R, ySelf.PublicKey(), remote2.Y, p.TimeLock, balance.Total())
	if err != nil {
		return nil, fmt.Errorf("channel: build commit output: %w", err)
	}
	commitTx := transaction.BuildCommitTransaction(fundOutPoint, balance.Total(), commitOutput)

	splitOutputs, err := SplitOutputsFor(balance, finalScriptSelf, remote0.FinalAddress)
	if err != nil {
		return nil, fmt.Errorf("channel: %w", err)
	}
	splitTx, err := transaction.BuildSplitTransaction(commitOutPoint(commitTx), commitOutput.Amount, p.TimeLock, splitOutputs)
	if err != nil {
		return nil, fmt.Errorf("channel: build split transaction: %w", err)
	}

	// Round 3: exchange sig(TX_s); aggregate into a fully signed TX_s.
	splitDigest, err := splitTx.SigHash(commitOutput.Script, commitOutput.Amount)
	if err != nil {
		return nil, fmt.Errorf("channel: split sighash: %w", err)
	}
	sigSplitSelf := p.XSelf.Sign(splitDigest)
	if err := p.Transport.Send(ctx, &chanmsg.Create3{Sig: sigSplitSelf}); err != nil {
		return nil, fmt.Errorf("channel: open round 3 send: %w", err)
	}
	remote3, err := expectCreate3(ctx, p.Transport)
	if err != nil {
		return nil, err
	}
	if !remote0.X.Verify(splitDigest, remote3.Sig) {
		return nil, fmt.Errorf("channel: %w: split transaction signature", thorerrors.ErrInvalidSignature)
	}
	attachSplitWitness(splitTx, commitOutput.Script, selfIsX0, sigSplitSelf, remote3.Sig)

	// Round 4: exchange encsig(TX_c, Y_other); each verifies the other's
	// before accepting the channel as open, since this is the signature
	// that makes unilateral force-close possible later.
	commitDigest, err := commitTx.SigHash(fundOutput.Script)
	if err != nil {
		return nil, fmt.Errorf("channel: commit sighash: %w", err)
	}
	encSigSelf, err := p.XSelf.EncSign(remote2.Y, commitDigest)
	if err != nil {
		return nil, fmt.Errorf("channel: encrypt commit signature: %w", err)
	}
	if err := p.Transport.Send(ctx, &chanmsg.Create4{EncSig: encSigSelf}); err != nil {
		return nil, fmt.Errorf("channel: open round 4 send: %w", err)
	}
	remote4, err := expectCreate4(ctx, p.Transport)
	if err != nil {
		return nil, err
	}
	if err := adaptor.Verify(remote0.X.Inner(), ySelf.PublicKey().Inner(), commitDigest, remote4.EncSig); err != nil {
		return nil, fmt.Errorf("channel: %w: commit encrypted signature: %v", thorerrors.ErrInvalidEncryptedSignature, err)
	}

	// Round 5: each signs their own inputs within the joint funding PSBT
	// and returns it; once both halves are in hand the witnesses combine
	// into the single fully signed TX_f.
	selfSigned, err := p.Wallet.SignFundingPSBT(ctx, joint)
	if err != nil {
		return nil, fmt.Errorf("channel: sign funding psbt: %w", err)
	}
	if err := p.Transport.Send(ctx, &chanmsg.Create5{PSBT: selfSigned}); err != nil {
		return nil, fmt.Errorf("channel: open round 5 send: %w", err)
	}
	remote5, err := expectCreate5(ctx, p.Transport)
	if err != nil {
		return nil, err
	}
	fundingMsgTx, err := finalizeFundingTransaction(joint, selfSigned, remote5.PSBT)
	if err != nil {
		return nil, fmt.Errorf("channel: finalize funding transaction: %w", err)
	}
	fundingTx := transaction.NewFundingTransaction(fundingMsgTx, fundOutput, 0)

	state := StandardState{
		Balance:            balance,
		TimeLock:           p.TimeLock,
		RSelf:              rSelf,
		ROther:             remote2.R,
		YSelf:              ySelf,
		YOther:             remote2.Y,
		CommitOutput:       commitOutput,
		CommitTx:           commitTx,
		EncSigSelfAuthored: encSigSelf,
		EncSigReceived:     remote4.EncSig,
		SplitOutputs:       splitOutputs,
		SplitTx:            splitTx,
	}

	c := &Channel{
		Wallet:           p.Wallet,
		Transport:        p.Transport,
		XSelf:            p.XSelf,
		XOther:           remote0.X,
		FinalScriptSelf:  finalScriptSelf,
		FinalScriptOther: remote0.FinalAddress,
		FundingTx:        fundingTx,
		FundingOutput:    fundOutput,
		Current:          ChannelState{Standard: state},
	}

	log.Infof("channel %x opened: balance ours=%d theirs=%d", c.ID(), balance.Ours, balance.Theirs)
	return c, nil
}

func expectCreate0(ctx context.Context, t chanmsg.Transport) (*chanmsg.Create0, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Create0)
	if !ok {
		return nil, unexpected("Create0", msg)
	}
	return m, nil
}

func expectCreate1(ctx context.Context, t chanmsg.Transport) (*chanmsg.Create1, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Create1)
	if !ok {
		return nil, unexpected("Create1", msg)
	}
	return m, nil
}

func expectCreate2(ctx context.Context, t chanmsg.Transport) (*chanmsg.Create2, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Create2)
	if !ok {
		return nil, unexpected("Create2", msg)
	}
	return m, nil
}

func expectCreate3(ctx context.Context, t chanmsg.Transport) (*chanmsg.Create3, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Create3)
	if !ok {
		return nil, unexpected("Create3", msg)
	}
	return m, nil
}

func expectCreate4(ctx context.Context, t chanmsg.Transport) (*chanmsg.Create4, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Create4)
	if !ok {
		return nil, unexpected("Create4", msg)
	}
	return m, nil
}

func expectCreate5(ctx context.Context, t chanmsg.Transport) (*chanmsg.Create5, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := msg.(*chanmsg.Create5)
	if !ok {
		return nil, unexpected("Create5", msg)
	}
	return m, nil
}

func unexpected(expected string, got chanmsg.Message) error {
	return &thorerrors.UnexpectedMessageError{Expected: expected, Received: fmt.Sprintf("%T", got)}
}

func fundOutputAddress(out *transaction.FundingOutput, net *chaincfg.Params) (btcutil.Address, error) {
	hash := sha256.Sum256(out.Script)
	return btcutil.NewAddressWitnessScriptHash(hash[:], net)
}

func buildCommitOutputFor(xSelf, xOther keys.OwnershipPublicKey, rSelf, rOther keys.RevocationPublicKey, ySelf, yOther keys.PublishingPublicKey, timeLock uint32, amount int64) (*transaction.CommitOutput, error) {
	a := transaction.CommitPartyKeys{Ownership: xSelf, Revocation: rSelf, Publishing: ySelf}
	b := transaction.CommitPartyKeys{Ownership: xOther, Revocation: rOther, Publishing: yOther}
	return transaction.BuildCommitOutput(a, b, timeLock, amount-transaction.TxFee)
}

// attachSplitWitness finalizes a split transaction spending the commit
// output's cooperative channel-state branch, ordering the two ownership
// signatures to match the sorted X0/X1 slots the commit script expects.
func attachSplitWitness(splitTx *transaction.SplitTransaction, commitScript []byte, selfIsX0 bool, sigSelf, sigOther *ecdsa.Signature) {
	var sigX0, sigX1 *ecdsa.Signature
	if selfIsX0 {
		sigX0, sigX1 = sigSelf, sigOther
	} else {
		sigX0, sigX1 = sigOther, sigSelf
	}
	witness := transaction.SpendCommitChannelState(commitScript, sigX1, sigX0)
	splitTx.Attach(witness)
}

// mergeFundingPSBTs combines each party's own funding PSBT skeleton into a
// single joint packet: both parties' fund contributions collapse into one
// fund output first, followed by each party's change outputs, with inputs
// and outputs grouped by the (X, psbt) sort so both parties independently
// derive the same joint transaction (and therefore the same txid) from
// their own local halves.
func mergeFundingPSBTs(fundPkScript []byte, fundAmount int64, xSelf keys.OwnershipPublicKey, selfPSBT *psbt.Packet, xOther keys.OwnershipPublicKey, otherPSBT *psbt.Packet) (*psbt.Packet, error) {
	type partyPSBT struct {
		x keys.OwnershipPublicKey
		p *psbt.Packet
	}
	parties := []partyPSBT{{xSelf, selfPSBT}, {xOther, otherPSBT}}
	sort.Slice(parties, func(i, j int) bool { return parties[i].x.Less(parties[j].x) })

	tx := wire.NewMsgTx(2)
	var inputs []psbt.PInput
	var contributed int64
	var changeOuts []*wire.TxOut
	var changeMeta []psbt.POutput
	for _, party := range parties {
		for i, in := range party.p.UnsignedTx.TxIn {
			tx.AddTxIn(in)
			inputs = append(inputs, party.p.Inputs[i])
		}
		found := false
		for i, out := range party.p.UnsignedTx.TxOut {
			if bytes.Equal(out.PkScript, fundPkScript) {
				contributed += out.Value
				found = true
				continue
			}
			changeOuts = append(changeOuts, out)
			changeMeta = append(changeMeta, party.p.Outputs[i])
		}
		if !found {
			return nil, fmt.Errorf("funding psbt pays nothing to the fund output")
		}
	}
	if contributed != fundAmount {
		return nil, fmt.Errorf("funding psbts contribute %d to the fund output, want %d", contributed, fundAmount)
	}

	tx.AddTxOut(wire.NewTxOut(fundAmount, fundPkScript))
	for _, out := range changeOuts {
		tx.AddTxOut(out)
	}

	combined, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}
	combined.Inputs = inputs
	combined.Outputs = append([]psbt.POutput{{}}, changeMeta...)
	return combined, nil
}

// finalizeFundingTransaction merges two fully (self-)signed halves of the
// joint funding PSBT into the single broadcastable transaction whose txid
// was already fixed when joint was first built, taking each input's
// finalized witness from whichever half actually signed it.
func finalizeFundingTransaction(joint, selfSigned, otherSigned *psbt.Packet) (*wire.MsgTx, error) {
	if !bytes.Equal(serializeUnsignedTx(joint), serializeUnsignedTx(selfSigned)) ||
		!bytes.Equal(serializeUnsignedTx(joint), serializeUnsignedTx(otherSigned)) {
		return nil, fmt.Errorf("channel: funding psbts diverge between parties")
	}

	tx := joint.UnsignedTx.Copy()
	for i := range tx.TxIn {
		raw := selfSigned.Inputs[i].FinalScriptWitness
		if len(raw) == 0 {
			raw = otherSigned.Inputs[i].FinalScriptWitness
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("channel: funding input %d never finalized by either party", i)
		}
		witness, err := decodeWitness(raw)
		if err != nil {
			return nil, fmt.Errorf("channel: decode funding witness %d: %w", i, err)
		}
		tx.TxIn[i].Witness = witness
	}
	return tx, nil
}

func serializeUnsignedTx(p *psbt.Packet) []byte {
	var buf bytes.Buffer
	_ = p.UnsignedTx.Serialize(&buf)
	return buf.Bytes()
}

const maxWitnessItemSize = 10_000

// decodeWitness parses a PSBT FinalScriptWitness field, which is itself the
// standard consensus serialization of a transaction input's witness stack:
// a compact-size item count followed by each item's compact-size length and
// bytes.
func decodeWitness(raw []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(raw)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	items := make(wire.TxWitness, count)
	for i := range items {
		item, err := wire.ReadVarBytes(r, 0, maxWitnessItemSize, "witness item")
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	return items, nil
}
