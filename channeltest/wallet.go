package channeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/ptlc-labs/thor/walletiface"
)

// Wallet is an in-memory walletiface.BitcoinWallet backed by a single
// randomly generated private key, a counter standing in for an unspent-output set,
// and a map of broadcast transactions a test can later fetch back via
// GetRawTransaction, e.g. to drive Channel.Punish against a transaction
// this same test broadcast moments earlier.
type Wallet struct {
	Net *chaincfg.Params
	sk  *btcec.PrivateKey

	mu          sync.Mutex
	utxoCounter uint32
	broadcast   map[chainhash.Hash]*wire.MsgTx
	medianTime  uint32
}

// NewWallet returns a fresh test wallet. Every output it funds a PSBT with
// is make-believe: a deterministic, never-before-seen outpoint considered
// already confirmed, adequate for exercising the protocol's signing and
// witness-assembly logic without a real chain.
func NewWallet(net *chaincfg.Params) (*Wallet, error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &Wallet{
		Net:        net,
		sk:         sk,
		broadcast:  make(map[chainhash.Hash]*wire.MsgTx),
		medianTime: 1_700_000_000,
	}, nil
}

func (w *Wallet) NewAddress(ctx context.Context) (btcutil.Address, error) {
	pub := w.sk.PubKey()
	hash := btcutil.Hash160(pub.SerializeCompressed())
	return btcutil.NewAddressWitnessPubKeyHash(hash, w.Net)
}

// BuildFundingPSBT fabricates a single fresh input worth amount and an
// output paying addr, already "signed" in the sense that SignFundingPSBT
// will always succeed on it: this fake never models insufficient funds or
// competing spends.
func (w *Wallet) BuildFundingPSBT(ctx context.Context, addr btcutil.Address, amount int64) (*psbt.Packet, error) {
	w.mu.Lock()
	idx := w.utxoCounter
	w.utxoCounter++
	w.mu.Unlock()

	var fakeTxid chainhash.Hash
	fakeTxid[0] = byte(idx)
	fakeTxid[1] = byte(idx >> 8)

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: fakeTxid, Index: 0}})
	tx.AddTxOut(wire.NewTxOut(amount, script))

	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}
	return pkt, nil
}

// SignFundingPSBT finalizes every input that has no final witness yet with
// a trivial single-element witness; it does not check whose input it is.
func (w *Wallet) SignFundingPSBT(ctx context.Context, pkt *psbt.Packet) (*psbt.Packet, error) {
	out := *pkt
	out.Inputs = append([]psbt.PInput{}, pkt.Inputs...)
	for i := range out.Inputs {
		if len(out.Inputs[i].FinalScriptWitness) != 0 {
			continue
		}
		out.Inputs[i].FinalScriptWitness = encodeFakeWitness()
	}
	return &out, nil
}

func encodeFakeWitness() []byte {
	var buf []byte
	buf = append(buf, 0x01, 0x01, 0xAA)
	return buf
}

func (w *Wallet) BroadcastSignedTransaction(ctx context.Context, tx *wire.MsgTx) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.broadcast[tx.TxHash()] = tx.Copy()
	return nil
}

func (w *Wallet) GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tx, ok := w.broadcast[txid]
	if !ok {
		return nil, fmt.Errorf("channeltest: transaction %s never broadcast", txid)
	}
	return tx, nil
}

func (w *Wallet) MedianTime(ctx context.Context) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.medianTime, nil
}

// AdvanceMedianTime moves the fake chain's median-time-past forward by
// deltaSeconds, e.g. to simulate a relative timelock maturing.
func (w *Wallet) AdvanceMedianTime(deltaSeconds uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.medianTime += deltaSeconds
}

var _ walletiface.BitcoinWallet = (*Wallet)(nil)
