package channeltest

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/ptlc-labs/thor/keys"
	"github.com/ptlc-labs/thor/moneroiface"
)

// transferRecord is a fake Monero transfer: the address it paid and the
// amount, standing in for what a real wallet would learn by scanning the
// chain for TxHash with TxKey.
type transferRecord struct {
	spendKey [32]byte
	viewKey  [32]byte
	amount   uint64
}

// MoneroWallet is an in-memory moneroiface.Wallet. It never touches a real
// Monero daemon: Transfer fabricates a proof and records the transfer
// in-process, and CheckTransfer/ImportOutput look the fabricated record
// back up, adequate for exercising swap.RunAlice/RunBob's protocol logic
// without a live chain.
type MoneroWallet struct {
	mu        sync.Mutex
	transfers map[string]transferRecord
	imported  map[[32]byte]bool
}

// NewMoneroWallet returns a fresh fake Monero wallet.
func NewMoneroWallet() *MoneroWallet {
	return &MoneroWallet{
		transfers: make(map[string]transferRecord),
		imported:  make(map[[32]byte]bool),
	}
}

// Transfer fabricates a transaction hash and transaction key and records
// the (spendKey, viewKey, amount) triple under them, so a later
// CheckTransfer against the same proof succeeds.
func (w *MoneroWallet) Transfer(ctx context.Context, spendKey, publicViewKey keys.MoneroPoint, amount uint64) (*moneroiface.TransferProof, error) {
	var txHash, txKey [32]byte
	if _, err := rand.Read(txHash[:]); err != nil {
		return nil, fmt.Errorf("channeltest: fake monero transfer: %w", err)
	}
	if _, err := rand.Read(txKey[:]); err != nil {
		return nil, fmt.Errorf("channeltest: fake monero transfer: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.transfers[string(txHash[:])] = transferRecord{
		spendKey: spendKey.Bytes(),
		viewKey:  publicViewKey.Bytes(),
		amount:   amount,
	}
	return &moneroiface.TransferProof{TxHash: txHash[:], TxKey: txKey[:]}, nil
}

// CheckTransfer verifies that proof's fabricated hash was recorded by a
// prior Transfer call for spendKey/publicViewKey/amount.
func (w *MoneroWallet) CheckTransfer(ctx context.Context, spendKey, publicViewKey keys.MoneroPoint, proof *moneroiface.TransferProof, amount uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.transfers[string(proof.TxHash)]
	if !ok {
		return fmt.Errorf("channeltest: monero transfer proof unknown")
	}
	if rec.amount != amount {
		return fmt.Errorf("channeltest: monero transfer amount mismatch: got %d want %d", rec.amount, amount)
	}
	if rec.spendKey != spendKey.Bytes() || rec.viewKey != publicViewKey.Bytes() {
		return fmt.Errorf("channeltest: monero transfer destination mismatch")
	}
	return nil
}

// ImportOutput records that privateSpendKey's corresponding output is now
// spendable, the fake analog of a real wallet rescanning for it.
func (w *MoneroWallet) ImportOutput(ctx context.Context, privateSpendKey, privateViewKey keys.MoneroScalar) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.imported[privateSpendKey.Bytes()] = true
	return nil
}

// Imported reports whether ImportOutput has been called with spendKey's
// private scalar, for tests to assert the swap actually completed.
func (w *MoneroWallet) Imported(spendKey keys.MoneroScalar) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.imported[spendKey.Bytes()]
}

var _ moneroiface.Wallet = (*MoneroWallet)(nil)
