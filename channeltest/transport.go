// Package channeltest provides in-memory fakes for the channel and swap
// protocols' external collaborators (chanmsg.Transport, walletiface.BitcoinWallet,
// moneroiface.Wallet), letting a two-party protocol run end to end inside a
// single test process without any real network or chain, mirroring the
// lnwallet test suite's use of channeldb.MakeTestDB and mock link/contractcourt
// fakes.
package channeltest

import (
	"context"
	"fmt"

	"github.com/ptlc-labs/thor/chanmsg"
)

// LoopbackTransport is a pair of buffered channels (capacity 16) connecting two
// chanmsg.Transport endpoints in the same process. NewLoopback returns both
// ends; each party's Open/Update/.../Splice call is driven from its own
// goroutine against its own end.
type LoopbackTransport struct {
	send <-chan chanmsg.Message
	recv chan<- chanmsg.Message
}

// NewLoopback returns two connected Transport endpoints: whatever A sends,
// B receives, and vice versa.
func NewLoopback() (a, b *LoopbackTransport) {
	ab := make(chan chanmsg.Message, 16)
	ba := make(chan chanmsg.Message, 16)
	a = &LoopbackTransport{send: ba, recv: ab}
	b = &LoopbackTransport{send: ab, recv: ba}
	return a, b
}

func (t *LoopbackTransport) Send(ctx context.Context, msg chanmsg.Message) error {
	select {
	case t.recv <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *LoopbackTransport) Receive(ctx context.Context) (chanmsg.Message, error) {
	select {
	case msg, ok := <-t.send:
		if !ok {
			return nil, fmt.Errorf("channeltest: transport closed")
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ chanmsg.Transport = (*LoopbackTransport)(nil)
