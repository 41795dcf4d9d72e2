package chanmsg

import "context"

// Transport is the session-level channel between the two parties of a
// channel or swap protocol run. Implementations range from a brontide-style
// encrypted TCP connection to an in-memory loopback used in tests.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context) (Message, error)
}
