// Package chanmsg defines the wire messages exchanged between the two
// parties of a channel session: every round of channel-open, update,
// close, splice, punish-adjacent secret reveal, and the cross-chain swap.
package chanmsg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessagePayload bounds any single message regardless of its own
// MaxPayloadLength, guarding against a malformed length field driving an
// unbounded allocation.
const MaxMessagePayload = 1 << 20

// MessageType is the 2-byte big-endian message type prefix every message
// is framed with on the wire.
type MessageType uint16

const (
	MsgCreate0 MessageType = iota + 1
	MsgCreate1
	MsgCreate2
	MsgCreate3
	MsgCreate4
	MsgCreate5

	MsgUpdate0
	MsgUpdatePtlcFunder
	MsgUpdatePtlcRedeemer
	MsgUpdate1
	MsgUpdate2
	MsgUpdate3

	MsgClose0

	MsgSplice0
	MsgSplice1
	MsgSplice2
	MsgSplice3

	MsgSecret

	MsgSwap0a
	MsgSwap0b
	MsgSwap1a
	MsgSwap1b
	MsgSwapTxLockProof
	MsgSwapRedeemEncSig

	MsgSwapPtlcPropose
	MsgSwapPtlcAccept
)

// Message is a single round's payload. Encode/Decode use this package's
// own element codec (see codec.go); MsgType identifies the concrete type
// for framing.
type Message interface {
	Decode(r io.Reader) error
	Encode(w io.Writer) error
	MsgType() MessageType
	MaxPayloadLength() uint32
}

func makeEmptyMessage(msgType MessageType) (Message, error) {
	var msg Message

	switch msgType {
	case MsgCreate0:
		msg = &Create0{}
	case MsgCreate1:
		msg = &Create1{}
	case MsgCreate2:
		msg = &Create2{}
	case MsgCreate3:
		msg = &Create3{}
	case MsgCreate4:
		msg = &Create4{}
	case MsgCreate5:
		msg = &Create5{}
	case MsgUpdate0:
		msg = &Update0{}
	case MsgUpdatePtlcFunder:
		msg = &UpdatePtlcFunder{}
	case MsgUpdatePtlcRedeemer:
		msg = &UpdatePtlcRedeemer{}
	case MsgUpdate1:
		msg = &Update1{}
	case MsgUpdate2:
		msg = &Update2{}
	case MsgUpdate3:
		msg = &Update3{}
	case MsgClose0:
		msg = &Close0{}
	case MsgSplice0:
		msg = &Splice0{}
	case MsgSplice1:
		msg = &Splice1{}
	case MsgSplice2:
		msg = &Splice2{}
	case MsgSplice3:
		msg = &Splice3{}
	case MsgSecret:
		msg = &SecretMsg{}
	case MsgSwap0a:
		msg = &Swap0a{}
	case MsgSwap0b:
		msg = &Swap0b{}
	case MsgSwap1a:
		msg = &Swap1a{}
	case MsgSwap1b:
		msg = &Swap1b{}
	case MsgSwapTxLockProof:
		msg = &SwapTxLockProof{}
	case MsgSwapRedeemEncSig:
		msg = &SwapRedeemEncSig{}
	case MsgSwapPtlcPropose:
		msg = &SwapPtlcPropose{}
	case MsgSwapPtlcAccept:
		msg = &SwapPtlcAccept{}
	default:
		return nil, fmt.Errorf("chanmsg: unknown message type %d", msgType)
	}

	return msg, nil
}

// WriteMessage frames msg with its 2-byte type prefix and writes it to w.
func WriteMessage(w io.Writer, msg Message) (int, error) {
	var bw bytes.Buffer
	if err := msg.Encode(&bw); err != nil {
		return 0, err
	}
	payload := bw.Bytes()

	if len(payload) > MaxMessagePayload {
		return 0, fmt.Errorf("chanmsg: payload of %d bytes exceeds maximum %d", len(payload), MaxMessagePayload)
	}
	if mpl := msg.MaxPayloadLength(); uint32(len(payload)) > mpl {
		return 0, fmt.Errorf("chanmsg: payload of %d bytes exceeds type %d's maximum %d", len(payload), msg.MsgType(), mpl)
	}

	var typeBuf [2]byte
	binary.BigEndian.PutUint16(typeBuf[:], uint16(msg.MsgType()))

	total := 0
	n, err := w.Write(typeBuf[:])
	total += n
	if err != nil {
		return total, err
	}
	n, err = w.Write(payload)
	total += n
	return total, err
}

// ReadMessage reads a single framed message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var typeBuf [2]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return nil, err
	}

	msgType := MessageType(binary.BigEndian.Uint16(typeBuf[:]))
	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(r); err != nil {
		return nil, err
	}
	return msg, nil
}
