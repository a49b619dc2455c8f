// Package bus implements the topic-keyed message bus every worker reads
// and writes through: an in-process publish/subscribe fabric plus the wire
// frame codec used when a message crosses a real socket.
package bus

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"devv.network/node/internal/nodeerrors"
)

// Type identifies the payload carried by a Message, matching the six frame
// kinds nodes exchange plus the transaction-announcement kind produced
// in-process by submitters.
type Type uint32

const (
	TypeFinalBlock Type = iota
	TypeProposalBlock
	TypeTransactionAnnouncement
	TypeValid
	TypeRequestBlock
	TypeGetBlocksSince
	TypeBlocksSince
)

func (t Type) String() string {
	switch t {
	case TypeFinalBlock:
		return "FINAL_BLOCK"
	case TypeProposalBlock:
		return "PROPOSAL_BLOCK"
	case TypeTransactionAnnouncement:
		return "TRANSACTION_ANNOUNCEMENT"
	case TypeValid:
		return "VALID"
	case TypeRequestBlock:
		return "REQUEST_BLOCK"
	case TypeGetBlocksSince:
		return "GET_BLOCKS_SINCE"
	case TypeBlocksSince:
		return "BLOCKS_SINCE"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// frameHeader is the fixed leading byte of every wire frame.
const frameHeader = 0x34

// Message is the unit every bus topic carries: an opaque payload addressed
// to a topic URI, tagged with a type and a monotonic index used for
// correlation and GET_BLOCKS_SINCE-style watermarking.
type Message struct {
	URI     string
	Type    Type
	Payload []byte
	Index   uint32

	// CorrelationID ties a request frame to its eventual reply across the
	// in-process bus; it never crosses the wire frame codec, which has no
	// field for it.
	CorrelationID uuid.UUID
}

// NewMessage builds a Message with a fresh correlation id.
func NewMessage(uri string, typ Type, payload []byte, index uint32) Message {
	return Message{URI: uri, Type: typ, Payload: payload, Index: index, CorrelationID: uuid.New()}
}

// EncodeFrame renders m as the wire frame:
//
//	header(u8)=0x34, index(u32), type(u32), uri_len(u32)+uri, data_len(u32)+data
func EncodeFrame(m Message) []byte {
	uriBytes := []byte(m.URI)
	out := make([]byte, 0, 1+4+4+4+len(uriBytes)+4+len(m.Payload))
	out = append(out, frameHeader)
	out = binary.LittleEndian.AppendUint32(out, m.Index)
	out = binary.LittleEndian.AppendUint32(out, uint32(m.Type))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(uriBytes)))
	out = append(out, uriBytes...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(m.Payload)))
	out = append(out, m.Payload...)
	return out
}

// ParseFrame decodes a wire frame produced by EncodeFrame.
func ParseFrame(data []byte) (Message, error) {
	if len(data) < 1+4+4+4 {
		return Message{}, fmt.Errorf("%w: frame shorter than fixed header", nodeerrors.ErrMalformedFrame)
	}
	if data[0] != frameHeader {
		return Message{}, fmt.Errorf("%w: bad frame header byte %#x", nodeerrors.ErrMalformedFrame, data[0])
	}
	off := 1
	index := binary.LittleEndian.Uint32(data[off:])
	off += 4
	typ := Type(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	uriLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if off+uriLen+4 > len(data) {
		return Message{}, fmt.Errorf("%w: uri_len overruns frame", nodeerrors.ErrMalformedFrame)
	}
	uri := string(data[off : off+uriLen])
	off += uriLen
	dataLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if off+dataLen > len(data) {
		return Message{}, fmt.Errorf("%w: data_len overruns frame", nodeerrors.ErrMalformedFrame)
	}
	payload := make([]byte, dataLen)
	copy(payload, data[off:off+dataLen])
	return Message{URI: uri, Type: typ, Payload: payload, Index: index}, nil
}
