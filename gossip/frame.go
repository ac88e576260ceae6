package gossip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/maxpoletaev/cyclon/view/wire"
)

// opcode identifies the kind of frame on the wire. Unlike a UDP
// datagram transport, the gossip exchange needs a reliable, ordered byte stream (a lost or reordered
// push-pull would corrupt the sender's or receiver's view), so frames
// are exchanged over plain TCP rather than UDP.
type opcode byte

const (
	opPushView     opcode = 1
	opPullView     opcode = 2
	opPushPullView opcode = 3
	opAck          opcode = 4
	opViewPayload  opcode = 5
	opError        opcode = 6
)

const (
	// maxFrameSize bounds the payload length accepted from the wire, to
	// keep a misbehaving or malicious peer from making the server
	// allocate unbounded memory for a length it claims but never sends.
	maxFrameSize = 1 << 20
)

var errFrameTooLarge = errors.New("gossip: frame payload exceeds maximum size")

// writeFrame writes a single [opcode][length][payload] frame to w.
func writeFrame(w io.Writer, op opcode, payload []byte) error {
	header := make([]byte, 5)
	header[0] = byte(op)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("gossip: write frame header: %w", err)
	}

	if len(payload) == 0 {
		return nil
	}

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("gossip: write frame payload: %w", err)
	}

	return nil
}

// readFrame reads a single frame from r.
func readFrame(r io.Reader) (opcode, []byte, error) {
	header := make([]byte, 5)

	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	size := binary.BigEndian.Uint32(header[1:])
	if size > maxFrameSize {
		return 0, nil, errFrameTooLarge
	}

	if size == 0 {
		return opcode(header[0]), nil, nil
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("gossip: read frame payload: %w", err)
	}

	return opcode(header[0]), payload, nil
}

func writeViewPayload(w io.Writer, nodes []wireNode) error {
	return writeFrame(w, opViewPayload, marshalViewPayload(nodes))
}

func marshalViewPayload(nodes []wireNode) []byte {
	return wire.ViewMsg{Nodes: nodes}.Marshal()
}

func unmarshalViewPayload(b []byte) ([]wireNode, error) {
	msg, err := wire.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("gossip: failed to decode view payload: %w", err)
	}

	return msg.Nodes, nil
}

// encodeError packs a status code and message into an opError payload:
// one byte for the code, followed by the raw message text.
func encodeError(code codes.Code, err error) []byte {
	msg := err.Error()
	b := make([]byte, 1+len(msg))
	b[0] = byte(code)
	copy(b[1:], msg)

	return b
}

// errorFromFrame turns a response frame into an error, or nil if the
// frame signals success (an ack or a view payload). The returned error
// carries a gRPC status code, recoverable with status.FromError or
// grpcutil.ErrorCode, so callers can tell a malformed request from a
// transient failure without string matching.
func errorFromFrame(op opcode, payload []byte) error {
	if op != opError {
		return nil
	}

	if len(payload) == 0 {
		return status.New(codes.Unknown, "gossip: peer returned an unspecified error").Err()
	}

	return status.New(codes.Code(payload[0]), string(payload[1:])).Err()
}

// wireNode is an alias used to keep this file readable without importing
// view.NodeDescriptor's package under a stuttering name at every call
// site; conversion happens in server.go/client.go, which already depend
// on the view package.
type wireNode = wire.NodeMsg
