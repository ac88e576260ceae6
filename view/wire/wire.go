// Package wire implements the on-the-wire encoding for gossip exchange
// payloads. It speaks real protobuf wire format (field 1 = address,
// length-delimited; field 2 = age, varint) using the low-level
// google.golang.org/protobuf/encoding/protowire primitives directly,
// rather than through protoc-generated message types, so the module has
// no code-generation step.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldAddress protowire.Number = 1
	fieldAge     protowire.Number = 2
	fieldNodes   protowire.Number = 1
)

// NodeMsg is the wire form of a view.NodeDescriptor.
type NodeMsg struct {
	Address string
	Age     uint32
}

// ViewMsg is the wire form of a tx_nodes/rx_nodes payload: a repeated
// NodeMsg.
type ViewMsg struct {
	Nodes []NodeMsg
}

// Marshal appends the wire encoding of n to b and returns the result.
func (n NodeMsg) Marshal(b []byte) []byte {
	b = protowire.AppendTag(b, fieldAddress, protowire.BytesType)
	b = protowire.AppendString(b, n.Address)
	b = protowire.AppendTag(b, fieldAge, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(n.Age))

	return b
}

func unmarshalNode(b []byte) (NodeMsg, error) {
	var msg NodeMsg

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return NodeMsg{}, fmt.Errorf("wire: consume node tag: %w", protowire.ParseError(n))
		}

		b = b[n:]

		switch num {
		case fieldAddress:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return NodeMsg{}, fmt.Errorf("wire: consume address: %w", protowire.ParseError(n))
			}

			msg.Address = v
			b = b[n:]

		case fieldAge:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return NodeMsg{}, fmt.Errorf("wire: consume age: %w", protowire.ParseError(n))
			}

			msg.Age = uint32(v)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return NodeMsg{}, fmt.Errorf("wire: skip unknown field %d: %w", num, protowire.ParseError(n))
			}

			b = b[n:]
		}
	}

	return msg, nil
}

// Marshal encodes the ViewMsg as a standalone protobuf message: a
// sequence of length-delimited field-1 entries, each an embedded NodeMsg.
func (v ViewMsg) Marshal() []byte {
	var b []byte

	var nodeBuf []byte

	for _, n := range v.Nodes {
		nodeBuf = n.Marshal(nodeBuf[:0])

		b = protowire.AppendTag(b, fieldNodes, protowire.BytesType)
		b = protowire.AppendBytes(b, nodeBuf)
	}

	return b
}

// Unmarshal decodes a ViewMsg from its wire encoding, preserving the
// original field order (required for the round-trip property: decoding
// must yield the same (address, age) sequence that was encoded).
func Unmarshal(b []byte) (ViewMsg, error) {
	var msg ViewMsg

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ViewMsg{}, fmt.Errorf("wire: consume view tag: %w", protowire.ParseError(n))
		}

		b = b[n:]

		if num != fieldNodes || typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ViewMsg{}, fmt.Errorf("wire: skip unknown field %d: %w", num, protowire.ParseError(n))
			}

			b = b[n:]

			continue
		}

		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return ViewMsg{}, fmt.Errorf("wire: consume node bytes: %w", protowire.ParseError(n))
		}

		node, err := unmarshalNode(raw)
		if err != nil {
			return ViewMsg{}, err
		}

		msg.Nodes = append(msg.Nodes, node)

		b = b[n:]
	}

	return msg, nil
}
