package view

import "github.com/maxpoletaev/cyclon/view/wire"

// NodeDescriptor identifies a peer known to a View: its address and the
// number of exchange rounds since it was last refreshed.
type NodeDescriptor struct {
	address string
	age     uint32
}

// NewNodeDescriptor constructs a descriptor for the given address at the
// given age.
func NewNodeDescriptor(address string, age uint32) NodeDescriptor {
	return NodeDescriptor{address: address, age: age}
}

// FromWire decodes a NodeDescriptor from its wire representation.
func FromWire(msg wire.NodeMsg) NodeDescriptor {
	return NodeDescriptor{address: msg.Address, age: msg.Age}
}

// ToWire encodes the descriptor to its wire representation.
func (n NodeDescriptor) ToWire() wire.NodeMsg {
	return wire.NodeMsg{Address: n.address, Age: n.age}
}

// Address returns the node's opaque endpoint identifier.
func (n NodeDescriptor) Address() string {
	return n.address
}

// Age returns the number of exchange rounds since this descriptor was
// last refreshed.
func (n NodeDescriptor) Age() uint32 {
	return n.age
}

// SetAge overwrites the age, used when merging in a younger copy of the
// same descriptor.
func (n *NodeDescriptor) SetAge(age uint32) {
	n.age = age
}

// IncrAge increments the age by one round.
func (n *NodeDescriptor) IncrAge() {
	n.age++
}
