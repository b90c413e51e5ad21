// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package types contains the wire shapes of the osp block protocol and the
// types handed to the block import pipeline.
package types

// Constants to match up protocol versions and messages
const (
	osp1 = 1
)

// ProtocolName is the official short name of the protocol used during capability negotiation.
var ProtocolName = "osp"

// ProtocolVersions are the supported versions of the osp protocol (first is primary).
var ProtocolVersions = []uint{osp1}

// ProtocolLengths are the number of implemented message corresponding to different protocol versions.
var ProtocolLengths = []uint64{6}

const ProtocolMaxMsgSize = 10 * 1024 * 1024 // Maximum cap on the size of a protocol message

// osp protocol message codes
const (
	StatusMsg             = 0x00
	BlockAnnounceMsg      = 0x01
	BlockRequestMsg       = 0x02
	BlockResponseMsg      = 0x03
	TransactionsMsg       = 0x04
	JustificationRelayMsg = 0x05
)

// Roles describes the part a node plays on the network. It is a bitmask so a
// single node may combine several of them.
type Roles uint8

const (
	RoleNone      Roles = 0
	RoleFull      Roles = 1 << 0
	RoleLight     Roles = 1 << 1
	RoleAuthority Roles = 1 << 2
)

// Intersects reports whether the receiver shares at least one role with other.
func (r Roles) Intersects(other Roles) bool {
	return r&other != 0
}

func (r Roles) String() string {
	switch {
	case r.Intersects(RoleAuthority):
		return "authority"
	case r.Intersects(RoleFull):
		return "full"
	case r.Intersects(RoleLight):
		return "light"
	}
	return "none"
}
