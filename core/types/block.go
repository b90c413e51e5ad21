// Copyright 2018 The go-ethereum Authors
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

// Package types contains the data types of the Osprey chain.
package types

import (
	"fmt"

	"github.com/ospreychain/go-osprey/common"
)

// Header represents a block header in the Osprey chain. The identity hash is
// computed by the codec layer on decode and carried alongside the fields.
type Header struct {
	ParentHash common.Hash
	Number     uint64
	Hash       common.Hash
}

// String implements the stringer interface.
func (h *Header) String() string {
	return fmt.Sprintf("#%d (%s)", h.Number, h.Hash.TerminalString())
}

// Body is the opaque extrinsic content of a block. Validation happens in the
// import pipeline, never in the network layer.
type Body []byte

// Justification is a cryptographic finality proof for a single block, sourced
// separately from the block itself.
type Justification []byte
