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

package types

import (
	"fmt"

	"github.com/ospreychain/go-osprey/common"
	"github.com/ospreychain/go-osprey/core/types"
)

// BlockAttributes is a bitmask of the block parts a request asks for.
type BlockAttributes uint8

const (
	AttrHeader        BlockAttributes = 1 << 0
	AttrBody          BlockAttributes = 1 << 1
	AttrReceipt       BlockAttributes = 1 << 2
	AttrMessageQueue  BlockAttributes = 1 << 3
	AttrJustification BlockAttributes = 1 << 4
)

// Has reports whether all bits of attr are set in the receiver.
func (a BlockAttributes) Has(attr BlockAttributes) bool {
	return a&attr == attr
}

// Direction is the order in which a range of blocks should be returned.
type Direction uint8

const (
	// DirAscending walks from the requested block towards the chain tip.
	DirAscending Direction = iota
	// DirDescending walks from the requested block towards genesis.
	DirDescending
)

func (d Direction) String() string {
	if d == DirDescending {
		return "descending"
	}
	return "ascending"
}

// HashOrNumber is a combined field for specifying the origin block of a
// request. Either the hash or the number is set, never both. A zero hash
// means the number is the one to use.
type HashOrNumber struct {
	Hash   common.Hash // Block hash from which to retrieve (excludes Number)
	Number uint64      // Block number from which to retrieve (excludes Hash)
}

// IsHash reports whether the origin names a block by hash.
func (hn HashOrNumber) IsHash() bool {
	return !common.EmptyHash(hn.Hash)
}

func (hn HashOrNumber) String() string {
	if hn.IsHash() {
		return hn.Hash.TerminalString()
	}
	return fmt.Sprintf("#%d", hn.Number)
}

// BlockRequest asks a peer for a sequence of blocks, or parts of them.
type BlockRequest struct {
	ID        uint64          // Correlation id, echoed back in the response
	Fields    BlockAttributes // Parts of the block to return
	From      HashOrNumber    // First block of the sequence
	To        *common.Hash    // Optional hash to stop at
	Direction Direction       // Walk direction from the first block
	Max       uint32          // Cap on the number of returned blocks, 0 means no cap
}

// BlockData is one block of a response, holding whichever parts the request
// asked for and the peer had available.
type BlockData struct {
	Hash          common.Hash
	Header        *types.Header
	Body          *types.Body
	Receipt       []byte
	MessageQueue  []byte
	Justification types.Justification
}

// BlockResponse carries the blocks answering a single BlockRequest.
type BlockResponse struct {
	ID     uint64
	Blocks []*BlockData
}

// BlockAnnounce notifies peers about the existence of a freshly produced or
// imported block.
type BlockAnnounce struct {
	Header *types.Header
}

// BlockOrigin describes where a block going into the import pipeline came
// from, which decides how much verification it gets.
type BlockOrigin int

const (
	// OriginGenesis is the hardcoded genesis block.
	OriginGenesis BlockOrigin = iota
	// OriginNetworkInitialSync is a block arriving during initial catch-up.
	OriginNetworkInitialSync
	// OriginNetworkBroadcast is a recently announced block near the tip.
	OriginNetworkBroadcast
	// OriginConsensusBroadcast is a block relayed by the consensus gossip.
	OriginConsensusBroadcast
	// OriginOwn is a block authored by this node.
	OriginOwn
	// OriginFile is a block imported from a chain export.
	OriginFile
)

func (o BlockOrigin) String() string {
	switch o {
	case OriginGenesis:
		return "genesis"
	case OriginNetworkInitialSync:
		return "network initial sync"
	case OriginNetworkBroadcast:
		return "network broadcast"
	case OriginConsensusBroadcast:
		return "consensus broadcast"
	case OriginOwn:
		return "own"
	case OriginFile:
		return "file"
	}
	return "unknown"
}

// IncomingBlock is a single block handed to the import pipeline, together
// with the peer it was sourced from (empty if none).
type IncomingBlock struct {
	Hash          common.Hash
	Header        *types.Header
	Body          *types.Body
	Justification types.Justification
	Origin        string
}

// ImportQueueStatus is a point-in-time snapshot of the import pipeline load.
type ImportQueueStatus struct {
	ImportingCount int
}
