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

package syncer

import (
	"fmt"

	"github.com/ospreychain/go-osprey/common"
	"github.com/ospreychain/go-osprey/core/types"
	dtype "github.com/ospreychain/go-osprey/osp/types"
)

// SeverityKind separates peers that actively misbehave from peers that are
// merely unhelpful.
type SeverityKind int

const (
	// SeverityBad disconnects the peer and applies a demerit.
	SeverityBad SeverityKind = iota
	// SeverityUseless applies a demerit only.
	SeverityUseless
)

// Severity is the verdict attached to a peer report.
type Severity struct {
	Kind   SeverityKind
	Reason string
}

// Bad builds a report for a misbehaving peer.
func Bad(reason string) Severity {
	return Severity{Kind: SeverityBad, Reason: reason}
}

// Useless builds a report for an unhelpful peer.
func Useless(reason string) Severity {
	return Severity{Kind: SeverityUseless, Reason: reason}
}

func (s Severity) String() string {
	if s.Kind == SeverityBad {
		return fmt.Sprintf("bad: %s", s.Reason)
	}
	return fmt.Sprintf("useless: %s", s.Reason)
}

// PeerInfo is the tip a peer advertised during its protocol handshake.
type PeerInfo struct {
	BestHash   common.Hash
	BestNumber uint64
}

// Protocol is the outbound surface of the network layer the syncer drives.
type Protocol interface {
	// SendBlockRequest delivers a block request to the given peer,
	// fire-and-forget.
	SendBlockRequest(peer string, req *dtype.BlockRequest)

	// ReportPeer signals peer misbehavior or uselessness to the reputation
	// system.
	ReportPeer(peer string, severity Severity)

	// PeerInfo returns the handshake data of a connected peer, or nil if the
	// peer is gone.
	PeerInfo(peer string) *PeerInfo

	// Client returns the chain oracle backing this protocol instance.
	Client() ChainOracle
}

// BlockStatus is the chain oracle verdict about a block hash.
type BlockStatus int

const (
	// BlockStatusUnknown means the block was never seen.
	BlockStatusUnknown BlockStatus = iota
	// BlockStatusQueued means the block sits in the import pipeline.
	BlockStatusQueued
	// BlockStatusInChain means the block is part of the local chain.
	BlockStatusInChain
	// BlockStatusKnownBad means the block failed verification before.
	BlockStatusKnownBad
)

func (s BlockStatus) String() string {
	switch s {
	case BlockStatusQueued:
		return "queued"
	case BlockStatusInChain:
		return "in chain"
	case BlockStatusKnownBad:
		return "known bad"
	}
	return "unknown"
}

// ChainInfo is a snapshot of the local chain as seen by the oracle. The best
// queued fields are nil when the import pipeline holds nothing beyond the
// committed tip.
type ChainInfo struct {
	GenesisHash      common.Hash
	BestHash         common.Hash
	BestNumber       uint64
	BestQueuedHash   *common.Hash
	BestQueuedNumber *uint64
}

// ChainOracle is a read-only view of the local blockchain.
type ChainOracle interface {
	// BlockHash returns the canonical chain hash at the given height, or nil
	// if the height is past the local tip.
	BlockHash(number uint64) (*common.Hash, error)

	// BlockStatus classifies the given block hash.
	BlockStatus(hash common.Hash) (BlockStatus, error)

	// Info returns the current chain snapshot.
	Info() (*ChainInfo, error)
}

// ImportQueue is the verification and import pipeline the syncer feeds. It is
// shared with verification workers and all its operations are atomic.
type ImportQueue interface {
	// Status returns a point-in-time snapshot of the pipeline load. It may be
	// slightly stale by the time it is observed.
	Status() dtype.ImportQueueStatus

	// IsImporting reports whether the given block is currently held by the
	// pipeline.
	IsImporting(hash common.Hash) bool

	// ImportJustification verifies and applies a finality proof, returning
	// whether it was accepted.
	ImportJustification(hash common.Hash, number uint64, justification types.Justification) bool

	// Clear drops all queued blocks.
	Clear()
}

// SyncState describes whether the node is still catching up with the network.
type SyncState int

const (
	// SyncIdle means initial sync is complete and keep-up sync is active.
	SyncIdle SyncState = iota
	// SyncDownloading means the node is actively catching up with the chain.
	SyncDownloading
)

func (s SyncState) String() string {
	if s == SyncDownloading {
		return "downloading"
	}
	return "idle"
}

// Status reports the sync progress of the node.
type Status struct {
	// State is the current global sync state.
	State SyncState
	// BestSeenBlock is the highest block advertised by any peer, nil without
	// peers.
	BestSeenBlock *uint64
}

// IsMajorSyncing reports whether the node is doing major downloading work
// rather than following the head of the chain.
func (s *Status) IsMajorSyncing() bool {
	return s.State == SyncDownloading
}
