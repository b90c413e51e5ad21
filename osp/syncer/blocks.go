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
	"sort"

	log "github.com/inconshreveable/log15"
	dtype "github.com/ospreychain/go-osprey/osp/types"
)

// numberRange is a half-open interval of block numbers, Start inclusive, End
// exclusive.
type numberRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of blocks covered by the range.
func (r numberRange) Len() uint32 {
	return uint32(r.End - r.Start)
}

type blockRangeState int

const (
	rangeDownloading blockRangeState = iota
	rangeComplete
)

// blockRange is one downloaded or in-flight span of consecutive blocks,
// keyed in the collection by its first block number.
type blockRange struct {
	state  blockRangeState
	peer   string             // Peer assigned to (or source of) the range
	length uint64             // Expected span while downloading
	blocks []*dtype.BlockData // Received blocks once complete
}

func (r *blockRange) span() uint64 {
	if r.state == rangeComplete {
		return uint64(len(r.blocks))
	}
	return r.length
}

// drainedBlock is one block leaving the collection, tagged with the peer the
// containing range was downloaded from.
type drainedBlock struct {
	block  *dtype.BlockData
	origin string
}

// blockCollection accumulates block ranges downloaded from several peers and
// hands them out again as a single gap-free sequence. Each peer downloads at
// most one range at a time; distinct peers are assigned distinct ranges so
// that downloads parallelize instead of duplicating work.
type blockCollection struct {
	ranges       map[uint64]*blockRange // Ranges pending import, keyed by first block number
	peerRequests map[string]uint64      // Range start currently assigned to each peer
}

func newBlockCollection() *blockCollection {
	return &blockCollection{
		ranges:       make(map[uint64]*blockRange),
		peerRequests: make(map[string]uint64),
	}
}

// sortedStarts returns the range keys in ascending order.
func (bc *blockCollection) sortedStarts() []uint64 {
	starts := make([]uint64, 0, len(bc.ranges))
	for start := range bc.ranges {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts
}

// neededBlocks returns the lowest range of up to count blocks above
// commonNumber and within the peer's chain that is neither downloaded nor
// assigned to another peer, reserving it for the given peer. Returns nil if
// the peer has nothing useful to contribute.
func (bc *blockCollection) neededBlocks(who string, count uint64, peerBest uint64, commonNumber uint64) *numberRange {
	if _, busy := bc.peerRequests[who]; busy {
		// the peer already has an assigned range
		return nil
	}
	first := commonNumber + 1
	end := first + count

	for _, start := range bc.sortedStarts() {
		r := bc.ranges[start]
		if start > first {
			if start < end {
				end = start
			}
			break
		}
		if next := start + r.span(); next > first {
			first = next
			end = first + count
		}
	}
	if first > peerBest {
		return nil
	}
	if end > peerBest+1 {
		end = peerBest + 1
	}
	if end <= first {
		return nil
	}
	bc.ranges[first] = &blockRange{state: rangeDownloading, peer: who, length: end - first}
	bc.peerRequests[who] = first
	log.Debug("Assigning block range", "peer", who, "from", first, "to", end)
	return &numberRange{Start: first, End: end}
}

// insert records a downloaded range starting at the given number.
func (bc *blockCollection) insert(start uint64, blocks []*dtype.BlockData, who string) {
	if len(blocks) == 0 {
		return
	}
	bc.ranges[start] = &blockRange{state: rangeComplete, peer: who, blocks: blocks}
}

// drain removes and returns the longest contiguous sequence of downloaded
// blocks starting at the given number. Overlapping ranges contribute each
// block number at most once.
func (bc *blockCollection) drain(from uint64) []drainedBlock {
	var drained []drainedBlock
	next := from
	for _, start := range bc.sortedStarts() {
		r := bc.ranges[start]
		if start > next {
			break
		}
		if r.state == rangeDownloading {
			if start+r.span() > next {
				break
			}
			continue
		}
		for i, block := range r.blocks {
			if start+uint64(i) < next {
				continue
			}
			drained = append(drained, drainedBlock{block: block, origin: r.peer})
			next++
		}
		delete(bc.ranges, start)
	}
	return drained
}

// clearPeerDownload releases the range reserved by the given peer so other
// peers may pick it up again.
func (bc *blockCollection) clearPeerDownload(who string) {
	start, ok := bc.peerRequests[who]
	if !ok {
		return
	}
	if r, ok := bc.ranges[start]; ok && r.state == rangeDownloading && r.peer == who {
		delete(bc.ranges, start)
	}
	delete(bc.peerRequests, who)
}

// clear drops all tracked ranges and assignments.
func (bc *blockCollection) clear() {
	bc.ranges = make(map[uint64]*blockRange)
	bc.peerRequests = make(map[string]uint64)
}
