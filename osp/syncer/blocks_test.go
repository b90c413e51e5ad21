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
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ospreychain/go-osprey/common"
)

func TestNeededBlocksAssignsDistinctRanges(t *testing.T) {
	bc := newBlockCollection()

	r1 := bc.neededBlocks("p1", 128, 1000, 0)
	require.NotNil(t, r1)
	require.Equal(t, uint64(1), r1.Start)
	require.Equal(t, uint64(129), r1.End)

	r2 := bc.neededBlocks("p2", 128, 1000, 0)
	require.NotNil(t, r2)
	require.Equal(t, uint64(129), r2.Start)
	require.Equal(t, uint64(257), r2.End)
}

func TestNeededBlocksSinglePerPeer(t *testing.T) {
	bc := newBlockCollection()

	require.NotNil(t, bc.neededBlocks("p1", 128, 1000, 0))
	require.Nil(t, bc.neededBlocks("p1", 128, 1000, 0))
}

func TestNeededBlocksCappedByPeerBest(t *testing.T) {
	bc := newBlockCollection()

	r := bc.neededBlocks("p1", 128, 10, 0)
	require.NotNil(t, r)
	require.Equal(t, uint64(1), r.Start)
	require.Equal(t, uint64(11), r.End)
	require.Equal(t, uint32(10), r.Len())

	// nothing above the peer's best
	require.Nil(t, bc.neededBlocks("p2", 128, 10, 10))
}

func TestNeededBlocksSkipsDownloadedRanges(t *testing.T) {
	bc := newBlockCollection()

	headers := makeHeaders(common.Hash{}, 5, 0)
	bc.insert(1, blockData(headers[1:]...), "p1")

	r := bc.neededBlocks("p2", 128, 1000, 0)
	require.NotNil(t, r)
	require.Equal(t, uint64(6), r.Start)
}

func TestDrainContiguousPrefix(t *testing.T) {
	bc := newBlockCollection()

	headers := makeHeaders(common.Hash{}, 10, 0)
	bc.insert(1, blockData(headers[1:6]...), "p1")
	bc.insert(8, blockData(headers[8:]...), "p2")

	drained := bc.drain(1)
	require.Len(t, drained, 5)
	for i, d := range drained {
		require.Equal(t, uint64(i+1), d.block.Header.Number)
		require.Equal(t, "p1", d.origin)
	}

	// the gap at 6..7 blocks the rest
	require.Empty(t, bc.drain(6))

	bc.insert(6, blockData(headers[6:8]...), "p3")
	drained = bc.drain(6)
	require.Len(t, drained, 5)
	require.Equal(t, uint64(6), drained[0].block.Header.Number)
	require.Equal(t, uint64(10), drained[4].block.Header.Number)
	require.Equal(t, "p3", drained[0].origin)
	require.Equal(t, "p2", drained[2].origin)
}

func TestDrainOverlapEmitsOnce(t *testing.T) {
	bc := newBlockCollection()

	headers := makeHeaders(common.Hash{}, 8, 0)
	bc.insert(1, blockData(headers[1:5]...), "p1")
	bc.insert(3, blockData(headers[3:]...), "p2")

	drained := bc.drain(1)
	require.Len(t, drained, 8)
	seen := make(map[uint64]bool)
	for _, d := range drained {
		require.False(t, seen[d.block.Header.Number], "block %d drained twice", d.block.Header.Number)
		seen[d.block.Header.Number] = true
	}
}

func TestDrainWaitsForDownloadingRange(t *testing.T) {
	bc := newBlockCollection()

	r := bc.neededBlocks("p1", 4, 1000, 0)
	require.NotNil(t, r)

	headers := makeHeaders(common.Hash{}, 8, 0)
	bc.insert(5, blockData(headers[5:]...), "p2")

	// the in-flight range 1..4 gates the drain
	require.Empty(t, bc.drain(1))
}

func TestClearPeerDownloadReleasesRange(t *testing.T) {
	bc := newBlockCollection()

	r1 := bc.neededBlocks("p1", 128, 1000, 0)
	require.NotNil(t, r1)

	bc.clearPeerDownload("p1")

	r2 := bc.neededBlocks("p2", 128, 1000, 0)
	require.NotNil(t, r2)
	require.Equal(t, r1.Start, r2.Start)
}

func TestClearPeerDownloadKeepsCompleted(t *testing.T) {
	bc := newBlockCollection()

	require.NotNil(t, bc.neededBlocks("p1", 4, 1000, 0))
	headers := makeHeaders(common.Hash{}, 4, 0)
	bc.clearPeerDownload("p1")
	bc.insert(1, blockData(headers[1:]...), "p1")
	bc.clearPeerDownload("p1")

	require.Len(t, bc.drain(1), 4)
}

func TestCollectionClear(t *testing.T) {
	bc := newBlockCollection()

	require.NotNil(t, bc.neededBlocks("p1", 128, 1000, 0))
	headers := makeHeaders(common.Hash{}, 4, 0)
	bc.insert(200, blockData(headers[1:]...), "p2")

	bc.clear()
	require.Empty(t, bc.ranges)
	require.Empty(t, bc.peerRequests)

	r := bc.neededBlocks("p1", 128, 1000, 0)
	require.NotNil(t, r)
	require.Equal(t, uint64(1), r.Start)
}
