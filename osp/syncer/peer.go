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

	lru "github.com/hashicorp/golang-lru"
	"github.com/ospreychain/go-osprey/common"
)

// peerStateKind enumerates the download activities a peer can be engaged in.
// A peer has at most one outstanding request at a time, so its state is the
// single source of truth for what it currently owes us.
type peerStateKind int

const (
	peerAvailable peerStateKind = iota
	peerAncestorSearch
	peerDownloadingNew
	peerDownloadingStale
	peerDownloadingJustification
)

// peerState pairs the activity kind with its subject, a block number for
// ancestor searches and new-range downloads, a hash for stale block and
// justification fetches.
type peerState struct {
	kind   peerStateKind
	number uint64
	hash   common.Hash
}

func stateAvailable() peerState {
	return peerState{kind: peerAvailable}
}

func stateAncestorSearch(number uint64) peerState {
	return peerState{kind: peerAncestorSearch, number: number}
}

func stateDownloadingNew(start uint64) peerState {
	return peerState{kind: peerDownloadingNew, number: start}
}

func stateDownloadingStale(hash common.Hash) peerState {
	return peerState{kind: peerDownloadingStale, hash: hash}
}

func stateDownloadingJustification(hash common.Hash) peerState {
	return peerState{kind: peerDownloadingJustification, hash: hash}
}

func (s peerState) String() string {
	switch s.kind {
	case peerAncestorSearch:
		return fmt.Sprintf("ancestor search at #%d", s.number)
	case peerDownloadingNew:
		return fmt.Sprintf("downloading new from #%d", s.number)
	case peerDownloadingStale:
		return fmt.Sprintf("downloading stale %s", s.hash.TerminalString())
	case peerDownloadingJustification:
		return fmt.Sprintf("downloading justification %s", s.hash.TerminalString())
	}
	return "available"
}

// peerSync is the book-keeping for one connected peer.
type peerSync struct {
	commonNumber uint64      // Highest block known to be shared with the peer
	bestHash     common.Hash // Tip the peer most recently advertised
	bestNumber   uint64      // Height of the advertised tip
	state        peerState

	recentlyAnnounced *lru.Cache // Hashes the peer announced lately, to classify import origin
}

func newPeerSync(info *PeerInfo, commonNumber uint64, state peerState) *peerSync {
	announced, _ := lru.New(announceHistorySize)
	return &peerSync{
		commonNumber:      commonNumber,
		bestHash:          info.BestHash,
		bestNumber:        info.BestNumber,
		state:             state,
		recentlyAnnounced: announced,
	}
}

// announced records a block hash the peer just announced.
func (p *peerSync) announced(hash common.Hash) {
	p.recentlyAnnounced.Add(hash, struct{}{})
}

// hasAnnounced reports whether the peer announced the given hash recently.
func (p *peerSync) hasAnnounced(hash common.Hash) bool {
	return p.recentlyAnnounced.Contains(hash)
}
