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

// Package syncer drives the download, verification scheduling and adoption of
// the best chain advertised by the connected peers, and backfills finality
// proofs for already imported blocks.
package syncer

import (
	"fmt"
	"sync"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"github.com/ospreychain/go-osprey/common"
	"github.com/ospreychain/go-osprey/core/types"
	dtype "github.com/ospreychain/go-osprey/osp/types"
)

const (
	// maxBlocksToRequest caps a single new-block request.
	maxBlocksToRequest = 128
	// maxImportingBlocks is the import pipeline load above which no new
	// downloads are started.
	maxImportingBlocks = 2048
	// majorSyncBlocks is the queue depth above which ancestry searches for
	// new peers are skipped, and the lag above which the node reports itself
	// as downloading.
	majorSyncBlocks = 5
	// justificationRetryWait is how long a peer that failed a justification
	// request is left alone before being asked the same request again.
	justificationRetryWait = 10 * time.Second
	// announceHistorySize bounds the per-peer record of recent announcements.
	announceHistorySize = 64
	// maxUnknownForkDownloadLen caps the descending probe issued for a stale
	// announcement whose parent is unknown.
	maxUnknownForkDownloadLen = 32
)

// Syncer is the chain synchronization engine. It coordinates ancestor
// searches, new and stale block downloads and justification fetches across
// all connected peers over a single block request protocol.
//
// Every exported method executes atomically under the engine mutex; all
// external effects happen through synchronous calls on the collaborators
// passed in.
type Syncer struct {
	mu sync.Mutex

	genesisHash        common.Hash
	peers              map[string]*peerSync
	blocks             *blockCollection
	bestQueuedHash     common.Hash
	bestQueuedNumber   uint64
	requiredAttributes dtype.BlockAttributes
	importQueue        ImportQueue
	justifications     *pendingJustifications
}

// New creates a sync engine from a snapshot of the local chain. Full and
// authority nodes download block bodies; light nodes only track headers and
// justifications.
func New(roles dtype.Roles, info *ChainInfo, queue ImportQueue) *Syncer {
	required := dtype.AttrHeader | dtype.AttrJustification
	if roles.Intersects(dtype.RoleFull | dtype.RoleAuthority) {
		required |= dtype.AttrBody
	}
	s := &Syncer{
		genesisHash:        info.GenesisHash,
		peers:              make(map[string]*peerSync),
		blocks:             newBlockCollection(),
		bestQueuedHash:     info.BestHash,
		bestQueuedNumber:   info.BestNumber,
		requiredAttributes: required,
		importQueue:        queue,
		justifications:     newPendingJustifications(),
	}
	if info.BestQueuedHash != nil {
		s.bestQueuedHash = *info.BestQueuedHash
	}
	if info.BestQueuedNumber != nil {
		s.bestQueuedNumber = *info.BestQueuedNumber
	}
	return s
}

// ImportQueue returns the import pipeline handle the engine feeds.
func (s *Syncer) ImportQueue() ImportQueue {
	return s.importQueue
}

func (s *Syncer) bestSeenBlock() *uint64 {
	var best *uint64
	for _, peer := range s.peers {
		if best == nil || peer.bestNumber > *best {
			n := peer.bestNumber
			best = &n
		}
	}
	return best
}

// Status reports the current sync progress.
func (s *Syncer) Status() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := s.bestSeenBlock()
	state := SyncIdle
	if best != nil && *best > s.bestQueuedNumber && *best-s.bestQueuedNumber > majorSyncBlocks {
		state = SyncDownloading
	}
	return &Status{State: state, BestSeenBlock: best}
}

// NewPeer classifies a freshly connected peer and kicks off whatever download
// activity its advertised tip calls for.
func (s *Syncer) NewPeer(protocol Protocol, who string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newPeer(protocol, who)
}

func (s *Syncer) newPeer(protocol Protocol, who string) {
	info := protocol.PeerInfo(who)
	if info == nil {
		return
	}
	status, err := blockStatus(protocol.Client(), s.importQueue, info.BestHash)
	switch {
	case err != nil:
		log.Debug("Error reading blockchain", "err", err)
		s.reportPeer(protocol, who, Useless(fmt.Sprintf("error reading blockchain status: %v", err)))

	case status == BlockStatusKnownBad:
		s.reportPeer(protocol, who, Bad(fmt.Sprintf("new peer with known bad best block %s (%d)", info.BestHash.TerminalString(), info.BestNumber)))

	case status == BlockStatusUnknown && info.BestNumber == 0:
		s.reportPeer(protocol, who, Bad(fmt.Sprintf("new peer with unknown genesis hash %s", info.BestHash.TerminalString())))

	case status == BlockStatusUnknown && s.importQueue.Status().ImportingCount > majorSyncBlocks:
		// when actively syncing the common point moves too fast
		log.Debug("New peer with unknown best hash, assuming common block", "peer", who, "ours", s.bestQueuedNumber)
		s.peers[who] = newPeerSync(info, s.bestQueuedNumber, stateAvailable())

	case status == BlockStatusUnknown:
		if s.bestQueuedNumber > 0 {
			commonBest := s.bestQueuedNumber
			if info.BestNumber < commonBest {
				commonBest = info.BestNumber
			}
			log.Debug("New peer with unknown best hash, searching for common ancestor", "peer", who, "best", info.BestNumber)
			s.peers[who] = newPeerSync(info, 0, stateAncestorSearch(commonBest))
			s.requestAncestry(protocol, who, commonBest)
		} else {
			// we are at genesis, just start downloading
			log.Debug("New peer connected", "peer", who, "best", info.BestNumber)
			s.peers[who] = newPeerSync(info, 0, stateAvailable())
			s.downloadNew(protocol, who)
		}

	default: // BlockStatusQueued, BlockStatusInChain
		log.Debug("New peer with known best hash", "peer", who, "best", info.BestNumber)
		s.peers[who] = newPeerSync(info, info.BestNumber, stateAvailable())
	}
}

// OnBlockData handles a block response. The returned batch, if any, is to be
// forwarded to the import pipeline with the returned origin.
func (s *Syncer) OnBlockData(protocol Protocol, who string, request *dtype.BlockRequest, response *dtype.BlockResponse) (dtype.BlockOrigin, []*dtype.IncomingBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newBlocks []*dtype.IncomingBlock
	if peer, ok := s.peers[who]; ok {
		blocks := response.Blocks
		if request.Direction == dtype.DirDescending {
			log.Debug("Reversing incoming block list", "peer", who, "count", len(blocks))
			for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
				blocks[i], blocks[j] = blocks[j], blocks[i]
			}
		}
		switch peer.state.kind {
		case peerDownloadingNew:
			start := peer.state.number
			s.blocks.clearPeerDownload(who)
			peer.state = stateAvailable()
			s.blocks.insert(start, blocks, who)
			for _, d := range s.blocks.drain(s.bestQueuedNumber + 1) {
				newBlocks = append(newBlocks, &dtype.IncomingBlock{
					Hash:          d.block.Hash,
					Header:        d.block.Header,
					Body:          d.block.Body,
					Justification: d.block.Justification,
					Origin:        d.origin,
				})
			}

		case peerDownloadingStale:
			peer.state = stateAvailable()
			for _, b := range blocks {
				newBlocks = append(newBlocks, &dtype.IncomingBlock{
					Hash:          b.Hash,
					Header:        b.Header,
					Body:          b.Body,
					Justification: b.Justification,
					Origin:        who,
				})
			}

		case peerAncestorSearch:
			n := peer.state.number
			if len(blocks) == 0 {
				log.Debug("Invalid response when searching for ancestor", "peer", who)
				s.reportPeer(protocol, who, Bad("invalid response when searching for ancestor"))
				return dtype.OriginNetworkInitialSync, nil
			}
			log.Debug("Got ancestry block", "number", n, "hash", blocks[0].Hash.TerminalString(), "peer", who)
			ourHash, err := protocol.Client().BlockHash(n)
			switch {
			case err != nil:
				s.reportPeer(protocol, who, Useless(errors.Wrap(err, "error answering legitimate blockchain query").Error()))
				return dtype.OriginNetworkInitialSync, nil

			case ourHash != nil && *ourHash == blocks[0].Hash:
				if peer.commonNumber < n {
					peer.commonNumber = n
				}
				peer.state = stateAvailable()
				log.Debug("Found common ancestor", "peer", who, "hash", blocks[0].Hash.TerminalString(), "number", n)

			case n > 0:
				log.Debug("Ancestry block mismatch", "peer", who, "theirs", blocks[0].Hash.TerminalString(), "number", n)
				peer.state = stateAncestorSearch(n - 1)
				s.requestAncestry(protocol, who, n-1)
				return dtype.OriginNetworkInitialSync, nil

			default: // genesis mismatch
				log.Debug("Ancestry search: genesis mismatch", "peer", who)
				s.reportPeer(protocol, who, Bad("ancestry search: genesis mismatch"))
				return dtype.OriginNetworkInitialSync, nil
			}

		default:
			// unexpected response for the current state; request and response
			// correlation is enforced by the outer protocol layer, so just
			// decline to act
			log.Debug("Unexpected block response", "peer", who, "state", peer.state)
		}
	}

	isRecent := false
	if len(newBlocks) > 0 {
		first := newBlocks[0]
		for _, peer := range s.peers {
			if peer.hasAnnounced(first.Hash) {
				isRecent = true
				break
			}
		}
	}
	origin := dtype.OriginNetworkInitialSync
	if isRecent {
		origin = dtype.OriginNetworkBroadcast
	}

	if len(newBlocks) > 0 {
		blockInMeter.Mark(int64(len(newBlocks)))
		if last := newBlocks[len(newBlocks)-1]; last.Header != nil {
			log.Debug("Accepted blocks", "count", len(newBlocks), "head", last.Hash.TerminalString(), "origin", origin)
			s.blockQueued(last.Hash, last.Header.Number)
		}
	}
	s.maintainSync(protocol)
	return origin, newBlocks
}

// OnBlockJustificationData handles the response to a justification request.
func (s *Syncer) OnBlockJustificationData(protocol Protocol, who string, request *dtype.BlockRequest, response *dtype.BlockResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if peer, ok := s.peers[who]; ok {
		if peer.state.kind == peerDownloadingJustification {
			hash := peer.state.hash
			peer.state = stateAvailable()

			// we only request one justification at a time
			if len(response.Blocks) == 0 {
				s.reportPeer(protocol, who, Useless(fmt.Sprintf("provided empty response for justification request %s", hash.TerminalString())))
				return
			}
			block := response.Blocks[0]
			if block.Hash != hash {
				s.reportPeer(protocol, who, Bad(fmt.Sprintf("invalid block justification provided: requested %s got %s", hash.TerminalString(), block.Hash.TerminalString())))
				return
			}
			s.justifications.onResponse(who, block.Justification, protocol, s.importQueue)
		}
	}

	s.maintainSync(protocol)
}

// OnBlockAnnounce handles a block announcement, deciding whether the block is
// already known, extends the head, or is a stale block or unknown fork worth
// probing.
func (s *Syncer) OnBlockAnnounce(protocol Protocol, who string, hash common.Hash, header *types.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()

	number := header.Number
	if number == 0 {
		log.Debug("Ignored invalid block announcement", "peer", who, "hash", hash.TerminalString())
		return
	}
	blockAnnounceMeter.Mark(1)

	knownParent := s.isKnown(protocol, header.ParentHash)
	known := s.isKnown(protocol, hash)

	peer, ok := s.peers[who]
	if !ok {
		return
	}
	peer.announced(hash)
	if number > peer.bestNumber {
		// update their best block
		peer.bestNumber = number
		peer.bestHash = hash
	}
	if peer.state.kind == peerAncestorSearch {
		return
	}
	if header.ParentHash == s.bestQueuedHash || knownParent {
		if number-1 > peer.commonNumber {
			peer.commonNumber = number - 1
		}
	} else if known {
		if number > peer.commonNumber {
			peer.commonNumber = number
		}
	}

	if known || s.isAlreadyDownloading(hash) {
		log.Debug("Known block announce", "peer", who, "hash", hash.TerminalString())
		return
	}
	if number <= s.bestQueuedNumber {
		if !(knownParent || s.isAlreadyDownloading(header.ParentHash)) {
			log.Debug("Considering unknown stale block", "peer", who, "hash", hash.TerminalString(), "number", number)
			s.downloadUnknownStale(protocol, who, hash)
		} else {
			log.Debug("Considering stale block", "peer", who, "hash", hash.TerminalString(), "number", number)
			s.downloadStale(protocol, who, hash)
		}
	} else {
		log.Debug("Considering new block", "peer", who, "hash", hash.TerminalString(), "number", number)
		s.downloadNew(protocol, who)
	}
}

// MaintainSync restarts downloads on every idle peer and dispatches pending
// justification requests.
func (s *Syncer) MaintainSync(protocol Protocol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintainSync(protocol)
}

func (s *Syncer) maintainSync(protocol Protocol) {
	for who := range s.peers {
		s.downloadNew(protocol, who)
	}
	s.justifications.dispatch(s.peers, protocol)
}

// Tick performs the periodic time-based maintenance, re-issuing justification
// requests unblocked by an elapsed retry window.
func (s *Syncer) Tick(protocol Protocol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.justifications.dispatch(s.peers, protocol)
}

// RequestJustification queues a finality proof request for the given block
// and tries to dispatch all pending requests.
func (s *Syncer) RequestJustification(protocol Protocol, hash common.Hash, number uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.justifications.queueRequest(justificationRequest{hash: hash, number: number})
	s.justifications.dispatch(s.peers, protocol)
}

// BlockImported notes the successful import of the given block.
func (s *Syncer) BlockImported(hash common.Hash, number uint64) {
	log.Debug("Block imported successfully", "number", number, "hash", hash.TerminalString())
}

// BlockFinalized drops all justification requests at or below the finalized
// height.
func (s *Syncer) BlockFinalized(hash common.Hash, number uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.justifications.collectGarbage(number)
}

// UpdateChainInfo raises the best queued block to the given header.
func (s *Syncer) UpdateChainInfo(header *types.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockQueued(header.Hash, header.Number)
}

func (s *Syncer) blockQueued(hash common.Hash, number uint64) {
	if number > s.bestQueuedNumber {
		s.bestQueuedNumber = number
		s.bestQueuedHash = hash
	}
	// update common blocks
	for who, peer := range s.peers {
		if peer.state.kind == peerAncestorSearch {
			// abort search
			peer.state = stateAvailable()
		}
		log.Debug("Updating peer info", "peer", who, "ours", number, "common", peer.commonNumber, "theirs", peer.bestNumber)
		if peer.bestNumber >= number {
			peer.commonNumber = number
		} else {
			peer.commonNumber = peer.bestNumber
		}
	}
}

// PeerDisconnected releases every resource held on behalf of the peer and
// retries the work it was doing elsewhere.
func (s *Syncer) PeerDisconnected(protocol Protocol, who string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks.clearPeerDownload(who)
	delete(s.peers, who)
	s.justifications.peerDisconnected(who)
	s.maintainSync(protocol)
}

// Restart drops all downloads, re-reads the local chain state and
// re-classifies every connected peer.
func (s *Syncer) Restart(protocol Protocol) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.importQueue.Clear()
	s.blocks.clear()
	if info, err := protocol.Client().Info(); err == nil {
		s.bestQueuedHash = info.BestHash
		s.bestQueuedNumber = info.BestNumber
		if info.BestQueuedHash != nil {
			s.bestQueuedHash = *info.BestQueuedHash
		}
		if info.BestQueuedNumber != nil {
			s.bestQueuedNumber = *info.BestQueuedNumber
		}
		log.Debug("Restarted sync", "number", s.bestQueuedNumber, "hash", s.bestQueuedHash.TerminalString())
	} else {
		log.Debug("Error reading blockchain", "err", err)
		s.bestQueuedHash = s.genesisHash
		s.bestQueuedNumber = 0
	}
	ids := make([]string, 0, len(s.peers))
	for who := range s.peers {
		ids = append(ids, who)
	}
	s.peers = make(map[string]*peerSync)
	for _, who := range ids {
		s.newPeer(protocol, who)
	}
}

// Clear drops all sync data.
func (s *Syncer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks.clear()
	s.peers = make(map[string]*peerSync)
}

func (s *Syncer) isAlreadyDownloading(hash common.Hash) bool {
	for _, peer := range s.peers {
		if peer.state.kind == peerDownloadingStale && peer.state.hash == hash {
			return true
		}
	}
	return false
}

func (s *Syncer) isKnown(protocol Protocol, hash common.Hash) bool {
	status, err := blockStatus(protocol.Client(), s.importQueue, hash)
	return err == nil && status != BlockStatusUnknown
}

// downloadStale requests a single old block with a known parent.
func (s *Syncer) downloadStale(protocol Protocol, who string, hash common.Hash) {
	peer, ok := s.peers[who]
	if !ok || peer.state.kind != peerAvailable {
		return
	}
	peer.state = stateDownloadingStale(hash)
	protocol.SendBlockRequest(who, &dtype.BlockRequest{
		Fields:    s.requiredAttributes,
		From:      dtype.HashOrNumber{Hash: hash},
		Direction: dtype.DirAscending,
		Max:       1,
	})
}

// downloadUnknownStale probes backwards from an old block with an unknown
// parent until the fork hopefully reconnects to the known chain.
func (s *Syncer) downloadUnknownStale(protocol Protocol, who string, hash common.Hash) {
	peer, ok := s.peers[who]
	if !ok || peer.state.kind != peerAvailable {
		return
	}
	peer.state = stateDownloadingStale(hash)
	protocol.SendBlockRequest(who, &dtype.BlockRequest{
		Fields:    s.requiredAttributes,
		From:      dtype.HashOrNumber{Hash: hash},
		Direction: dtype.DirDescending,
		Max:       maxUnknownForkDownloadLen,
	})
}

// downloadNew asks the block collection for the next range this peer should
// contribute and requests it, unless the import pipeline is overloaded.
func (s *Syncer) downloadNew(protocol Protocol, who string) {
	peer, ok := s.peers[who]
	if !ok {
		return
	}
	// when there are too many blocks in the queue, do not download more
	if s.importQueue.Status().ImportingCount > maxImportingBlocks {
		log.Debug("Too many blocks in the import queue")
		return
	}
	if peer.state.kind != peerAvailable {
		log.Debug("Peer is busy", "peer", who, "state", peer.state)
		return
	}
	r := s.blocks.neededBlocks(who, maxBlocksToRequest, peer.bestNumber, peer.commonNumber)
	if r == nil {
		log.Debug("Nothing to request", "peer", who)
		return
	}
	log.Debug("Requesting blocks", "peer", who, "from", r.Start, "to", r.End)
	peer.state = stateDownloadingNew(r.Start)
	protocol.SendBlockRequest(who, &dtype.BlockRequest{
		Fields:    s.requiredAttributes,
		From:      dtype.HashOrNumber{Number: r.Start},
		Direction: dtype.DirAscending,
		Max:       r.Len(),
	})
}

// requestAncestry asks for the header of a single block at the given height.
func (s *Syncer) requestAncestry(protocol Protocol, who string, number uint64) {
	log.Debug("Requesting ancestry block", "number", number, "peer", who)
	protocol.SendBlockRequest(who, &dtype.BlockRequest{
		Fields:    dtype.AttrHeader | dtype.AttrJustification,
		From:      dtype.HashOrNumber{Number: number},
		Direction: dtype.DirAscending,
		Max:       1,
	})
}

func (s *Syncer) reportPeer(protocol Protocol, who string, severity Severity) {
	peerReportMeter.Mark(1)
	protocol.ReportPeer(who, severity)
}

// blockStatus classifies a block hash, taking the import pipeline into
// account before consulting the chain oracle.
func blockStatus(chain ChainOracle, queue ImportQueue, hash common.Hash) (BlockStatus, error) {
	if queue.IsImporting(hash) {
		return BlockStatusQueued, nil
	}
	return chain.BlockStatus(hash)
}
