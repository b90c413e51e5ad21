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
	"time"

	mapset "github.com/deckarep/golang-set"
	log "github.com/inconshreveable/log15"
	"github.com/ospreychain/go-osprey/common"
	"github.com/ospreychain/go-osprey/core/types"
	dtype "github.com/ospreychain/go-osprey/osp/types"
)

// justificationRequest identifies one outstanding finality proof request.
type justificationRequest struct {
	hash   common.Hash
	number uint64
}

// pastAttempt records a peer that failed to deliver a justification and when,
// so the same peer is not asked again within the retry window.
type pastAttempt struct {
	peer string
	at   time.Time
}

// pendingJustifications tracks outstanding justification requests and assigns
// them fairly across the peers able to serve them.
type pendingJustifications struct {
	justifications   mapset.Set                             // All currently tracked requests
	pendingRequests  []justificationRequest                 // FIFO of requests awaiting dispatch
	peerRequests     map[string]justificationRequest        // Requests currently issued, one per peer
	previousRequests map[justificationRequest][]pastAttempt // Failed attempts, for retry throttling

	now func() time.Time // Clock hook, replaced in tests
}

func newPendingJustifications() *pendingJustifications {
	return &pendingJustifications{
		justifications:   mapset.NewSet(),
		peerRequests:     make(map[string]justificationRequest),
		previousRequests: make(map[justificationRequest][]pastAttempt),
		now:              time.Now,
	}
}

// queueRequest adds a justification request unless it is already tracked.
func (j *pendingJustifications) queueRequest(req justificationRequest) {
	if !j.justifications.Add(req) {
		return
	}
	j.pendingRequests = append(j.pendingRequests, req)
	justificationQueuedMeter.Mark(1)
}

// attemptedBy reports whether the given peer failed the request within the
// retry window.
func (j *pendingJustifications) attemptedBy(req justificationRequest, who string) bool {
	for _, attempt := range j.previousRequests[req] {
		if attempt.peer == who {
			return true
		}
	}
	return false
}

// dispatch assigns as many pending requests as possible to available peers.
// Peers are filtered by their advertised best block, so a proof for block
// #10 is never requested from a peer at #2, and peers that recently failed
// the same request are skipped until the retry window elapses.
func (j *pendingJustifications) dispatch(peers map[string]*peerSync, protocol Protocol) {
	if len(j.pendingRequests) == 0 {
		return
	}

	// clean up previous failed requests so we can retry again
	for req, attempts := range j.previousRequests {
		kept := attempts[:0]
		for _, attempt := range attempts {
			if j.now().Sub(attempt.at) < justificationRetryWait {
				kept = append(kept, attempt)
			}
		}
		if len(kept) == 0 {
			delete(j.previousRequests, req)
		} else {
			j.previousRequests[req] = kept
		}
	}

	type candidate struct {
		id   string
		best uint64
	}
	var available []candidate
	for id, peer := range peers {
		// skip peers that already have an issued request or are busy
		if peer.state.kind != peerAvailable {
			continue
		}
		if _, busy := j.peerRequests[id]; busy {
			continue
		}
		available = append(available, candidate{id: id, best: peer.bestNumber})
	}

	var (
		lastPeer  string
		haveLast  = len(available) > 0
		unhandled []justificationRequest
	)
	if haveLast {
		lastPeer = available[len(available)-1].id
	}

	for len(available) > 0 {
		cand := available[0]
		available = available[1:]

		if len(j.pendingRequests) == 0 {
			break
		}
		req := j.pendingRequests[0]

		// only ask peers that have synced past the block number we want the
		// justification for, and that have not failed the same request
		// within the retry window
		if cand.best < req.number || j.attemptedBy(req, cand.id) {
			available = append(available, cand)

			// one full rotation without serving the head request means no
			// connected peer can answer it right now
			if haveLast && cand.id == lastPeer {
				lastPeer = available[len(available)-1].id
				j.pendingRequests = j.pendingRequests[1:]
				unhandled = append(unhandled, req)
			}
			continue
		}

		if len(available) > 0 {
			lastPeer = available[len(available)-1].id
		} else {
			haveLast = false
		}

		j.pendingRequests = j.pendingRequests[1:]
		j.peerRequests[cand.id] = req
		peers[cand.id].state = stateDownloadingJustification(req.hash)

		log.Debug("Requesting justification", "number", req.number, "hash", req.hash.TerminalString(), "peer", cand.id)
		protocol.SendBlockRequest(cand.id, &dtype.BlockRequest{
			Fields:    dtype.AttrJustification,
			From:      dtype.HashOrNumber{Hash: req.hash},
			Direction: dtype.DirAscending,
			Max:       1,
		})
	}

	j.pendingRequests = append(j.pendingRequests, unhandled...)
}

// onResponse processes the response for the request previously issued to the
// given peer. A rejected or missing justification puts the request back at
// the head of the queue so another peer is tried immediately.
func (j *pendingJustifications) onResponse(who string, justification types.Justification, protocol Protocol, queue ImportQueue) {
	// the outer protocol layer guarantees the response matches the request
	req, ok := j.peerRequests[who]
	if !ok {
		return
	}
	delete(j.peerRequests, who)

	if justification != nil {
		if queue.ImportJustification(req.hash, req.number, justification) {
			justificationImportedMeter.Mark(1)
			j.justifications.Remove(req)
			delete(j.previousRequests, req)
			return
		}
		justificationDropMeter.Mark(1)
		protocol.ReportPeer(who, Bad(fmt.Sprintf("invalid justification provided for #%d (%s)", req.number, req.hash.TerminalString())))
	} else {
		j.previousRequests[req] = append(j.previousRequests[req], pastAttempt{peer: who, at: j.now()})
	}

	j.pendingRequests = append([]justificationRequest{req}, j.pendingRequests...)
}

// peerDisconnected retries any request the peer was serving.
func (j *pendingJustifications) peerDisconnected(who string) {
	if req, ok := j.peerRequests[who]; ok {
		delete(j.peerRequests, who)
		j.pendingRequests = append([]justificationRequest{req}, j.pendingRequests...)
	}
}

// collectGarbage drops every tracked request at or below the given finalized
// height.
func (j *pendingJustifications) collectGarbage(bestFinalized uint64) {
	for _, item := range j.justifications.ToSlice() {
		if req := item.(justificationRequest); req.number <= bestFinalized {
			j.justifications.Remove(req)
		}
	}
	kept := j.pendingRequests[:0]
	for _, req := range j.pendingRequests {
		if req.number > bestFinalized {
			kept = append(kept, req)
		}
	}
	j.pendingRequests = kept
	for who, req := range j.peerRequests {
		if req.number <= bestFinalized {
			delete(j.peerRequests, who)
		}
	}
	for req := range j.previousRequests {
		if req.number <= bestFinalized {
			delete(j.previousRequests, req)
		}
	}
}
