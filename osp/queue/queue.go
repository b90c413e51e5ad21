// Copyright 2015 The go-ethereum Authors
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

// Package queue contains the block verification and import pipeline fed by
// the syncer.
package queue

import (
	"sync"

	mapset "github.com/deckarep/golang-set"
	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"github.com/ospreychain/go-osprey/common"
	"github.com/ospreychain/go-osprey/core/types"
	dtype "github.com/ospreychain/go-osprey/osp/types"
	"gopkg.in/karalabe/cookiejar.v2/collections/prque"
)

// headerVerifierFn is a callback type to verify a block header before import.
type headerVerifierFn func(origin dtype.BlockOrigin, header *types.Header) error

// blockInsertFn is a callback type to insert a batch of verified blocks into
// the local chain.
type blockInsertFn func(blocks []*dtype.IncomingBlock) (int, error)

// justificationVerifierFn is a callback type to verify and apply a finality
// proof.
type justificationVerifierFn func(hash common.Hash, number uint64, justification types.Justification) error

// inject represents a scheduled import operation.
type inject struct {
	origin dtype.BlockOrigin
	block  *dtype.IncomingBlock
}

// Queue is a number-ordered block import pipeline. Blocks pushed from the
// network are scheduled lowest-first, verified and handed to the chain one
// block at a time by a background worker. The syncer observes the pipeline load
// through Status and IsImporting and throttles itself accordingly.
type Queue struct {
	mu sync.Mutex

	queue     *prque.Prque // Import operations, lowest block number first
	queued    mapset.Set   // Hashes scheduled or being imported, to dedupe and answer IsImporting
	wake      chan struct{}
	quit      chan struct{}
	term      sync.Once

	verifyHeader        headerVerifierFn
	insertChain         blockInsertFn
	verifyJustification justificationVerifierFn
}

// New creates an empty import queue draining into the given callbacks.
func New(verifyHeader headerVerifierFn, insertChain blockInsertFn, verifyJustification justificationVerifierFn) *Queue {
	return &Queue{
		queue:               prque.New(),
		queued:              mapset.NewSet(),
		wake:                make(chan struct{}, 1),
		quit:                make(chan struct{}),
		verifyHeader:        verifyHeader,
		insertChain:         insertChain,
		verifyJustification: verifyJustification,
	}
}

// Start boots up the import worker.
func (q *Queue) Start() {
	go q.loop()
}

// Stop terminates the import worker.
func (q *Queue) Stop() {
	q.term.Do(func() { close(q.quit) })
}

// ImportBlocks schedules a batch of blocks for verification and import.
// Blocks already scheduled are skipped.
func (q *Queue) ImportBlocks(origin dtype.BlockOrigin, blocks []*dtype.IncomingBlock) {
	q.mu.Lock()
	count := 0
	for _, block := range blocks {
		if block.Header == nil {
			queueDropMeter.Mark(1)
			continue
		}
		if !q.queued.Add(block.Hash) {
			continue
		}
		q.queue.Push(&inject{origin: origin, block: block}, -float32(block.Header.Number))
		count++
	}
	queueInMeter.Mark(int64(count))
	queueGauge.Update(int64(q.queued.Cardinality()))
	q.mu.Unlock()

	if count > 0 {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
}

// ImportJustification verifies and applies a finality proof for a single
// block, reporting whether it was accepted.
func (q *Queue) ImportJustification(hash common.Hash, number uint64, justification types.Justification) bool {
	if err := q.verifyJustification(hash, number, justification); err != nil {
		log.Debug("Justification rejected", "number", number, "hash", hash.TerminalString(), "err", err)
		return false
	}
	return true
}

// Status returns a snapshot of the pipeline load.
func (q *Queue) Status() dtype.ImportQueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return dtype.ImportQueueStatus{ImportingCount: q.queued.Cardinality()}
}

// IsImporting reports whether the given block is scheduled or being imported.
func (q *Queue) IsImporting(hash common.Hash) bool {
	return q.queued.Contains(hash)
}

// Clear drops all scheduled blocks.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = prque.New()
	q.queued.Clear()
	queueGauge.Update(0)
}

// loop drains scheduled operations into the verifier and the chain, lowest
// block number first.
func (q *Queue) loop() {
	for {
		select {
		case <-q.quit:
			return
		case <-q.wake:
		}
		for {
			q.mu.Lock()
			if q.queue.Empty() {
				q.mu.Unlock()
				break
			}
			op := q.queue.PopItem().(*inject)
			q.mu.Unlock()

			q.importBlock(op)

			q.mu.Lock()
			q.queued.Remove(op.block.Hash)
			queueGauge.Update(int64(q.queued.Cardinality()))
			q.mu.Unlock()
		}
	}
}

func (q *Queue) importBlock(op *inject) {
	block := op.block
	if err := q.verifyHeader(op.origin, block.Header); err != nil {
		queueDropMeter.Mark(1)
		log.Warn("Block verification failed", "number", block.Header.Number, "hash", block.Hash.TerminalString(), "err", err)
		return
	}
	if _, err := q.insertChain([]*dtype.IncomingBlock{block}); err != nil {
		queueDropMeter.Mark(1)
		log.Warn("Block import failed", "number", block.Header.Number, "hash", block.Hash.TerminalString(),
			"err", errors.Wrap(err, "chain insertion"))
		return
	}
	queueImportMeter.Mark(1)
}
