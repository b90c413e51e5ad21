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
	"encoding/binary"

	"golang.org/x/crypto/sha3"
	"github.com/ospreychain/go-osprey/common"
	"github.com/ospreychain/go-osprey/core/types"
	dtype "github.com/ospreychain/go-osprey/osp/types"
)

// childHash derives a deterministic block hash from the parent hash, the
// height and a fork seed.
func childHash(parent common.Hash, number uint64, seed byte) common.Hash {
	buf := make([]byte, common.HashLength+9)
	copy(buf, parent.Bytes())
	binary.BigEndian.PutUint64(buf[common.HashLength:], number)
	buf[common.HashLength+8] = seed
	sum := sha3.Sum256(buf)
	return common.BytesToHash(sum[:])
}

// makeHeaders builds a header chain of n blocks on top of genesis.
func makeHeaders(genesis common.Hash, n int, seed byte) []*types.Header {
	headers := make([]*types.Header, 0, n+1)
	headers = append(headers, &types.Header{Number: 0, Hash: genesis})
	parent := genesis
	for i := 1; i <= n; i++ {
		hash := childHash(parent, uint64(i), seed)
		headers = append(headers, &types.Header{ParentHash: parent, Number: uint64(i), Hash: hash})
		parent = hash
	}
	return headers
}

// blockData wraps headers into response blocks.
func blockData(headers ...*types.Header) []*dtype.BlockData {
	blocks := make([]*dtype.BlockData, 0, len(headers))
	for _, header := range headers {
		blocks = append(blocks, &dtype.BlockData{Hash: header.Hash, Header: header})
	}
	return blocks
}

// testChain is a canned chain oracle.
type testChain struct {
	canonical map[uint64]common.Hash
	statuses  map[common.Hash]BlockStatus
	info      *ChainInfo
	readErr   error
}

func newTestChain(headers []*types.Header) *testChain {
	chain := &testChain{
		canonical: make(map[uint64]common.Hash),
		statuses:  make(map[common.Hash]BlockStatus),
	}
	for _, header := range headers {
		chain.canonical[header.Number] = header.Hash
		chain.statuses[header.Hash] = BlockStatusInChain
	}
	tip := headers[len(headers)-1]
	chain.info = &ChainInfo{
		GenesisHash: headers[0].Hash,
		BestHash:    tip.Hash,
		BestNumber:  tip.Number,
	}
	return chain
}

func (c *testChain) BlockHash(number uint64) (*common.Hash, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	if hash, ok := c.canonical[number]; ok {
		h := hash
		return &h, nil
	}
	return nil, nil
}

func (c *testChain) BlockStatus(hash common.Hash) (BlockStatus, error) {
	if c.readErr != nil {
		return BlockStatusUnknown, c.readErr
	}
	return c.statuses[hash], nil
}

func (c *testChain) Info() (*ChainInfo, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	return c.info, nil
}

// testQueue is a controllable import queue double.
type testQueue struct {
	count     int
	importing map[common.Hash]bool
	accept    bool

	justifications []justificationRequest
	cleared        bool
}

func newTestQueue() *testQueue {
	return &testQueue{importing: make(map[common.Hash]bool), accept: true}
}

func (q *testQueue) Status() dtype.ImportQueueStatus {
	return dtype.ImportQueueStatus{ImportingCount: q.count}
}

func (q *testQueue) IsImporting(hash common.Hash) bool {
	return q.importing[hash]
}

func (q *testQueue) ImportJustification(hash common.Hash, number uint64, justification types.Justification) bool {
	q.justifications = append(q.justifications, justificationRequest{hash: hash, number: number})
	return q.accept
}

func (q *testQueue) Clear() {
	q.cleared = true
	q.count = 0
}

// sentRequest is one block request captured by the protocol double.
type sentRequest struct {
	peer string
	req  *dtype.BlockRequest
}

// peerReport is one reputation report captured by the protocol double.
type peerReport struct {
	peer     string
	severity Severity
}

// testProtocol records the engine's outbound traffic.
type testProtocol struct {
	chain   *testChain
	peers   map[string]*PeerInfo
	sent    []sentRequest
	reports []peerReport
}

func newTestProtocol(chain *testChain) *testProtocol {
	return &testProtocol{chain: chain, peers: make(map[string]*PeerInfo)}
}

func (p *testProtocol) connect(who string, bestHash common.Hash, bestNumber uint64) {
	p.peers[who] = &PeerInfo{BestHash: bestHash, BestNumber: bestNumber}
}

func (p *testProtocol) SendBlockRequest(peer string, req *dtype.BlockRequest) {
	p.sent = append(p.sent, sentRequest{peer: peer, req: req})
}

func (p *testProtocol) ReportPeer(peer string, severity Severity) {
	p.reports = append(p.reports, peerReport{peer: peer, severity: severity})
}

func (p *testProtocol) PeerInfo(peer string) *PeerInfo {
	return p.peers[peer]
}

func (p *testProtocol) Client() ChainOracle {
	return p.chain
}

// lastSent returns the most recent captured request, or nil.
func (p *testProtocol) lastSent() *sentRequest {
	if len(p.sent) == 0 {
		return nil
	}
	return &p.sent[len(p.sent)-1]
}

// sentTo returns all captured requests addressed to the given peer.
func (p *testProtocol) sentTo(peer string) []*dtype.BlockRequest {
	var reqs []*dtype.BlockRequest
	for _, s := range p.sent {
		if s.peer == peer {
			reqs = append(reqs, s.req)
		}
	}
	return reqs
}
