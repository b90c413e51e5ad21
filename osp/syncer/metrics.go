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

// Contains the metrics collected by the syncer.

package syncer

import (
	metrics "github.com/rcrowley/go-metrics"
)

var (
	blockInMeter       = metrics.NewRegisteredMeter("osp/syncer/blocks/in", nil)
	blockAnnounceMeter = metrics.NewRegisteredMeter("osp/syncer/announces/in", nil)

	justificationQueuedMeter   = metrics.NewRegisteredMeter("osp/syncer/justifications/queued", nil)
	justificationImportedMeter = metrics.NewRegisteredMeter("osp/syncer/justifications/imported", nil)
	justificationDropMeter     = metrics.NewRegisteredMeter("osp/syncer/justifications/drop", nil)

	peerReportMeter = metrics.NewRegisteredMeter("osp/syncer/peers/report", nil)
)
