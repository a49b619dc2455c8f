// Package metrics is the user-visible failure surface called for in §7:
// "counters (dropped frames, rejected txs) and the absence of progress at a
// height." No external metrics exporter in the retrieval pack fits a process
// that never otherwise speaks HTTP (Devv's wire contract is the bus only),
// so this one piece is deliberately a small atomic-int registry rather than
// a Prometheus/OpenTelemetry dependency pulled in for a handful of gauges.
package metrics

import "sync/atomic"

// Counters is the fixed set of counters a TransactionPool and its workers
// maintain. All fields are accessed only through the atomic helper methods.
type Counters struct {
	droppedFrames       atomic.Int64
	rejectedMalformed   atomic.Int64
	rejectedBadSig      atomic.Int64
	rejectedAsymmetric  atomic.Int64
	rejectedNotInn      atomic.Int64
	rejectedInsufficient atomic.Int64
	rejectedDuplicate   atomic.Int64
	acceptedTxs         atomic.Int64
	proposalsBuilt      atomic.Int64
	blocksFinalized     atomic.Int64
}

func (c *Counters) IncDroppedFrames()        { c.droppedFrames.Add(1) }
func (c *Counters) IncRejectedMalformed()     { c.rejectedMalformed.Add(1) }
func (c *Counters) IncRejectedBadSig()        { c.rejectedBadSig.Add(1) }
func (c *Counters) IncRejectedAsymmetric()    { c.rejectedAsymmetric.Add(1) }
func (c *Counters) IncRejectedNotInn()        { c.rejectedNotInn.Add(1) }
func (c *Counters) IncRejectedInsufficient()  { c.rejectedInsufficient.Add(1) }
func (c *Counters) IncRejectedDuplicate()     { c.rejectedDuplicate.Add(1) }
func (c *Counters) IncAcceptedTxs()           { c.acceptedTxs.Add(1) }
func (c *Counters) IncProposalsBuilt()        { c.proposalsBuilt.Add(1) }
func (c *Counters) IncBlocksFinalized()       { c.blocksFinalized.Add(1) }

// Snapshot is a point-in-time, copyable read of every counter.
type Snapshot struct {
	DroppedFrames        int64
	RejectedMalformed     int64
	RejectedBadSignature  int64
	RejectedAsymmetric    int64
	RejectedNotInn        int64
	RejectedInsufficient  int64
	RejectedDuplicate     int64
	AcceptedTxs           int64
	ProposalsBuilt        int64
	BlocksFinalized       int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		DroppedFrames:        c.droppedFrames.Load(),
		RejectedMalformed:    c.rejectedMalformed.Load(),
		RejectedBadSignature: c.rejectedBadSig.Load(),
		RejectedAsymmetric:   c.rejectedAsymmetric.Load(),
		RejectedNotInn:       c.rejectedNotInn.Load(),
		RejectedInsufficient: c.rejectedInsufficient.Load(),
		RejectedDuplicate:    c.rejectedDuplicate.Load(),
		AcceptedTxs:          c.acceptedTxs.Load(),
		ProposalsBuilt:       c.proposalsBuilt.Load(),
		BlocksFinalized:      c.blocksFinalized.Load(),
	}
}
