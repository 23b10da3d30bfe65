package sim

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/jdevietti/rcdcsim/sim/stat"
	"github.com/jdevietti/rcdcsim/sim/trace"
)

// ForcedCommitThreshold is the spin budget (§4.4): an iteration count after
// which the dispatcher forces a round commit rather than risk livelock.
// A var, not a const, so tests can lower it without waiting out a
// hundred-thousand-iteration spin.
var ForcedCommitThreshold int64 = 100000

type dispatchResult int

const (
	applied dispatchResult = iota
	queuedStall
	queuedCausality
)

// Dispatcher owns the input event pipe and drives the orchestrator: it
// reads events, buffers them per-core while their target core is stalled,
// enforces the life-lock causal total order, and forces round commits to
// break deadlock.
type Dispatcher struct {
	Orchestrator *Orchestrator
	Cores        int
	IgnoreStack  bool

	fifos       []*coreFIFO
	rotateStart int

	nextLogicalTime   map[uint64]uint64
	activeLogicalTime map[uint64]uint64

	liveThreads int
	done        bool

	trace *trace.SimulationTrace

	NumStackAccesses     *stat.Counter
	MaxLiveThreads       *stat.Counter
	NumSpawnedThreads    *stat.Counter
	NumTotalInstructions *stat.Counter
	NumROIEvents         *stat.Counter
	NumMemAllocEvents    *stat.Counter
	NumMemFreeEvents     *stat.Counter
	UnprocessedEvents    *stat.Counter
}

// NewDispatcher constructs a dispatcher driving o across cores cores.
func NewDispatcher(o *Orchestrator, cores int, ignoreStack bool, tr *trace.SimulationTrace) *Dispatcher {
	fifos := make([]*coreFIFO, cores)
	for c := range fifos {
		fifos[c] = newCoreFIFO()
	}
	return &Dispatcher{
		Orchestrator:      o,
		Cores:             cores,
		IgnoreStack:       ignoreStack,
		fifos:             fifos,
		nextLogicalTime:   make(map[uint64]uint64),
		activeLogicalTime: make(map[uint64]uint64),
		trace:             tr,

		NumStackAccesses:     stat.NewCounter(-1, "numStackAccesses"),
		MaxLiveThreads:       stat.NewCounter(-1, "maxLiveThreads"),
		NumSpawnedThreads:    stat.NewCounter(-1, "numSpawnedThreads"),
		NumTotalInstructions: stat.NewCounter(-1, "numTotalInstructions"),
		NumROIEvents:         stat.NewCounter(-1, "numROIEvents"),
		NumMemAllocEvents:    stat.NewCounter(-1, "numMemAllocEvents"),
		NumMemFreeEvents:     stat.NewCounter(-1, "numMemFreeEvents"),
		UnprocessedEvents:    stat.NewCounter(-1, "unprocessedEvents"),
	}
}

func (d *Dispatcher) cpu(tid uint16) int {
	return int(tid) % d.Cores
}

// Run drives the dispatcher's main loop to completion: reads events from
// r until EOF or a thread-finish for tid 0, draining per-core FIFOs and
// forcing round commits as needed.
func (d *Dispatcher) Run(r io.Reader) error {
	logrus.Info("dispatcher starting")
	eof := false
	iterationsWithoutProgress := int64(0)

	for !d.done {
		progressed := false

		for i := 0; i < d.Cores; i++ {
			core := (d.rotateStart + i) % d.Cores
			if d.fifos[core].Len() == 0 {
				continue
			}
			e := d.fifos[core].Front()
			switch d.tryApply(e) {
			case applied:
				d.fifos[core].PopFront()
				progressed = true
			case queuedCausality, queuedStall:
				// remains at the front; the stall condition (quantum
				// boundary or causality) has not yet cleared.
			}
		}
		d.rotateStart = (d.rotateStart + 1) % d.Cores

		if !eof {
			e, err := ReadEvent(r)
			switch {
			case err == io.EOF:
				eof = true
			case err != nil:
				return err
			default:
				if d.routeFresh(e) {
					progressed = true
				}
			}
		}

		if eof {
			for c := 0; c < d.Cores; c++ {
				if d.fifos[c].Len() == 0 {
					d.Orchestrator.MarkBlockedForEOF(c)
				}
			}
		}

		if d.Orchestrator.RoundDone() {
			d.Orchestrator.FinishQuantumRound()
			progressed = true
		}

		if progressed {
			iterationsWithoutProgress = 0
		} else {
			iterationsWithoutProgress++
			if iterationsWithoutProgress >= ForcedCommitThreshold {
				unprocessed := d.countBuffered()
				logrus.Warnf("forcing quantum round commit after %d idle iterations, %d events still buffered", iterationsWithoutProgress, unprocessed)
				d.Orchestrator.FinishQuantumRound()
				d.Orchestrator.ForcedCommits.Inc()
				d.trace.RecordForcedCommit(trace.ForcedCommitRecord{
					Round:             d.Orchestrator.QuantumRounds.Value(),
					IterationsIdle:    iterationsWithoutProgress,
					UnprocessedEvents: unprocessed,
				})
				iterationsWithoutProgress = 0
			}
		}

		if eof && d.countBuffered() == 0 {
			// nothing left to read and nothing left buffered: the trace
			// never emitted tid-0's thread-finish. Stop rather than spin
			// forever on an empty pipe.
			break
		}
	}

	d.UnprocessedEvents.Set(int64(d.countBuffered()))
	logrus.Info("dispatcher stopped")
	return nil
}

func (d *Dispatcher) countBuffered() int {
	n := 0
	for _, f := range d.fifos {
		n += f.Len()
	}
	return n
}

// routeFresh handles an event just read from the pipe: it assigns a
// logical-time slot to life-lock events before anything else, then either
// applies it immediately or buffers it per the same rules a redrive from
// a per-core FIFO follows.
func (d *Dispatcher) routeFresh(e Event) bool {
	if e.TID == InvalidTID {
		d.applyRouted(e)
		return true
	}

	if e.IsSync() && e.IsLifeLock {
		d.nextLogicalTime[e.SyncObject]++
		e.LogicalTime = d.nextLogicalTime[e.SyncObject]
	}

	core := d.cpu(e.TID)
	switch d.tryApply(e) {
	case applied:
		return true
	case queuedStall:
		d.fifos[core].PushBack(e)
	case queuedCausality:
		d.fifos[core].PushFront(e)
	}
	return false
}

// tryApply attempts to apply e now. It reports whether the event's core is
// still stalled at a quantum boundary, whether a life-lock causality check
// blocked it, or whether it was applied.
func (d *Dispatcher) tryApply(e Event) dispatchResult {
	core := d.cpu(e.TID)
	if d.Orchestrator.Stalled(core) {
		return queuedStall
	}

	if e.IsSync() && e.IsLifeLock {
		obj := e.SyncObject
		active := d.activeLogicalTime[obj]
		switch {
		case e.LogicalTime == 1:
			d.activeLogicalTime[obj] = 2
		case active == e.LogicalTime:
			d.activeLogicalTime[obj] = e.LogicalTime + 1
		default:
			d.Orchestrator.WaitForCausality(e.TID)
			d.trace.RecordStall(trace.CausalityStallRecord{
				SyncObject:        obj,
				TID:               e.TID,
				LogicalTime:       e.LogicalTime,
				ActiveLogicalTime: active,
			})
			return queuedCausality
		}
		d.Orchestrator.SatisfiedCausality(e.TID)
	}

	d.applyRouted(e)
	return applied
}

func (d *Dispatcher) useStoreBuffer(e Event) bool {
	if d.IgnoreStack && e.StackRef {
		d.NumStackAccesses.Inc()
		return false
	}
	return true
}

// applyRouted dispatches e to the orchestrator (or to dispatcher-local
// stats-only bookkeeping) according to its type. The caller has already
// resolved stalling and causality.
func (d *Dispatcher) applyRouted(e Event) {
	logrus.Debugf("routing %s", e)

	switch e.Type {
	case EventBasicBlock:
		d.Orchestrator.BasicBlock(e.TID, e.InsnCount)
		d.NumTotalInstructions.Add(int64(e.InsnCount))

	case EventMemRead:
		d.Orchestrator.CacheRead(e.TID, e.Addr, e.MemOpSize, d.useStoreBuffer(e))

	case EventMemWrite:
		d.Orchestrator.CacheWrite(e.TID, e.Addr, e.MemOpSize, d.useStoreBuffer(e))

	case EventHBSource:
		d.Orchestrator.SyncOp(e.TID, false, false, InvalidTID, e.SyncObject)

	case EventHBSink:
		validSource := e.HBSourceThread != InvalidTID
		d.Orchestrator.SyncOp(e.TID, true, validSource, e.HBSourceThread, e.SyncObject)

	case EventThreadStart:
		d.liveThreads++
		d.NumSpawnedThreads.Inc()
		d.Orchestrator.SetLiveThreads(d.liveThreads)
		d.updateMaxLiveThreads()

	case EventThreadFinish:
		if d.liveThreads > 0 {
			d.liveThreads--
		}
		d.Orchestrator.SetLiveThreads(d.liveThreads)
		d.Orchestrator.Block(e.TID)
		if e.TID == 0 {
			d.done = true
		}

	case EventThreadBlocked:
		d.Orchestrator.Block(e.TID)

	case EventThreadUnblocked:
		d.Orchestrator.Unblock(e.TID)

	case EventROIStart, EventROIFinish:
		d.NumROIEvents.Inc()

	case EventMemAlloc:
		d.NumMemAllocEvents.Inc()

	case EventMemFree:
		d.NumMemFreeEvents.Inc()

	default:
		assertf(false, "rcdcsim: malformed event of unknown type %d", e.Type)
	}
}

func (d *Dispatcher) updateMaxLiveThreads() {
	if int64(d.liveThreads) > d.MaxLiveThreads.Value() {
		d.MaxLiveThreads.Set(int64(d.liveThreads))
	}
}
