// Package staging implements the global staging queue and per-device
// queued/unqueued work tables that sit between the work generator and
// the device miner loops (spec §4.6).
package staging

import (
	"context"

	"github.com/chimera-pool/mining-coordinator/internal/cglock"
	"github.com/chimera-pool/mining-coordinator/internal/tsqueue"
	"github.com/chimera-pool/mining-coordinator/internal/work"
)

// StagingQueueCapacity bounds how many generated Work objects can sit
// unconsumed; once it is full, Stage returns false instead of blocking
// (spec §4.6 sizing note).
const StagingQueueCapacity = 64

// Staging is the global handoff point: the work generator pushes here,
// and the distributor pops and fans out into per-device queues.
type Staging struct {
	q *tsqueue.Queue[*work.Work]
}

// New creates an empty staging queue.
func New() *Staging {
	return &Staging{q: tsqueue.New[*work.Work](StagingQueueCapacity)}
}

// Stage admits a freshly generated Work.
func (s *Staging) Stage(w *work.Work) (bool, error) {
	return s.q.Push(w)
}

// Take blocks for the next staged Work, or returns early per ctx.
func (s *Staging) Take(ctx context.Context) (*work.Work, tsqueue.PopResult) {
	return s.q.Pop(ctx)
}

// Freeze/Thaw pause and resume admission, e.g. while the pool manager
// is mid-switch and new work would be generated against a stale pool.
func (s *Staging) Freeze() { s.q.Freeze() }
func (s *Staging) Thaw()   { s.q.Thaw() }

// DeviceQueue holds one device's queued (claimed by a thread and in
// flight) and unqueued (pushed, not yet claimed by a thread) work,
// keyed by Work.ID so a pool switch or block change can find and
// invalidate stale entries without scanning by pointer identity (P3
// queue invariant: every entry here came from one PushUnqueued call
// and leaves through TakeUnqueued then Complete, or through a Drain*
// call). Lookup by midstate is FindByMidstate only; there is no
// clone-by-midstate or take-by-midstate operation.
type DeviceQueue struct {
	qlock    cglock.Lock // spec §4.10 qlock rwlock discipline
	queued   map[string]*work.Work
	unqueued map[string]*work.Work
}

// NewDeviceQueue creates an empty per-device queue pair.
func NewDeviceQueue() *DeviceQueue {
	return &DeviceQueue{
		queued:   make(map[string]*work.Work),
		unqueued: make(map[string]*work.Work),
	}
}

// PushUnqueued stages w as available-but-not-yet-claimed-by-a-thread.
func (d *DeviceQueue) PushUnqueued(w *work.Work) {
	d.qlock.WLock()
	defer d.qlock.WUnlock()
	d.unqueued[w.ID] = w
}

// TakeUnqueued claims and removes one unqueued Work, if any exist. The
// caller owns w afterwards and must eventually call w.Free().
func (d *DeviceQueue) TakeUnqueued() *work.Work {
	d.qlock.WLock()
	defer d.qlock.WUnlock()
	for id, w := range d.unqueued {
		delete(d.unqueued, id)
		d.queued[w.ID] = w
		return w
	}
	return nil
}

// FindByMidstate returns a queued or unqueued Work whose midstate
// matches (used to recognize a nonce range already assigned to
// another thread before handing out an overlapping range — spec §4.6
// find_queued_work_bymidstate). It returns the stored Work itself,
// neither cloned nor removed.
func (d *DeviceQueue) FindByMidstate(midstate [32]byte) *work.Work {
	d.qlock.RLock()
	defer d.qlock.RUnlock()
	for _, w := range d.unqueued {
		if w.Midstate == midstate {
			return w
		}
	}
	for _, w := range d.queued {
		if w.Midstate == midstate {
			return w
		}
	}
	return nil
}

// Complete removes w from the queued set once the thread has
// finished with it. Callers must call w.Free() separately; Complete
// only owns queue membership, matching Work's own Free-once contract.
func (d *DeviceQueue) Complete(id string) {
	d.qlock.WLock()
	defer d.qlock.WUnlock()
	delete(d.queued, id)
}

// DrainUnqueuedForPool discards (and Frees) every unqueued entry
// belonging to poolID — called on a clean pool notify so stale work
// from before the notify never reaches a thread (spec §4.3/§5
// guarantee (c)).
func (d *DeviceQueue) DrainUnqueuedForPool(poolID int) {
	d.qlock.WLock()
	defer d.qlock.WUnlock()
	for id, w := range d.unqueued {
		if w.PoolID == poolID {
			delete(d.unqueued, id)
			w.Free()
		}
	}
}

// DrainUnqueuedExcept discards (and Frees) every unqueued entry whose
// pool differs from poolID — called when the manager switches the
// current pool, so devices stop mining the old pool's stale work
// instead of keeping it queued while the new pool's fresh work is
// discarded (spec §4.3 switch policy).
func (d *DeviceQueue) DrainUnqueuedExcept(poolID int) {
	d.qlock.WLock()
	defer d.qlock.WUnlock()
	for id, w := range d.unqueued {
		if w.PoolID != poolID {
			delete(d.unqueued, id)
			w.Free()
		}
	}
}

// Len reports the number of queued and unqueued entries, for metrics
// and tests.
func (d *DeviceQueue) Len() (queued, unqueued int) {
	d.qlock.RLock()
	defer d.qlock.RUnlock()
	return len(d.queued), len(d.unqueued)
}
