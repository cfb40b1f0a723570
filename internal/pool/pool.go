package pool

import (
	"net/http"

	"github.com/chimera-pool/mining-coordinator/internal/cglock"
	"github.com/chimera-pool/mining-coordinator/internal/curlring"
	"github.com/chimera-pool/mining-coordinator/internal/tsqueue"
	"github.com/chimera-pool/mining-coordinator/internal/work"
)

// SubmitItem is queued on Pool.SubmitQ by submit_nonce and drained by
// the per-pool submission worker.
type SubmitItem struct {
	Work      *work.Work
	Nonce     uint32
	Submitted bool
}

// Pool is a connection to an upstream work source with a protocol
// variant and its own work-generation state (spec §3 Pool).
type Pool struct {
	ID       int
	Priority int
	Quota    int
	QuotaUsed int

	Protocol    Protocol
	RPCURL      string
	LPURL       string
	Credentials Credentials

	HasStratum bool
	StratumHost string

	Idle    bool
	Lagging bool
	Enable  EnableState

	SubmitOld bool // whether stale shares may still be submitted

	DataLock  cglock.Lock // guards everything below except Swork
	SworkLock cglock.Lock // guards Swork (spec §3 swork.data_lock_p)
	Swork     Swork

	Stats Stats

	Curl *curlring.Ring

	SubmitQ  *tsqueue.Queue[*SubmitItem]
	GetworkQ *tsqueue.Queue[*work.Work]

	LastWork *work.Work

	WorkRestartID uint32
	NewBlocks     int64

	httpClient *http.Client
}

// New constructs a Pool with its queues and curl ring initialized.
func New(id int, protocol Protocol, rpcURL string, creds Credentials) *Pool {
	return &Pool{
		ID:          id,
		Protocol:    protocol,
		RPCURL:      rpcURL,
		Credentials: creds,
		Enable:      PoolEnabled,
		Curl:        curlring.New(curlring.DefaultCapacity, 0),
		SubmitQ:     tsqueue.New[*SubmitItem](64),
		GetworkQ:    tsqueue.New[*work.Work](8),
	}
}

// MarkGetworkSuccess resets idle/lagging/failure counters on a
// successful work reply (spec §4.3 pool health model).
func (p *Pool) MarkGetworkSuccess() {
	p.DataLock.WLock()
	defer p.DataLock.WUnlock()
	p.Idle = false
	p.Lagging = false
	p.Stats.SeqGetfails = 0
}

// MarkGetworkFailure increments the consecutive-failure counter and
// marks the pool idle once the threshold is reached.
func (p *Pool) MarkGetworkFailure() (becameIdle bool) {
	p.DataLock.WLock()
	defer p.DataLock.WUnlock()
	p.Stats.SeqGetfails++
	if p.Stats.SeqGetfails >= SeqGetfailsThreshold && !p.Idle {
		p.Idle = true
		becameIdle = true
	}
	return becameIdle
}

// MarkAccepted records a successful share submission. diff1 itself is
// accounted separately by AddDiff1 at submit_nonce time, regardless of
// whether the pool later accepts or rejects (spec §4.8).
func (p *Pool) MarkAccepted(diff float64) {
	p.DataLock.WLock()
	defer p.DataLock.WUnlock()
	p.Stats.Accepted++
	p.Stats.SeqRejects = 0
	p.pushRejectWindowLocked(false)
	if p.Enable == Rejecting {
		p.Enable = PoolEnabled
	}
}

// AddDiff1 accumulates diff1 work done, weighted by the submitted
// work's own nonce_diff, for every submit_nonce call regardless of
// classification or later pool acceptance (spec §4.8: "Increment
// diff1 counters weighted by work.nonce_diff").
func (p *Pool) AddDiff1(weight float64) {
	p.DataLock.WLock()
	defer p.DataLock.WUnlock()
	p.Stats.Diff1Shares += weight
}

// MarkBlockFound increments the pool's found-block counter when
// submit_nonce detects a hash beating the network target.
func (p *Pool) MarkBlockFound() {
	p.DataLock.WLock()
	defer p.DataLock.WUnlock()
	p.Stats.FoundBlocks++
}

// MarkRejected records a rejected share submission and transitions
// the pool to REJECTING when the pool has rejected
// SeqRejectsThreshold in a row with zero accepts in the window.
func (p *Pool) MarkRejected() (becameRejecting bool) {
	p.DataLock.WLock()
	defer p.DataLock.WUnlock()
	p.Stats.Rejected++
	p.Stats.SeqRejects++
	p.pushRejectWindowLocked(true)

	if p.Stats.SeqRejects >= SeqRejectsThreshold && p.allRecentRejectsLocked() && p.Enable == PoolEnabled {
		p.Enable = Rejecting
		becameRejecting = true
	}
	return becameRejecting
}

// MarkStale records a share discarded as stale rather than submitted.
func (p *Pool) MarkStale() {
	p.DataLock.WLock()
	defer p.DataLock.WUnlock()
	p.Stats.Stale++
}

func (p *Pool) pushRejectWindowLocked(rejected bool) {
	p.Stats.RecentRejects = append(p.Stats.RecentRejects, rejected)
	if len(p.Stats.RecentRejects) > RejectWindow {
		p.Stats.RecentRejects = p.Stats.RecentRejects[len(p.Stats.RecentRejects)-RejectWindow:]
	}
}

func (p *Pool) allRecentRejectsLocked() bool {
	for _, r := range p.Stats.RecentRejects {
		if !r {
			return false
		}
	}
	return len(p.Stats.RecentRejects) > 0
}

// Disable marks the pool DISABLED by explicit user action or removal.
func (p *Pool) Disable() {
	p.DataLock.WLock()
	defer p.DataLock.WUnlock()
	p.Enable = Disabled
}

// Usable reports whether the strategies should consider this pool.
func (p *Pool) Usable() bool {
	p.DataLock.RLock()
	defer p.DataLock.RUnlock()
	return p.Enable == PoolEnabled && !p.Idle
}
