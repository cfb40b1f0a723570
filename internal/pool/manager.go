// Package pool implements the pool manager and its multiplexing
// strategies (spec §4.3): failover, round-robin, rotate,
// load-balance and balance, plus the pool health state machine and
// SwitchPools invalidation sweep.
package pool

import (
	"sync"
	"time"

	"github.com/chimera-pool/mining-coordinator/internal/cglock"
)

// Invalidator is implemented by the device registry so the pool
// manager can drain stale unqueued work and wake every miner thread
// on a pool switch, without importing the device package directly
// (spec §9: thread global state through a context rather than a
// process-global; here, through a narrow interface).
type Invalidator interface {
	DrainUnqueuedForPool(poolID int)
	DrainUnqueuedExcept(poolID int)
	SignalAllWorkRestart()
}

// Manager owns the ordered pool list and selects the "current" pool
// under the configured Strategy.
type Manager struct {
	controlLock cglock.Lock // spec §4.10 control_lock

	mu          sync.RWMutex
	pools       []*Pool
	strategy    Strategy
	currentIdx  int
	rrIdx       int
	quotaGCD    int
	rotatePeriod time.Duration
	lastRotate   time.Time

	invalidator Invalidator
}

// NewManager creates an empty pool manager using the given strategy.
func NewManager(strategy Strategy, invalidator Invalidator) *Manager {
	return &Manager{
		strategy:    strategy,
		currentIdx:  -1,
		quotaGCD:    1,
		invalidator: invalidator,
		lastRotate:  time.Now(),
	}
}

// AddPool appends a pool to the registry (pool id = index, per the
// arena+index design note in spec §9) and returns its index.
func (m *Manager) AddPool(p *Pool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = len(m.pools)
	m.pools = append(m.pools, p)
	if m.currentIdx == -1 {
		m.currentIdx = p.ID
	}
	m.adjustQuotaGCDLocked()
	return p.ID
}

// Pools returns a snapshot slice of the registered pools.
func (m *Manager) Pools() []*Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Pool, len(m.pools))
	copy(out, m.pools)
	return out
}

// SetStrategy changes the active selection strategy.
func (m *Manager) SetStrategy(s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategy = s
}

// SetRotatePeriod sets opt_rotate_period for the ROTATE strategy.
func (m *Manager) SetRotatePeriod(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotatePeriod = d
}

// Current returns the pool currently selected for getwork/stratum
// traffic.
func (m *Manager) Current() *Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentIdx < 0 || m.currentIdx >= len(m.pools) {
		return nil
	}
	return m.pools[m.currentIdx]
}

// enabledPoolsLocked returns usable pools in registration order. Must
// be called with m.mu held for reading.
func (m *Manager) enabledPoolsLocked() []*Pool {
	var out []*Pool
	for _, p := range m.pools {
		if p.Usable() {
			out = append(out, p)
		}
	}
	return out
}

// adjustQuotaGCDLocked recomputes the GCD of all enabled quotas
// whenever the pool set changes (spec §4.3 adjust_quota_gcd). Must be
// called with m.mu held.
func (m *Manager) adjustQuotaGCDLocked() {
	g := 0
	for _, p := range m.pools {
		if p.Quota <= 0 {
			continue
		}
		g = gcd(g, p.Quota)
	}
	if g == 0 {
		g = 1
	}
	m.quotaGCD = g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// SelectForWork picks the pool that should serve the next work
// request under the active strategy, updating quota bookkeeping for
// LoadBalance/Balance. It does not change Current(); callers that
// want the selection to become sticky call SwitchPools explicitly
// (matching failover/rotate semantics, where switching happens on
// health events or timers rather than per-request).
func (m *Manager) SelectForWork() *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	enabled := m.enabledPoolsLocked()
	if len(enabled) == 0 {
		return nil
	}

	switch m.strategy {
	case Failover:
		return m.failoverLocked(enabled)
	case RoundRobin:
		p := enabled[m.rrIdx%len(enabled)]
		m.rrIdx++
		return p
	case Rotate:
		if time.Since(m.lastRotate) >= m.rotatePeriod && m.rotatePeriod > 0 {
			m.rrIdx++
			m.lastRotate = time.Now()
		}
		return enabled[m.rrIdx%len(enabled)]
	case LoadBalance, Balance:
		return m.loadBalanceLocked(enabled)
	default:
		return m.failoverLocked(enabled)
	}
}

// failoverLocked returns the enabled pool with the lowest Priority.
func (m *Manager) failoverLocked(enabled []*Pool) *Pool {
	best := enabled[0]
	for _, p := range enabled[1:] {
		if p.Priority < best.Priority {
			best = p
		}
	}
	return best
}

// loadBalanceLocked implements weighted fair queueing: the pool with
// the smallest quota_used*gcd/quota is selected (spec §4.3
// LOAD-BALANCE). BALANCE is the equal-quota special case, handled
// identically here since callers set every Quota equal for BALANCE.
func (m *Manager) loadBalanceLocked(enabled []*Pool) *Pool {
	var best *Pool
	var bestScore float64
	for _, p := range enabled {
		quota := p.Quota
		if quota <= 0 {
			quota = 1
		}
		score := float64(p.QuotaUsed*m.quotaGCD) / float64(quota)
		if best == nil || score < bestScore {
			best = p
			bestScore = score
		}
	}
	best.QuotaUsed++
	return best
}

// SwitchPools makes selected the current pool under control_lock.write,
// draining per-device unqueued_work for works whose pool differs from
// the new current and signalling every worker's work_restart_notifier
// (spec §4.3 switch policy).
func (m *Manager) SwitchPools(selected *Pool) {
	m.controlLock.WLock()
	defer m.controlLock.WUnlock()

	m.mu.Lock()
	m.currentIdx = selected.ID
	m.adjustQuotaGCDLocked()
	m.mu.Unlock()

	if m.invalidator != nil {
		m.invalidator.DrainUnqueuedExcept(selected.ID)
		m.invalidator.SignalAllWorkRestart()
	}
}

// MaybeFailback implements the FAILOVER "switch only when the current
// pool is idle or disabled" rule plus the original's failback-to-
// lower-priority-pool-on-recovery behavior (spec.md §8 scenario 2):
// call periodically; it switches back to a lower-priority pool once
// it becomes usable again.
func (m *Manager) MaybeFailback() {
	if m.strategy != Failover {
		return
	}
	cur := m.Current()
	best := m.SelectForWork()
	if best == nil {
		return
	}
	if cur == nil || best.ID != cur.ID {
		if cur == nil || !cur.Usable() || best.Priority < cur.Priority {
			m.SwitchPools(best)
		}
	}
}
