package pool

import "time"

// Protocol identifies the upstream wire protocol a pool speaks.
type Protocol int

const (
	ProtocolNone Protocol = iota
	ProtocolGetwork
	ProtocolGBT
	ProtocolStratum
)

// EnableState is the user/automatic enable state of a pool.
type EnableState int

const (
	Disabled EnableState = iota
	PoolEnabled
	Rejecting
)

// Strategy selects how the pool manager picks the current pool.
type Strategy int

const (
	Failover Strategy = iota
	RoundRobin
	Rotate
	LoadBalance
	Balance
)

// Health transition thresholds (spec.md §9 Open Question decision:
// defaults in the original were "5 and a rolling window").
const (
	SeqGetfailsThreshold = 5
	SeqRejectsThreshold  = 5
	RejectWindow         = 10
)

// Credentials holds the pool login the wire protocols need.
type Credentials struct {
	User string
	Pass string
}

// Swork is the stratum subscription state: job template plus
// extranonce bookkeeping, guarded by SworkLock (spec §3 swork.data_lock_p).
type Swork struct {
	JobID       string
	Coinbase1   []byte
	Coinbase2   []byte
	MerkleBranch [][]byte
	Header1     []byte
	Ntime       uint32
	DiffBits    uint32
	Nonce1      string
	Nonce2      uint64
	Nonce2Size  int
	Target      [32]byte
	MinDiff     float64
	SessionID   string
	TvReceived  time.Time
	TransparencyProbed bool
}

// Stats accumulates per-pool counters.
type Stats struct {
	Accepted    int64
	Rejected    int64
	Stale       int64
	Diff1Shares float64
	FoundBlocks int64

	SeqGetfails int
	SeqRejects  int

	RecentRejects []bool // rolling window, most recent last
}
