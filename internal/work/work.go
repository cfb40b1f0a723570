// Package work implements the Work object: the immutable-except-for-
// owner unit of mining input that flows generator → staging → device
// queue → driver → submitter → destroyed.
package work

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Template is a GBT block template shared by every Work cloned or
// rolled from it. The last Release drops RefCount to zero and the
// template is considered released; callers must not read Template
// fields afterwards.
type Template struct {
	ID       string
	refCount atomic.Int32

	CoinbaseTx []byte
	MerkleBin  [][]byte
	Height     int64
}

// NewTemplate creates a template with an initial refcount of 1.
func NewTemplate() *Template {
	t := &Template{ID: uuid.NewString()}
	t.refCount.Store(1)
	return t
}

// Acquire bumps the refcount for a new clone and returns the template.
func (t *Template) Acquire() *Template {
	t.refCount.Add(1)
	return t
}

// Release decrements the refcount. It returns true when this call
// dropped the count to zero, meaning the template is now released.
func (t *Template) Release() bool {
	return t.refCount.Add(-1) == 0
}

// RefCount reports the current refcount (for tests/invariant checks).
func (t *Template) RefCount() int32 {
	return t.refCount.Load()
}

// DeviceData is the replacement for the opaque per-work device data
// pointer plus duplicator/freer closures described in the driver
// vtable design notes: each driver implements Clone/Release for
// whatever private scratch state it attaches to a Work.
type DeviceData interface {
	Clone() DeviceData
	Release()
}

// NonceDiffClass is the result of comparing a hash against pool and
// work targets (see §4.8 _test_nonce2).
type NonceDiffClass int

const (
	// Good means the hash met work.Target (a share, possibly a block).
	Good NonceDiffClass = iota
	// High means the hash missed work.Target but met the pool's
	// minimum difficulty.
	High
	// Bad means the hash did not even meet the pool's minimum
	// difficulty — a hardware error.
	Bad
)

// Work is a single attempt-batch handed to a device: header scratch
// plus midstate plus target.
type Work struct {
	mu sync.Mutex

	ID string

	Data        [128]byte
	Midstate    [32]byte
	Target      [32]byte
	BlockTarget [32]byte // decoded from the job's nbits; the network target submit_nonce checks a GOOD hash against to detect a block solution
	BestHash    [32]byte
	ShareDiff   float64

	Rolls        int
	DrvRollLimit int
	BaseNtime    uint32

	NonceSlot int // byte offset of the nonce field within Data (76 for 80-byte header convention)
	NonceDiff float64

	PoolID   int
	ThreadID int

	TvStaged        time.Time
	TvGetwork       time.Time
	TvGetworkReply  time.Time
	TvCloned        time.Time
	TvWorkStart     time.Time
	TvWorkFound     time.Time

	Mined     bool
	Clone     bool
	Cloned    bool
	LongPoll  bool
	Stale     bool
	Mandatory bool
	Block     bool
	Stratum   bool

	JobID  string
	Nonce1 string
	Nonce2 uint64

	Tmpl *Template

	deviceData DeviceData
}

// New creates a zero-value Work with a fresh id and staged timestamp.
func New(poolID int) *Work {
	return &Work{
		ID:        uuid.NewString(),
		PoolID:    poolID,
		NonceSlot: 76,
		TvStaged:  time.Now(),
	}
}

// SetDeviceData installs driver-private scratch data, releasing any
// previous value first.
func (w *Work) SetDeviceData(d DeviceData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deviceData != nil {
		w.deviceData.Release()
	}
	w.deviceData = d
}

// DeviceData returns the driver-private scratch data, if any.
func (w *Work) DeviceData() DeviceData {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deviceData
}

// Clone produces a shallow copy of w with a new id, bumping the
// shared template's refcount. Used by ntime rolling and by
// clone_queued_work_bymidstate.
func (w *Work) Clone() *Work {
	w.mu.Lock()
	defer w.mu.Unlock()

	clone := *w
	clone.mu = sync.Mutex{}
	clone.ID = uuid.NewString()
	clone.Clone = true
	clone.Cloned = true
	clone.TvCloned = time.Now()
	if w.Tmpl != nil {
		clone.Tmpl = w.Tmpl.Acquire()
	}
	if w.deviceData != nil {
		clone.deviceData = w.deviceData.Clone()
	}
	return &clone
}

// Free releases the work's template reference and device data. It
// must be called exactly once when a Work is permanently discarded
// (consumed or stale), per the ownership lifecycle in the data model.
func (w *Work) Free() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.deviceData != nil {
		w.deviceData.Release()
		w.deviceData = nil
	}
	if w.Tmpl != nil {
		w.Tmpl.Release()
		w.Tmpl = nil
	}
}

// Ntime returns the header's ntime field, the 4 bytes at offset 68 of
// the 80-byte header convention (data[68:72]).
func (w *Work) Ntime() uint32 {
	return beUint32(w.Data[68:72])
}

// SetNtime writes v into the header's ntime field.
func (w *Work) SetNtime(v uint32) {
	putBeUint32(w.Data[68:72], v)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
