package device

import "github.com/chimera-pool/mining-coordinator/internal/work"

// Result is what a driver reports back for one unit of work: the
// winning nonce (if any) plus enough context for the submitter to
// validate it.
type Result struct {
	Work  *work.Work
	Nonce uint32
}

// Legacy is the scanhash capability: a driver that blocks synchronously
// until it finds a nonce or exhausts its work, the oldest and simplest
// driver shape (spec §4.7/§9 capability-set design note).
type Legacy interface {
	ScanHash(w *work.Work) (nonce uint32, found bool, err error)
}

// Async is the capability for drivers that start a job, poll for
// completion, and fetch results independently — the busy_state
// IDLE->STARTING_JOB->IDLE->GETTING_RESULTS->IDLE state machine lives
// in internal/minerloop, driven by these four calls.
type Async interface {
	JobPrepare(w *work.Work) error
	JobStart(w *work.Work) error
	GetResults() ([]Result, error)
	ProcessResults(results []Result) error
}

// Queue is the capability for drivers with their own onboard work
// queue: the coordinator pushes work ahead of time and flushes it on
// invalidation rather than handing out one job at a time.
type Queue interface {
	QueueAppend(w *work.Work) (accepted bool, err error)
	QueueFlush() error
}

// Driver is implemented by every device backend; it always supports
// at least one of Legacy, Async or Queue (the caller picks the matching
// internal/minerloop Run function, which takes that capability as a
// typed argument), matching the original's per-driver
// optional vtable entries re-expressed as Go capability interfaces.
type Driver interface {
	Name() string
}
