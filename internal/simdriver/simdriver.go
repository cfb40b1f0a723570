// Package simdriver is a software reference driver: it hashes real
// work headers with the CPU instead of talking to ASIC hardware. Per-
// vendor driver internals are explicitly out of scope (spec §1
// Non-goals), but a reference driver is what exercises minerloop,
// watchdog and submit end-to-end without one, in the same spirit as
// cgminer's historical cpu-mining driver.
package simdriver

import (
	"math/rand"

	"github.com/chimera-pool/mining-coordinator/internal/submit"
	"github.com/chimera-pool/mining-coordinator/internal/work"
)

// Driver implements device.Legacy by brute-forcing nonces against the
// work header on the CPU.
type Driver struct {
	name       string
	iterations uint32 // nonces tried per ScanHash call
	minDiff    float64
}

// New creates a simulated driver trying iterations nonces per scan,
// accepting any nonce that meets at least minDiff.
func New(name string, iterations uint32, minDiff float64) *Driver {
	if iterations == 0 {
		iterations = 1 << 20
	}
	return &Driver{name: name, iterations: iterations, minDiff: minDiff}
}

// Name identifies the driver for logging and metrics.
func (d *Driver) Name() string { return d.name }

// ScanHash tries a bounded, randomized range of nonces against w's
// header using the same nonce-testing code the submit path uses,
// returning the first one that meets at least the driver's minDiff.
func (d *Driver) ScanHash(w *work.Work) (uint32, bool, error) {
	start := rand.Uint32()

	for i := uint32(0); i < d.iterations; i++ {
		nonce := start + i
		class, _ := submit.TestNonce2(w, nonce, d.minDiff)
		if class != work.Bad {
			return nonce, true, nil
		}
	}
	return 0, false, nil
}
