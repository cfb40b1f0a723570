// Package minerloop implements the three driver mainloop shapes —
// legacy scanhash, async job/poll, and onboard queue — against the
// busy_state machine described in spec §4.7.
package minerloop

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chimera-pool/mining-coordinator/internal/device"
	"github.com/chimera-pool/mining-coordinator/internal/staging"
	"github.com/chimera-pool/mining-coordinator/internal/work"
)

// BusyState is the async driver's job lifecycle state (spec §4.7).
type BusyState int

const (
	Idle BusyState = iota
	StartingJob
	Working
	GettingResults
)

// ErrInvalidTransition is returned when an async driver call is made
// out of order (e.g. GetResults while still StartingJob).
var ErrInvalidTransition = fmt.Errorf("minerloop: invalid busy_state transition")

// ResultSink receives completed work so the submitter can validate and
// submit the nonce, returning the classification submit_nonce
// produced so the caller can feed device liveness/share-rate tracking
// without touching w again (ownership of w passes into the sink).
type ResultSink interface {
	Submit(w *work.Work, nonce uint32) work.NonceDiffClass
}

// RunLegacy drives a Legacy (scanhash) capability: pull work, block on
// ScanHash, report a found nonce, repeat until ctx is cancelled. d and
// thr feed the device's liveness/hashrate/vardiff bookkeeping and
// receive the work_restart_notifier signalled on a pool switch or
// block change (spec §4.7/§4.9).
func RunLegacy(ctx context.Context, drv device.Legacy, dq *staging.DeviceQueue, sink ResultSink, d *device.Device, thr *device.Thread) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-thr.WorkRestart():
			continue
		default:
		}

		w := dq.TakeUnqueued()
		if w == nil {
			select {
			case <-ctx.Done():
				return
			case <-thr.WorkRestart():
				continue
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		thr.Work = w
		w.TvWorkStart = time.Now()
		d.RecordScanStart()

		nonce, found, err := drv.ScanHash(w)
		if err != nil {
			log.Printf("[minerloop] scanhash error: %v", err)
			dq.Complete(w.ID)
			w.Free()
			thr.Work = nil
			continue
		}
		// Legacy drivers don't surface telemetry; report 0/0 rather
		// than invent readings (spec §1 Non-goal: per-vendor driver
		// internals).
		d.RecordScanResult(0, 0)

		if found {
			reportShare(d, w, nonce, sink)
		}
		dq.Complete(w.ID)
		if !found {
			w.Free()
		}
		thr.Work = nil
	}
}

// reportShare hands a found nonce to sink.Submit, capturing w's
// accounting fields first since Submit may free w or hand it off to
// another goroutine before returning.
func reportShare(d *device.Device, w *work.Work, nonce uint32, sink ResultSink) {
	diffWeight := w.NonceDiff
	if diffWeight <= 0 {
		diffWeight = 1
	}
	interval := time.Since(w.TvWorkStart)

	switch sink.Submit(w, nonce) {
	case work.Good:
		d.RecordShare(diffWeight, interval)
	case work.Bad:
		d.RecordHardwareError(diffWeight)
	}
}

// asyncLoop tracks one device's busy_state across JobPrepare/JobStart/
// GetResults/ProcessResults, rejecting calls that would skip a state
// (spec §9 Open Question: "direct STARTING_JOB -> GETTING_RESULTS
// transitions must be rejected, not silently coerced").
type asyncLoop struct {
	state BusyState
}

func (a *asyncLoop) transition(next BusyState) error {
	switch {
	case a.state == Idle && next == StartingJob:
	case a.state == StartingJob && next == Working:
	case a.state == Working && next == GettingResults:
	case a.state == GettingResults && next == Idle:
	case next == Idle:
		// Error recovery: any state may reset to Idle.
	default:
		return fmt.Errorf("%w: %d -> %d", ErrInvalidTransition, a.state, next)
	}
	a.state = next
	return nil
}

// RunAsync drives an Async capability through JobPrepare -> JobStart ->
// poll GetResults -> ProcessResults, looping until ctx is cancelled.
func RunAsync(ctx context.Context, drv device.Async, dq *staging.DeviceQueue, sink ResultSink, pollInterval time.Duration, d *device.Device, thr *device.Thread) {
	loop := &asyncLoop{state: Idle}

	for {
		select {
		case <-ctx.Done():
			return
		case <-thr.WorkRestart():
			continue
		default:
		}

		w := dq.TakeUnqueued()
		if w == nil {
			select {
			case <-ctx.Done():
				return
			case <-thr.WorkRestart():
				continue
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		runAsyncJob(ctx, loop, drv, dq, sink, w, pollInterval, d, thr)
	}
}

// runAsyncJob drives one work item through the full async state
// machine. Split out of RunAsync so every exit path (job_prepare
// failure, poll timeout, successful completion) returns cleanly
// instead of needing a jump back to the top of the work loop.
func runAsyncJob(ctx context.Context, loop *asyncLoop, drv device.Async, dq *staging.DeviceQueue, sink ResultSink, w *work.Work, pollInterval time.Duration, d *device.Device, thr *device.Thread) {
	defer dq.Complete(w.ID)
	defer func() { thr.Work = nil }()

	thr.Work = w
	w.TvWorkStart = time.Now()
	d.RecordScanStart()

	if err := loop.transition(StartingJob); err != nil {
		log.Printf("[minerloop] %v", err)
		w.Free()
		return
	}
	if err := drv.JobPrepare(w); err != nil {
		log.Printf("[minerloop] job_prepare error: %v", err)
		loop.transition(Idle)
		w.Free()
		return
	}
	if err := drv.JobStart(w); err != nil {
		log.Printf("[minerloop] job_start error: %v", err)
		loop.transition(Idle)
		w.Free()
		return
	}
	loop.transition(Working)

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var results []device.Result
	for {
		select {
		case <-pollCtx.Done():
			w.Free()
			loop.transition(Idle)
			return
		case <-time.After(pollInterval):
		}
		if err := loop.transition(GettingResults); err != nil {
			continue
		}
		r, err := drv.GetResults()
		if err != nil {
			log.Printf("[minerloop] get_results error: %v", err)
			continue
		}
		if r != nil {
			results = r
			break
		}
		loop.transition(Working)
	}

	if err := drv.ProcessResults(results); err != nil {
		log.Printf("[minerloop] process_results error: %v", err)
	}
	d.RecordScanResult(0, 0)
	for _, r := range results {
		reportShare(d, r.Work, r.Nonce, sink)
	}
	loop.transition(Idle)
}

// RunQueue drives a Queue capability: keep the driver's onboard queue
// topped up by appending staged work until it is rejected, and flush
// it on invalidation. thr's work_restart_notifier triggers an explicit
// QueueFlush, since the driver's onboard queue can't be drained by the
// staging-side Drain* sweeps alone (spec §4.2 queue loop).
func RunQueue(ctx context.Context, drv device.Queue, dq *staging.DeviceQueue, d *device.Device, thr *device.Thread) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-thr.WorkRestart():
			if err := drv.QueueFlush(); err != nil {
				log.Printf("[minerloop] queue_flush error: %v", err)
			}
			continue
		default:
		}

		w := dq.TakeUnqueued()
		if w == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		d.RecordScanStart()
		accepted, err := drv.QueueAppend(w)
		if err != nil {
			log.Printf("[minerloop] queue_append error: %v", err)
		}
		if !accepted {
			dq.PushUnqueued(w) // onboard queue full, retry later
		} else {
			d.RecordScanResult(0, 0)
		}
		dq.Complete(w.ID)
	}
}
