// Package watchdog implements the per-device liveness/temperature/
// recovery supervisor (spec §4.9): a ticker-driven monitor loop that
// watches device.Device state and triggers reinit or thermal cutoff.
package watchdog

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chimera-pool/mining-coordinator/internal/device"
)

// Observer is notified of watchdog state transitions, mirroring the
// teacher's network-state observer pattern re-themed to per-device
// health events.
type Observer interface {
	OnDeviceSick(d *device.Device)
	OnDeviceDead(d *device.Device)
	OnDeviceRecovered(d *device.Device)
	OnThermalCutoff(d *device.Device, temperature float64)
}

// Reinitializer is implemented by the driver owner so the watchdog
// can request a reinit without importing device driver internals.
type Reinitializer interface {
	Reinit(ctx context.Context, d *device.Device) error
}

// Config tunes the monitor loop.
type Config struct {
	CheckInterval time.Duration

	SickAfter time.Duration // no scan result within this window -> SICK
	DeadAfter time.Duration // no scan result within this window -> DEAD

	ThermalCutoff    float64 // Celsius; device disabled above this
	ThermalHysteresis float64 // must drop this many degrees below cutoff before re-enabling

	ReinitBackoffBase time.Duration // spec §9 Open Question decision
	ReinitBackoffMax  time.Duration
}

// DefaultConfig matches spec.md §9's resolved Open Question: 60s to
// SICK, 600s to DEAD, reinit backoff starting at 1s doubling to a 5
// minute cap, reset to 1s after a successful reinit or once the
// device reports results again.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     2 * time.Second,
		SickAfter:         60 * time.Second,
		DeadAfter:         600 * time.Second,
		ThermalCutoff:     90.0,
		ThermalHysteresis: 5.0,
		ReinitBackoffBase: time.Second,
		ReinitBackoffMax:  5 * time.Minute,
	}
}

var metricReinits = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "coordinator_device_reinit_total",
	Help: "Driver reinit attempts triggered by the watchdog.",
}, []string{"device_id"})

var metricThermalCutoffs = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "coordinator_device_thermal_cutoff_total",
	Help: "Times a device was disabled for exceeding its thermal cutoff.",
}, []string{"device_id"})

func init() {
	prometheus.MustRegister(metricReinits, metricThermalCutoffs)
}

// deviceState tracks the watchdog's private bookkeeping per device,
// separate from device.Device's own liveness field so reinit backoff
// survives across multiple SICK/DEAD cycles.
type deviceState struct {
	backoff       time.Duration
	nextReinit    time.Time
	cutoffLatched bool
}

// Watchdog supervises a fixed set of devices.
type Watchdog struct {
	cfg     Config
	devices []*device.Device
	reinit  Reinitializer

	mu        sync.Mutex
	observers []Observer
	states    map[string]*deviceState

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Watchdog over devices, using reinit to recover DEAD
// devices.
func New(cfg Config, devices []*device.Device, reinit Reinitializer) *Watchdog {
	return &Watchdog{
		cfg:     cfg,
		devices: devices,
		reinit:  reinit,
		states:  make(map[string]*deviceState),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// RegisterObserver adds an observer for watchdog events.
func (w *Watchdog) RegisterObserver(o Observer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, o)
}

// Run starts the monitor loop and blocks until ctx is cancelled or
// Stop is called.
func (w *Watchdog) Run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop requests the monitor loop to exit and waits for it.
func (w *Watchdog) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watchdog) stateFor(d *device.Device) *deviceState {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.states[d.ID]
	if !ok {
		s = &deviceState{backoff: w.cfg.ReinitBackoffBase}
		w.states[d.ID] = s
	}
	return s
}

func (w *Watchdog) notify(f func(o Observer)) {
	w.mu.Lock()
	observers := make([]Observer, len(w.observers))
	copy(observers, w.observers)
	w.mu.Unlock()
	for _, o := range observers {
		f(o)
	}
}

func (w *Watchdog) sweep(ctx context.Context) {
	for _, d := range w.devices {
		w.checkLiveness(d)
		w.checkThermal(d)
	}
}

func (w *Watchdog) checkLiveness(d *device.Device) {
	sinceResult := time.Since(d.LastResult)
	wasOK := d.Liveness == device.LifeOK

	switch {
	case sinceResult >= w.cfg.DeadAfter:
		if d.Liveness != device.LifeDead && d.Liveness != device.LifeDead2 {
			d.MarkDead()
			log.Printf("[watchdog] device %s DEAD (no result in %s)", d.ID, sinceResult)
			w.notify(func(o Observer) { o.OnDeviceDead(d) })
		}
		w.maybeReinit(d)
	case sinceResult >= w.cfg.SickAfter:
		if d.Liveness == device.LifeOK || d.Liveness == device.LifeWait {
			d.MarkSick()
			log.Printf("[watchdog] device %s SICK (no result in %s)", d.ID, sinceResult)
			w.notify(func(o Observer) { o.OnDeviceSick(d) })
		}
	default:
		if !wasOK && d.Liveness != device.LifeInit {
			state := w.stateFor(d)
			w.mu.Lock()
			state.backoff = w.cfg.ReinitBackoffBase
			w.mu.Unlock()
			w.notify(func(o Observer) { o.OnDeviceRecovered(d) })
		}
	}
}

// maybeReinit requests a driver reinit once the current exponential
// backoff window has elapsed, then doubles the backoff (capped) for
// next time (spec §9 resolved Open Question).
func (w *Watchdog) maybeReinit(d *device.Device) {
	if w.reinit == nil {
		return
	}
	state := w.stateFor(d)

	w.mu.Lock()
	ready := time.Now().After(state.nextReinit)
	w.mu.Unlock()
	if !ready {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := w.reinit.Reinit(ctx, d)
	metricReinits.WithLabelValues(d.ID).Inc()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		log.Printf("[watchdog] device %s reinit failed: %v", d.ID, err)
		state.nextReinit = time.Now().Add(state.backoff)
		state.backoff *= 2
		if state.backoff > w.cfg.ReinitBackoffMax {
			state.backoff = w.cfg.ReinitBackoffMax
		}
	} else {
		state.nextReinit = time.Now()
		state.backoff = w.cfg.ReinitBackoffBase
	}
}

// checkThermal disables a device once it crosses ThermalCutoff and
// re-enables it only once it has cooled ThermalHysteresis degrees
// below that, preventing rapid enable/disable oscillation at the
// boundary.
func (w *Watchdog) checkThermal(d *device.Device) {
	state := w.stateFor(d)

	if d.Temperature >= w.cfg.ThermalCutoff {
		if !state.cutoffLatched {
			w.mu.Lock()
			state.cutoffLatched = true
			w.mu.Unlock()
			d.Disable()
			metricThermalCutoffs.WithLabelValues(d.ID).Inc()
			log.Printf("[watchdog] device %s thermal cutoff at %.1fC", d.ID, d.Temperature)
			w.notify(func(o Observer) { o.OnThermalCutoff(d, d.Temperature) })
		}
		return
	}

	if state.cutoffLatched && d.Temperature <= w.cfg.ThermalCutoff-w.cfg.ThermalHysteresis {
		w.mu.Lock()
		state.cutoffLatched = false
		w.mu.Unlock()
		d.EnableDevice()
		log.Printf("[watchdog] device %s cooled below %.1fC, re-enabled", d.ID, d.Temperature)
	}
}
