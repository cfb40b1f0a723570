// Package device implements the device registry, driver capability
// interfaces and per-device liveness tracking (spec §4.7/§4.9): one
// Device per physical piece of hardware, one Thread per worker
// goroutine a driver runs against it.
package device

import (
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chimera-pool/mining-coordinator/internal/cglock"
	"github.com/chimera-pool/mining-coordinator/internal/stratum/hashrate"
	"github.com/chimera-pool/mining-coordinator/internal/stratum/vardiff"
	"github.com/chimera-pool/mining-coordinator/internal/work"
)

// Enable is the user/automatic enable state of a device.
type Enable int

const (
	DeviceDisabled Enable = iota
	DeviceEnabled
)

// Liveness mirrors the original's LIFE_* states (spec §9 supplemented
// feature: the distilled spec only names "alive/dead", the original
// tracks the initialization and recovery transitions separately so
// the watchdog can tell a device that has never reported in from one
// that stopped reporting).
type Liveness int

const (
	// LifeInit is the device's state before its first successful scan.
	LifeInit Liveness = iota
	// LifeWait is set while a scan is outstanding.
	LifeWait
	// LifeOK means the device reported results within its timeout.
	LifeOK
	// LifeSick means one scan window was missed.
	LifeSick
	// LifeDead means the device has missed enough windows to be
	// considered unresponsive and a candidate for driver reinit.
	LifeDead
	// LifeInit2/LifeDead2 mark a device mid-reinit after a comms
	// failure: init2 is "reinit issued, awaiting first result",
	// dead2 is "reinit itself failed".
	LifeInit2
	LifeDead2
	// LifeMixed is a multi-chip device where some chips are healthy
	// and others are not — reported, not cut off.
	LifeMixed
)

var metricHashrate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "coordinator_device_hashrate_hs",
	Help: "Rolling hashrate per device in hashes per second.",
}, []string{"device_id"})

var metricTemperature = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "coordinator_device_temperature_celsius",
	Help: "Last reported device temperature in Celsius.",
}, []string{"device_id"})

func init() {
	prometheus.MustRegister(metricHashrate, metricTemperature)
}

// Device is one physical piece of mining hardware (spec §3 cgpu_info).
type Device struct {
	ID       string
	DriverID string // e.g. "antminer", "gridseed" — opaque to the coordinator
	Index    int

	QLock cglock.Lock // guards everything below (spec §4.10 qlock)

	Enable   Enable
	Liveness Liveness

	LastScan     time.Time
	LastResult   time.Time
	Temperature  float64
	FanPercent   int

	Hashrate *hashrate.Window
	Vardiff  *vardiff.Manager // internal per-device share-rate target, not pool-facing

	HWErrors int64
	BadDiff1 float64

	Threads []*Thread
}

// Thread is one worker goroutine driving Device (spec §3 thr_info).
type Thread struct {
	ID       int
	DeviceID string
	Work     *work.Work // current work, nil if idle

	restart chan struct{} // work_restart_notifier (spec §4.3/§4.7/§5 guarantee (b))
}

// NewThread creates a Thread with its work_restart_notifier ready to
// receive a signal.
func NewThread(id int, deviceID string) *Thread {
	return &Thread{ID: id, DeviceID: deviceID, restart: make(chan struct{}, 1)}
}

// WorkRestart returns the channel a minerloop selects on to notice a
// pool switch or block change mid-scan.
func (t *Thread) WorkRestart() <-chan struct{} {
	return t.restart
}

// SignalWorkRestart wakes the thread's minerloop without blocking; a
// pending unconsumed signal is sufficient; no need to queue a second.
func (t *Thread) SignalWorkRestart() {
	select {
	case t.restart <- struct{}{}:
	default:
	}
}

// New constructs a Device with its hashrate window and internal
// vardiff manager initialized. cfg controls the internal retarget
// behavior; pass vardiff.DefaultConfig() for sane defaults.
func New(driverID string, index int, window time.Duration, cfg vardiff.Config) *Device {
	d := &Device{
		ID:       uuid.NewString(),
		DriverID: driverID,
		Index:    index,
		Liveness: LifeInit,
		Enable:   DeviceEnabled,
		Hashrate: hashrate.NewWindow(window),
		Vardiff:  vardiff.NewManager(cfg),
	}
	return d
}

// RecordShare feeds a share into the device's rolling hashrate window
// and internal vardiff tracker, and republishes the hashrate gauge.
func (d *Device) RecordShare(diff float64, shareInterval time.Duration) {
	d.Hashrate.AddShare(diff, time.Now())
	d.Vardiff.RecordShare(d.ID, shareInterval)
	metricHashrate.WithLabelValues(d.ID).Set(d.Hashrate.GetHashrate())
}

// RecordScanStart marks a scan as outstanding (busy_state bookkeeping
// lives in internal/minerloop; this only tracks liveness).
func (d *Device) RecordScanStart() {
	d.QLock.WLock()
	defer d.QLock.WUnlock()
	d.LastScan = time.Now()
	if d.Liveness == LifeDead || d.Liveness == LifeDead2 {
		d.Liveness = LifeInit2
	} else if d.Liveness == LifeInit {
		d.Liveness = LifeWait
	}
}

// RecordScanResult marks a scan as having returned within its
// deadline, transitioning out of SICK/INIT2 back to OK.
func (d *Device) RecordScanResult(temperature float64, fanPercent int) {
	d.QLock.WLock()
	defer d.QLock.WUnlock()
	d.LastResult = time.Now()
	d.Temperature = temperature
	d.FanPercent = fanPercent
	d.Liveness = LifeOK
	metricTemperature.WithLabelValues(d.ID).Set(temperature)
}

// RecordHardwareError accounts a BAD-classified nonce against this
// device's hardware-error counters (spec.md §8 scenario 6: "10
// consecutive BAD nonces from thread T on device D -> D.hw_errors +=
// 10, D.bad_diff1 += 10*nonce_diff").
func (d *Device) RecordHardwareError(diffWeight float64) {
	d.QLock.WLock()
	defer d.QLock.WUnlock()
	d.HWErrors++
	d.BadDiff1 += diffWeight
}

// SignalWorkRestart wakes every thread driving this device, e.g. after
// a pool switch or block change (spec §4.3/§5 guarantee (b)).
func (d *Device) SignalWorkRestart() {
	for _, t := range d.Threads {
		t.SignalWorkRestart()
	}
}

// MarkSick transitions a device that missed one scan window.
func (d *Device) MarkSick() {
	d.QLock.WLock()
	defer d.QLock.WUnlock()
	if d.Liveness == LifeOK || d.Liveness == LifeWait {
		d.Liveness = LifeSick
	}
}

// MarkDead transitions a device that has missed enough windows to be
// considered hung. If it was already mid-reinit, it becomes DEAD2
// (reinit failed) instead of DEAD.
func (d *Device) MarkDead() {
	d.QLock.WLock()
	defer d.QLock.WUnlock()
	if d.Liveness == LifeInit2 {
		d.Liveness = LifeDead2
	} else {
		d.Liveness = LifeDead
	}
}

// IsUsable reports whether the device should be handed new work.
func (d *Device) IsUsable() bool {
	d.QLock.RLock()
	defer d.QLock.RUnlock()
	return d.Enable == DeviceEnabled && d.Liveness != LifeDead && d.Liveness != LifeDead2
}

// Disable marks the device DISABLED (explicit user action, or the
// watchdog giving up after repeated failed reinits).
func (d *Device) Disable() {
	d.QLock.WLock()
	defer d.QLock.WUnlock()
	d.Enable = DeviceDisabled
}

// EnableDevice marks the device ENABLED again (e.g. after cooling
// below a thermal cutoff's hysteresis margin).
func (d *Device) EnableDevice() {
	d.QLock.WLock()
	defer d.QLock.WUnlock()
	d.Enable = DeviceEnabled
}
