package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chimera-pool/mining-coordinator/internal/device"
	"github.com/chimera-pool/mining-coordinator/internal/stratum/vardiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	sick    int
	dead    int
	cutoff  int
	revived int
}

func (r *recordingObserver) OnDeviceSick(d *device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sick++
}
func (r *recordingObserver) OnDeviceDead(d *device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dead++
}
func (r *recordingObserver) OnDeviceRecovered(d *device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revived++
}
func (r *recordingObserver) OnThermalCutoff(d *device.Device, temperature float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoff++
}

func (r *recordingObserver) counts() (sick, dead, cutoff, revived int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sick, r.dead, r.cutoff, r.revived
}

type countingReinitializer struct {
	mu       sync.Mutex
	attempts int
	fail     bool
}

func (c *countingReinitializer) Reinit(ctx context.Context, d *device.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.fail {
		return assert.AnError
	}
	return nil
}

func (c *countingReinitializer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func newStaleDevice(age time.Duration) *device.Device {
	d := device.New("test", 0, time.Minute, vardiff.DefaultConfig())
	d.RecordScanResult(40, 50)
	d.LastResult = time.Now().Add(-age)
	return d
}

func TestSweepMarksSickAfterThreshold(t *testing.T) {
	d := newStaleDevice(90 * time.Second)
	obs := &recordingObserver{}
	cfg := DefaultConfig()
	cfg.SickAfter = 60 * time.Second
	cfg.DeadAfter = 600 * time.Second

	w := New(cfg, []*device.Device{d}, nil)
	w.RegisterObserver(obs)
	w.sweep(context.Background())

	assert.Equal(t, device.LifeSick, d.Liveness)
	sick, dead, _, _ := obs.counts()
	assert.Equal(t, 1, sick)
	assert.Equal(t, 0, dead)
}

func TestSweepMarksDeadAndTriggersReinit(t *testing.T) {
	d := newStaleDevice(700 * time.Second)
	obs := &recordingObserver{}
	reinit := &countingReinitializer{}
	cfg := DefaultConfig()

	w := New(cfg, []*device.Device{d}, reinit)
	w.RegisterObserver(obs)
	w.sweep(context.Background())

	assert.Equal(t, device.LifeDead, d.Liveness)
	_, dead, _, _ := obs.counts()
	assert.Equal(t, 1, dead)
	assert.Equal(t, 1, reinit.count())
}

func TestReinitBackoffDoublesOnRepeatedFailure(t *testing.T) {
	d := newStaleDevice(700 * time.Second)
	reinit := &countingReinitializer{fail: true}
	cfg := DefaultConfig()
	cfg.ReinitBackoffBase = 10 * time.Millisecond
	cfg.ReinitBackoffMax = time.Second

	w := New(cfg, []*device.Device{d}, reinit)
	w.sweep(context.Background())
	assert.Equal(t, 1, reinit.count())

	// Immediately sweeping again must not re-trigger: backoff window
	// has not elapsed yet.
	w.sweep(context.Background())
	assert.Equal(t, 1, reinit.count())

	time.Sleep(15 * time.Millisecond)
	w.sweep(context.Background())
	assert.Equal(t, 2, reinit.count())
}

func TestThermalCutoffDisablesAndHysteresisReenables(t *testing.T) {
	d := device.New("test", 0, time.Minute, vardiff.DefaultConfig())
	d.RecordScanResult(95, 100) // over cutoff
	obs := &recordingObserver{}

	cfg := DefaultConfig()
	cfg.ThermalCutoff = 90
	cfg.ThermalHysteresis = 5

	w := New(cfg, []*device.Device{d}, nil)
	w.RegisterObserver(obs)
	w.sweep(context.Background())

	assert.False(t, d.IsUsable())
	_, _, cutoff, _ := obs.counts()
	assert.Equal(t, 1, cutoff)

	// Cooling to just under cutoff (but within hysteresis) must not
	// re-enable yet.
	d.RecordScanResult(88, 100)
	w.sweep(context.Background())
	assert.False(t, d.IsUsable())

	// Cooling below cutoff - hysteresis re-enables.
	d.RecordScanResult(84, 100)
	w.sweep(context.Background())
	require.True(t, d.IsUsable())
}
