package device

import (
	"testing"
	"time"

	"github.com/chimera-pool/mining-coordinator/internal/stratum/vardiff"
	"github.com/stretchr/testify/assert"
)

func newTestDevice() *Device {
	return New("testdrv", 0, time.Minute, vardiff.DefaultConfig())
}

func TestNewDeviceStartsAtLifeInit(t *testing.T) {
	d := newTestDevice()
	assert.Equal(t, LifeInit, d.Liveness)
	assert.True(t, d.IsUsable())
}

func TestScanStartThenResultTransitionsToOK(t *testing.T) {
	d := newTestDevice()
	d.RecordScanStart()
	assert.Equal(t, LifeWait, d.Liveness)
	d.RecordScanResult(55.0, 80)
	assert.Equal(t, LifeOK, d.Liveness)
	assert.Equal(t, 55.0, d.Temperature)
}

func TestMarkSickThenDeadThenReinitGoesToInit2(t *testing.T) {
	d := newTestDevice()
	d.RecordScanStart()
	d.RecordScanResult(50, 50)
	d.MarkSick()
	assert.Equal(t, LifeSick, d.Liveness)
	d.MarkDead()
	assert.Equal(t, LifeDead, d.Liveness)
	assert.False(t, d.IsUsable())

	d.RecordScanStart()
	assert.Equal(t, LifeInit2, d.Liveness)
}

func TestMarkDeadDuringReinitBecomesDead2(t *testing.T) {
	d := newTestDevice()
	d.RecordScanStart() // LifeInit -> LifeWait
	d.MarkDead()        // LifeWait -> LifeDead
	d.RecordScanStart() // LifeDead -> LifeInit2
	d.MarkDead()        // LifeInit2 -> LifeDead2
	assert.Equal(t, LifeDead2, d.Liveness)
}

func TestDisableMakesDeviceUnusable(t *testing.T) {
	d := newTestDevice()
	d.Disable()
	assert.False(t, d.IsUsable())
}

func TestRecordShareUpdatesHashrateWindow(t *testing.T) {
	d := newTestDevice()
	d.RecordShare(1.0, 5*time.Second)
	assert.Greater(t, d.Hashrate.GetHashrate(), 0.0)
}

func TestRecordHardwareErrorAccumulates(t *testing.T) {
	d := newTestDevice()
	for i := 0; i < 10; i++ {
		d.RecordHardwareError(1.0)
	}
	assert.Equal(t, int64(10), d.HWErrors)
	assert.Equal(t, 10.0, d.BadDiff1)
}

func TestSignalWorkRestartWakesEveryThread(t *testing.T) {
	d := newTestDevice()
	t0 := NewThread(0, d.ID)
	t1 := NewThread(1, d.ID)
	d.Threads = append(d.Threads, t0, t1)

	d.SignalWorkRestart()

	select {
	case <-t0.WorkRestart():
	default:
		t.Fatal("thread 0 was not signalled")
	}
	select {
	case <-t1.WorkRestart():
	default:
		t.Fatal("thread 1 was not signalled")
	}
}
