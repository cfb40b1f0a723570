package workgen

import (
	"testing"

	"github.com/chimera-pool/mining-coordinator/internal/stratum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJob() stratum.Job {
	return stratum.Job{
		JobID:     "abc",
		PrevHash:  "00000000000000000000000000000000000000000000000000000000000000",
		Coinbase1: []byte{0x01, 0x02},
		Coinbase2: []byte{0x03, 0x04},
		Version:   "00000002",
		NBits:     "1b148272",
		NTime:     "504e86ed",
		CleanJobs: true,
	}
}

func TestFromStratumJobBuildsHeaderOfExpectedWidth(t *testing.T) {
	g := New()
	w, err := g.FromStratumJob(0, sampleJob(), "ae6812eb", 1, 4, 1.0)
	require.NoError(t, err)
	assert.Equal(t, "abc", w.JobID)
	assert.Equal(t, uint32(0x504e86ed), w.BaseNtime)
	assert.Equal(t, uint32(0x504e86ed), w.Ntime())
	assert.True(t, w.Stratum)
}

func TestFromStratumJobSetsMidstateTargetAndBlockTarget(t *testing.T) {
	g := New()
	w, err := g.FromStratumJob(0, sampleJob(), "ae6812eb", 1, 4, 2.0)
	require.NoError(t, err)

	var zero [32]byte
	assert.NotEqual(t, zero, w.Midstate, "midstate must be computed from the header")
	assert.NotEqual(t, zero, w.Target, "target must be derived from the pool difficulty")
	assert.NotEqual(t, zero, w.BlockTarget, "block target must be decoded from nbits")
	assert.Equal(t, 2.0, w.NonceDiff)
}

func TestFromStratumJobRejectsBadHexFields(t *testing.T) {
	g := New()
	job := sampleJob()
	job.NBits = "zz"
	_, err := g.FromStratumJob(0, job, "ae6812eb", 1, 4, 1.0)
	assert.Error(t, err)
}

func TestRollWorkAdvancesNtimeAndTracksRolls(t *testing.T) {
	g := New()
	w, err := g.FromStratumJob(0, sampleJob(), "ae6812eb", 1, 4, 1.0)
	require.NoError(t, err)
	w.DrvRollLimit = 2

	r1, ok := RollWork(w, 1)
	require.True(t, ok)
	assert.Equal(t, w.BaseNtime+1, r1.Ntime())
	assert.Equal(t, 1, r1.Rolls)

	w.Rolls = 2
	_, ok = RollWork(w, 1)
	assert.False(t, ok, "rolling must stop once drv_rolllimit is reached")
}
