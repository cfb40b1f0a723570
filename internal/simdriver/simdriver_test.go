package simdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-pool/mining-coordinator/internal/stratum"
	"github.com/chimera-pool/mining-coordinator/internal/workgen"
)

func easyWork(t *testing.T) *workgen.Generator {
	return workgen.New()
}

func TestScanHashFindsNonceAgainstEasyTarget(t *testing.T) {
	g := easyWork(t)
	job := stratum.Job{
		JobID:     "abc",
		PrevHash:  "0000000000000000000000000000000000000000000000000000000000000000",
		Coinbase1: []byte{0x01},
		Coinbase2: []byte{0x02},
		Version:   "00000002",
		NBits:     "1b148272",
		NTime:     "504e86ed",
		CleanJobs: true,
	}
	w, err := g.FromStratumJob(0, job, "ae6812eb", 1, 4, 1.0)
	require.NoError(t, err)

	for i := range w.Target {
		w.Target[i] = 0xff
	}

	d := New("simcpu", 1<<16, 1)
	nonce, found, err := d.ScanHash(w)
	require.NoError(t, err)
	assert.True(t, found)
	_ = nonce
}

func TestScanHashReturnsNotFoundAgainstImpossibleTarget(t *testing.T) {
	g := easyWork(t)
	job := stratum.Job{
		JobID:     "abc",
		PrevHash:  "0000000000000000000000000000000000000000000000000000000000000000",
		Coinbase1: []byte{0x01},
		Coinbase2: []byte{0x02},
		Version:   "00000002",
		NBits:     "1b148272",
		NTime:     "504e86ed",
		CleanJobs: true,
	}
	w, err := g.FromStratumJob(0, job, "ae6812eb", 1, 4, 1.0)
	require.NoError(t, err)

	for i := range w.Target {
		w.Target[i] = 0x00
	}

	d := New("simcpu", 64, 1e15)
	_, found, err := d.ScanHash(w)
	require.NoError(t, err)
	assert.False(t, found)
}
