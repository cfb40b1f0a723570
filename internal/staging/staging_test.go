package staging

import (
	"context"
	"testing"
	"time"

	"github.com/chimera-pool/mining-coordinator/internal/tsqueue"
	"github.com/chimera-pool/mining-coordinator/internal/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTakeOrder(t *testing.T) {
	s := New()
	w1 := work.New(0)
	w2 := work.New(0)
	ok, err := s.Stage(w1)
	require.NoError(t, err)
	assert.True(t, ok)
	_, _ = s.Stage(w2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, res := s.Take(ctx)
	require.Equal(t, tsqueue.PopOK, res)
	assert.Equal(t, w1.ID, got.ID)
}

func TestDeviceQueueTakeUnqueuedMovesToQueued(t *testing.T) {
	d := NewDeviceQueue()
	w := work.New(0)
	d.PushUnqueued(w)

	q, u := d.Len()
	assert.Equal(t, 0, q)
	assert.Equal(t, 1, u)

	taken := d.TakeUnqueued()
	require.NotNil(t, taken)
	assert.Equal(t, w.ID, taken.ID)

	q, u = d.Len()
	assert.Equal(t, 1, q)
	assert.Equal(t, 0, u)
}

func TestFindByMidstateLocatesEitherSet(t *testing.T) {
	d := NewDeviceQueue()
	w := work.New(0)
	w.Midstate[0] = 0xAB
	d.PushUnqueued(w)

	found := d.FindByMidstate(w.Midstate)
	require.NotNil(t, found)
	assert.Equal(t, w.ID, found.ID)

	d.TakeUnqueued()
	found = d.FindByMidstate(w.Midstate)
	require.NotNil(t, found)
	assert.Equal(t, w.ID, found.ID)
}

func TestDrainUnqueuedForPoolFreesOnlyMatchingPool(t *testing.T) {
	d := NewDeviceQueue()
	w0 := work.New(0)
	w0.Midstate[0] = 0x01
	w1 := work.New(1)
	w1.Midstate[0] = 0x02
	d.PushUnqueued(w0)
	d.PushUnqueued(w1)

	d.DrainUnqueuedForPool(0)

	_, u := d.Len()
	assert.Equal(t, 1, u)
	assert.Nil(t, d.FindByMidstate(w0.Midstate))
}

func TestDrainUnqueuedExceptKeepsOnlySelectedPool(t *testing.T) {
	d := NewDeviceQueue()
	w0 := work.New(0)
	w0.Midstate[0] = 0x01
	w1 := work.New(1)
	w1.Midstate[0] = 0x02
	d.PushUnqueued(w0)
	d.PushUnqueued(w1)

	d.DrainUnqueuedExcept(1)

	_, u := d.Len()
	assert.Equal(t, 1, u)
	assert.Nil(t, d.FindByMidstate(w0.Midstate), "pool 0's work must be drained")
	assert.NotNil(t, d.FindByMidstate(w1.Midstate), "pool 1's work must survive the switch to pool 1")
}

func TestCompleteRemovesFromQueued(t *testing.T) {
	d := NewDeviceQueue()
	w := work.New(0)
	d.PushUnqueued(w)
	d.TakeUnqueued()
	d.Complete(w.ID)

	q, u := d.Len()
	assert.Equal(t, 0, q)
	assert.Equal(t, 0, u)
}
