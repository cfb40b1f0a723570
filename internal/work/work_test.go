package work

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeviceData struct {
	released *bool
}

func (f *fakeDeviceData) Clone() DeviceData {
	v := false
	return &fakeDeviceData{released: &v}
}

func (f *fakeDeviceData) Release() {
	*f.released = true
}

func TestCloneBumpsTemplateRefcount(t *testing.T) {
	tmpl := NewTemplate()
	require.EqualValues(t, 1, tmpl.RefCount())

	w := New(0)
	w.Tmpl = tmpl

	clone := w.Clone()
	assert.EqualValues(t, 2, tmpl.RefCount())
	assert.True(t, clone.Clone)
	assert.True(t, clone.Cloned)
	assert.NotEqual(t, w.ID, clone.ID)
}

func TestFreeReleasesTemplateAtZero(t *testing.T) {
	tmpl := NewTemplate()
	w := New(0)
	w.Tmpl = tmpl
	clone := w.Clone()
	require.EqualValues(t, 2, tmpl.RefCount())

	w.Free()
	assert.EqualValues(t, 1, tmpl.RefCount())

	clone.Free()
	assert.EqualValues(t, 0, tmpl.RefCount())
}

func TestDeviceDataClonedAndReleased(t *testing.T) {
	released := false
	w := New(0)
	w.SetDeviceData(&fakeDeviceData{released: &released})

	clone := w.Clone()
	require.NotNil(t, clone.DeviceData())

	w.Free()
	assert.True(t, released, "original device data should be released on Free")

	prior := clone.DeviceData().(*fakeDeviceData)
	cloneReleased := false
	clone.SetDeviceData(&fakeDeviceData{released: &cloneReleased})
	assert.True(t, *prior.released, "replacing device data releases the prior value")
}

func TestNtimeRoundTrip(t *testing.T) {
	w := New(0)
	w.SetNtime(0x5F5E1000)
	assert.Equal(t, uint32(0x5F5E1000), w.Ntime())
}
