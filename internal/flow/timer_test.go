package flow

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleTimer_Fires(t *testing.T) {
	timer := NewSimpleTimer()
	var fired atomic.Int32

	_, err := timer.ScheduleAfter(5*time.Millisecond, func() { fired.Add(1) })
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, timer.Pending())
}

func TestSimpleTimer_CancelAndStop(t *testing.T) {
	timer := NewSimpleTimer()
	var fired atomic.Int32

	id, err := timer.ScheduleAfter(20*time.Millisecond, func() { fired.Add(1) })
	require.NoError(t, err)
	_, err = timer.ScheduleAfter(20*time.Millisecond, func() { fired.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, 2, timer.Pending())

	require.NoError(t, timer.Cancel(id))
	require.NoError(t, timer.Cancel("phase-unknown"))
	assert.Equal(t, 1, timer.Pending())

	timer.Stop()
	assert.Equal(t, 0, timer.Pending())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestSimpleTimer_RejectsNilCallback(t *testing.T) {
	_, err := NewSimpleTimer().ScheduleAfter(time.Millisecond, nil)
	assert.Error(t, err)
}
