package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterStateDelta(t *testing.T) {
	key := CounterKey{Stream: "1234", Kind: PacketsSent}

	t.Run("first observation has no delta", func(t *testing.T) {
		s := NewCounterState()
		_, ok := s.Delta(key, 100)
		assert.False(t, ok)

		last, stored := s.Last(key)
		require.True(t, stored)
		assert.Equal(t, int64(100), last)
	})

	t.Run("second observation is the difference", func(t *testing.T) {
		s := NewCounterState()
		s.Delta(key, 100)
		d, ok := s.Delta(key, 175)
		require.True(t, ok)
		assert.Equal(t, int64(75), d)
	})

	t.Run("unchanged counter is a zero delta", func(t *testing.T) {
		s := NewCounterState()
		s.Delta(key, 100)
		d, ok := s.Delta(key, 100)
		require.True(t, ok)
		assert.Equal(t, int64(0), d)
	})

	t.Run("rollback is absent and reseeds", func(t *testing.T) {
		s := NewCounterState()
		s.Delta(key, 500)
		_, ok := s.Delta(key, 20)
		assert.False(t, ok)
		assert.Equal(t, 1, s.Rollbacks())

		d, ok := s.Delta(key, 50)
		require.True(t, ok)
		assert.Equal(t, int64(30), d)
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := NewCounterState()
		other := CounterKey{Stream: "1234", Kind: PacketsReceived}
		s.Delta(key, 10)
		_, ok := s.Delta(other, 10)
		assert.False(t, ok)
	})
}

func TestCounterStateAggregateDelta(t *testing.T) {
	t.Run("sums every stream", func(t *testing.T) {
		s := NewCounterState()
		_, ok := s.AggregateDelta(PacketsSent, []StreamValue{{"1", 10}, {"2", 20}, {"3", 30}})
		assert.False(t, ok)

		d, ok := s.AggregateDelta(PacketsSent, []StreamValue{{"1", 15}, {"2", 30}, {"3", 45}})
		require.True(t, ok)
		assert.Equal(t, int64(30), d)
	})

	t.Run("new layer makes the interval unknown", func(t *testing.T) {
		s := NewCounterState()
		s.AggregateDelta(PacketsSent, []StreamValue{{"1", 10}})
		_, ok := s.AggregateDelta(PacketsSent, []StreamValue{{"1", 20}, {"2", 5}})
		assert.False(t, ok)

		d, ok := s.AggregateDelta(PacketsSent, []StreamValue{{"1", 30}, {"2", 10}})
		require.True(t, ok)
		assert.Equal(t, int64(15), d)
	})

	t.Run("no streams", func(t *testing.T) {
		s := NewCounterState()
		_, ok := s.AggregateDelta(PacketsSent, nil)
		assert.False(t, ok)
	})
}

func TestRatio(t *testing.T) {
	r, ok := Ratio(12, 480)
	require.True(t, ok)
	assert.Equal(t, 0.025, r)

	_, ok = Ratio(1, 0)
	assert.False(t, ok)
}

func TestQoSAccumulator(t *testing.T) {
	var a QoSAccumulator
	a.AddSnapshot(true)
	a.AddSnapshot(false)
	a.AddRTT(20)
	a.AddRTT(40)
	a.AddRelay(false)
	a.AddRelay(true)
	a.AddOutbound(1000, 10)
	a.AddInbound(990, 10)
	a.AddSamples(48000, 480)

	m := a.Result()
	assert.Equal(t, 2, m.Snapshots)
	assert.Equal(t, 1, m.Extractable)
	assert.Equal(t, 30.0, m.MeanRTT)
	assert.Equal(t, 40.0, m.MaxRTT)
	assert.True(t, m.UsedRelay)
	assert.Equal(t, 1.0, m.OutboundLossPct)
	assert.Equal(t, 1.0, m.InboundLossPct)
	assert.Equal(t, 1.0, m.ConcealedPct)
}
