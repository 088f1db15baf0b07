package calculator

// CounterKind names a cumulative counter
type CounterKind string

const (
	PacketsSent          CounterKind = "packetsSent"
	PacketsLostOutbound  CounterKind = "packetsLostOutbound"
	PacketsReceived      CounterKind = "packetsReceived"
	PacketsLostInbound   CounterKind = "packetsLostInbound"
	FramesDecoded        CounterKind = "framesDecoded"
	TotalSamplesReceived CounterKind = "totalSamplesReceived"
	ConcealedSamples     CounterKind = "concealedSamples"
)

// CounterKey identifies one counter of one stream
type CounterKey struct {
	Stream string
	Kind   CounterKind
}

// CounterState remembers the last cumulative value seen per counter key.
// It belongs to a single connection's snapshot sequence and is not safe for
// concurrent use; independent connections each own one.
type CounterState struct {
	last      map[CounterKey]int64
	rollbacks int
}

// NewCounterState creates an empty counter state
func NewCounterState() *CounterState {
	return &CounterState{last: make(map[CounterKey]int64)}
}

// Delta stores value as the latest cumulative value for key and returns the
// increase since the previous observation. The first observation of a key and
// any decrease yield no delta; a decrease reseeds the key to the lower value.
func (s *CounterState) Delta(key CounterKey, value int64) (int64, bool) {
	prev, seen := s.last[key]
	s.last[key] = value
	if !seen {
		return 0, false
	}
	if value < prev {
		s.rollbacks++
		return 0, false
	}
	return value - prev, true
}

// AggregateDelta applies Delta to every stream's value of one counter kind and
// returns the summed delta. Every stream is updated even when one fails; the sum
// is reported only if there is at least one stream and all deltas are known.
func (s *CounterState) AggregateDelta(kind CounterKind, values []StreamValue) (int64, bool) {
	var total int64
	ok := len(values) > 0
	for _, v := range values {
		d, known := s.Delta(CounterKey{Stream: v.Stream, Kind: kind}, v.Value)
		if !known {
			ok = false
			continue
		}
		total += d
	}
	if !ok {
		return 0, false
	}
	return total, true
}

// Last returns the stored value for key
func (s *CounterState) Last(key CounterKey) (int64, bool) {
	v, ok := s.last[key]
	return v, ok
}

// Rollbacks returns how many decreases have been seen
func (s *CounterState) Rollbacks() int {
	return s.rollbacks
}

// StreamValue is one stream's cumulative value of a counter
type StreamValue struct {
	Stream string
	Value  int64
}

// Ratio returns part/whole, or false when whole is not positive
func Ratio(part, whole int64) (float64, bool) {
	if whole <= 0 {
		return 0, false
	}
	return float64(part) / float64(whole), true
}
