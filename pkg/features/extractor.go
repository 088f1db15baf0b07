package features

import (
	"github.com/luongdev/rtcfeatures/pkg/calculator"
	"github.com/luongdev/rtcfeatures/pkg/stats"
)

// Extractor turns one connection's snapshot sequence into feature records.
// It keeps the counter state of that connection and must not be shared between
// connections or goroutines.
type Extractor struct {
	hint     stats.Format
	last     stats.Format
	wanted   map[Feature]bool
	counters *calculator.CounterState
	next     int
}

// Option configures an Extractor
type Option func(*Extractor)

// WithFormatHint declares the expected format. A hint the snapshots contradict is ignored.
func WithFormatHint(f stats.Format) Option {
	return func(e *Extractor) {
		e.hint = f
	}
}

// WithFeatures restricts extraction to the given features. Unrequested features
// stay absent and their reports are not located.
func WithFeatures(fs ...Feature) Option {
	return func(e *Extractor) {
		if len(fs) == 0 {
			return
		}
		e.wanted = make(map[Feature]bool, len(fs))
		for _, f := range fs {
			e.wanted[f] = true
		}
	}
}

// WithCounterState uses a caller-owned counter state
func WithCounterState(cs *calculator.CounterState) Option {
	return func(e *Extractor) {
		if cs != nil {
			e.counters = cs
		}
	}
}

// NewExtractor creates an extractor for one connection
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		wanted:   make(map[Feature]bool, len(AllFeatures)),
		counters: calculator.NewCounterState(),
	}
	for _, f := range AllFeatures {
		e.wanted[f] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract processes snapshots in order and returns exactly one record per snapshot.
// Nil or empty snapshots produce records marked unextractable; only an empty
// sequence is an error.
func Extract(snapshots []*stats.Snapshot, opts ...Option) ([]FeatureRecord, error) {
	return NewExtractor(opts...).Extract(snapshots)
}

// Extract processes snapshots in order and returns exactly one record per snapshot
func (e *Extractor) Extract(snapshots []*stats.Snapshot) ([]FeatureRecord, error) {
	if len(snapshots) == 0 {
		return nil, ErrInvalidInput
	}
	records := make([]FeatureRecord, 0, len(snapshots))
	for _, s := range snapshots {
		records = append(records, e.Process(s))
	}
	return records, nil
}

// Counters returns the extractor's counter state
func (e *Extractor) Counters() *calculator.CounterState {
	return e.counters
}

// Process extracts the record of the next snapshot in the sequence
func (e *Extractor) Process(s *stats.Snapshot) FeatureRecord {
	rec := FeatureRecord{Index: e.next}
	e.next++

	if s.Len() == 0 {
		rec.Error = ErrMalformedSnapshot.Error()
		if s != nil {
			rec.Timestamp = s.Timestamp
		}
		return rec
	}
	rec.Timestamp = s.Timestamp

	// The generic format is never reused as a hint: it is consistent with every
	// standard snapshot and would hide vendor markers that show up later.
	hint := e.hint
	if hint == stats.FormatUnknown && e.last != stats.FormatStandard {
		hint = e.last
	}
	rec.Format = stats.Detect(s, hint)
	loc := stats.LocatorFor(rec.Format)
	if loc == nil {
		rec.Error = ErrUnknownFormat.Error()
		return rec
	}
	e.last = rec.Format

	if e.wanted[FeatureRTT] || e.wanted[FeatureRelay] {
		pairs := loc.Locate(s, stats.RoleSelectedCandidatePair)
		if e.wanted[FeatureRTT] {
			rec.RTT = ExtractRTT(s, loc, pairs)
		}
		if e.wanted[FeatureRelay] {
			rec.IsUsingRelay = ExtractRelay(s, loc, pairs)
		}
	}

	if e.wanted[FeatureOutboundPacketLoss] {
		outbound := loc.Locate(s, stats.RoleOutboundRTP)
		if t, ok := ExtractOutboundPackets(s, loc, outbound).Get(); ok {
			rec.OutboundPacketLoss = Some(e.packetsSummary(t, calculator.PacketsSent, calculator.PacketsLostOutbound, false))
		}
	}

	var video, audio []stats.Report
	if e.wanted[FeatureInboundPacketLoss] || e.wanted[FeatureInboundVideoSummary] {
		video = loc.Locate(s, stats.RoleInboundRTPVideo)
	}
	if e.wanted[FeatureInboundPacketLoss] || e.wanted[FeatureConcealedSamples] {
		audio = loc.Locate(s, stats.RoleInboundRTPAudio)
	}

	if e.wanted[FeatureInboundPacketLoss] {
		inbound := append(append([]stats.Report{}, video...), audio...)
		if t, ok := ExtractInboundPackets(s, loc, inbound).Get(); ok {
			rec.InboundPacketLoss = Some(e.packetsSummary(t, calculator.PacketsReceived, calculator.PacketsLostInbound, true))
		}
	}

	if e.wanted[FeatureInboundVideoSummary] {
		if t, ok := ExtractInboundVideo(s, loc, video).Get(); ok {
			summary := t.Summary()
			if d, known := e.counters.AggregateDelta(calculator.FramesDecoded, t.decodedValues()); known {
				summary.IntervalFramesDecoded = Some(d)
			}
			rec.InboundVideoSummary = Some(summary)
		}
	}

	if e.wanted[FeatureConcealedSamples] {
		if t, ok := ExtractConcealedSamples(s, loc, audio).Get(); ok {
			rec.ConcealedSamplesReceived = Some(e.samplesSummary(t))
		}
	}

	return rec
}

// packetsSummary adds interval deltas to the totals. Inbound loss is relative to
// expected packets (received + lost); outbound loss is relative to packets sent.
func (e *Extractor) packetsSummary(t PacketTotals, packetsKind, lostKind calculator.CounterKind, inbound bool) PacketsSummary {
	s := t.Summary()

	packets, packetsKnown := e.counters.AggregateDelta(packetsKind, t.packetValues())
	if packetsKnown {
		s.IntervalPackets = Some(packets)
	}

	lost, lostKnown := e.counters.AggregateDelta(lostKind, t.lostValues())
	if lostKnown {
		s.IntervalPacketsLost = Some(lost)
	}

	if packetsKnown && lostKnown {
		base := packets
		if inbound {
			base += lost
		}
		if r, ok := calculator.Ratio(lost, base); ok {
			s.IntervalLossRatio = Some(r)
		}
	}
	return s
}

func (e *Extractor) samplesSummary(t SampleTotals) ConcealedSamplesSummary {
	s := t.Summary()
	received, concealed := t.values()

	rd, receivedKnown := e.counters.AggregateDelta(calculator.TotalSamplesReceived, received)
	if receivedKnown {
		s.IntervalSamplesReceived = Some(rd)
	}
	cd, concealedKnown := e.counters.AggregateDelta(calculator.ConcealedSamples, concealed)
	if concealedKnown {
		s.IntervalConcealedSamples = Some(cd)
	}
	if receivedKnown && concealedKnown {
		if r, ok := calculator.Ratio(cd, rd); ok {
			s.IntervalConcealedRatio = Some(r)
		}
	}
	return s
}
