package features

import (
	"github.com/pion/webrtc/v4"

	"github.com/luongdev/rtcfeatures/pkg/calculator"
	"github.com/luongdev/rtcfeatures/pkg/stats"
)

// The extractors below are pure: they read one snapshot and the reports the
// locator selected for it, and never look at earlier snapshots.

// StreamPackets is one stream's cumulative packet counters
type StreamPackets struct {
	Stream  string
	Packets int64
	Lost    int64
	HasLost bool
}

// PacketTotals are the cumulative packet counters of every located stream
type PacketTotals struct {
	Streams []StreamPackets
}

// Summary returns the totals without interval values
func (t PacketTotals) Summary() PacketsSummary {
	s := PacketsSummary{Streams: len(t.Streams)}
	var lost int64
	hasLost := false
	for _, st := range t.Streams {
		s.TotalPackets += st.Packets
		if st.HasLost {
			lost += st.Lost
			hasLost = true
		}
	}
	if hasLost {
		s.PacketsLost = Some(lost)
	}
	return s
}

func (t PacketTotals) packetValues() []calculator.StreamValue {
	out := make([]calculator.StreamValue, 0, len(t.Streams))
	for _, st := range t.Streams {
		out = append(out, calculator.StreamValue{Stream: st.Stream, Value: st.Packets})
	}
	return out
}

func (t PacketTotals) lostValues() []calculator.StreamValue {
	var out []calculator.StreamValue
	for _, st := range t.Streams {
		if st.HasLost {
			out = append(out, calculator.StreamValue{Stream: st.Stream, Value: st.Lost})
		}
	}
	return out
}

// VideoLayerStats is one received video layer
type VideoLayerStats struct {
	Stream string
	stats.VideoLayer
}

// VideoTotals are the decoded-video counters of every received layer
type VideoTotals struct {
	Layers []VideoLayerStats
}

// Summary combines the layers: display dimensions and frame rate come from the
// highest-resolution active layer, frame counts are summed.
func (t VideoTotals) Summary() VideoSummary {
	s := VideoSummary{Layers: len(t.Layers)}
	var bestArea int64
	for _, l := range t.Layers {
		s.FramesDecoded += l.FramesDecoded
		s.FramesDropped += l.FramesDropped

		area := l.Width * l.Height
		if area <= 0 {
			continue
		}
		s.ActiveLayers++
		if area > bestArea {
			bestArea = area
			s.FrameWidth, s.FrameHeight = l.Width, l.Height
			s.FramesPerSecond = None[float64]()
			if l.HasFPS {
				s.FramesPerSecond = Some(l.FramesPerSecond)
			}
		}
	}
	return s
}

func (t VideoTotals) decodedValues() []calculator.StreamValue {
	out := make([]calculator.StreamValue, 0, len(t.Layers))
	for _, l := range t.Layers {
		out = append(out, calculator.StreamValue{Stream: l.Stream, Value: l.FramesDecoded})
	}
	return out
}

// StreamSamples is one audio stream's cumulative sample counters
type StreamSamples struct {
	Stream string
	stats.SampleCounts
}

// SampleTotals are the sample counters of every received audio stream
type SampleTotals struct {
	Streams []StreamSamples
}

// Summary returns the totals without interval values
func (t SampleTotals) Summary() ConcealedSamplesSummary {
	var s ConcealedSamplesSummary
	for _, st := range t.Streams {
		s.TotalSamplesReceived += st.Received
		s.ConcealedSamples += st.Concealed
	}
	return s
}

func (t SampleTotals) values() (received, concealed []calculator.StreamValue) {
	for _, st := range t.Streams {
		received = append(received, calculator.StreamValue{Stream: st.Stream, Value: st.Received})
		concealed = append(concealed, calculator.StreamValue{Stream: st.Stream, Value: st.Concealed})
	}
	return received, concealed
}

// ExtractRTT returns the selected candidate pair's round-trip time in milliseconds
func ExtractRTT(s *stats.Snapshot, loc stats.Locator, pairs []stats.Report) Optional[float64] {
	if loc == nil || len(pairs) == 0 {
		return None[float64]()
	}
	if ms, ok := loc.RoundTripTime(s, pairs[0]); ok {
		return Some(ms)
	}
	return None[float64]()
}

// ExtractRelay reports whether either end of the selected candidate pair is a relay
// candidate. It is absent without a selected pair or when neither candidate type is known.
func ExtractRelay(s *stats.Snapshot, loc stats.Locator, pairs []stats.Report) Optional[bool] {
	if loc == nil || len(pairs) == 0 {
		return None[bool]()
	}
	local, remote := loc.CandidateTypes(s, pairs[0])
	if local == "" && remote == "" {
		return None[bool]()
	}
	return Some(isRelay(local) || isRelay(remote))
}

func isRelay(candidateType string) bool {
	return candidateType == webrtc.ICECandidateTypeRelay.String() || candidateType == "relayed"
}

// ExtractOutboundPackets sums packets sent, and lost as reported back by the remote
// peer, over every outbound stream
func ExtractOutboundPackets(s *stats.Snapshot, loc stats.Locator, outbound []stats.Report) Optional[PacketTotals] {
	if loc == nil {
		return None[PacketTotals]()
	}
	return packetTotals(outbound, loc.StreamID, func(r stats.Report) (stats.PacketCounts, bool) {
		return loc.OutboundPackets(s, r)
	})
}

// ExtractInboundPackets sums packets received and lost over every inbound stream
func ExtractInboundPackets(s *stats.Snapshot, loc stats.Locator, inbound []stats.Report) Optional[PacketTotals] {
	if loc == nil {
		return None[PacketTotals]()
	}
	return packetTotals(inbound, loc.StreamID, func(r stats.Report) (stats.PacketCounts, bool) {
		return loc.InboundPackets(s, r)
	})
}

func packetTotals(reports []stats.Report, id func(stats.Report) string, read func(stats.Report) (stats.PacketCounts, bool)) Optional[PacketTotals] {
	var t PacketTotals
	for _, r := range reports {
		pc, ok := read(r)
		if !ok {
			continue
		}
		t.Streams = append(t.Streams, StreamPackets{
			Stream:  id(r),
			Packets: pc.Packets,
			Lost:    pc.Lost,
			HasLost: pc.HasLost,
		})
	}
	if len(t.Streams) == 0 {
		return None[PacketTotals]()
	}
	return Some(t)
}

// ExtractInboundVideo collects every received video layer
func ExtractInboundVideo(s *stats.Snapshot, loc stats.Locator, video []stats.Report) Optional[VideoTotals] {
	if loc == nil {
		return None[VideoTotals]()
	}
	var t VideoTotals
	for _, r := range video {
		layer, ok := loc.VideoLayer(s, r)
		if !ok {
			continue
		}
		t.Layers = append(t.Layers, VideoLayerStats{Stream: loc.StreamID(r), VideoLayer: layer})
	}
	if len(t.Layers) == 0 {
		return None[VideoTotals]()
	}
	return Some(t)
}

// ExtractConcealedSamples collects received and concealed sample counters of every
// audio stream. The ratio is left to the caller, which has the interval context.
func ExtractConcealedSamples(s *stats.Snapshot, loc stats.Locator, audio []stats.Report) Optional[SampleTotals] {
	if loc == nil {
		return None[SampleTotals]()
	}
	var t SampleTotals
	for _, r := range audio {
		counts, ok := loc.AudioSamples(s, r)
		if !ok {
			continue
		}
		t.Streams = append(t.Streams, StreamSamples{Stream: loc.StreamID(r), SampleCounts: counts})
	}
	if len(t.Streams) == 0 {
		return None[SampleTotals]()
	}
	return Some(t)
}
