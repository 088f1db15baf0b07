package features

import "github.com/luongdev/rtcfeatures/pkg/calculator"

// Summarize folds a connection's records into call-level quality figures.
// Only interval values contribute to packet and sample totals. An interval whose
// loss or concealment is reported but unknown is left out entirely, so it cannot
// dilute the percentages.
func Summarize(records []FeatureRecord) calculator.QoSMetrics {
	var acc calculator.QoSAccumulator
	for _, r := range records {
		acc.AddSnapshot(r.Extractable())

		if rtt, ok := r.RTT.Get(); ok {
			acc.AddRTT(rtt)
		}
		if relay, ok := r.IsUsingRelay.Get(); ok {
			acc.AddRelay(relay)
		}
		if out, ok := r.OutboundPacketLoss.Get(); ok {
			if sent, lost, known := intervalLoss(out); known {
				acc.AddOutbound(sent, lost)
			}
		}
		if in, ok := r.InboundPacketLoss.Get(); ok {
			if received, lost, known := intervalLoss(in); known {
				acc.AddInbound(received, lost)
			}
		}
		if cs, ok := r.ConcealedSamplesReceived.Get(); ok {
			received, known := cs.IntervalSamplesReceived.Get()
			concealed, counted := cs.IntervalConcealedSamples.Get()
			if known && counted {
				acc.AddSamples(received, concealed)
			}
		}
	}
	return acc.Result()
}

// intervalLoss returns an interval's packets and lost packets. Streams that never
// report loss count as lossless; a reported loss counter without an interval value
// makes the whole interval unknown.
func intervalLoss(p PacketsSummary) (packets, lost int64, ok bool) {
	packets, ok = p.IntervalPackets.Get()
	if !ok {
		return 0, 0, false
	}
	if lost, ok = p.IntervalPacketsLost.Get(); ok {
		return packets, lost, true
	}
	if p.PacketsLost.Present() {
		return 0, 0, false
	}
	return packets, 0, true
}
