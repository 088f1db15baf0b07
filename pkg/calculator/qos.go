package calculator

import "math"

// QoSMetrics represents call-level quality figures for one peer connection.
// Packet totals are sums of interval deltas, so counter resets do not inflate them.
type QoSMetrics struct {
	Snapshots   int `json:"snapshots"`
	Extractable int `json:"extractable"`

	// Round-trip time in milliseconds
	RTTSamples int     `json:"rttSamples"`
	MeanRTT    float64 `json:"meanRtt"`
	MaxRTT     float64 `json:"maxRtt"`

	UsedRelay bool `json:"usedRelay"`

	// Traffic
	PacketsSent         int64   `json:"packetsSent"`
	PacketsLostOutbound int64   `json:"packetsLostOutbound"`
	OutboundLossPct     float64 `json:"outboundLossPct"`
	PacketsReceived     int64   `json:"packetsReceived"`
	PacketsLostInbound  int64   `json:"packetsLostInbound"`
	InboundLossPct      float64 `json:"inboundLossPct"`

	// Audio
	SamplesReceived  int64   `json:"samplesReceived"`
	SamplesConcealed int64   `json:"samplesConcealed"`
	ConcealedPct     float64 `json:"concealedPct"`
}

// QoSAccumulator folds per-interval values into QoSMetrics
type QoSAccumulator struct {
	m      QoSMetrics
	rttSum float64
}

// AddSnapshot counts one processed snapshot
func (a *QoSAccumulator) AddSnapshot(extractable bool) {
	a.m.Snapshots++
	if extractable {
		a.m.Extractable++
	}
}

// AddRTT records one round-trip time sample in milliseconds
func (a *QoSAccumulator) AddRTT(ms float64) {
	a.m.RTTSamples++
	a.rttSum += ms
	a.m.MaxRTT = math.Max(a.m.MaxRTT, ms)
}

// AddRelay records whether the selected pair went through a relay
func (a *QoSAccumulator) AddRelay(relay bool) {
	a.m.UsedRelay = a.m.UsedRelay || relay
}

// AddOutbound records one interval of sent and remotely lost packets
func (a *QoSAccumulator) AddOutbound(sent, lost int64) {
	a.m.PacketsSent += sent
	a.m.PacketsLostOutbound += lost
}

// AddInbound records one interval of received and lost packets
func (a *QoSAccumulator) AddInbound(received, lost int64) {
	a.m.PacketsReceived += received
	a.m.PacketsLostInbound += lost
}

// AddSamples records one interval of received and concealed audio samples
func (a *QoSAccumulator) AddSamples(received, concealed int64) {
	a.m.SamplesReceived += received
	a.m.SamplesConcealed += concealed
}

// Result returns the accumulated metrics
func (a *QoSAccumulator) Result() QoSMetrics {
	m := a.m
	if m.RTTSamples > 0 {
		m.MeanRTT = round(a.rttSum/float64(m.RTTSamples), 3)
	}
	if r, ok := Ratio(m.PacketsLostOutbound, m.PacketsSent); ok {
		m.OutboundLossPct = round(r*100, 3)
	}
	if r, ok := Ratio(m.PacketsLostInbound, m.PacketsReceived+m.PacketsLostInbound); ok {
		m.InboundLossPct = round(r*100, 3)
	}
	if r, ok := Ratio(m.SamplesConcealed, m.SamplesReceived); ok {
		m.ConcealedPct = round(r*100, 3)
	}
	return m
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
