package features

import (
	"fmt"
	"strings"

	"github.com/luongdev/rtcfeatures/pkg/stats"
)

// Feature names one output feature
type Feature string

const (
	FeatureRTT                 Feature = "rtt"
	FeatureRelay               Feature = "isUsingRelay"
	FeatureOutboundPacketLoss  Feature = "outboundPacketLoss"
	FeatureInboundPacketLoss   Feature = "inboundPacketLoss"
	FeatureInboundVideoSummary Feature = "inboundVideoSummary"
	FeatureConcealedSamples    Feature = "concealedSamplesReceived"
)

// AllFeatures lists every feature in output order
var AllFeatures = []Feature{
	FeatureRTT,
	FeatureRelay,
	FeatureOutboundPacketLoss,
	FeatureInboundPacketLoss,
	FeatureInboundVideoSummary,
	FeatureConcealedSamples,
}

// ParseFeatures converts feature names; case is ignored
func ParseFeatures(names []string) ([]Feature, error) {
	out := make([]Feature, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		found := false
		for _, f := range AllFeatures {
			if strings.EqualFold(string(f), name) {
				out = append(out, f)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown feature %q", name)
		}
	}
	return out, nil
}

// FeatureRecord is the extraction result for one snapshot
type FeatureRecord struct {
	Index     int          `json:"index"`
	Timestamp int64        `json:"timestamp"`
	Format    stats.Format `json:"format"`
	Error     string       `json:"error,omitempty"`

	RTT                      Optional[float64]                 `json:"rtt"`
	IsUsingRelay             Optional[bool]                    `json:"isUsingRelay"`
	OutboundPacketLoss       Optional[PacketsSummary]          `json:"outboundPacketLoss"`
	InboundPacketLoss        Optional[PacketsSummary]          `json:"inboundPacketLoss"`
	InboundVideoSummary      Optional[VideoSummary]            `json:"inboundVideoSummary"`
	ConcealedSamplesReceived Optional[ConcealedSamplesSummary] `json:"concealedSamplesReceived"`
}

// Err returns the sentinel error marking an unextractable record, or nil
func (r FeatureRecord) Err() error {
	if r.Error == "" {
		return nil
	}
	if err, ok := recordErrors[r.Error]; ok {
		return err
	}
	return fmt.Errorf("%s", r.Error)
}

// Extractable reports whether the snapshot could be processed
func (r FeatureRecord) Extractable() bool {
	return r.Error == ""
}

// PacketsSummary describes the packet counters of one direction, summed over streams
type PacketsSummary struct {
	TotalPackets        int64             `json:"totalPackets"`
	PacketsLost         Optional[int64]   `json:"packetsLost"`
	IntervalPackets     Optional[int64]   `json:"intervalPackets"`
	IntervalPacketsLost Optional[int64]   `json:"intervalPacketsLost"`
	IntervalLossRatio   Optional[float64] `json:"intervalLossRatio"`
	Streams             int               `json:"streams"`
}

// VideoSummary describes received video across every layer
type VideoSummary struct {
	FrameWidth            int64             `json:"frameWidth"`
	FrameHeight           int64             `json:"frameHeight"`
	FramesPerSecond       Optional[float64] `json:"framesPerSecond"`
	FramesDecoded         int64             `json:"framesDecoded"`
	FramesDropped         int64             `json:"framesDropped"`
	IntervalFramesDecoded Optional[int64]   `json:"intervalFramesDecoded"`
	Layers                int               `json:"layers"`
	ActiveLayers          int               `json:"activeLayers"`
}

// ConcealedSamplesSummary describes received audio samples, summed over streams
type ConcealedSamplesSummary struct {
	TotalSamplesReceived     int64             `json:"totalSamplesReceived"`
	ConcealedSamples         int64             `json:"concealedSamples"`
	IntervalSamplesReceived  Optional[int64]   `json:"intervalSamplesReceived"`
	IntervalConcealedSamples Optional[int64]   `json:"intervalConcealedSamples"`
	IntervalConcealedRatio   Optional[float64] `json:"intervalConcealedRatio"`
}
