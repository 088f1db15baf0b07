package stats

import (
	"math"
	"sort"
	"strconv"

	"github.com/pion/webrtc/v4"
)

// Role is a logical report category requested from a Locator
type Role int

const (
	// RoleSelectedCandidatePair is the candidate pair carrying media, at most one
	RoleSelectedCandidatePair Role = iota
	// RoleInboundRTPVideo is every received video stream or layer
	RoleInboundRTPVideo
	// RoleInboundRTPAudio is every received audio stream
	RoleInboundRTPAudio
	// RoleOutboundRTP is every sent stream, one per simulcast layer
	RoleOutboundRTP
	// RoleRemoteInboundRTP is the remote peer's view of our outbound streams
	RoleRemoteInboundRTP
)

// String returns the string representation of the role
func (r Role) String() string {
	switch r {
	case RoleSelectedCandidatePair:
		return "selected_candidate_pair"
	case RoleInboundRTPVideo:
		return "inbound_rtp_video"
	case RoleInboundRTPAudio:
		return "inbound_rtp_audio"
	case RoleOutboundRTP:
		return "outbound_rtp"
	case RoleRemoteInboundRTP:
		return "remote_inbound_rtp"
	default:
		return "unknown"
	}
}

// PacketCounts are the cumulative packet counters of one stream
type PacketCounts struct {
	Packets int64
	Lost    int64
	HasLost bool
}

// VideoLayer is the decoded state of one received video stream
type VideoLayer struct {
	Width           int64
	Height          int64
	FramesPerSecond float64
	HasFPS          bool
	FramesDecoded   int64
	FramesDropped   int64
}

// SampleCounts are the cumulative audio sample counters of one stream
type SampleCounts struct {
	Received  int64
	Concealed int64
}

// Locator finds reports by role and reads raw statistics off them.
// Each Format has its own implementation; all vendor field names live behind it.
type Locator interface {
	// Format returns the format this locator understands
	Format() Format

	// Locate returns the reports filling role, possibly none. Multi-valued roles are
	// ordered by SSRC ascending, then by report id.
	Locate(s *Snapshot, role Role) []Report

	// StreamID returns a stable identifier for a stream report
	StreamID(r Report) string

	// RoundTripTime returns the selected pair's round-trip time in milliseconds
	RoundTripTime(s *Snapshot, pair Report) (float64, bool)

	// CandidateTypes returns the local and remote candidate types of a pair
	CandidateTypes(s *Snapshot, pair Report) (local, remote string)

	// OutboundPackets returns packets sent and, when reported back, packets lost
	OutboundPackets(s *Snapshot, r Report) (PacketCounts, bool)

	// InboundPackets returns packets received and lost
	InboundPackets(s *Snapshot, r Report) (PacketCounts, bool)

	// VideoLayer returns resolution, frame rate and frame counters
	VideoLayer(s *Snapshot, r Report) (VideoLayer, bool)

	// AudioSamples returns received and concealed sample counters
	AudioSamples(s *Snapshot, r Report) (SampleCounts, bool)
}

// LocatorFor returns the locator for a format, or nil for FormatUnknown
func LocatorFor(f Format) Locator {
	switch f {
	case FormatChromeLegacy:
		return legacyLocator{}
	case FormatStandard:
		return standardLocator{}
	case FormatChromeStandard:
		return chromeLocator{}
	case FormatFirefox:
		return firefoxLocator{}
	case FormatSafari:
		return safariLocator{}
	default:
		return nil
	}
}

// Locate is a shorthand for LocatorFor(f).Locate(s, role)
func Locate(s *Snapshot, f Format, role Role) []Report {
	l := LocatorFor(f)
	if l == nil {
		return nil
	}
	return l.Locate(s, role)
}

// selectPair applies the selected-pair tie-break: marked pairs first, then
// fallback pairs, then any pair that has not failed, so a lone pair still being
// checked is used. Among several candidates the most recently updated one wins;
// on a tie, none.
func selectPair(pairs []Report, marked, fallback func(Report) bool) []Report {
	for _, tier := range []func(Report) bool{marked, fallback, notFailed} {
		var picked []Report
		for _, p := range pairs {
			if tier(p) {
				picked = append(picked, p)
			}
		}
		if len(picked) == 0 {
			continue
		}
		if best, ok := mostRecent(picked); ok {
			return []Report{best}
		}
		return nil
	}
	return nil
}

func mostRecent(rs []Report) (Report, bool) {
	if len(rs) == 0 {
		return Report{}, false
	}
	if len(rs) == 1 {
		return rs[0], true
	}

	best, bestAt, tie := 0, recency(rs[0]), false
	for i := 1; i < len(rs); i++ {
		at := recency(rs[i])
		switch {
		case at > bestAt:
			best, bestAt, tie = i, at, false
		case at == bestAt:
			tie = true
		}
	}
	if tie {
		return Report{}, false
	}
	return rs[best], true
}

func recency(r Report) float64 {
	latest := math.Inf(-1)
	for _, name := range []string{"lastPacketReceivedTimestamp", "lastPacketSentTimestamp", "timestamp"} {
		if v, ok := r.Float(name); ok && v > latest {
			latest = v
		}
	}
	return latest
}

func ssrcOf(r Report) (int64, bool) {
	return r.Int("ssrc")
}

// sortStreams orders stream reports by SSRC, reports without one last, then by id
func sortStreams(rs []Report) []Report {
	sort.SliceStable(rs, func(i, j int) bool {
		a, aok := ssrcOf(rs[i])
		b, bok := ssrcOf(rs[j])
		switch {
		case aok && bok && a != b:
			return a < b
		case aok != bok:
			return aok
		default:
			return rs[i].ID < rs[j].ID
		}
	})
	return rs
}

func streamID(r Report) string {
	if ssrc, ok := ssrcOf(r); ok {
		return strconv.FormatInt(ssrc, 10)
	}
	return r.ID
}

func secondsToMillis(sec float64) float64 {
	return math.Round(sec*1e6) / 1e3
}

// firstFloat returns the first member found across reports and names
func firstFloat(rs []Report, names ...string) (float64, bool) {
	for _, r := range rs {
		if r.ID == "" {
			continue
		}
		for _, name := range names {
			if v, ok := r.Float(name); ok {
				return v, true
			}
		}
	}
	return 0, false
}

func firstInt(rs []Report, names ...string) (int64, bool) {
	for _, r := range rs {
		if r.ID == "" {
			continue
		}
		for _, name := range names {
			if v, ok := r.Int(name); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// standardLocator reads the W3C webrtc-stats report shape
type standardLocator struct{}

func (standardLocator) Format() Format { return FormatStandard }

func (l standardLocator) Locate(s *Snapshot, role Role) []Report {
	if role == RoleSelectedCandidatePair {
		return selectPair(s.ReportsOfType(string(webrtc.StatsTypeCandidatePair)), nominatedSucceeded, succeeded)
	}
	return l.streams(s, role)
}

func (standardLocator) streams(s *Snapshot, role Role) []Report {
	var out []Report
	switch role {
	case RoleInboundRTPVideo, RoleInboundRTPAudio:
		want := "video"
		if role == RoleInboundRTPAudio {
			want = "audio"
		}
		for _, r := range s.ReportsOfType(string(webrtc.StatsTypeInboundRTP)) {
			if !r.flag("isRemote") && mediaKind(r) == want {
				out = append(out, r)
			}
		}
	case RoleOutboundRTP:
		for _, r := range s.ReportsOfType(string(webrtc.StatsTypeOutboundRTP)) {
			if !r.flag("isRemote") {
				out = append(out, r)
			}
		}
	case RoleRemoteInboundRTP:
		for _, r := range s.ReportsOfType(string(webrtc.StatsTypeRemoteInboundRTP), string(webrtc.StatsTypeInboundRTP)) {
			if r.Type() == string(webrtc.StatsTypeRemoteInboundRTP) || r.flag("isRemote") {
				out = append(out, r)
			}
		}
	default:
		return nil
	}
	return sortStreams(out)
}

func mediaKind(r Report) string {
	if k, ok := r.Str("kind"); ok && k != "" {
		return k
	}
	k, _ := r.Str("mediaType")
	return k
}

func succeeded(p Report) bool {
	state, _ := p.Str("state")
	return state == string(webrtc.StatsICECandidatePairStateSucceeded)
}

func notFailed(p Report) bool {
	state, _ := p.Str("state")
	return state != string(webrtc.StatsICECandidatePairStateFailed)
}

func nominatedSucceeded(p Report) bool {
	return p.flag("nominated") && succeeded(p)
}

func (standardLocator) StreamID(r Report) string { return streamID(r) }

func (standardLocator) RoundTripTime(_ *Snapshot, pair Report) (float64, bool) {
	sec, ok := pair.Float("currentRoundTripTime")
	if !ok {
		return 0, false
	}
	return secondsToMillis(sec), true
}

func (standardLocator) CandidateTypes(s *Snapshot, pair Report) (string, string) {
	var local, remote string
	if id, ok := pair.Str("localCandidateId"); ok {
		if c, found := s.Report(id); found {
			local, _ = c.Str("candidateType")
		}
	}
	if id, ok := pair.Str("remoteCandidateId"); ok {
		if c, found := s.Report(id); found {
			remote, _ = c.Str("candidateType")
		}
	}
	return local, remote
}

func (l standardLocator) OutboundPackets(s *Snapshot, r Report) (PacketCounts, bool) {
	sent, ok := r.Int("packetsSent")
	if !ok {
		return PacketCounts{}, false
	}
	pc := PacketCounts{Packets: sent}
	if remote, found := l.remoteFor(s, r); found {
		pc.Lost, pc.HasLost = remote.Int("packetsLost")
	}
	return pc, true
}

// remoteFor finds the remote-inbound report describing an outbound stream
func (l standardLocator) remoteFor(s *Snapshot, out Report) (Report, bool) {
	if id, ok := out.Str("remoteId"); ok {
		if r, found := s.Report(id); found {
			return r, true
		}
	}
	ssrc, hasSSRC := ssrcOf(out)
	for _, r := range l.streams(s, RoleRemoteInboundRTP) {
		if localID, ok := r.Str("localId"); ok && localID == out.ID {
			return r, true
		}
		if other, ok := ssrcOf(r); hasSSRC && ok && other == ssrc {
			return r, true
		}
	}
	return Report{}, false
}

func (standardLocator) InboundPackets(_ *Snapshot, r Report) (PacketCounts, bool) {
	received, ok := r.Int("packetsReceived")
	if !ok {
		return PacketCounts{}, false
	}
	pc := PacketCounts{Packets: received}
	pc.Lost, pc.HasLost = r.Int("packetsLost")
	return pc, true
}

// withTrack returns the report followed by the deprecated track report it points to
func withTrack(s *Snapshot, r Report) []Report {
	rs := []Report{r}
	if id, ok := r.Str("trackId"); ok {
		if t, found := s.Report(id); found {
			rs = append(rs, t)
		}
	}
	return rs
}

func (standardLocator) VideoLayer(s *Snapshot, r Report) (VideoLayer, bool) {
	rs := withTrack(s, r)
	var v VideoLayer
	v.Width, _ = firstInt(rs, "frameWidth")
	v.Height, _ = firstInt(rs, "frameHeight")
	v.FramesPerSecond, v.HasFPS = firstFloat(rs, "framesPerSecond")
	v.FramesDecoded, _ = firstInt(rs, "framesDecoded")
	v.FramesDropped, _ = firstInt(rs, "framesDropped")
	return v, true
}

func (standardLocator) AudioSamples(s *Snapshot, r Report) (SampleCounts, bool) {
	rs := withTrack(s, r)
	received, ok := firstInt(rs, "totalSamplesReceived")
	if !ok {
		return SampleCounts{}, false
	}
	concealed, _ := firstInt(rs, "concealedSamples")
	return SampleCounts{Received: received, Concealed: concealed}, true
}

// chromeLocator trusts the transport's selectedCandidatePairId pointer
type chromeLocator struct {
	standardLocator
}

func (chromeLocator) Format() Format { return FormatChromeStandard }

func (l chromeLocator) Locate(s *Snapshot, role Role) []Report {
	if role != RoleSelectedCandidatePair {
		return l.standardLocator.Locate(s, role)
	}

	selected := make(map[string]bool)
	for _, t := range s.ReportsOfType(string(webrtc.StatsTypeTransport)) {
		if id, ok := t.Str("selectedCandidatePairId"); ok && id != "" {
			selected[id] = true
		}
	}

	marked := nominatedSucceeded
	if len(selected) > 0 {
		marked = func(p Report) bool { return selected[p.ID] }
	}
	return selectPair(s.ReportsOfType(string(webrtc.StatsTypeCandidatePair)), marked, succeeded)
}

// firefoxLocator handles the "selected" pair flag and RTT carried on remote-inbound-rtp
type firefoxLocator struct {
	standardLocator
}

func (firefoxLocator) Format() Format { return FormatFirefox }

func (l firefoxLocator) Locate(s *Snapshot, role Role) []Report {
	if role != RoleSelectedCandidatePair {
		return l.standardLocator.Locate(s, role)
	}
	selected := func(p Report) bool { return p.flag("selected") }
	return selectPair(s.ReportsOfType(string(webrtc.StatsTypeCandidatePair)), selected, succeeded)
}

func (l firefoxLocator) RoundTripTime(s *Snapshot, pair Report) (float64, bool) {
	if ms, ok := l.standardLocator.RoundTripTime(s, pair); ok {
		return ms, true
	}
	for _, r := range l.streams(s, RoleRemoteInboundRTP) {
		if sec, ok := r.Float("roundTripTime"); ok {
			return secondsToMillis(sec), true
		}
	}
	return 0, false
}

func (l firefoxLocator) VideoLayer(s *Snapshot, r Report) (VideoLayer, bool) {
	v, ok := l.standardLocator.VideoLayer(s, r)
	if ok && !v.HasFPS {
		v.FramesPerSecond, v.HasFPS = r.Float("framerateMean")
	}
	return v, ok
}

// safariLocator accepts nominated pairs that carry no state
type safariLocator struct {
	standardLocator
}

func (safariLocator) Format() Format { return FormatSafari }

func (l safariLocator) Locate(s *Snapshot, role Role) []Report {
	if role != RoleSelectedCandidatePair {
		return l.standardLocator.Locate(s, role)
	}
	nominated := func(p Report) bool {
		if !p.flag("nominated") {
			return false
		}
		state, ok := p.Str("state")
		return !ok || state == string(webrtc.StatsICECandidatePairStateSucceeded)
	}
	return selectPair(s.ReportsOfType(string(webrtc.StatsTypeCandidatePair)), nominated, succeeded)
}

// legacyLocator reads Chrome's callback-based goog* reports, whose values are strings
type legacyLocator struct{}

func (legacyLocator) Format() Format { return FormatChromeLegacy }

func (legacyLocator) Locate(s *Snapshot, role Role) []Report {
	var out []Report
	switch role {
	case RoleSelectedCandidatePair:
		active := func(p Report) bool { return p.flag("googActiveConnection") }
		writable := func(p Report) bool { return p.flag("googWritable") }
		return selectPair(s.ReportsOfType(typeGoogCandidatePair), active, writable)
	case RoleInboundRTPVideo, RoleInboundRTPAudio:
		want := "video"
		if role == RoleInboundRTPAudio {
			want = "audio"
		}
		for _, r := range s.ReportsOfType(typeSSRC) {
			if r.Has("packetsReceived") && mediaKind(r) == want {
				out = append(out, r)
			}
		}
	case RoleOutboundRTP:
		for _, r := range s.ReportsOfType(typeSSRC) {
			if r.Has("packetsSent") {
				out = append(out, r)
			}
		}
	default:
		return nil
	}
	return sortStreams(out)
}

func (legacyLocator) StreamID(r Report) string { return streamID(r) }

func (legacyLocator) RoundTripTime(_ *Snapshot, pair Report) (float64, bool) {
	return pair.Float("googRtt")
}

func (legacyLocator) CandidateTypes(s *Snapshot, pair Report) (string, string) {
	local, _ := pair.Str("googLocalCandidateType")
	remote, _ := pair.Str("googRemoteCandidateType")
	if local == "" {
		if id, ok := pair.Str("localCandidateId"); ok {
			if c, found := s.Report(id); found {
				local, _ = c.Str("candidateType")
			}
		}
	}
	if remote == "" {
		if id, ok := pair.Str("remoteCandidateId"); ok {
			if c, found := s.Report(id); found {
				remote, _ = c.Str("candidateType")
			}
		}
	}
	return local, remote
}

func (legacyLocator) OutboundPackets(_ *Snapshot, r Report) (PacketCounts, bool) {
	sent, ok := r.Int("packetsSent")
	if !ok {
		return PacketCounts{}, false
	}
	pc := PacketCounts{Packets: sent}
	pc.Lost, pc.HasLost = r.Int("packetsLost")
	return pc, true
}

func (legacyLocator) InboundPackets(_ *Snapshot, r Report) (PacketCounts, bool) {
	received, ok := r.Int("packetsReceived")
	if !ok {
		return PacketCounts{}, false
	}
	pc := PacketCounts{Packets: received}
	pc.Lost, pc.HasLost = r.Int("packetsLost")
	return pc, true
}

func (legacyLocator) VideoLayer(_ *Snapshot, r Report) (VideoLayer, bool) {
	rs := []Report{r}
	var v VideoLayer
	v.Width, _ = firstInt(rs, "googFrameWidthReceived")
	v.Height, _ = firstInt(rs, "googFrameHeightReceived")
	v.FramesPerSecond, v.HasFPS = firstFloat(rs, "googFrameRateReceived", "googFrameRateDecoded")
	v.FramesDecoded, _ = firstInt(rs, "framesDecoded")
	return v, true
}

func (legacyLocator) AudioSamples(_ *Snapshot, r Report) (SampleCounts, bool) {
	received, ok := r.Int("totalSamplesReceived")
	if !ok {
		return SampleCounts{}, false
	}
	concealed, _ := r.Int("concealedSamples")
	return SampleCounts{Received: received, Concealed: concealed}, true
}
