package stats

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Format identifies the report shape a browser engine emits from getStats
type Format int

const (
	// FormatUnknown means fingerprinting failed
	FormatUnknown Format = iota
	// FormatChromeLegacy is the callback-based goog* report shape
	FormatChromeLegacy
	// FormatStandard is a standard shape with no vendor marker
	FormatStandard
	// FormatChromeStandard is Chrome's standard shape
	FormatChromeStandard
	// FormatFirefox is Firefox's standard shape
	FormatFirefox
	// FormatSafari is Safari's standard shape
	FormatSafari
)

var formatNames = map[Format]string{
	FormatUnknown:        "unknown",
	FormatChromeLegacy:   "chrome_legacy",
	FormatStandard:       "standard",
	FormatChromeStandard: "chrome_standard",
	FormatFirefox:        "firefox",
	FormatSafari:         "safari",
}

// String returns the string representation of the format
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFormat converts a format name to a Format. The empty string is FormatUnknown.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return FormatUnknown, nil
	}
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown stats format %q", name)
}

// Legacy report types
const (
	typeGoogCandidatePair = "googCandidatePair"
	typeSSRC              = "ssrc"
	typeGoogComponent     = "googComponent"
	typeVideoBwe          = "VideoBwe"
	typeLegacyLocal       = "localcandidate"
	typeLegacyRemote      = "remotecandidate"
)

var legacyTypes = map[string]bool{
	typeGoogCandidatePair: true,
	typeSSRC:              true,
	typeGoogComponent:     true,
	typeVideoBwe:          true,
	typeLegacyLocal:       true,
	typeLegacyRemote:      true,
}

var standardTypes = map[string]bool{
	string(webrtc.StatsTypeCandidatePair):    true,
	string(webrtc.StatsTypeInboundRTP):       true,
	string(webrtc.StatsTypeOutboundRTP):      true,
	string(webrtc.StatsTypeRemoteInboundRTP): true,
	string(webrtc.StatsTypeTransport):        true,
	string(webrtc.StatsTypeLocalCandidate):   true,
	string(webrtc.StatsTypeRemoteCandidate):  true,
	string(webrtc.StatsTypeTrack):            true,
	string(webrtc.StatsTypeCodec):            true,
}

// fingerprint holds the structural markers Detect classifies on
type fingerprint struct {
	legacy   bool
	standard bool
	firefox  bool
	chrome   bool
	tracks   bool
}

func takeFingerprint(s *Snapshot) fingerprint {
	var fp fingerprint
	for _, r := range s.Reports() {
		t := r.Type()
		switch {
		case legacyTypes[t]:
			fp.legacy = true
			continue
		case standardTypes[t]:
			fp.standard = true
		default:
			continue
		}

		switch t {
		case string(webrtc.StatsTypeCandidatePair):
			if _, ok := r.Bool("selected"); ok {
				fp.firefox = true
			}
		case string(webrtc.StatsTypeTransport):
			if r.Has("selectedCandidatePairId") {
				fp.chrome = true
			}
		case string(webrtc.StatsTypeTrack):
			fp.tracks = true
		}

		if !fp.chrome {
			for _, k := range r.Keys() {
				if strings.HasPrefix(k, "goog") {
					fp.chrome = true
					break
				}
			}
		}
	}
	return fp
}

func (fp fingerprint) classify() Format {
	switch {
	case fp.legacy && !fp.standard:
		return FormatChromeLegacy
	case !fp.standard:
		return FormatUnknown
	case fp.firefox:
		return FormatFirefox
	case fp.chrome:
		return FormatChromeStandard
	case fp.tracks:
		return FormatSafari
	default:
		return FormatStandard
	}
}

// consistentWith reports whether nothing in the snapshot contradicts the hint
func (fp fingerprint) consistentWith(hint Format) bool {
	switch hint {
	case FormatChromeLegacy:
		return fp.legacy && !fp.standard
	case FormatStandard:
		return fp.standard
	case FormatChromeStandard:
		return fp.standard && !fp.firefox
	case FormatFirefox:
		return fp.standard && !fp.chrome
	case FormatSafari:
		return fp.standard && !fp.firefox && !fp.chrome
	default:
		return false
	}
}

// Detect classifies a snapshot. A hint that the snapshot's shape does not contradict
// is returned as is; otherwise the snapshot is fingerprinted and the hint ignored.
// Detect never fails: an unrecognisable snapshot yields FormatUnknown.
func Detect(s *Snapshot, hint Format) Format {
	if s.Len() == 0 {
		return FormatUnknown
	}
	fp := takeFingerprint(s)
	if hint != FormatUnknown && fp.consistentWith(hint) {
		return hint
	}
	return fp.classify()
}
