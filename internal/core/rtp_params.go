package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dkeye/Stream/internal/domain"
)

type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

// RtpCodecCapability is one entry of a router or client capability set.
type RtpCodecCapability struct {
	Kind                 domain.MediaKind `json:"kind"`
	MimeType             string           `json:"mimeType"`
	PreferredPayloadType uint8            `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32           `json:"clockRate"`
	Channels             uint16           `json:"channels,omitempty"`
	Parameters           map[string]any   `json:"parameters,omitempty"`
	RtcpFeedback         []RtcpFeedback   `json:"rtcpFeedback,omitempty"`
}

type RtpHeaderExtension struct {
	Kind        domain.MediaKind `json:"kind"`
	URI         string           `json:"uri"`
	PreferredID int              `json:"preferredId"`
}

type RtpCapabilities struct {
	Codecs           []RtpCodecCapability `json:"codecs"`
	HeaderExtensions []RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

type RtpCodecParameters struct {
	MimeType     string         `json:"mimeType"`
	PayloadType  uint8          `json:"payloadType"`
	ClockRate    uint32         `json:"clockRate"`
	Channels     uint16         `json:"channels,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

type RtpEncodingParameters struct {
	SSRC domain.SSRC `json:"ssrc,omitempty"`
}

type RtcpParameters struct {
	CNAME       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize"`
}

type RtpParameters struct {
	Mid       string                  `json:"mid,omitempty"`
	Codecs    []RtpCodecParameters    `json:"codecs"`
	Encodings []RtpEncodingParameters `json:"encodings,omitempty"`
	Rtcp      RtcpParameters          `json:"rtcp"`
}

// Supports reports whether the capability set can receive codec.
// H264 additionally requires an equal packetization-mode.
func (c RtpCapabilities) Supports(codec RtpCodecParameters) bool {
	_, ok := c.Match(codec)
	return ok
}

// Match returns the first capability compatible with codec.
func (c RtpCapabilities) Match(codec RtpCodecParameters) (RtpCodecCapability, bool) {
	for _, cc := range c.Codecs {
		if !strings.EqualFold(cc.MimeType, codec.MimeType) || cc.ClockRate != codec.ClockRate {
			continue
		}
		if strings.EqualFold(codec.MimeType, "video/H264") &&
			paramString(cc.Parameters, "packetization-mode", "0") != paramString(codec.Parameters, "packetization-mode", "0") {
			continue
		}
		return cc, true
	}
	return RtpCodecCapability{}, false
}

func paramString(params map[string]any, key, def string) string {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// FmtpLine renders codec parameters as an SDP fmtp line with sorted keys.
func FmtpLine(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+paramString(params, k, ""))
	}
	return strings.Join(parts, ";")
}

// ParseFmtp is the inverse of FmtpLine. Integer values become int.
func ParseFmtp(line string) map[string]any {
	out := make(map[string]any)
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		if n, err := strconv.Atoi(v); err == nil {
			out[k] = n
			continue
		}
		out[k] = v
	}
	return out
}
