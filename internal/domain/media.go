package domain

import (
	"fmt"
	"strings"
)

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(s)) {
	case KindAudio:
		return KindAudio, nil
	case KindVideo:
		return KindVideo, nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// SSRC is the 32-bit synchronization source of an RTP stream.
type SSRC uint32

func (s SSRC) String() string { return fmt.Sprintf("0x%08x", uint32(s)) }
