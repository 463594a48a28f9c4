// Package sdp builds and parses RFC 4566 Session Description Protocol
// documents for the streams a tspacer Session advertises.
package sdp

import "errors"

// ErrInvalidLine is returned when a parsed line does not match `key=value`.
var ErrInvalidLine = errors.New("sdp: invalid line")

// MissingOption is returned by Build when a field required for the
// requested media set is absent.
type MissingOption struct {
	Name string
}

func (e *MissingOption) Error() string { return "sdp: missing required option: " + e.Name }

// AddressType is the SDP `nettype`'s address family.
type AddressType string

// Address types.
const (
	AddressTypeIP4 AddressType = "IP4"
	AddressTypeIP6 AddressType = "IP6"
)

// Origin is the SDP `o=` line.
type Origin struct {
	Username       string
	SessionID      string
	SessionVersion string
	NetType        string
	AddressType    AddressType
	UnicastAddress string
}

// ConnectionData is the SDP `c=` line.
type ConnectionData struct {
	NetType            string
	AddressType        AddressType
	ConnectionAddress  string
}

// Timing is the SDP `t=` line.
type Timing struct {
	StartTime string
	StopTime  string
}

// Media is one `m=` section and everything that attaches to it.
type Media struct {
	Media      string // "audio" or "video"
	Port       int
	Proto      string
	Fmt        string
	// PayloadType is Fmt coerced to an integer when Proto is RTP/AVP or
	// RTP/SAVP, per §4.7 — those profiles carry a numeric RTP payload type
	// in the fmt slot, unlike e.g. plain UDP where fmt may be a format
	// token. Zero when Proto isn't an RTP/AVP(P) profile or Fmt didn't parse.
	PayloadType int
	ClockRate  int
	AudioChannels int
	Bandwidth  string
	Attributes map[string]string
	// FmtpParams is the parsed a=fmtp key→value map, keys lower-cased.
	FmtpParams map[string]string
}

// isRTPAVProfile reports whether proto is one of the two RTP-over-UDP
// profile tokens whose fmt slot is a numeric RTP payload type.
func isRTPAVProfile(proto string) bool {
	return proto == "RTP/AVP" || proto == "RTP/SAVP"
}

// Session is a full parsed or to-be-generated SDP document.
type Session struct {
	Version        string
	Origin         Origin
	SessionName    string
	Connection     ConnectionData
	Timing         Timing
	Attributes     map[string]string
	MediaSections  []*Media
}
