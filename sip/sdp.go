package sip

import (
	"fmt"
	"strconv"
	"strings"
)

// SDPOffer is the minimal SDP body this gateway exchanges with a device:
// one video media line carrying MPEG-PS/RTP/TCP plus the non-standard
// `y=<ssrc>` line GB28181 uses to bind the stream to a session (spec.md
// section 3). This profile never negotiates audio, multiple m= lines, or
// anything outside this shape, so unlike a general SDP library this type
// does not model the full RFC 4566 grammar.
type SDPOffer struct {
	UserName     string
	AddressIP    string
	SessionName  string
	ConnectionIP string
	MediaPort    int
	PayloadType  int
	SSRC         uint32
}

// Encode renders the offer exactly as spec.md section 3 describes it.
func (o SDPOffer) Encode() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "v=0\r\n")
	fmt.Fprintf(&sb, "o=%s 0 0 IN IP4 %s\r\n", o.UserName, o.AddressIP)
	fmt.Fprintf(&sb, "s=%s\r\n", o.SessionName)
	fmt.Fprintf(&sb, "c=IN IP4 %s\r\n", o.ConnectionIP)
	fmt.Fprintf(&sb, "t=0 0\r\n")
	fmt.Fprintf(&sb, "m=video %d TCP/RTP/AVP %d\r\n", o.MediaPort, o.PayloadType)
	fmt.Fprintf(&sb, "a=recvonly\r\n")
	fmt.Fprintf(&sb, "a=rtpmap:%d PS/90000\r\n", o.PayloadType)
	fmt.Fprintf(&sb, "y=%010d\r\n", o.SSRC)
	return sb.String()
}

// ParseSDP decodes raw into an SDPOffer, validating exactly the fields this
// profile requires. The y= line is the one piece of non-standard syntax and
// is the part that must round-trip losslessly (spec.md section 8 property 1).
func ParseSDP(raw string) (*SDPOffer, error) {
	o := &SDPOffer{PayloadType: -1}
	sawM, sawY := false, false

	for _, line := range strings.Split(raw, "\r\n") {
		if line == "" {
			continue
		}
		if len(line) < 2 || line[1] != '=' {
			return nil, fmt.Errorf("SDP line %q is not \"<type>=<value>\"", line)
		}
		typ, value := line[0], line[2:]

		switch typ {
		case 'o':
			fields := strings.Fields(value)
			if len(fields) != 6 {
				return nil, fmt.Errorf("SDP o= line %q malformed", line)
			}
			o.UserName = fields[0]
			o.AddressIP = fields[5]
		case 's':
			o.SessionName = value
		case 'c':
			fields := strings.Fields(value)
			if len(fields) != 3 {
				return nil, fmt.Errorf("SDP c= line %q malformed", line)
			}
			o.ConnectionIP = fields[2]
		case 'm':
			fields := strings.Fields(value)
			if len(fields) < 4 || fields[0] != "video" {
				return nil, fmt.Errorf("SDP m= line %q malformed", line)
			}
			port, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("SDP m= line %q has a non-numeric port", line)
			}
			pt, err := strconv.Atoi(fields[3])
			if err != nil {
				return nil, fmt.Errorf("SDP m= line %q has a non-numeric payload type", line)
			}
			o.MediaPort = port
			o.PayloadType = pt
			sawM = true
		case 'y':
			ssrc, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("SDP y= line %q is not a decimal SSRC: %w", line, err)
			}
			o.SSRC = uint32(ssrc)
			sawY = true
		}
	}

	if !sawM {
		return nil, fmt.Errorf("SDP has no m=video line")
	}
	if !sawY {
		return nil, fmt.Errorf("SDP has no y=<ssrc> line")
	}
	return o, nil
}
