// Package ps implements the PS/RTP demultiplexer: RFC 4571 framing decode,
// RTP header parsing, MPEG-PS pack/system-header/PSM/PES decoding, and the
// bounded error-recovery state machine (spec.md section 4.3).
//
// The wire-format byte layouts (pack header, system header, PSM, PES
// header) are hand-written against spec.md section 4.3 and
// original_source/trunk/src/app/srs_app_gb28181.cpp's
// SrsRecoverablePsContext/SrsPackContext rather than built on
// github.com/yapingcat/gomedia/mpeg2's bitstream Decode methods: the
// recover-mode scan, the 128-byte carry-over cap, and PES accumulation
// across TCP segments all need byte-exact control over how much of a
// partial buffer was consumed, which the library's struct-at-a-time decode
// API does not expose. Stream type classification still uses the library's
// PS_STREAM_* constants (mpeg2.PS_STREAM_H264, mpeg2.PS_STREAM_H265,
// mpeg2.PS_STREAM_AAC) so this package and the mux package agree on codec
// identifiers with the rest of the pack.
package ps

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/pion/rtp"
	"github.com/yapingcat/gomedia/mpeg2"

	"github.com/gb28181gw/gateway/gbgwerrors"
)

// Start-code prefixes that delimit MPEG-PS structures (spec.md section 4.3).
const (
	startCodePrefix = 0x000001 // common 3-byte prefix, big-endian in the low bytes of a uint32
	packStartCode   = 0xBA
	systemStartCode = 0xBB
	psmStartCode    = 0xBC
)

// StreamClass is the PES stream-id class spec.md section 3 names.
type StreamClass int

const (
	StreamVideo StreamClass = iota
	StreamAudio
	StreamPrivate
)

// maxRTPPacketBytes triggers a warning-level log (not an error) per
// spec.md section 4.3; largeRTPPacketBytes is the hard escape hatch during
// recover mode.
const (
	maxRTPPacketBytes   = 1500
	largeRTPPacketBytes = 1500
	maxReserved         = 128
	maxRecoverRetries   = 16
)

// RTPInfo carries the fields the PS decode helper needs from the RTP
// header of the packet a PES payload arrived in (spec.md section 3, "PS
// decode helper"). SSRC is what the media connection actor uses to bind
// to the right Session (spec.md section 4.6).
type RTPInfo struct {
	SSRC uint32
	Seq  uint16
	TS   uint32
	PT   uint8
}

// ParseRTP decodes an RTP packet from buf (RFC 4571 already stripped the
// length prefix) using github.com/pion/rtp, and reports whether it is an
// RTCP packet that should be silently dropped instead (spec.md section
// 4.3 step 3/6). On success it returns the RTP payload slice (still backed
// by buf) and the header fields the PS decoder needs.
func ParseRTP(buf []byte) (payload []byte, info RTPInfo, isRTCP bool, err error) {
	if len(buf) < 2 {
		return nil, RTPInfo{}, false, fmt.Errorf("ps: packet too short to classify (%d bytes)", len(buf))
	}
	if len(buf) > maxRTPPacketBytes {
		slog.Default().Warn("ps: RTP packet larger than expected", "bytes", len(buf), "limit", maxRTPPacketBytes)
	}
	if isRTCPPacketType(buf[1]) {
		return nil, RTPInfo{}, true, nil
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		return nil, RTPInfo{}, false, gbgwerrors.New(gbgwerrors.PSMedia, "ps.ParseRTP", err)
	}
	info := RTPInfo{SSRC: pkt.SSRC, Seq: pkt.SequenceNumber, TS: pkt.Timestamp, PT: pkt.PayloadType}
	return pkt.Payload, info, false, nil
}

// isRTCPPacketType classifies by the standard RTCP packet-type range
// (192-223); unlike an RTP payload type, RTCP's second header byte is not
// split with a marker bit, so it is compared unmasked (spec.md section
// 4.3 step 3 / section 6).
func isRTCPPacketType(secondByte byte) bool {
	return secondByte >= 192 && secondByte <= 223
}

func has3ByteStartCode(b []byte) bool {
	return len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1
}

func be16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
