package ps

import (
	"errors"
	"fmt"

	"github.com/yapingcat/gomedia/mpeg2"
)

// errIncomplete means the buffer does not yet hold a full structure; the
// caller should wait for more bytes rather than treat this as corruption
// (spec.md section 4.3's detect_ps_integrity leniency, and the general
// "consumes a prefix" contract of spec.md section 8).
var errIncomplete = errors.New("ps: incomplete")

// parsePackHeader decodes a pack_start_code header (spec.md section 3/4.3:
// "00 00 01 BA followed by MPEG-PS pack fields"). buf starts at the 4-byte
// start code.
func parsePackHeader(buf []byte) (int, *Pack, error) {
	const fixedLen = 14 // 4-byte start code + 10 bytes of SCR/mux-rate/stuffing-length fields
	if len(buf) < fixedLen {
		return 0, nil, errIncomplete
	}
	stuffing := int(buf[13] & 0x07)
	total := fixedLen + stuffing
	if len(buf) < total {
		return 0, nil, errIncomplete
	}

	br := bitReader{buf: buf[4:14]}
	br.read(2) // '01'
	scrHigh := br.read(3)
	br.read(1)
	scrMid := br.read(15)
	br.read(1)
	scrLow := br.read(15)
	br.read(1)
	br.read(9) // SCR extension, not surfaced in Pack
	br.read(1)
	muxRate := br.read(22)

	pack := &Pack{
		HasPackHeader:            true,
		SystemClockReferenceBase: (scrHigh << 30) | (scrMid << 15) | scrLow,
		ProgramMuxRate:           uint32(muxRate),
	}
	return total, pack, nil
}

// parseSystemHeader decodes a system_header (spec.md section 3/4.3: "may
// follow with rate/video/audio bounds"). buf starts at the 4-byte start
// code; pack receives the decoded bounds.
func parseSystemHeader(buf []byte, pack *Pack) (int, error) {
	if len(buf) < 6 {
		return 0, errIncomplete
	}
	headerLen := int(be16(buf[4:6]))
	total := 6 + headerLen
	if len(buf) < total {
		return 0, errIncomplete
	}
	if headerLen < 6 {
		return 0, fmt.Errorf("ps: system header length %d too short", headerLen)
	}

	br := bitReader{buf: buf[6:12]}
	rateBound := br.read(22)
	br.read(1) // marker
	audioBound := br.read(6)
	br.read(4) // fixed_flag, CSPS_flag, system_audio_lock_flag, system_video_lock_flag
	br.read(1) // marker
	videoBound := br.read(5)

	if pack != nil {
		pack.HasSystemHeader = true
		pack.RateBound = uint32(rateBound)
		pack.AudioBound = uint8(audioBound)
		pack.VideoBound = uint8(videoBound)
	}
	return total, nil
}

// parsePSM decodes a program_stream_map (spec.md section 3/4.3: "carries
// the list of elementary stream types"), recording only the video/audio
// stream types the PSM declares (the per-stream P-STD buffer descriptors
// are not part of this gateway's data model and are skipped).
func parsePSM(buf []byte, pack *Pack) (int, error) {
	if len(buf) < 6 {
		return 0, errIncomplete
	}
	length := int(be16(buf[4:6]))
	total := 6 + length
	if len(buf) < total {
		return 0, errIncomplete
	}
	p := buf[6:total]
	if len(p) < 6 {
		return 0, fmt.Errorf("ps: PSM too short (%d bytes)", len(p))
	}

	idx := 2 // current_next_indicator/reserved/version byte + reserved/marker byte
	progInfoLen := int(be16(p[idx : idx+2]))
	idx += 2 + progInfoLen
	if idx+2 > len(p) {
		return 0, fmt.Errorf("ps: PSM program_stream_info_length overruns PSM")
	}
	esMapLen := int(be16(p[idx : idx+2]))
	idx += 2
	end := idx + esMapLen
	if end > len(p) {
		return 0, fmt.Errorf("ps: PSM elementary_stream_map_length overruns PSM")
	}

	for idx+4 <= end {
		streamType := p[idx]
		esInfoLen := int(be16(p[idx+2 : idx+4]))
		idx += 4
		switch streamType {
		case byte(mpeg2.PS_STREAM_H264), byte(mpeg2.PS_STREAM_H265):
			pack.VideoStreamType = streamType
		case byte(mpeg2.PS_STREAM_AAC):
			pack.AudioStreamType = streamType
		}
		idx += esInfoLen
	}
	return total, nil
}

// pesHeaderResult is what parsePESHeader hands back to the caller so it
// can start (or finish, for a header-only zero-length PES) a Message.
type pesHeaderResult struct {
	class        StreamClass
	sid          byte
	dts, pts     uint64
	payloadLen   int // -1 means "unbounded", spec.md section 4.3's PES_packet_length=0 case
	headerConsumed int
}

// parsePESHeader decodes a PES packet header (spec.md section 4.3: "00 00
// 01 <sid> ... declared packet length, PTS/DTS flags, and a PES-header-
// data area"). buf starts at the 4-byte start code.
func parsePESHeader(buf []byte) (pesHeaderResult, error) {
	if len(buf) < 9 {
		return pesHeaderResult{}, errIncomplete
	}
	sid := buf[3]
	peslen := int(be16(buf[4:6]))
	flags2 := buf[7]
	ptsDTSFlags := (flags2 >> 6) & 0x03
	hdrDataLen := int(buf[8])
	headerTotal := 9 + hdrDataLen
	if len(buf) < headerTotal {
		return pesHeaderResult{}, errIncomplete
	}

	optional := buf[9:headerTotal]
	var pts, dts uint64
	switch ptsDTSFlags {
	case 0x02: // PTS only
		if len(optional) < 5 {
			return pesHeaderResult{}, fmt.Errorf("ps: PES header_data_length too short for PTS")
		}
		pts = decodePTSDTS(optional[0:5])
		dts = pts
	case 0x03: // PTS + DTS
		if len(optional) < 10 {
			return pesHeaderResult{}, fmt.Errorf("ps: PES header_data_length too short for PTS+DTS")
		}
		pts = decodePTSDTS(optional[0:5])
		dts = decodePTSDTS(optional[5:10])
	}

	payloadLen := -1
	if peslen != 0 {
		payloadLen = peslen - (3 + hdrDataLen)
		if payloadLen < 0 {
			return pesHeaderResult{}, fmt.Errorf("ps: PES_packet_length %d shorter than its own header", peslen)
		}
	}

	return pesHeaderResult{
		class:          classify(sid),
		sid:            sid,
		dts:            dts,
		pts:            pts,
		payloadLen:     payloadLen,
		headerConsumed: headerTotal,
	}, nil
}
