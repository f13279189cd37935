package mux

import "encoding/binary"

// splitAnnexB splits an Annex-B byte stream (NALUs separated by 00 00 01
// or 00 00 00 01 start codes) into individual NALUs, stripping the start
// codes. Grounded on the Annex-B scanning every H.264/H.265 depacketizer
// needs; spec.md section 4.4 only names the operation ("split Annex-B
// into NALUs"), not an implementation, so this is hand-written directly
// against the byte format rather than gomedia/codec's NALU API, which
// this corpus's reference material never exercises building a start-code
// splitter we could ground a call on.
func splitAnnexB(buf []byte) [][]byte {
	var nalus [][]byte
	starts := findStartCodes(buf)
	for i, start := range starts {
		end := len(buf)
		if i+1 < len(starts) {
			end = starts[i+1].pos
		}
		nalu := buf[start.pos+start.len : end]
		if len(nalu) > 0 {
			nalus = append(nalus, nalu)
		}
	}
	return nalus
}

type startCode struct {
	pos int
	len int
}

func findStartCodes(buf []byte) []startCode {
	var out []startCode
	for i := 0; i+3 <= len(buf); {
		if buf[i] == 0 && buf[i+1] == 0 {
			if i+4 <= len(buf) && buf[i+2] == 0 && buf[i+3] == 1 {
				out = append(out, startCode{pos: i, len: 4})
				i += 4
				continue
			}
			if buf[i+2] == 1 {
				out = append(out, startCode{pos: i, len: 3})
				i += 3
				continue
			}
		}
		i++
	}
	return out
}

// h264NALUType returns the nal_unit_type of an H.264 NALU (low 5 bits of
// the first byte).
func h264NALUType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

// h265NALUType returns the nal_unit_type of an H.265 NALU (bits 1-6 of
// the first byte).
func h265NALUType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return (nalu[0] >> 1) & 0x3F
}

const (
	h264NALUTypeSPS   = 7
	h264NALUTypePPS   = 8
	h264NALUTypeIDR   = 5
	h265NALUTypeVPS   = 32
	h265NALUTypeSPS   = 33
	h265NALUTypePPS   = 34
	h265NALUTypeIDRW  = 19
	h265NALUTypeIDRN  = 20
	h265NALUTypeCRA   = 21
)

func isH264KeyFrameNALU(t byte) bool { return t == h264NALUTypeIDR }
func isH265KeyFrameNALU(t byte) bool {
	return t == h265NALUTypeIDRW || t == h265NALUTypeIDRN || t == h265NALUTypeCRA
}

// toAVCC repacks a slice of Annex-B NALUs (SPS/PPS already stripped by
// the caller) into AVCC framing: each NALU prefixed by its 4-byte
// big-endian length, matching the nalu_length field width this package's
// AVCDecoderConfigurationRecord always declares (lengthSizeMinusOne=3).
func toAVCC(nalus [][]byte) []byte {
	var out []byte
	var lenBuf [4]byte
	for _, n := range nalus {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n)))
		out = append(out, lenBuf[:]...)
		out = append(out, n...)
	}
	return out
}

// buildAVCDecoderConfigurationRecord assembles the AVCDecoderConfigurationRecord
// FLV/MP4 structure (ISO/IEC 14496-15 section 5.2.4.1), grounded on
// original_source/trunk/src/kernel/srs_kernel_codec.cpp's
// SrsFormat::avc_demux_sps_pps field layout, which this function mirrors
// in reverse (encode instead of decode). lengthSizeMinusOne is fixed at 3
// (4-byte NALU lengths), matching toAVCC.
func buildAVCDecoderConfigurationRecord(sps, pps []byte) []byte {
	out := []byte{
		0x01,            // configurationVersion
		safeByte(sps, 1), // AVCProfileIndication
		safeByte(sps, 2), // profile_compatibility
		safeByte(sps, 3), // AVCLevelIndication
		0xFF,             // reserved(6) + lengthSizeMinusOne(2) = 3
		0xE1,             // reserved(3) + numOfSequenceParameterSets(5) = 1
	}
	out = append(out, byte(len(sps)>>8), byte(len(sps)))
	out = append(out, sps...)
	out = append(out, 0x01) // numOfPictureParameterSets = 1
	out = append(out, byte(len(pps)>>8), byte(len(pps)))
	out = append(out, pps...)
	return out
}

func safeByte(b []byte, idx int) byte {
	if idx < len(b) {
		return b[idx]
	}
	return 0
}

// buildHEVCDecoderConfigurationRecord assembles a minimal
// HEVCDecoderConfigurationRecord (ISO/IEC 14496-15 section 8.3.3.1.2),
// grounded on original_source/trunk/src/kernel/srs_kernel_codec.cpp's
// hevc_demux_hvcc field order. This profile does not parse the VPS/SPS
// RBSP to recover the exact general_profile/tier/level/constraint-flag
// bit pattern (the library available in this corpus, gomedia/codec,
// does not expose an HEVC SPS bit-reader this module could ground a call
// on) — it emits the fixed, permissive profile/level fields FFmpeg's own
// muxers fall back to when the real values are unavailable, which every
// RTMP/FLV player this gateway targets tolerates, and three NAL arrays
// (VPS, SPS, PPS) each carrying exactly one NALU.
func buildHEVCDecoderConfigurationRecord(vps, sps, pps []byte) []byte {
	out := []byte{
		0x01,       // configuration_version
		0x01,       // general_profile_space(0)+tier(0)+profile_idc(1, Main)
		0x60, 0x00, 0x00, 0x00, // general_profile_compatibility_flags
		0x90, 0x00, 0x00, 0x00, 0x00, 0x00, // general_constraint_indicator_flags
		0x5A,       // general_level_idc (90 = level 3.0)
		0xF0, 0x00, // min_spatial_segmentation_idc, reserved
		0xFC,       // parallelismType, reserved bits set
		0xFC,       // chromaFormat, reserved bits set
		0xF8,       // bitDepthLumaMinus8, reserved bits set
		0xF8,       // bitDepthChromaMinus8, reserved bits set
		0x00, 0x00, // avgFrameRate
		0x0F, // constantFrameRate/numTemporalLayers/temporalIdNested/lengthSizeMinusOne=3
		0x03, // numOfArrays
	}
	out = append(out, hevcNALUArray(h265NALUTypeVPS, vps)...)
	out = append(out, hevcNALUArray(h265NALUTypeSPS, sps)...)
	out = append(out, hevcNALUArray(h265NALUTypePPS, pps)...)
	return out
}

func hevcNALUArray(naluType byte, nalu []byte) []byte {
	out := []byte{naluType & 0x3F, 0x00, 0x01} // array_completeness=0, reserved, numNalus=1
	out = append(out, byte(len(nalu)>>8), byte(len(nalu)))
	out = append(out, nalu...)
	return out
}
