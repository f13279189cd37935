package mux

import "errors"

// FLV tag body encoding (the classic AVC video/audio tag layout, plus the
// HEVC codec-id convention FFmpeg/SRS use ahead of the formal "Enhanced
// RTMP" FourCC extension — this gateway only needs an RTMP sink that
// already speaks that convention, since the sink's own wire protocol is
// an external collaborator per spec.md section 1).
const (
	flvFrameTypeKey   = 1
	flvFrameTypeInter = 2

	flvCodecIDAVC  = 7
	flvCodecIDHEVC = 12

	flvAVCPacketTypeSeqHeader = 0
	flvAVCPacketTypeNALU      = 1

	flvSoundFormatAAC      = 10
	flvAACPacketTypeSeqHdr = 0
	flvAACPacketTypeRaw    = 1
)

func encodeVideoTag(keyFrame bool, compositionTime int32, avcc []byte) []byte {
	return encodeVideoTagWithCodec(flvCodecIDAVC, keyFrame, compositionTime, avcc)
}

func encodeVideoTagWithCodec(codecID byte, keyFrame bool, compositionTime int32, payload []byte) []byte {
	frameType := byte(flvFrameTypeInter)
	if keyFrame {
		frameType = flvFrameTypeKey
	}
	out := make([]byte, 0, 5+len(payload))
	out = append(out, (frameType<<4)|codecID, flvAVCPacketTypeNALU)
	out = append(out, encode24(compositionTime)...)
	out = append(out, payload...)
	return out
}

func encodeVideoSequenceHeaderTag(record []byte) []byte {
	return encodeVideoSequenceHeaderTagWithCodec(flvCodecIDAVC, record)
}

func encodeVideoSequenceHeaderTagWithCodec(codecID byte, record []byte) []byte {
	out := make([]byte, 0, 5+len(record))
	out = append(out, (flvFrameTypeKey<<4)|codecID, flvAVCPacketTypeSeqHeader, 0, 0, 0)
	out = append(out, record...)
	return out
}

func encode24(v int32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}

func encodeAudioTag(raw []byte) []byte {
	out := make([]byte, 0, 2+len(raw))
	out = append(out, audioTagHeaderByte(), flvAACPacketTypeRaw)
	out = append(out, raw...)
	return out
}

func encodeAudioSequenceHeaderTag(asc []byte) []byte {
	out := make([]byte, 0, 2+len(asc))
	out = append(out, audioTagHeaderByte(), flvAACPacketTypeSeqHdr)
	out = append(out, asc...)
	return out
}

// audioTagHeaderByte encodes SoundFormat=AAC, SoundRate=44kHz,
// SoundSize=16-bit, SoundType=stereo; AAC audio's real rate/channel count
// lives in the AudioSpecificConfig, and FLV players read it from there,
// not this byte, so fixed placeholder bits are standard practice.
func audioTagHeaderByte() byte {
	const soundRate44k = 3
	const soundSize16bit = 1
	const soundTypeStereo = 1
	return (flvSoundFormatAAC << 4) | (soundRate44k << 2) | (soundSize16bit << 1) | soundTypeStereo
}

var (
	errDroppedBeforeSequenceHeader = errors.New("mux: video frame dropped, no sequence header emitted yet")
	errNoADTSFrames                = errors.New("mux: audio payload did not contain a parseable ADTS frame")
)

func errUnsupportedVideoCodec(c VideoCodec) error {
	return errUnsupportedVideoCodecErr{c}
}

type errUnsupportedVideoCodecErr struct{ codec VideoCodec }

func (e errUnsupportedVideoCodecErr) Error() string {
	return "mux: unsupported video codec " + byteToHex(byte(e.codec))
}

func byteToHex(b byte) string {
	const hex = "0123456789abcdef"
	return "0x" + string([]byte{hex[b>>4], hex[b&0x0F]})
}
