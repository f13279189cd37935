// Package mux bridges PS elementary-stream messages to FLV tags: Annex-B
// to AVCC/HVCC video repackaging, AAC ADTS to raw audio framing, a small
// reorder/batch queue, and an rtmpsink.Sink output (spec.md section 4.4).
package mux

import (
	"github.com/yapingcat/gomedia/mpeg2"
)

// VideoCodec is the video elementary stream's codec, carried from the PS
// pack's declared stream type (spec.md section 4.4).
type VideoCodec byte

const (
	VideoCodecNone VideoCodec = 0
	VideoCodecH264 VideoCodec = VideoCodec(mpeg2.PS_STREAM_H264)
	VideoCodecH265 VideoCodec = VideoCodec(mpeg2.PS_STREAM_H265)
)

// Sample is one elementary-stream access unit ready for FLV tag assembly:
// the concatenated Annex-B NALUs of one video message, or one audio PES
// payload of ADTS-framed AAC (which may hold several ADTS frames), plus
// its timestamps (spec.md section 4.4).
type Sample struct {
	Video    bool
	KeyFrame bool
	DTS      uint64
	PTS      uint64
	AnnexB   []byte // video only
	ADTS     []byte // audio only, includes the 7-byte ADTS header
}
