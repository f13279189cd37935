package mux

// adtsHeader is the fixed 7-byte ADTS header GB28181 audio PES payloads
// carry ahead of each raw AAC frame (no CRC, ID=MPEG-4, layer=0), decoded
// by hand against the well-known ADTS bit layout since neither
// `github.com/yapingcat/gomedia/mpeg2` usage this corpus actually shows
// (the `other_examples` reference only builds ADTS on the encode side via
// `mpeg2.PS_STREAM_AAC`-tagged PES packets, never decodes one) nor
// `codec` exposes a verified decode entry point this module can ground a
// call on.
type adtsHeader struct {
	profile          uint8 // AAC profile (0=Main,1=LC,2=SSR,3=LTP), ObjectType = profile+1
	samplingFreqIdx  uint8
	channelConfig    uint8
	frameLength      int
}

// parseADTSHeader decodes the fixed 7-byte ADTS header at the start of
// buf and returns it along with the header length to skip (7, since this
// profile's devices never set protection_absent=0 / CRC present).
func parseADTSHeader(buf []byte) (adtsHeader, int, bool) {
	if len(buf) < 7 {
		return adtsHeader{}, 0, false
	}
	if buf[0] != 0xFF || buf[1]&0xF0 != 0xF0 {
		return adtsHeader{}, 0, false
	}
	profile := (buf[2] >> 6) & 0x03
	freqIdx := (buf[2] >> 2) & 0x0F
	channelCfg := ((buf[2] & 0x01) << 2) | ((buf[3] >> 6) & 0x03)
	frameLen := (int(buf[3]&0x03) << 11) | (int(buf[4]) << 3) | (int(buf[5]>>5) & 0x07)
	return adtsHeader{
		profile:         profile,
		samplingFreqIdx: freqIdx,
		channelConfig:   channelCfg,
		frameLength:     frameLen,
	}, 7, true
}

// audioSpecificConfig builds the 2-byte MPEG-4 AudioSpecificConfig FLV
// AAC sequence headers carry, from the ADTS header's profile/sampling
// rate/channel fields: object_type(5 bits), sampling_frequency_index(4
// bits), channel_configuration(4 bits), frame_length_flag/depends_on_
// core_coder/extension_flag all zero (3 bits).
func audioSpecificConfig(h adtsHeader) []byte {
	objectType := h.profile + 1
	b0 := (objectType << 3) | ((h.samplingFreqIdx >> 1) & 0x07)
	b1 := ((h.samplingFreqIdx & 0x01) << 7) | (h.channelConfig << 3)
	return []byte{b0, b1}
}

// splitADTSFrames walks buf splitting it into raw AAC frame payloads
// (ADTS headers stripped), for PES payloads that batch multiple AAC
// frames back to back.
func splitADTSFrames(buf []byte) ([]adtsHeader, [][]byte) {
	var headers []adtsHeader
	var frames [][]byte
	for len(buf) > 0 {
		h, hdrLen, ok := parseADTSHeader(buf)
		if !ok || h.frameLength < hdrLen || h.frameLength > len(buf) {
			break
		}
		frames = append(frames, buf[hdrLen:h.frameLength])
		headers = append(headers, h)
		buf = buf[h.frameLength:]
	}
	return headers, frames
}
