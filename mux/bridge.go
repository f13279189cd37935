package mux

import (
	"context"
	"log/slog"

	"github.com/gb28181gw/gateway/gbgwerrors"
	"github.com/gb28181gw/gateway/rtmpsink"
)

// Bridge is one session's muxer state: cached SPS/PPS/VPS and AAC config,
// the reorder queue, and the Sink it eventually publishes FLV tags to
// (spec.md section 4.4). A Session owns exactly one Bridge.
type Bridge struct {
	sink       rtmpsink.Sink
	streamName string
	codec      VideoCodec

	sps, pps, vps []byte
	spsChanged    bool
	ppsChanged    bool
	vpsChanged    bool
	seqHeaderSent bool

	audioConfigSent bool

	queue *reorderQueue
}

// NewBridge returns a Bridge that publishes to sink under streamName,
// decoding video as codec (VideoCodecH264 or VideoCodecH265, from the PS
// pack's declared stream type).
func NewBridge(sink rtmpsink.Sink, streamName string, codec VideoCodec) *Bridge {
	return &Bridge{sink: sink, streamName: streamName, codec: codec, queue: newReorderQueue()}
}

// Reset discards the AAC config, SPS/PPS/VPS cache, and any samples
// sitting in the reorder queue, per spec.md section 4.4's close semantics
// ("on RTMP error or bridge reset, discard ... the next sequence headers
// will be re-emitted").
func (b *Bridge) Reset() {
	b.sps, b.pps, b.vps = nil, nil, nil
	b.spsChanged, b.ppsChanged, b.vpsChanged = false, false, false
	b.seqHeaderSent = false
	b.audioConfigSent = false
	b.queue = newReorderQueue()
}

// PushVideo files one session-aggregated video message (the Session has
// already concatenated every video PES message of a pack into one
// payload with the first message's dts/pts, per spec.md section 4.4's
// first paragraph) into the reorder/batch queue, draining the queue to
// the Sink once it reaches its dequeue threshold.
func (b *Bridge) PushVideo(ctx context.Context, dts, pts uint64, annexB []byte) error {
	b.queue.push(Sample{Video: true, DTS: dts, PTS: pts, AnnexB: annexB})
	return b.drainIfReady(ctx)
}

// drainIfReady dequeues and publishes every sample currently queued, in
// dts order, once the reorder queue's threshold is met (spec.md section
// 4.4: a balanced backlog of both streams, or an overflow escape hatch).
func (b *Bridge) drainIfReady(ctx context.Context) error {
	if !b.queue.readyToDequeue() {
		return nil
	}
	for _, s := range b.queue.dequeueAll() {
		var err error
		if s.Video {
			err = b.processVideoSample(ctx, s)
		} else {
			err = b.processAudioSample(ctx, s)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) processVideoSample(ctx context.Context, s Sample) error {
	switch b.codec {
	case VideoCodecH264:
		return b.pushH264(ctx, s.DTS, s.PTS, s.AnnexB)
	case VideoCodecH265:
		return b.pushH265(ctx, s.DTS, s.PTS, s.AnnexB)
	default:
		return gbgwerrors.New(gbgwerrors.StreamCasterTSCodec, "mux.Bridge.PushVideo",
			errUnsupportedVideoCodec(b.codec))
	}
}

func (b *Bridge) pushH264(ctx context.Context, dts, pts uint64, annexB []byte) error {
	var frameNALUs [][]byte
	keyFrame := false

	for _, nalu := range splitAnnexB(annexB) {
		switch t := h264NALUType(nalu); t {
		case h264NALUTypeSPS:
			if !bytesEqual(b.sps, nalu) {
				b.sps = append([]byte(nil), nalu...)
				b.spsChanged = true
			}
		case h264NALUTypePPS:
			if !bytesEqual(b.pps, nalu) {
				b.pps = append([]byte(nil), nalu...)
				b.ppsChanged = true
			}
		case 6, 9: // SEI, AUD: skip per spec.md section 4.4 step 2
		case h264NALUTypeIDR:
			keyFrame = true
			frameNALUs = append(frameNALUs, nalu)
		case 1: // non-IDR
			frameNALUs = append(frameNALUs, nalu)
		default:
			slog.Default().Warn("mux: ignoring unexpected H.264 NALU type", "type", t)
		}
	}

	if b.spsChanged && b.ppsChanged {
		if err := b.emitAVCSequenceHeader(ctx, dts); err != nil {
			return err
		}
	}

	if len(frameNALUs) == 0 {
		return nil
	}
	if !b.seqHeaderSent {
		return gbgwerrors.New(gbgwerrors.H264DropBeforeSPSPPS, "mux.Bridge.pushH264", errDroppedBeforeSequenceHeader)
	}
	return b.sink.SendMessage(ctx, rtmpsink.Message{
		Type:      rtmpsink.TagVideo,
		Timestamp: flvTimestamp(dts),
		Payload:   encodeVideoTag(keyFrame, flvCompositionTime(dts, pts), toAVCC(frameNALUs)),
	})
}

func (b *Bridge) pushH265(ctx context.Context, dts, pts uint64, annexB []byte) error {
	var frameNALUs [][]byte
	keyFrame := false

	for _, nalu := range splitAnnexB(annexB) {
		switch t := h265NALUType(nalu); {
		case t == h265NALUTypeVPS:
			if !bytesEqual(b.vps, nalu) {
				b.vps = append([]byte(nil), nalu...)
				b.vpsChanged = true
			}
		case t == h265NALUTypeSPS:
			if !bytesEqual(b.sps, nalu) {
				b.sps = append([]byte(nil), nalu...)
				b.spsChanged = true
			}
		case t == h265NALUTypePPS:
			if !bytesEqual(b.pps, nalu) {
				b.pps = append([]byte(nil), nalu...)
				b.ppsChanged = true
			}
		case t == 39 || t == 40: // SEI prefix/suffix
		case t == 35: // AUD
		case t >= 16 && t <= 23:
			keyFrame = isH265KeyFrameNALU(t) || keyFrame
			frameNALUs = append(frameNALUs, nalu)
		case t <= 31:
			frameNALUs = append(frameNALUs, nalu)
		default:
			slog.Default().Warn("mux: ignoring unexpected H.265 NALU type", "type", t)
		}
	}

	if b.vpsChanged && b.spsChanged && b.ppsChanged {
		if err := b.emitHEVCSequenceHeader(ctx, dts); err != nil {
			return err
		}
	}

	if len(frameNALUs) == 0 {
		return nil
	}
	if !b.seqHeaderSent {
		return gbgwerrors.New(gbgwerrors.H264DropBeforeSPSPPS, "mux.Bridge.pushH265", errDroppedBeforeSequenceHeader)
	}
	return b.sink.SendMessage(ctx, rtmpsink.Message{
		Type:      rtmpsink.TagVideo,
		Timestamp: flvTimestamp(dts),
		Payload:   encodeVideoTagWithCodec(flvCodecIDHEVC, keyFrame, flvCompositionTime(dts, pts), toAVCC(frameNALUs)),
	})
}

func (b *Bridge) emitAVCSequenceHeader(ctx context.Context, dts uint64) error {
	record := buildAVCDecoderConfigurationRecord(b.sps, b.pps)
	if err := b.sink.SendMessage(ctx, rtmpsink.Message{
		Type:      rtmpsink.TagVideo,
		Timestamp: flvTimestamp(dts),
		Payload:   encodeVideoSequenceHeaderTag(record),
	}); err != nil {
		return err
	}
	b.seqHeaderSent = true
	b.spsChanged, b.ppsChanged = false, false
	return nil
}

func (b *Bridge) emitHEVCSequenceHeader(ctx context.Context, dts uint64) error {
	record := buildHEVCDecoderConfigurationRecord(b.vps, b.sps, b.pps)
	if err := b.sink.SendMessage(ctx, rtmpsink.Message{
		Type:      rtmpsink.TagVideo,
		Timestamp: flvTimestamp(dts),
		Payload:   encodeVideoSequenceHeaderTagWithCodec(flvCodecIDHEVC, record),
	}); err != nil {
		return err
	}
	b.seqHeaderSent = true
	b.vpsChanged, b.spsChanged, b.ppsChanged = false, false, false
	return nil
}

// PushAudio files one PES payload's worth of ADTS-framed AAC (spec.md
// section 4.4's "for each ADTS frame emit an AAC raw frame") into the
// reorder/batch queue, draining the queue to the Sink once it reaches its
// dequeue threshold.
func (b *Bridge) PushAudio(ctx context.Context, dts uint64, payload []byte) error {
	b.queue.push(Sample{Video: false, DTS: dts, ADTS: payload})
	return b.drainIfReady(ctx)
}

// processAudioSample emits one queued audio sample's ADTS frames as FLV
// AAC tags (dts is the PS 90kHz timestamp, converted to FLV milliseconds
// here).
func (b *Bridge) processAudioSample(ctx context.Context, s Sample) error {
	dts, payload := s.DTS, s.ADTS
	headers, frames := splitADTSFrames(payload)
	if len(headers) == 0 {
		return gbgwerrors.New(gbgwerrors.StreamCasterTSCodec, "mux.Bridge.PushAudio", errNoADTSFrames)
	}

	if !b.audioConfigSent {
		if err := b.sink.SendMessage(ctx, rtmpsink.Message{
			Type:      rtmpsink.TagAudio,
			Timestamp: flvTimestamp(dts),
			Payload:   encodeAudioSequenceHeaderTag(audioSpecificConfig(headers[0])),
		}); err != nil {
			return err
		}
		b.audioConfigSent = true
	}

	ts := flvTimestamp(dts)
	for _, frame := range frames {
		if err := b.sink.SendMessage(ctx, rtmpsink.Message{
			Type:      rtmpsink.TagAudio,
			Timestamp: ts,
			Payload:   encodeAudioTag(frame),
		}); err != nil {
			return err
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// flvTimestamp converts a PS 90kHz clock value to FLV milliseconds,
// per spec.md section 4.4 ("all audio timestamps are PS-DTS / 90");
// this module applies the same conversion to video timestamps, since FLV
// tag timestamps are always milliseconds regardless of stream type.
func flvTimestamp(dts uint64) uint32 {
	return uint32(dts / 90)
}

// flvCompositionTime returns the PTS-DTS composition time offset in
// milliseconds an AVCC video tag with a B-frame-capable codec carries.
func flvCompositionTime(dts, pts uint64) int32 {
	if pts < dts {
		return 0
	}
	return int32((pts - dts) / 90)
}
