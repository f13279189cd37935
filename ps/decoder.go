package ps

import (
	"errors"
	"fmt"

	"github.com/yapingcat/gomedia/mpeg2"

	"github.com/gb28181gw/gateway/gbgwerrors"
)

// Handler receives decoded packs and recovery notifications. Grounded on
// original_source/trunk/src/app/srs_app_gb28181.cpp's ISrsPsMessageHandler/
// ISrsPsPackHandler split, collapsed into one interface since this gateway
// has exactly one consumer (the session controller) per media connection.
type Handler interface {
	// OnPack is called once per pack that accumulated at least one PES
	// message, right before the decoder starts the next pack (spec.md
	// section 4.3: "emits on_ps_pack(context, ps, msgs) to its handler,
	// then resets").
	OnPack(pack *Pack, msgs []*Message) error

	// OnRecoverMode is called every time the decoder (re-)enters recover
	// mode, so the caller can drop anything it had queued for the pack in
	// progress (spec.md section 4.3).
	OnRecoverMode(recoverCount int)
}

// Option configures a Decoder at construction.
type Option func(*Decoder)

// WithDetectPSIntegrity sets the detect_ps_integrity policy flag (spec.md
// section 4.3); on by default, matching
// original_source/trunk/src/app/srs_app_gb28181.cpp's
// `context.ctx_.set_detect_ps_integrity(true)`.
func WithDetectPSIntegrity(enabled bool) Option {
	return func(d *Decoder) { d.detectPSIntegrity = enabled }
}

// WithHEVC enables H.265 PSM stream types; disabled by default per spec.md
// section 4.3's HEVC gate (`HEVC_DISABLED` when unset and a pack declares
// HEVC).
func WithHEVC(enabled bool) Option {
	return func(d *Decoder) { d.hevcEnabled = enabled }
}

// Decoder is the per-media-connection PS decode context: the recover-mode
// state machine, the in-progress pack/PES accumulation, and the
// bookkeeping counters of spec.md section 3 ("PS decode context").
type Decoder struct {
	handler Handler

	detectPSIntegrity bool
	hevcEnabled       bool

	nextPackID uint64
	curPack    *Pack
	curMsg     *Message
	packMsgs   []*Message

	recovering   bool
	recoverCount int

	pending []byte

	Stats Stats
}

// NewDecoder returns a Decoder in normal (non-recovering) mode.
func NewDecoder(handler Handler, opts ...Option) *Decoder {
	d := &Decoder{handler: handler, detectPSIntegrity: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed hands the decoder the PS bytes carried by one RTP packet's payload
// (RTP/RTCP framing already stripped by the caller). It manages the
// reserved-byte carry-over internally: the only externally observable
// contract is spec.md section 8's "consumes a prefix of the concatenation
// of reserved and new bytes" property.
//
// A non-nil error means the media connection is no longer recoverable
// (the two escape hatches of spec.md section 4.3: an oversize packet
// while already recovering, or more than 16 recovery attempts); the caller
// must tear the connection down, which the session controller observes as
// a disconnect and answers with a re-INVITE.
func (d *Decoder) Feed(payload []byte) error {
	buf := payload
	if len(d.pending) > 0 {
		buf = make([]byte, 0, len(d.pending)+len(payload))
		buf = append(buf, d.pending...)
		buf = append(buf, payload...)
	}
	d.pending = nil

	if d.recovering {
		return d.scanForResync(buf)
	}

	consumed, err := d.decodeLoop(buf)
	if err != nil {
		return d.enterRecoverMode(buf, err)
	}
	d.setReserved(buf[consumed:])
	return nil
}

// scanForResync implements spec.md section 4.3's recover-mode scan: a
// 4-byte sliding window hunting for the pack-header magic, discarding 1-4
// bytes per miss depending on where the first zero lies.
func (d *Decoder) scanForResync(buf []byte) error {
	if len(buf) > largeRTPPacketBytes {
		return gbgwerrors.New(gbgwerrors.PSMedia, "ps.Decoder.scanForResync",
			fmt.Errorf("packet of %d bytes exceeds %d while recovering, giving up", len(buf), largeRTPPacketBytes))
	}

	pos := skipUntilPackMagic(buf)
	if pos < 0 {
		d.recoverCount++
		if d.recoverCount > maxRecoverRetries {
			return gbgwerrors.New(gbgwerrors.PSMedia, "ps.Decoder.scanForResync",
				fmt.Errorf("exceeded %d recovery attempts without finding a pack header", maxRecoverRetries))
		}
		d.handler.OnRecoverMode(d.recoverCount)
		return nil
	}

	d.recovering = false
	d.recoverCount = 0

	consumed, err := d.decodeLoop(buf[pos:])
	if err != nil {
		return d.enterRecoverMode(buf[pos:], err)
	}
	d.setReserved(buf[pos+consumed:])
	return nil
}

// skipUntilPackMagic returns the offset of the next 00 00 01 BA sequence
// in buf, or -1 if none is found, mirroring
// original_source/trunk/src/app/srs_app_gb28181.cpp's srs_skip_util_pack.
func skipUntilPackMagic(buf []byte) int {
	i := 0
	for i+4 <= len(buf) {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 && buf[i+3] == packStartCode {
			return i
		}
		switch {
		case buf[i] != 0 && buf[i+1] != 0 && buf[i+2] != 0 && buf[i+3] != 0:
			i += 4
		case buf[i] != 0 && buf[i+1] != 0 && buf[i+2] != 0:
			i += 3
		case buf[i] != 0 && buf[i+1] != 0:
			i += 2
		default:
			i++
		}
	}
	return -1
}

// enterRecoverMode drops the in-progress PES and any accumulated pack
// messages, notifies the handler, and bumps the recover counter, per
// spec.md section 4.3 and section 7.
func (d *Decoder) enterRecoverMode(buf []byte, cause error) error {
	if len(buf) > largeRTPPacketBytes && d.recovering {
		return gbgwerrors.New(gbgwerrors.PSMedia, "ps.Decoder.enterRecoverMode",
			fmt.Errorf("packet of %d bytes exceeds %d, giving up: %w", len(buf), largeRTPPacketBytes, cause))
	}

	d.recoverCount++
	if d.recoverCount > maxRecoverRetries {
		return gbgwerrors.New(gbgwerrors.PSMedia, "ps.Decoder.enterRecoverMode",
			fmt.Errorf("exceeded %d recovery attempts: %w", maxRecoverRetries, cause))
	}

	d.curMsg = nil
	if len(d.packMsgs) > 0 {
		d.Stats.Dropped += uint64(len(d.packMsgs))
		d.packMsgs = nil
	}
	d.recovering = true
	d.Stats.Recovered++
	d.pending = nil
	d.handler.OnRecoverMode(d.recoverCount)
	return nil
}

// setReserved caps the carry-over at maxReserved bytes (spec.md section
// 4.3: "Cap reserved at 128 bytes; if exceeded, drop all reserved").
func (d *Decoder) setReserved(tail []byte) {
	if len(tail) == 0 {
		return
	}
	if len(tail) > maxReserved {
		d.Stats.Reserved++
		return
	}
	d.pending = append([]byte(nil), tail...)
	d.Stats.Reserved++
}

// decodeLoop walks buf start-code by start-code, returning how many bytes
// it fully consumed. Running out of bytes mid-structure is not an error:
// the caller carries the remainder over as reserved bytes for the next
// Feed call (spec.md section 8's "consumes a prefix" property).
func (d *Decoder) decodeLoop(buf []byte) (int, error) {
	pos := 0
	for pos < len(buf) {
		remaining := buf[pos:]

		if d.curMsg != nil {
			consumed, done := d.continuePESPayload(remaining)
			pos += consumed
			if !done {
				break
			}
			continue
		}

		if len(remaining) < 4 {
			break
		}
		if !has3ByteStartCode(remaining) {
			return pos, fmt.Errorf("ps: expected a start code at offset %d, got %02x %02x %02x",
				pos, remaining[0], remaining[1], remaining[2])
		}

		sc := remaining[3]
		switch {
		case sc == packStartCode:
			n, pack, err := parsePackHeader(remaining)
			if err != nil {
				if errors.Is(err, errIncomplete) {
					goto wait
				}
				return pos, err
			}
			d.onNewPack(pack)
			pos += n

		case sc == systemStartCode:
			n, err := parseSystemHeader(remaining, d.curPack)
			if err != nil {
				if errors.Is(err, errIncomplete) {
					goto wait
				}
				return pos, err
			}
			pos += n

		case sc == psmStartCode:
			n, err := parsePSM(remaining, d.curPack)
			if err != nil {
				if errors.Is(err, errIncomplete) {
					goto wait
				}
				return pos, err
			}
			if d.curPack != nil && d.curPack.VideoStreamType == byte(mpeg2.PS_STREAM_H265) && !d.hevcEnabled {
				return pos, gbgwerrors.New(gbgwerrors.HEVCDisabled, "ps.Decoder.decodeLoop",
					errors.New("PSM declares HEVC but HEVC support is disabled"))
			}
			pos += n

		case isPESStreamID(sc):
			res, err := parsePESHeader(remaining)
			if err != nil {
				if errors.Is(err, errIncomplete) {
					if d.detectPSIntegrity {
						goto wait
					}
					return pos, fmt.Errorf("ps: incomplete PES header at offset %d", pos)
				}
				return pos, err
			}
			pos += res.headerConsumed
			msg := &Message{Class: res.class, SID: res.sid, DTS: res.dts, PTS: res.pts, PacketLength: res.payloadLen}
			if msg.PacketLength < 0 {
				// Unbounded PES (PES_packet_length=0): this gateway's
				// devices always declare a real length in practice, so
				// treat whatever remains in this call as the whole
				// payload rather than scanning ahead for a start code.
				msg.Payload = append(msg.Payload, buf[pos:]...)
				pos = len(buf)
				d.finishMessage(msg)
				continue
			}
			d.curMsg = msg

		default:
			return pos, fmt.Errorf("ps: unknown start code 0x%02x at offset %d", sc, pos)
		}
		continue

	wait:
		break
	}
	return pos, nil
}

// isPESStreamID reports whether sc is a valid PES stream-id this profile
// classifies (spec.md section 4.3: video 0xE0-0xEF, audio 0xC0-0xDF,
// private-stream 0xBD).
func isPESStreamID(sc byte) bool {
	return sc == 0xBD || (sc >= 0xC0 && sc <= 0xDF) || (sc >= 0xE0 && sc <= 0xEF)
}

// continuePESPayload appends as much of remaining as the in-progress
// message still needs, returning how many bytes it consumed and whether
// the message is now complete.
func (d *Decoder) continuePESPayload(remaining []byte) (int, bool) {
	needed := d.curMsg.PacketLength - len(d.curMsg.Payload)
	take := needed
	if take > len(remaining) {
		take = len(remaining)
	}
	d.curMsg.Payload = append(d.curMsg.Payload, remaining[:take]...)
	if len(d.curMsg.Payload) >= d.curMsg.PacketLength {
		msg := d.curMsg
		d.curMsg = nil
		d.finishMessage(msg)
		return take, true
	}
	return take, false
}

// onNewPack emits the previous pack (if it accumulated any messages) and
// starts a new one, per spec.md section 4.3: "When a new pack is observed
// and there are accumulated PES messages, the decoder emits on_ps_pack...
// then resets."
func (d *Decoder) onNewPack(pack *Pack) {
	if d.curPack != nil {
		if len(d.packMsgs) > 0 {
			d.emitPack()
		}
		// Carry forward stream types decided by an earlier PSM: devices
		// commonly send one PSM per session, not one per pack.
		pack.VideoStreamType = d.curPack.VideoStreamType
		pack.AudioStreamType = d.curPack.AudioStreamType
	}
	d.nextPackID++
	pack.ID = d.nextPackID
	d.curPack = pack
	d.Stats.Packs++
}

func (d *Decoder) emitPack() {
	msgs := d.packMsgs
	d.packMsgs = nil
	if err := d.handler.OnPack(d.curPack, msgs); err != nil {
		// The handler (session/mux) is responsible for its own error
		// handling; the demux has already done its job by delivering the
		// pack.
		_ = err
	}
}

// finishMessage applies the DTS/PTS inheritance rule (spec.md section
// 4.3: "if an incoming PES message has dts=0 or pts=0 but the previous
// message in the current pack had non-zero values, inherit them") and
// queues the message for the pack it belongs to.
func (d *Decoder) finishMessage(msg *Message) {
	if len(d.packMsgs) > 0 {
		last := d.packMsgs[len(d.packMsgs)-1]
		if msg.DTS == 0 {
			msg.DTS = last.DTS
		}
		if msg.PTS == 0 {
			msg.PTS = last.PTS
		}
	}
	msg.complete = true
	d.packMsgs = append(d.packMsgs, msg)
	d.Stats.Messages++
}

// Flush emits whatever pack is still pending messages, for callers that
// need a final drain on connection teardown.
func (d *Decoder) Flush() {
	if d.curPack != nil && len(d.packMsgs) > 0 {
		d.emitPack()
	}
}
