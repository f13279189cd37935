package ps

// Pack is one MPEG-PS pack: the pack header plus whatever system header
// and PSM accompanied it (spec.md section 3).
type Pack struct {
	ID uint64 // monotonic counter per Decoder, "pack-id"

	HasPackHeader   bool
	HasSystemHeader bool

	SystemClockReferenceBase uint64
	ProgramMuxRate           uint32

	RateBound  uint32
	VideoBound uint8
	AudioBound uint8

	VideoStreamType byte // mpeg2.PS_STREAM_H264 or mpeg2.PS_STREAM_H265, from the PSM
	AudioStreamType byte // mpeg2.PS_STREAM_AAC, from the PSM
}

// Message is one PES message: a complete video/audio/private-stream
// payload plus its timestamps and originating RTP info (spec.md section
// 3, "PES message").
type Message struct {
	Class StreamClass
	SID   byte

	DTS uint64
	PTS uint64

	// Payload accumulates PES payload bytes as they arrive, possibly
	// across several TCP segments, until PacketLength is reached or a new
	// pack/PES begins.
	Payload []byte

	// PacketLength is the payload size the PES header declares
	// (PES_packet_length less the optional header fields); a negative value
	// means "unbounded" (PES_packet_length 0, read until the next start
	// code), which MPEG-PS allows for video.
	PacketLength int

	RTP RTPInfo

	complete bool
}

func (m *Message) IsVideo() bool   { return m.Class == StreamVideo }
func (m *Message) IsAudio() bool   { return m.Class == StreamAudio }
func (m *Message) IsPrivate() bool { return m.Class == StreamPrivate }

// classify maps a PES stream-id byte to its class, per spec.md section 4.3.
func classify(sid byte) StreamClass {
	switch {
	case sid >= 0xE0 && sid <= 0xEF:
		return StreamVideo
	case sid >= 0xC0 && sid <= 0xDF:
		return StreamAudio
	default:
		return StreamPrivate
	}
}

// Stats accumulates the per-pack-context counters spec.md section 3/4.3
// names: packs, messages, recovered episodes, dropped messages, and how
// many reads left unconsumed bytes behind (kept as "reserved" for the next
// read, or dropped when over the 128-byte cap).
type Stats struct {
	Packs     uint64
	Messages  uint64
	Recovered uint64
	Dropped   uint64
	Reserved  uint64
}
