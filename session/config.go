package session

import "time"

// Config carries the pieces of the process-level configuration surface
// (spec.md section 6) the session controller needs at runtime: timers,
// the gateway's own SIP/media identity, and the output URL template. The
// config package owns parsing this from YAML/env and hands the Manager
// one of these.
type Config struct {
	// SIPHost/SIPPort/MediaPort are this gateway's own listening
	// identity, used as the Via/From sent-by and the SDP m=video port on
	// every INVITE this gateway originates.
	SIPHost   string
	SIPPort   int
	MediaPort int

	// GatewayID is the "user" part of this gateway's own From/Contact
	// URIs on outbound SIP requests — a GB28181 platform identifier, not
	// named explicitly in spec.md section 3 but required to construct a
	// well-formed From header (recovered from
	// original_source/trunk/src/app/srs_app_gb28181.cpp's fixed
	// "34020000002000000001"-style platform id convention).
	GatewayID string

	// Candidate is the public IP/candidate string spec.md section 6
	// names: a literal IP, or "*" meaning "discover the public IP at
	// runtime".
	Candidate string

	// OutputURLTemplate is the RTMP publish URL template; "[stream]" is
	// replaced with the device-id.
	OutputURLTemplate string

	// SIPTimeout bounds how long a session may sit in Connecting before
	// a timeout is counted (spec.md section 4.5).
	SIPTimeout time.Duration

	// ReinviteWait bounds how long Established tolerates a disconnected
	// media connection before falling back to Init for a re-invite
	// (spec.md section 4.5).
	ReinviteWait time.Duration

	// HEVCEnabled gates H.265 PSM support in the PS demux (spec.md
	// section 4.3's HEVC gate).
	HEVCEnabled bool
}

// tickInterval is the fixed session-state-machine drive interval spec.md
// section 4.5 names ("Driven every 300 ms").
const tickInterval = 300 * time.Millisecond

// maxConnectingTimeouts is the "after 3 timeouts" bound spec.md section
// 4.5 names for failing a session stuck in Connecting.
const maxConnectingTimeouts = 3
