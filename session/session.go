// Package session is the controller tying every other package together:
// one Session per device, driving the SIP dialog state machine and
// owning the mux.Bridge that turns a device's media connection into an
// RTMP stream (spec.md section 4.5).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gb28181gw/gateway/dialog"
	"github.com/gb28181gw/gateway/gbgwerrors"
	"github.com/gb28181gw/gateway/mux"
	"github.com/gb28181gw/gateway/ps"
	"github.com/gb28181gw/gateway/rtmpsink"
	"github.com/gb28181gw/gateway/sip"
)

// Phase is the session-level state spec.md section 4.5 names, distinct
// from (but driven by) the finer-grained dialog.State.
type Phase int

const (
	// PhaseInit: registered, no media flowing, no INVITE outstanding.
	PhaseInit Phase = iota
	// PhaseConnecting: an INVITE has been sent and we are waiting for the
	// 200 OK and the first media pack.
	PhaseConnecting
	// PhaseEstablished: media is flowing.
	PhaseEstablished
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseConnecting:
		return "connecting"
	case PhaseEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// Stats is the snapshot spec.md section 3/9 calls "accumulated
// statistics", combining the media decoder's counters with this
// session's phase and its connecting-timeout count.
type Stats struct {
	ps.Stats
	Phase           Phase
	ConnectTimeouts int
}

// Session is one device's end-to-end state: SIP dialog, allocated SSRC,
// bound media connection, and the mux.Bridge publishing its output.
type Session struct {
	deviceID string
	cfg      Config
	sink     rtmpsink.Sink

	mu sync.Mutex

	dlg *dialog.Dialog

	sipConn sipSender

	phase           Phase
	phaseSince      time.Time
	connectTimeouts int

	mediaConn  mediaStatter
	mediaBound bool

	bridge *mux.Bridge

	closed bool
}

// sipSender is the subset of siptransport.Conn a Session needs, kept
// narrow so tests can supply a lightweight fake instead of a real
// net.Conn-backed transport.
type sipSender interface {
	Send(msg sip.Message) error
}

// mediaStatter is the subset of mediatransport.Conn a Session needs for
// stats reporting and forced teardown on rebind.
type mediaStatter interface {
	Stats() ps.Stats
	Close() error
}

// newSession constructs a Session in PhaseInit for a freshly registered
// device. dlg must already have processed the REGISTER that created it.
func newSession(deviceID string, dlg *dialog.Dialog, cfg Config, sink rtmpsink.Sink) *Session {
	return &Session{
		deviceID:   deviceID,
		cfg:        cfg,
		sink:       sink,
		dlg:        dlg,
		phase:      PhaseInit,
		phaseSince: time.Now(),
	}
}

// DeviceID returns the device identifier this session is keyed by.
func (s *Session) DeviceID() string { return s.deviceID }

// Snapshot returns the session's current combined stats.
func (s *Session) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Phase: s.phase, ConnectTimeouts: s.connectTimeouts}
	if s.mediaConn != nil {
		st.Stats = s.mediaConn.Stats()
	}
	return st
}

// bindSIPConn attaches (or re-attaches, on SIP reconnect) the live SIP
// transport connection this session sends INVITE/ACK over.
func (s *Session) bindSIPConn(conn sipSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sipConn = conn
}

// setPhase transitions the session to phase, resetting the phase clock;
// callers must hold s.mu.
func (s *Session) setPhase(phase Phase) {
	s.phase = phase
	s.phaseSince = time.Now()
}

// onInviteOK is called by the Manager once the dialog has recorded a
// 200 OK to our INVITE (spec.md section 4.5: Connecting -> Established
// transitions once media actually starts flowing, tracked separately by
// onPack; the OK by itself only confirms the SIP half succeeded).
func (s *Session) onInviteOK() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sendACK(); err != nil {
		slog.Default().Warn("session: failed to send ACK", "device", s.deviceID, "error", err)
	}
}

// sendACK builds and sends the ACK for the dialog's cached 200 OK;
// callers must hold s.mu.
func (s *Session) sendACK() error {
	ack, err := s.dlg.BuildACK()
	if err != nil {
		return err
	}
	if s.sipConn == nil {
		return fmt.Errorf("session: no SIP connection to send ACK on")
	}
	return s.sipConn.Send(ack)
}

// startInvite builds and sends the INVITE for ssrc (which the Manager
// allocated, or reused from the dialog on a retry) and moves to
// Connecting. candidateIP is the resolved media candidate address from
// config.
func (s *Session) startInvite(ssrc string, ssrcNumeric uint32, candidateIP string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.dlg.BuildInvite(ssrc, ssrcNumeric, s.cfg.MediaPort, candidateIP)
	if err != nil {
		return err
	}
	if s.sipConn == nil {
		return fmt.Errorf("session: no SIP connection to send INVITE on")
	}
	if err := s.sipConn.Send(req); err != nil {
		return err
	}
	s.dlg.MarkInviteSent(req)
	s.setPhase(PhaseConnecting)
	return nil
}

// bindMedia attaches the media connection that is now delivering this
// device's RTP stream, per the SSRC-keyed binding spec.md section 4.6
// describes. A previously bound connection (a stale reconnect) is
// closed.
func (s *Session) bindMedia(conn mediaStatter) {
	s.mu.Lock()
	prev := s.mediaConn
	s.mediaConn = conn
	s.mediaBound = true
	s.mu.Unlock()

	if prev != nil && prev != conn {
		_ = prev.Close()
	}
}

// onMediaClosed clears the media binding if conn is still the one bound,
// so a later tick's reinvite_wait fallback can fire (spec.md section
// 4.5). It does not by itself force a re-INVITE; the tick loop owns that
// decision once reinvite_wait has elapsed.
func (s *Session) onMediaClosed(conn mediaStatter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mediaConn == conn {
		s.mediaConn = nil
		s.mediaBound = false
	}
}

// onPack is the mediatransport.Handler callback, invoked once per PS
// pack carrying at least one message. It aggregates every video PES
// message in the pack into a single payload (spec.md section 4.4's
// "concatenate the video PES messages of one pack into one logical
// video sample"), pushes audio messages individually, drops private
// messages, and lazily constructs the Bridge once the pack's declared
// video codec is known.
func (s *Session) onPack(pack *ps.Pack, msgs []*ps.Message) error {
	s.mu.Lock()
	if s.phase != PhaseEstablished {
		s.setPhase(PhaseEstablished)
	}
	if s.bridge == nil && pack.VideoStreamType != 0 {
		s.bridge = mux.NewBridge(s.sink, s.deviceID, mux.VideoCodec(pack.VideoStreamType))
	}
	bridge := s.bridge
	s.mu.Unlock()

	if bridge == nil {
		// No PSM seen yet for this pack context; nothing we can mux.
		return nil
	}

	ctx := context.Background()

	var videoPayload []byte
	var videoDTS, videoPTS uint64
	haveVideo := false

	for _, m := range msgs {
		switch {
		case m.IsVideo():
			if !haveVideo {
				videoDTS, videoPTS = m.DTS, m.PTS
				haveVideo = true
			}
			videoPayload = append(videoPayload, m.Payload...)
		case m.IsAudio():
			if err := bridge.PushAudio(ctx, m.DTS, m.Payload); err != nil {
				slog.Default().Warn("session: audio push failed", "device", s.deviceID, "error", err)
			}
		default:
			// private stream: dropped per spec.md section 4.4.
		}
	}

	if haveVideo {
		if err := bridge.PushVideo(ctx, videoDTS, videoPTS, videoPayload); err != nil {
			if !gbgwerrors.OfCategory(err, gbgwerrors.H264DropBeforeSPSPPS) {
				slog.Default().Warn("session: video push failed", "device", s.deviceID, "error", err)
			}
		}
	}
	return nil
}

// onRecoverMode is the mediatransport.Handler callback for recover-mode
// entry; the in-flight Bridge sample queue is left untouched since
// recovery only discards the PS decoder's own in-progress pack, not
// already-muxed output.
func (s *Session) onRecoverMode(count int) {
	slog.Default().Warn("session: media decoder entered recover mode", "device", s.deviceID, "count", count)
}

// tick drives the session's timeout/reinvite supervisory logic once per
// Manager tick interval (spec.md section 4.5):
//
//   - Connecting for longer than cfg.SIPTimeout: count a timeout and
//     reset SIP state to Registered so the caller retries the INVITE
//     from scratch; after maxConnectingTimeouts strikes, give up instead
//     and report the session failed (spec.md section 4.5/7's
//     GB_TIMEOUT — "after 3 timeouts -> fail the session").
//   - Established with no bound media connection for longer than
//     cfg.ReinviteWait: reset SIP state to Registered and fall back to
//     Init so the caller re-issues an INVITE.
//
// tick returns needsInvite=true if the caller should attempt a fresh
// INVITE this round, and failed=true if the session just exceeded its
// connecting-timeout budget and the caller must terminate it instead
// (needsInvite is always false when failed is true: there is no point
// re-inviting a session that is being torn down).
func (s *Session) tick(now time.Time) (needsInvite bool, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseConnecting:
		if now.Sub(s.phaseSince) < s.cfg.SIPTimeout {
			return false, false
		}
		s.connectTimeouts++
		if s.connectTimeouts >= maxConnectingTimeouts {
			return false, true
		}
		s.dlg.ResetToRegistered()
		s.setPhase(PhaseInit)
		return true, false

	case PhaseEstablished:
		if s.mediaBound {
			return false, false
		}
		if now.Sub(s.phaseSince) < s.cfg.ReinviteWait {
			return false, false
		}
		s.dlg.ResetToRegistered()
		s.setPhase(PhaseInit)
		return true, false

	case PhaseInit:
		state, _, _ := s.dlg.Snapshot()
		return state == dialog.Registered, false

	default:
		return false, false
	}
}

// close tears down any bound media connection and resets the Bridge;
// called when the Manager terminates this session (on BYE or after the
// connecting timeout gives up). A SIP disconnect alone does not call it,
// since a reconnect reuses the Session.
func (s *Session) close() {
	s.mu.Lock()
	conn := s.mediaConn
	s.mediaConn = nil
	s.mediaBound = false
	s.closed = true
	if s.bridge != nil {
		s.bridge.Reset()
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}
