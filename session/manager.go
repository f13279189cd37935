package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gb28181gw/gateway/dialog"
	"github.com/gb28181gw/gateway/gbgwerrors"
	"github.com/gb28181gw/gateway/mediatransport"
	"github.com/gb28181gw/gateway/ps"
	"github.com/gb28181gw/gateway/registry"
	"github.com/gb28181gw/gateway/rtmpsink"
	"github.com/gb28181gw/gateway/sip"
	"github.com/gb28181gw/gateway/siptransport"
)

// SinkFactory constructs a fresh rtmpsink.Sink for a newly registered
// device. Each device needs its own Sink instance (its own RTMP
// connection/stream name), so the Manager cannot share one Sink across
// sessions the way it shares its registry.
type SinkFactory func(deviceID string) rtmpsink.Sink

// Manager is the single process-wide coordinator: it implements both
// transport packages' Binder/Handler interfaces, owns the device
// registry, and runs the 300ms tick loop that drives every session's
// state machine (spec.md section 4.5/4.6).
type Manager struct {
	cfg     Config
	newSink SinkFactory

	reg *registry.Registry[*Session]

	// connDevice remembers which device-id a live SIP Conn belongs to,
	// populated on REGISTER, so HandleResponse/Closed (which only ever
	// see the Conn, not the original request) can find the Session back
	// without re-parsing headers.
	connDevice sync.Map // *siptransport.Conn -> string

	candidateIP string

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager returns a Manager ready to bind SIP and media listeners to.
// candidateIP is the already-resolved media candidate address (config's
// literal IP, or the runtime-discovered one if configured as "*").
// newSink is called once per newly registered device to build its Sink.
func NewManager(cfg Config, newSink SinkFactory, candidateIP string) *Manager {
	m := &Manager{
		cfg:         cfg,
		newSink:     newSink,
		reg:         registry.New[*Session](),
		candidateIP: candidateIP,
		stop:        make(chan struct{}),
	}
	go m.tickLoop()
	return m
}

// Stop halts the tick loop. Listeners are stopped independently by
// closing their net.Listener.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// RangeSessions calls fn once per currently-registered Session, device-id
// keyed. Exposed so a process-level reporter (cmd/gbgw's metrics loop)
// can snapshot every session's Stats without the metrics package, which
// already imports session, importing back into it.
func (m *Manager) RangeSessions(fn func(deviceID string, sess *Session)) {
	m.reg.Range(func(id string, sess *Session) bool {
		fn(id, sess)
		return true
	})
}

func (m *Manager) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.tick(now)
		}
	}
}

func (m *Manager) tick(now time.Time) {
	m.reg.Range(func(_ string, sess *Session) bool {
		needsInvite, failed := sess.tick(now)
		if failed {
			err := gbgwerrors.New(gbgwerrors.Timeout, "session.tick",
				fmt.Errorf("device %s exceeded %d connecting timeouts", sess.DeviceID(), maxConnectingTimeouts))
			slog.Default().Error("session: connecting timed out, failing session", "device", sess.DeviceID(), "error", err)
			m.terminateSession(sess)
			return true
		}
		if needsInvite {
			m.reinvite(sess)
		}
		return true
	})
}

// terminateSession tears sess down for good: it interrupts its SIP/media
// connections (Session.close) and removes both registry keys it may be
// reachable under, per spec.md section 4.5's "on terminal exit, the
// session interrupts both peers then removes itself from the process
// registry".
func (m *Manager) terminateSession(sess *Session) {
	_, _, ssrcNumeric := sess.dlg.Snapshot()
	sess.close()
	m.reg.Remove(sess.DeviceID(), ssrcNumeric)
}

// reinvite allocates (or reuses) an SSRC and sends a fresh INVITE for
// sess, per spec.md section 4.5's Init -> Connecting transition.
func (m *Manager) reinvite(sess *Session) {
	_, ssrc, ssrcNumeric := sess.dlg.Snapshot()
	if ssrc == "" {
		userURI, ok := sess.dlg.RegisterRequestURIUser()
		if !ok {
			slog.Default().Warn("session: cannot re-invite, no cached REGISTER", "device", sess.DeviceID())
			return
		}
		var err error
		ssrc, ssrcNumeric, err = dialog.AllocateSSRC(userURI, m.reg)
		if err != nil {
			slog.Default().Error("session: SSRC allocation failed", "device", sess.DeviceID(), "error", err)
			return
		}
		m.reg.AddWithFastID(ssrcNumeric, sess)
	}
	if err := sess.startInvite(ssrc, ssrcNumeric, m.candidateIP); err != nil {
		slog.Default().Warn("session: sending INVITE failed", "device", sess.DeviceID(), "error", err)
	}
}

// ---- siptransport.Binder / siptransport.Handler ----

// Bind implements siptransport.Binder: every freshly accepted SIP
// connection starts with a bare dialog in Init; it only becomes useful
// once the device's first REGISTER arrives and HandleRequest resolves it
// to a Session.
func (m *Manager) Bind(raddr string) (*dialog.Dialog, siptransport.Handler) {
	dlg := dialog.NewDialog(m.cfg.SIPHost, m.cfg.SIPPort, m.cfg.GatewayID)
	return dlg, m
}

// HandleRequest implements siptransport.Handler.
func (m *Manager) HandleRequest(c *siptransport.Conn, req *sip.Request) {
	deviceID := req.DeviceID()

	switch {
	case req.IsRegister():
		m.handleRegister(c, req, deviceID)
	case req.IsMessage():
		res := c.Dialog.OnMessage(req)
		_ = c.Send(res)
	case req.IsBye():
		res := c.Dialog.OnBye(req)
		_ = c.Send(res)
		if sess, ok := m.reg.FindByID(deviceID); ok {
			m.terminateSession(sess)
		}
	default:
		slog.Default().Warn("session: unexpected request method", "method", req.Method, "remote", c.RemoteAddr())
	}
}

func (m *Manager) handleRegister(c *siptransport.Conn, req *sip.Request, deviceID string) {
	if prev, ok := m.reg.FindByID(deviceID); ok {
		c.Dialog.CopyFrom(prev.dlg)
		prev.dlg = c.Dialog
		prev.bindSIPConn(c)
		m.connDevice.Store(c, deviceID)
		res := c.Dialog.OnRegister(req)
		_ = c.Send(res)
		return
	}

	res := c.Dialog.OnRegister(req)
	sess := newSession(deviceID, c.Dialog, m.cfg, m.newSink(deviceID))
	sess.bindSIPConn(c)
	m.reg.AddWithID(deviceID, sess)
	m.connDevice.Store(c, deviceID)
	_ = c.Send(res)
}

// HandleResponse implements siptransport.Handler. Responses to our own
// INVITE/BYE mirror the recipient we originally addressed in their To
// header, which is the device-id (our own From carries the gateway's
// identity instead), so device lookup goes through connDevice rather
// than parsing headers.
func (m *Manager) HandleResponse(c *siptransport.Conn, res *sip.Response) {
	deviceID, ok := m.connDevice.Load(c)
	if !ok {
		slog.Default().Warn("session: response on an unregistered connection", "remote", c.RemoteAddr())
		return
	}
	sess, ok := m.reg.FindByID(deviceID.(string))
	if !ok {
		return
	}

	switch {
	case res.IsTrying():
		c.Dialog.OnInviteResponse(res)
	case res.IsInviteOK():
		c.Dialog.OnInviteResponse(res)
		sess.onInviteOK()
	case res.IsByeOK():
		c.Dialog.OnByeOK()
	}
}

// Closed implements siptransport.Handler. The Session survives a SIP
// disconnect (a reconnect rebinds it), but the stale Conn reference is
// dropped so a concurrent tick does not try to send on a closed socket.
func (m *Manager) Closed(c *siptransport.Conn) {
	deviceID, ok := m.connDevice.LoadAndDelete(c)
	if !ok {
		return
	}
	if sess, ok := m.reg.FindByID(deviceID.(string)); ok {
		sess.bindSIPConn(nil)
	}
}

// ---- mediatransport.Binder ----

// MediaBinder returns the mediatransport.Binder view of m. Go forbids
// two methods named Bind with different signatures on the same receiver,
// and Manager already has one for siptransport.Binder, so the media side
// is a separate, tiny wrapper type instead of a second Bind method.
func (m *Manager) MediaBinder() mediatransport.Binder {
	return (*managerMediaBinder)(m)
}

// managerMediaBinder is Manager under a distinct named type purely so it
// can carry its own Bind method for mediatransport.Binder; the two types
// share Manager's memory layout and methods via the conversion in
// MediaBinder.
type managerMediaBinder Manager

// Bind implements mediatransport.Binder. The device is not known until
// the connection's first pack arrives carrying the SSRC the gateway
// allocated for it, so Bind itself returns a thin per-connection shim
// that resolves lazily.
func (m *managerMediaBinder) Bind(raddr string) mediatransport.Handler {
	return &mediaBinding{mgr: (*Manager)(m), raddr: raddr}
}

// mediaBinding is the mediatransport.Handler for one accepted media
// connection before (and after) it has been matched to a Session by
// SSRC. Grounded on spec.md section 4.6: "the first RTP packet's SSRC
// resolves the connection to its Session"; this gateway approximates
// that at the pack granularity mediatransport.Handler exposes (the
// first whole pack, not the first raw RTP packet), documented in
// DESIGN.md.
type mediaBinding struct {
	mgr   *Manager
	raddr string

	mu   sync.Mutex
	sess *Session
}

func (b *mediaBinding) HandlePack(c *mediatransport.Conn, ssrc uint32, pack *ps.Pack, msgs []*ps.Message) {
	b.mu.Lock()
	sess := b.sess
	if sess == nil {
		var ok bool
		sess, ok = b.mgr.reg.FindByFastID(ssrc)
		if !ok {
			b.mu.Unlock()
			slog.Default().Warn("session: media pack for unknown SSRC, dropping", "ssrc", ssrc, "remote", b.raddr)
			return
		}
		b.sess = sess
		b.mu.Unlock()
		sess.bindMedia(c)
	} else {
		b.mu.Unlock()
	}

	if err := sess.onPack(pack, msgs); err != nil {
		slog.Default().Warn("session: pack handling failed", "device", sess.DeviceID(), "error", err)
	}
}

func (b *mediaBinding) HandleRecoverMode(c *mediatransport.Conn, count int) {
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()
	if sess != nil {
		sess.onRecoverMode(count)
	}
}

func (b *mediaBinding) Closed(c *mediatransport.Conn) {
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()
	if sess != nil {
		sess.onMediaClosed(c)
	}
}
