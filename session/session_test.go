package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gb28181gw/gateway/dialog"
	"github.com/gb28181gw/gateway/mux"
	"github.com/gb28181gw/gateway/ps"
	"github.com/gb28181gw/gateway/rtmpsink"
	"github.com/gb28181gw/gateway/sip"
)

const registerWire = "REGISTER sip:3402000000 SIP/2.0\r\n" +
	"Via: SIP/2.0/TCP 10.0.0.5:5060;branch=z9hG4bK-reg-1\r\n" +
	"From: <sip:34020000001320000001@3402000000>;tag=307202390\r\n" +
	"To: <sip:34020000001320000001@3402000000>\r\n" +
	"Call-ID: reg-call-1\r\n" +
	"CSeq: 1 REGISTER\r\n" +
	"Expires: 3600\r\n" +
	"Content-Length: 0\r\n\r\n"

func mustParseRequest(t *testing.T, raw string) *sip.Request {
	t.Helper()
	msg, err := sip.ParseMessage([]byte(raw))
	require.NoError(t, err)
	req, ok := msg.(*sip.Request)
	require.True(t, ok)
	return req
}

type fakeSIPConn struct {
	sent []sip.Message
}

func (f *fakeSIPConn) Send(msg sip.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fakeMediaConn struct {
	stats  ps.Stats
	closed bool
}

func (f *fakeMediaConn) Stats() ps.Stats { return f.stats }
func (f *fakeMediaConn) Close() error    { f.closed = true; return nil }

func testConfig() Config {
	return Config{
		SIPHost:      "10.0.0.9",
		SIPPort:      5060,
		MediaPort:    8000,
		GatewayID:    "gbgw",
		Candidate:    "10.0.0.9",
		SIPTimeout:   200 * time.Millisecond,
		ReinviteWait: 200 * time.Millisecond,
	}
}

func newRegisteredSession(t *testing.T) (*Session, *fakeSIPConn) {
	t.Helper()
	dlg := dialog.NewDialog("10.0.0.9", 5060, "gbgw")
	req := mustParseRequest(t, registerWire)
	dlg.OnRegister(req)

	sink := rtmpsink.NewRecorder()
	sess := newSession("34020000001320000001", dlg, testConfig(), sink)
	conn := &fakeSIPConn{}
	sess.bindSIPConn(conn)
	return sess, conn
}

func TestSessionTickInitSendsInviteOnceRegistered(t *testing.T) {
	sess, _ := newRegisteredSession(t)
	needsInvite, timedOut := sess.tick(time.Now())
	assert.True(t, needsInvite)
	assert.False(t, timedOut)
}

func TestSessionTickConnectingBeforeTimeoutDoesNothing(t *testing.T) {
	sess, _ := newRegisteredSession(t)
	require.NoError(t, sess.startInvite("0123456789", 123456789, "10.0.0.9"))

	needsInvite, timedOut := sess.tick(time.Now())
	assert.False(t, needsInvite)
	assert.False(t, timedOut)
}

func TestSessionTickConnectingTimesOutAfterThreeStrikes(t *testing.T) {
	sess, _ := newRegisteredSession(t)
	require.NoError(t, sess.startInvite("0123456789", 123456789, "10.0.0.9"))

	past := time.Now().Add(time.Second)
	needsInvite, timedOut := sess.tick(past)
	assert.True(t, needsInvite)
	assert.False(t, timedOut)

	// Simulate two more rounds of "sent another INVITE, still no reply".
	require.NoError(t, sess.startInvite("0123456789", 123456789, "10.0.0.9"))
	needsInvite, timedOut = sess.tick(past.Add(time.Second))
	assert.True(t, needsInvite)
	assert.False(t, timedOut)

	require.NoError(t, sess.startInvite("0123456789", 123456789, "10.0.0.9"))
	needsInvite, timedOut = sess.tick(past.Add(2 * time.Second))
	assert.False(t, needsInvite, "a session that just failed should not also be re-invited")
	assert.True(t, timedOut)
}

func TestSessionOnInviteOKSendsACK(t *testing.T) {
	sess, conn := newRegisteredSession(t)
	require.NoError(t, sess.startInvite("0123456789", 123456789, "10.0.0.9"))
	require.Len(t, conn.sent, 1)
	invite, ok := conn.sent[0].(*sip.Request)
	require.True(t, ok)
	require.True(t, invite.IsInvite())

	res := sip.NewResponseFromRequest(invite, sip.StatusOK, "OK", nil)
	require.True(t, res.IsInviteOK())
	sess.dlg.OnInviteResponse(res)
	sess.onInviteOK()

	require.Len(t, conn.sent, 2)
	ack, ok := conn.sent[1].(*sip.Request)
	require.True(t, ok)
	assert.True(t, ack.IsAck())
}

func TestSessionEstablishedReinviteWaitFallsBackToInit(t *testing.T) {
	sess, _ := newRegisteredSession(t)
	require.NoError(t, sess.startInvite("0123456789", 123456789, "10.0.0.9"))

	sess.mu.Lock()
	sess.setPhase(PhaseEstablished)
	sess.mu.Unlock()

	needsInvite, timedOut := sess.tick(time.Now().Add(time.Second))
	assert.True(t, needsInvite)
	assert.False(t, timedOut)

	state, _, _ := sess.dlg.Snapshot()
	assert.Equal(t, dialog.Registered, state)
}

func TestSessionEstablishedWithBoundMediaNeverFallsBack(t *testing.T) {
	sess, _ := newRegisteredSession(t)
	require.NoError(t, sess.startInvite("0123456789", 123456789, "10.0.0.9"))
	sess.bindMedia(&fakeMediaConn{})

	needsInvite, timedOut := sess.tick(time.Now().Add(time.Second))
	assert.False(t, needsInvite)
	assert.False(t, timedOut)
}

// adtsFrame is one minimal, well-formed 9-byte ADTS frame (7-byte header,
// AAC-LC, 44.1kHz, stereo, 2 bytes of raw payload).
var adtsFrame = []byte{0xFF, 0xF1, 0x50, 0x80, 0x01, 0x20, 0x00, 0xAB, 0xCD}

func TestSessionOnPackAggregatesVideoAndPublishesAudio(t *testing.T) {
	sess, _ := newRegisteredSession(t)
	sink := sess.sink.(*rtmpsink.Recorder)

	pack := &ps.Pack{VideoStreamType: byte(mux.VideoCodecH264)}
	sps := []byte{0, 0, 0, 1, 0x67, 0xAA}
	pps := []byte{0, 0, 0, 1, 0x68, 0xBB}
	idr := []byte{0, 0, 0, 1, 0x65, 0xCC, 0xDD}

	msgs := []*ps.Message{
		{Class: ps.StreamVideo, SID: 0xE0, DTS: 900, PTS: 900, Payload: append(append([]byte{}, sps...), pps...)},
		{Class: ps.StreamVideo, SID: 0xE0, DTS: 900, PTS: 900, Payload: idr},
		{Class: ps.StreamAudio, SID: 0xC0, DTS: 900, Payload: adtsFrame},
	}
	require.NoError(t, sess.onPack(pack, msgs))

	// The reorder queue only drains once both streams clear their floor
	// (mux's dequeueVideoFloor/dequeueAudioFloor), so a second pack with one
	// more video and audio message each is needed before anything reaches
	// the sink.
	msgs2 := []*ps.Message{
		{Class: ps.StreamVideo, SID: 0xE0, DTS: 1800, PTS: 1800, Payload: idr},
		{Class: ps.StreamAudio, SID: 0xC0, DTS: 1800, Payload: adtsFrame},
	}
	require.NoError(t, sess.onPack(pack, msgs2))

	snap := sink.Snapshot()
	assert.NotEmpty(t, snap)

	sess.mu.Lock()
	phase := sess.phase
	sess.mu.Unlock()
	assert.Equal(t, PhaseEstablished, phase)
}
