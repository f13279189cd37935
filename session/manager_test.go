package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gb28181gw/gateway/dialog"
	"github.com/gb28181gw/gateway/mediatransport"
	"github.com/gb28181gw/gateway/mux"
	"github.com/gb28181gw/gateway/ps"
	"github.com/gb28181gw/gateway/rtmpsink"
	"github.com/gb28181gw/gateway/sip"
	"github.com/gb28181gw/gateway/siptransport"
)

func managerTestConfig() Config {
	return Config{
		SIPHost:      "10.0.0.9",
		SIPPort:      5060,
		MediaPort:    8000,
		GatewayID:    "gbgw",
		Candidate:    "10.0.0.9",
		SIPTimeout:   time.Second,
		ReinviteWait: time.Second,
	}
}

func TestManagerBindReturnsFreshInitDialog(t *testing.T) {
	mgr := NewManager(managerTestConfig(), func(string) rtmpsink.Sink { return rtmpsink.NewRecorder() }, "10.0.0.9")
	defer mgr.Stop()

	dlg, handler := mgr.Bind("10.0.0.5:5060")
	assert.Same(t, mgr, handler)
	state, _, _ := dlg.Snapshot()
	assert.Equal(t, dialog.Init, state)
}

func TestManagerHandleRegisterCreatesSessionAndReplies200(t *testing.T) {
	mgr := NewManager(managerTestConfig(), func(string) rtmpsink.Sink { return rtmpsink.NewRecorder() }, "10.0.0.9")
	defer mgr.Stop()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	dlg, handler := mgr.Bind(server.RemoteAddr().String())
	conn := siptransport.New(server, sip.NewParser(), dlg, handler)
	defer conn.Close()

	go func() { _, _ = client.Write([]byte(registerWire)) }()

	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "SIP/2.0 200 OK")

	sess, ok := mgr.reg.FindByID("34020000001320000001")
	require.True(t, ok)
	assert.Equal(t, "34020000001320000001", sess.DeviceID())
}

func TestManagerTickSendsInviteForNewlyRegisteredSession(t *testing.T) {
	mgr := NewManager(managerTestConfig(), func(string) rtmpsink.Sink { return rtmpsink.NewRecorder() }, "10.0.0.9")
	defer mgr.Stop()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	dlg, handler := mgr.Bind(server.RemoteAddr().String())
	conn := siptransport.New(server, sip.NewParser(), dlg, handler)
	defer conn.Close()

	go func() { _, _ = client.Write([]byte(registerWire)) }()

	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "SIP/2.0 200 OK")

	// The tick loop runs every 300ms; within a couple of cycles it should
	// notice the session sitting in Registered and send an INVITE.
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = client.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "INVITE sip:")
}

func TestMediaBindingRoutesPackBySSRCToSession(t *testing.T) {
	mgr := NewManager(managerTestConfig(), func(string) rtmpsink.Sink { return rtmpsink.NewRecorder() }, "10.0.0.9")
	defer mgr.Stop()

	dlg := dialog.NewDialog("10.0.0.9", 5060, "gbgw")
	dlg.OnRegister(mustParseRequest(t, registerWire))
	sink := rtmpsink.NewRecorder()
	sess := newSession("34020000001320000001", dlg, managerTestConfig(), sink)
	sess.bindSIPConn(&fakeSIPConn{})
	mgr.reg.AddWithID(sess.DeviceID(), sess)
	mgr.reg.AddWithFastID(123456789, sess)

	binding := &mediaBinding{mgr: mgr, raddr: "10.0.0.5:9000"}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	mediaConn := mediatransport.New(server, binding)
	defer mediaConn.Close()

	pack := &ps.Pack{VideoStreamType: byte(mux.VideoCodecH264)}
	msgs := []*ps.Message{
		{Class: ps.StreamAudio, SID: 0xC0, DTS: 900, Payload: adtsFrame},
	}
	binding.HandlePack(mediaConn, 123456789, pack, msgs)

	sess.mu.Lock()
	bound := sess.mediaConn
	sess.mu.Unlock()
	assert.NotNil(t, bound)
}

func TestMediaBindingDropsUnknownSSRC(t *testing.T) {
	mgr := NewManager(managerTestConfig(), func(string) rtmpsink.Sink { return rtmpsink.NewRecorder() }, "10.0.0.9")
	defer mgr.Stop()

	binding := &mediaBinding{mgr: mgr, raddr: "10.0.0.5:9000"}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	mediaConn := mediatransport.New(server, binding)
	defer mediaConn.Close()

	pack := &ps.Pack{VideoStreamType: byte(mux.VideoCodecH264)}
	binding.HandlePack(mediaConn, 999, pack, nil)

	binding.mu.Lock()
	sess := binding.sess
	binding.mu.Unlock()
	assert.Nil(t, sess)
}

func TestManagerTickTerminatesSessionAfterThreeConnectingTimeouts(t *testing.T) {
	mgr := NewManager(managerTestConfig(), func(string) rtmpsink.Sink { return rtmpsink.NewRecorder() }, "10.0.0.9")
	defer mgr.Stop()

	sess, _ := newRegisteredSession(t)
	require.NoError(t, sess.startInvite("0123456789", 123456789, "10.0.0.9"))
	sess.connectTimeouts = maxConnectingTimeouts - 1 // one strike away from GB_TIMEOUT

	mgr.reg.AddWithID(sess.DeviceID(), sess)
	mgr.reg.AddWithFastID(123456789, sess)

	mgr.tick(time.Now().Add(2 * time.Second))

	_, ok := mgr.reg.FindByID(sess.DeviceID())
	assert.False(t, ok, "a session that exceeded maxConnectingTimeouts must be removed from the device-id registry")
	_, ok = mgr.reg.FindByFastID(123456789)
	assert.False(t, ok, "a session that exceeded maxConnectingTimeouts must be removed from the SSRC registry")
}
