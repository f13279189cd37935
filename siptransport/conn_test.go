package siptransport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gb28181gw/gateway/dialog"
	"github.com/gb28181gw/gateway/sip"
)

type recordingHandler struct {
	requests chan *sip.Request
	closed   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		requests: make(chan *sip.Request, 4),
		closed:   make(chan struct{}),
	}
}

func (h *recordingHandler) HandleRequest(c *Conn, req *sip.Request)   { h.requests <- req }
func (h *recordingHandler) HandleResponse(c *Conn, res *sip.Response) {}
func (h *recordingHandler) Closed(c *Conn)                            { close(h.closed) }

const registerWire = "REGISTER sip:3402000000 SIP/2.0\r\n" +
	"Via: SIP/2.0/TCP 10.0.0.5:5060;branch=z9hG4bK-reg-1\r\n" +
	"From: <sip:34020000001320000001@3402000000>;tag=307202390\r\n" +
	"To: <sip:34020000001320000001@3402000000>\r\n" +
	"Call-ID: reg-call-1\r\n" +
	"CSeq: 1 REGISTER\r\n" +
	"Expires: 3600\r\n" +
	"Content-Length: 0\r\n\r\n"

func TestConnDispatchesParsedRequest(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	h := newRecordingHandler()
	c := New(server, sip.NewParser(), dialog.NewDialog("10.0.0.9", 5060, "gbgw"), h)
	defer c.Close()

	go func() {
		_, _ = client.Write([]byte(registerWire))
	}()

	select {
	case req := <-h.requests:
		assert.True(t, req.IsRegister())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched request")
	}
}

func TestConnSendWritesOnWire(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	defer client.Close()

	h := newRecordingHandler()
	c := New(server, sip.NewParser(), dialog.NewDialog("10.0.0.9", 5060, "gbgw"), h)
	defer c.Close()

	res := sip.NewResponseFromRequest(mustParse(t, registerWire), sip.StatusOK, "OK", nil)
	require.NoError(t, c.Send(res))

	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "SIP/2.0 200 OK")
}

func mustParse(t *testing.T, raw string) *sip.Request {
	t.Helper()
	msg, err := sip.ParseMessage([]byte(raw))
	require.NoError(t, err)
	req, ok := msg.(*sip.Request)
	require.True(t, ok)
	return req
}
