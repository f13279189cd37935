package sip

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerMessage(deviceID, fromHost, callID string, cseq uint32) string {
	return "REGISTER sip:" + fromHost + " SIP/2.0\r\n" +
		"Via: SIP/2.0/TCP 10.0.0.5:5060;branch=z9hG4bK-test-1\r\n" +
		"From: <sip:" + deviceID + "@" + fromHost + ">;tag=abc123\r\n" +
		"To: <sip:" + deviceID + "@" + fromHost + ">\r\n" +
		"Call-ID: " + callID + "\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Max-Forwards: 70\r\n" +
		"Expires: 3600\r\n" +
		"Content-Length: 0\r\n\r\n"
}

func TestParseSIPRoundTrip(t *testing.T) {
	raw := registerMessage("34020000001320000001", "3402000000", "call-1", 1)

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)

	req, ok := msg.(*Request)
	require.True(t, ok)
	assert.True(t, req.IsRegister())
	assert.Equal(t, "34020000001320000001", req.DeviceID())

	from, ok := req.From()
	require.True(t, ok)
	assert.Equal(t, "abc123", from.Tag())

	via, ok := req.Via()
	require.True(t, ok)
	assert.Equal(t, "TCP", via.Transport)
	assert.True(t, len(via.Branch()) > 0)

	// Re-parsing the serialized form must recover the same headers.
	again, err := ParseMessage([]byte(req.String()))
	require.NoError(t, err)
	reqAgain := again.(*Request)
	assert.Equal(t, req.DeviceID(), reqAgain.DeviceID())
	assert.Equal(t, req.Method, reqAgain.Method)
}

func TestParseSIPRejectsUnknownMethod(t *testing.T) {
	raw := "CANCEL sip:3402000000 SIP/2.0\r\n" +
		"Via: SIP/2.0/TCP 10.0.0.5:5060;branch=z9hG4bK-test-2\r\n" +
		"From: <sip:a@3402000000>;tag=abc123\r\n" +
		"To: <sip:a@3402000000>\r\n" +
		"Call-ID: call-2\r\n" +
		"CSeq: 1 CANCEL\r\n" +
		"Content-Length: 0\r\n\r\n"

	_, err := ParseMessage([]byte(raw))
	require.Error(t, err)
}

func TestParseSIPRejectsMissingFromTag(t *testing.T) {
	raw := "REGISTER sip:3402000000 SIP/2.0\r\n" +
		"Via: SIP/2.0/TCP 10.0.0.5:5060;branch=z9hG4bK-test-3\r\n" +
		"From: <sip:a@3402000000>\r\n" +
		"To: <sip:a@3402000000>\r\n" +
		"Call-ID: call-3\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Content-Length: 0\r\n\r\n"

	_, err := ParseMessage([]byte(raw))
	require.Error(t, err)
}

func TestParseSIPRejectsMissingBranchCookie(t *testing.T) {
	raw := "REGISTER sip:3402000000 SIP/2.0\r\n" +
		"Via: SIP/2.0/TCP 10.0.0.5:5060;branch=nomagic-1\r\n" +
		"From: <sip:a@3402000000>;tag=abc123\r\n" +
		"To: <sip:a@3402000000>\r\n" +
		"Call-ID: call-4\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Content-Length: 0\r\n\r\n"

	_, err := ParseMessage([]byte(raw))
	require.Error(t, err)
}

func TestParseSIPRejectsBadViaTransport(t *testing.T) {
	raw := "REGISTER sip:3402000000 SIP/2.0\r\n" +
		"Via: SIP/2.0/WS 10.0.0.5:5060;branch=z9hG4bK-test-5\r\n" +
		"From: <sip:a@3402000000>;tag=abc123\r\n" +
		"To: <sip:a@3402000000>\r\n" +
		"Call-ID: call-5\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Content-Length: 0\r\n\r\n"

	_, err := ParseMessage([]byte(raw))
	require.Error(t, err)
}

func TestParseSIPRejectsMissingContentLength(t *testing.T) {
	raw := "REGISTER sip:3402000000 SIP/2.0\r\n" +
		"Via: SIP/2.0/TCP 10.0.0.5:5060;branch=z9hG4bK-test-6\r\n" +
		"From: <sip:a@3402000000>;tag=abc123\r\n" +
		"To: <sip:a@3402000000>\r\n" +
		"Call-ID: call-6\r\n" +
		"CSeq: 1 REGISTER\r\n\r\n"

	_, err := ParseMessage([]byte(raw))
	require.Error(t, err)
}

func TestParseSIPResponse(t *testing.T) {
	raw := "SIP/2.0 200 OK\r\n" +
		"Via: SIP/2.0/TCP 10.0.0.5:5060;branch=z9hG4bK-test-7\r\n" +
		"From: <sip:a@3402000000>;tag=abc123\r\n" +
		"To: <sip:a@3402000000>;tag=xyz789\r\n" +
		"Call-ID: call-7\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Content-Length: 0\r\n\r\n"

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	res := msg.(*Response)
	assert.True(t, res.IsSuccess())
	assert.Equal(t, StatusOK, res.StatusCode)
}

func TestParserStreamAcrossWrites(t *testing.T) {
	raw := registerMessage("34020000001320000002", "3402000000", "call-8", 1)
	ps := NewParser().NewSIPStream()

	half := len(raw) / 2
	_, err := ps.Write([]byte(raw[:half]))
	require.NoError(t, err)

	_, _, err = ps.ParseNext()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ps.Write([]byte(raw[half:]))
	require.NoError(t, err)

	msg, _, err := ps.ParseNext()
	require.NoError(t, err)
	req := msg.(*Request)
	assert.Equal(t, "34020000001320000002", req.DeviceID())
}
