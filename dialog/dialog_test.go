package dialog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gb28181gw/gateway/registry"
	"github.com/gb28181gw/gateway/sip"
)

func mustParseRequest(t *testing.T, raw string) *sip.Request {
	t.Helper()
	msg, err := sip.ParseMessage([]byte(raw))
	require.NoError(t, err)
	req, ok := msg.(*sip.Request)
	require.True(t, ok)
	return req
}

func registerRequest(deviceID string, expires int) string {
	return "REGISTER sip:3402000000 SIP/2.0\r\n" +
		"Via: SIP/2.0/TCP 10.0.0.5:5060;branch=z9hG4bK-reg-1\r\n" +
		"From: <sip:" + deviceID + "@3402000000>;tag=307202390\r\n" +
		"To: <sip:" + deviceID + "@3402000000>\r\n" +
		"Call-ID: reg-call-1\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Expires: " + itoa(expires) + "\r\n" +
		"Content-Length: 0\r\n\r\n"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestDialogRegisterHandshake(t *testing.T) {
	d := NewDialog("10.0.0.9", 5060, "gbgw")
	req := mustParseRequest(t, registerRequest("34020000001320000001", 3600))

	res := d.OnRegister(req)

	assert.Equal(t, Registered, d.State)
	assert.Equal(t, sip.StatusOK, res.StatusCode)

	via, ok := res.Via()
	require.True(t, ok)
	assert.Equal(t, "TCP", via.Transport)

	from, ok := res.From()
	require.True(t, ok)
	assert.Equal(t, "307202390", from.Tag())

	expiresHdr, ok := res.Expires()
	require.True(t, ok)
	assert.Equal(t, sip.ExpiresHeader(3600), *expiresHdr)
}

func TestDialogRegisterExpiresZeroGoesToBye(t *testing.T) {
	d := NewDialog("10.0.0.9", 5060, "gbgw")
	req := mustParseRequest(t, registerRequest("34020000001320000001", 0))

	d.OnRegister(req)
	assert.Equal(t, Bye, d.State)
}

func TestDialogInviteSubjectAndSDP(t *testing.T) {
	d := NewDialog("10.0.0.9", 5060, "gbgw")
	d.OnRegister(mustParseRequest(t, registerRequest("34020000001320000001", 3600)))
	d.MarkInviteSent(nil)
	assert.Equal(t, Inviting, d.State)

	reg := New_Registry(t)
	ssrc, numeric, err := AllocateSSRC("34020000001320000001", reg)
	require.NoError(t, err)
	assert.Len(t, ssrc, 10)
	assert.Equal(t, "0000"[:0]+"0", ssrc[:1])

	invite, err := d.BuildInvite(ssrc, numeric, 30000, "10.0.0.9")
	require.NoError(t, err)

	assert.True(t, invite.IsInvite())
	assert.Equal(t, "sip:34020000001320000001@3402000000", invite.Recipient.String())

	subject, ok := invite.GetHeader("Subject").(*sip.SubjectHeader)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(string(*subject), "34020000001320000001:"+ssrc+","))

	via, ok := invite.Via()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(via.Branch(), sip.RFC3261BranchMagicCookie))

	from, ok := invite.From()
	require.True(t, ok)
	assert.NotEmpty(t, from.Tag())

	offer, err := sip.ParseSDP(string(invite.Body()))
	require.NoError(t, err)
	assert.Equal(t, numeric, offer.SSRC)
	assert.Equal(t, 30000, offer.MediaPort)
}

func New_Registry(t *testing.T) *registry.Registry[string] {
	t.Helper()
	return registry.New[string]()
}
