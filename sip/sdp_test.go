package sip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSDPOfferRoundTrip(t *testing.T) {
	offer := SDPOffer{
		UserName:     "34020000001320000001",
		AddressIP:    "10.0.0.9",
		SessionName:  "Play",
		ConnectionIP: "10.0.0.9",
		MediaPort:    30000,
		PayloadType:  96,
		SSRC:         1234567890,
	}

	encoded := offer.Encode()
	decoded, err := ParseSDP(encoded)
	require.NoError(t, err)

	assert.Equal(t, offer.UserName, decoded.UserName)
	assert.Equal(t, offer.AddressIP, decoded.AddressIP)
	assert.Equal(t, offer.ConnectionIP, decoded.ConnectionIP)
	assert.Equal(t, offer.MediaPort, decoded.MediaPort)
	assert.Equal(t, offer.PayloadType, decoded.PayloadType)
	assert.Equal(t, offer.SSRC, decoded.SSRC)

	// The y= line must round-trip as a fixed 10-digit decimal string.
	reencoded := decoded.Encode()
	assert.Equal(t, encoded, reencoded)
}

func TestParseSDPRejectsMissingSSRC(t *testing.T) {
	raw := "v=0\r\n" +
		"o=34020000001320000001 0 0 IN IP4 10.0.0.9\r\n" +
		"s=Play\r\n" +
		"c=IN IP4 10.0.0.9\r\n" +
		"t=0 0\r\n" +
		"m=video 30000 TCP/RTP/AVP 96\r\n" +
		"a=recvonly\r\n" +
		"a=rtpmap:96 PS/90000\r\n"

	_, err := ParseSDP(raw)
	require.Error(t, err)
}
