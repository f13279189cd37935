package sip

import (
	"io"
	"strconv"
	"strings"
)

// Uri is a "sip:" URI as used by the GB28181 device profile: user@host[:port]
// with optional ;param=value pairs. sips:, tel: and the wildcard '*' URI
// never appear on this wire format, so unlike a general-purpose SIP stack
// this type does not model them.
type Uri struct {
	User string
	Host string
	Port int

	UriParams HeaderParams
}

func (uri Uri) String() string {
	var buffer strings.Builder
	uri.StringWrite(&buffer)
	return buffer.String()
}

func (uri Uri) StringWrite(buffer io.StringWriter) {
	buffer.WriteString("sip:")
	if uri.User != "" {
		buffer.WriteString(uri.User)
		buffer.WriteString("@")
	}
	buffer.WriteString(uri.Host)
	if uri.Port > 0 {
		buffer.WriteString(":")
		buffer.WriteString(strconv.Itoa(uri.Port))
	}
	if uri.UriParams != nil && uri.UriParams.Length() > 0 {
		buffer.WriteString(";")
		buffer.WriteString(uri.UriParams.ToString(';'))
	}
}

func (uri Uri) Clone() Uri {
	c := uri
	c.UriParams = uri.UriParams.Clone()
	return c
}

func (uri Uri) HostPort() string {
	if uri.Port > 0 {
		return uri.Host + ":" + strconv.Itoa(uri.Port)
	}
	return uri.Host
}
