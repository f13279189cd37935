package sip

import (
	"io"
	"strings"
)

// Request is a SIP request: REGISTER, MESSAGE, INVITE, ACK, or BYE (spec.md
// section 4.1 — any other method fails to parse).
type Request struct {
	MessageData
	Method    RequestMethod
	Recipient Uri

	// Source is the connection-level remote address this request arrived
	// on, set by the transport, not the parser.
	Source string
}

// NewRequest builds a bare request with no headers; callers append them.
func NewRequest(method RequestMethod, recipient Uri) *Request {
	req := &Request{Method: method, Recipient: recipient}
	req.SipVersion = "SIP/2.0"
	req.headers = headers{headerOrder: make([]Header, 0, 10)}
	return req
}

func (req *Request) StartLine() string {
	var sb strings.Builder
	req.StartLineWrite(&sb)
	return sb.String()
}

func (req *Request) StartLineWrite(buffer io.StringWriter) {
	buffer.WriteString(string(req.Method))
	buffer.WriteString(" ")
	req.Recipient.StringWrite(buffer)
	buffer.WriteString(" ")
	buffer.WriteString(req.SipVersion)
}

func (req *Request) String() string {
	var sb strings.Builder
	req.StringWrite(&sb)
	return sb.String()
}

func (req *Request) StringWrite(buffer io.StringWriter) {
	req.StartLineWrite(buffer)
	buffer.WriteString("\r\n")
	req.headers.StringWrite(buffer)
	if req.body != nil {
		buffer.WriteString(string(req.body))
	}
}

func (req *Request) IsRegister() bool { return req.Method == REGISTER }
func (req *Request) IsInvite() bool   { return req.Method == INVITE }
func (req *Request) IsAck() bool      { return req.Method == ACK }
func (req *Request) IsBye() bool      { return req.Method == BYE }
func (req *Request) IsMessage() bool  { return req.Method == MESSAGE }

// DeviceID returns the From-address user, the GB28181 device identifier.
func (req *Request) DeviceID() string {
	if from, ok := req.From(); ok {
		return from.Address.User
	}
	return ""
}
