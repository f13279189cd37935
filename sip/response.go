package sip

import (
	"io"
	"strconv"
	"strings"
)

// Response is a SIP response: 100, 200, or an informational 4xx that this
// profile otherwise ignores (spec.md section 6).
type Response struct {
	MessageData
	StatusCode StatusCode
	Reason     string

	Source string
}

func NewResponse(status StatusCode, reason string) *Response {
	res := &Response{StatusCode: status, Reason: reason}
	res.SipVersion = "SIP/2.0"
	res.headers = headers{headerOrder: make([]Header, 0, 10)}
	return res
}

// NewResponseFromRequest builds a response that echoes Via/From/To/CSeq/
// Call-ID from req, following the teacher's sip.NewResponseFromRequest
// helper (sip/response.go in the sipgo package).
func NewResponseFromRequest(req *Request, status StatusCode, reason string, body []byte) *Response {
	res := NewResponse(status, reason)
	if via, ok := req.Via(); ok {
		res.AppendHeader(via.headerClone())
	}
	if from, ok := req.From(); ok {
		res.AppendHeader(from.headerClone())
	}
	if to, ok := req.To(); ok {
		res.AppendHeader(to.headerClone())
	}
	if callID, ok := req.CallID(); ok {
		res.AppendHeader(callID.headerClone())
	}
	if cseq, ok := req.CSeq(); ok {
		res.AppendHeader(cseq.headerClone())
	}
	if body != nil {
		res.SetBody(body)
	}
	return res
}

func (res *Response) StartLine() string {
	var sb strings.Builder
	res.StartLineWrite(&sb)
	return sb.String()
}

func (res *Response) StartLineWrite(buffer io.StringWriter) {
	buffer.WriteString(res.SipVersion)
	buffer.WriteString(" ")
	buffer.WriteString(strconv.Itoa(int(res.StatusCode)))
	buffer.WriteString(" ")
	buffer.WriteString(res.Reason)
}

func (res *Response) String() string {
	var sb strings.Builder
	res.StringWrite(&sb)
	return sb.String()
}

func (res *Response) StringWrite(buffer io.StringWriter) {
	res.StartLineWrite(buffer)
	buffer.WriteString("\r\n")
	res.headers.StringWrite(buffer)
	if res.body != nil {
		buffer.WriteString(string(res.body))
	}
}

func (res *Response) IsSuccess() bool { return res.StatusCode >= 200 && res.StatusCode < 300 }

func (res *Response) cseqMethod() RequestMethod {
	if cseq, ok := res.CSeq(); ok {
		return cseq.MethodName
	}
	return ""
}

// IsTrying reports a 100 response to an INVITE.
func (res *Response) IsTrying() bool {
	return res.StatusCode == StatusTrying && res.cseqMethod() == INVITE
}

// IsInviteOK reports a 200 response to an INVITE.
func (res *Response) IsInviteOK() bool {
	return res.IsSuccess() && res.cseqMethod() == INVITE
}

// IsByeOK reports a 200 response to a BYE.
func (res *Response) IsByeOK() bool {
	return res.IsSuccess() && res.cseqMethod() == BYE
}
