package sip

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header is a single SIP header line.
type Header interface {
	Name() string
	Value() string
	String() string
	StringWrite(w io.StringWriter)
	headerClone() Header
}

// headers holds the ordered header list plus typed fast-access pointers for
// the headers this profile actually cares about, following the teacher's
// headers/headerOrder split (sip/headers.go in the sipgo package).
type headers struct {
	headerOrder []Header

	via           *ViaHeader
	from          *FromHeader
	to            *ToHeader
	callID        *CallIDHeader
	cseq          *CSeqHeader
	contact       *ContactHeader
	contentType   *ContentTypeHeader
	contentLength *ContentLengthHeader
	expires       *ExpiresHeader
	maxForwards   *MaxForwardsHeader
	subject       *SubjectHeader
}

func (hs *headers) StringWrite(buffer io.StringWriter) {
	for _, h := range hs.headerOrder {
		h.StringWrite(buffer)
		buffer.WriteString("\r\n")
	}
	buffer.WriteString("\r\n")
}

func (hs *headers) AppendHeader(header Header) {
	hs.headerOrder = append(hs.headerOrder, header)
	switch h := header.(type) {
	case *ViaHeader:
		hs.via = h
	case *FromHeader:
		hs.from = h
	case *ToHeader:
		hs.to = h
	case *CallIDHeader:
		hs.callID = h
	case *CSeqHeader:
		hs.cseq = h
	case *ContactHeader:
		hs.contact = h
	case *ContentTypeHeader:
		hs.contentType = h
	case *ContentLengthHeader:
		hs.contentLength = h
	case *ExpiresHeader:
		hs.expires = h
	case *MaxForwardsHeader:
		hs.maxForwards = h
	case *SubjectHeader:
		hs.subject = h
	}
}

func (hs *headers) ReplaceHeader(header Header) {
	nameLower := HeaderToLower(header.Name())
	for i, h := range hs.headerOrder {
		if HeaderToLower(h.Name()) == nameLower {
			hs.headerOrder[i] = header
			hs.indexTyped(header)
			return
		}
	}
	hs.AppendHeader(header)
}

// indexTyped updates the typed fast-access pointer for header without
// touching headerOrder; used by ReplaceHeader which manages order itself.
func (hs *headers) indexTyped(header Header) {
	switch h := header.(type) {
	case *ViaHeader:
		hs.via = h
	case *FromHeader:
		hs.from = h
	case *ToHeader:
		hs.to = h
	case *CallIDHeader:
		hs.callID = h
	case *CSeqHeader:
		hs.cseq = h
	case *ContactHeader:
		hs.contact = h
	case *ContentTypeHeader:
		hs.contentType = h
	case *ContentLengthHeader:
		hs.contentLength = h
	case *ExpiresHeader:
		hs.expires = h
	case *MaxForwardsHeader:
		hs.maxForwards = h
	case *SubjectHeader:
		hs.subject = h
	}
}

func (hs *headers) RemoveHeader(name string) {
	nameLower := HeaderToLower(name)
	for i, h := range hs.headerOrder {
		if HeaderToLower(h.Name()) == nameLower {
			hs.headerOrder = append(hs.headerOrder[:i], hs.headerOrder[i+1:]...)
			return
		}
	}
}

func (hs *headers) Headers() []Header { return hs.headerOrder }

func (hs *headers) GetHeaders(name string) []Header {
	nameLower := HeaderToLower(name)
	var out []Header
	for _, h := range hs.headerOrder {
		if HeaderToLower(h.Name()) == nameLower {
			out = append(out, h)
		}
	}
	return out
}

func (hs *headers) GetHeader(name string) Header {
	nameLower := HeaderToLower(name)
	for _, h := range hs.headerOrder {
		if HeaderToLower(h.Name()) == nameLower {
			return h
		}
	}
	return nil
}

func (hs *headers) CallID() (*CallIDHeader, bool)             { return hs.callID, hs.callID != nil }
func (hs *headers) Via() (*ViaHeader, bool)                   { return hs.via, hs.via != nil }
func (hs *headers) From() (*FromHeader, bool)                 { return hs.from, hs.from != nil }
func (hs *headers) To() (*ToHeader, bool)                     { return hs.to, hs.to != nil }
func (hs *headers) CSeq() (*CSeqHeader, bool)                 { return hs.cseq, hs.cseq != nil }
func (hs *headers) Contact() (*ContactHeader, bool)           { return hs.contact, hs.contact != nil }
func (hs *headers) ContentType() (*ContentTypeHeader, bool)   { return hs.contentType, hs.contentType != nil }
func (hs *headers) ContentLength() (*ContentLengthHeader, bool) {
	return hs.contentLength, hs.contentLength != nil
}
func (hs *headers) Expires() (*ExpiresHeader, bool)         { return hs.expires, hs.expires != nil }
func (hs *headers) MaxForwards() (*MaxForwardsHeader, bool) { return hs.maxForwards, hs.maxForwards != nil }
func (hs *headers) Subject() (*SubjectHeader, bool)         { return hs.subject, hs.subject != nil }

// HeaderToLower lower-cases a header name for case-insensitive comparison.
func HeaderToLower(name string) string { return strings.ToLower(name) }

func writeNameValue(buffer io.StringWriter, name, value string) {
	buffer.WriteString(name)
	buffer.WriteString(": ")
	buffer.WriteString(value)
}

// ViaHeader is the top (and only, in this profile) Via hop.
type ViaHeader struct {
	Transport string
	Host      string
	Port      int
	Params    HeaderParams
}

func (h *ViaHeader) Name() string { return "Via" }
func (h *ViaHeader) Branch() string {
	v, _ := h.Params.Get("branch")
	return v
}
func (h *ViaHeader) SentBy() string {
	if h.Port > 0 {
		return fmt.Sprintf("%s:%d", h.Host, h.Port)
	}
	return h.Host
}
func (h *ViaHeader) Value() string {
	var sb strings.Builder
	h.valueWrite(&sb)
	return sb.String()
}
func (h *ViaHeader) valueWrite(buffer io.StringWriter) {
	buffer.WriteString("SIP/2.0/")
	buffer.WriteString(h.Transport)
	buffer.WriteString(" ")
	buffer.WriteString(h.SentBy())
	if h.Params.Length() > 0 {
		buffer.WriteString(";")
		h.Params.ToStringWrite(';', buffer)
	}
}
func (h *ViaHeader) String() string {
	var sb strings.Builder
	h.StringWrite(&sb)
	return sb.String()
}
func (h *ViaHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString("Via: ")
	h.valueWrite(buffer)
}
func (h *ViaHeader) headerClone() Header {
	c := *h
	c.Params = h.Params.Clone()
	return &c
}

// addressHeader is the shared layout of From/To: a display name, a URI, and
// tag-bearing params.
type addressHeader struct {
	DisplayName string
	Address     Uri
	Params      HeaderParams
}

func (h *addressHeader) Tag() string {
	v, _ := h.Params.Get("tag")
	return v
}

func (h *addressHeader) valueWrite(buffer io.StringWriter) {
	if h.DisplayName != "" {
		buffer.WriteString("\"")
		buffer.WriteString(h.DisplayName)
		buffer.WriteString("\" ")
	}
	buffer.WriteString("<")
	h.Address.StringWrite(buffer)
	buffer.WriteString(">")
	if h.Params.Length() > 0 {
		buffer.WriteString(";")
		h.Params.ToStringWrite(';', buffer)
	}
}

// FromHeader is the 'From' header; From.tag is mandatory on every message in
// this profile (spec.md section 4.1).
type FromHeader struct{ addressHeader }

func (h *FromHeader) Name() string  { return "From" }
func (h *FromHeader) Value() string { var sb strings.Builder; h.valueWrite(&sb); return sb.String() }
func (h *FromHeader) String() string {
	var sb strings.Builder
	h.StringWrite(&sb)
	return sb.String()
}
func (h *FromHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString("From: ")
	h.valueWrite(buffer)
}
func (h *FromHeader) headerClone() Header {
	c := *h
	c.Params = h.Params.Clone()
	return &c
}

// ToHeader is the 'To' header.
type ToHeader struct{ addressHeader }

func (h *ToHeader) Name() string  { return "To" }
func (h *ToHeader) Value() string { var sb strings.Builder; h.valueWrite(&sb); return sb.String() }
func (h *ToHeader) String() string {
	var sb strings.Builder
	h.StringWrite(&sb)
	return sb.String()
}
func (h *ToHeader) StringWrite(buffer io.StringWriter) {
	buffer.WriteString("To: ")
	h.valueWrite(buffer)
}
func (h *ToHeader) headerClone() Header {
	c := *h
	c.Params = h.Params.Clone()
	return &c
}

// ContactHeader is the 'Contact' header carrying the device's (or our) URI.
type ContactHeader struct{ Address Uri }

func (h *ContactHeader) Name() string { return "Contact" }
func (h *ContactHeader) Value() string {
	return fmt.Sprintf("<%s>", h.Address.String())
}
func (h *ContactHeader) String() string { return h.Name() + ": " + h.Value() }
func (h *ContactHeader) StringWrite(buffer io.StringWriter) {
	writeNameValue(buffer, h.Name(), h.Value())
}
func (h *ContactHeader) headerClone() Header {
	c := *h
	c.Address = h.Address.Clone()
	return &c
}

// CallIDHeader is the 'Call-ID' header.
type CallIDHeader string

func (h *CallIDHeader) Name() string    { return "Call-ID" }
func (h *CallIDHeader) Value() string   { return string(*h) }
func (h *CallIDHeader) String() string  { return h.Name() + ": " + h.Value() }
func (h *CallIDHeader) headerClone() Header {
	c := *h
	return &c
}
func (h *CallIDHeader) StringWrite(buffer io.StringWriter) {
	writeNameValue(buffer, h.Name(), h.Value())
}

// CSeqHeader is the 'CSeq' header: a sequence number and the method it
// belongs to.
type CSeqHeader struct {
	SeqNo      uint32
	MethodName RequestMethod
}

func (h *CSeqHeader) Name() string  { return "CSeq" }
func (h *CSeqHeader) Value() string { return fmt.Sprintf("%d %s", h.SeqNo, h.MethodName) }
func (h *CSeqHeader) String() string {
	return h.Name() + ": " + h.Value()
}
func (h *CSeqHeader) StringWrite(buffer io.StringWriter) {
	writeNameValue(buffer, h.Name(), h.Value())
}
func (h *CSeqHeader) headerClone() Header {
	c := *h
	return &c
}

// MaxForwardsHeader is the 'Max-Forwards' header.
type MaxForwardsHeader uint32

func (h *MaxForwardsHeader) Name() string  { return "Max-Forwards" }
func (h *MaxForwardsHeader) Value() string { return strconv.Itoa(int(*h)) }
func (h *MaxForwardsHeader) String() string {
	return h.Name() + ": " + h.Value()
}
func (h *MaxForwardsHeader) StringWrite(buffer io.StringWriter) {
	writeNameValue(buffer, h.Name(), h.Value())
}
func (h *MaxForwardsHeader) headerClone() Header {
	c := *h
	return &c
}

// ExpiresHeader is the 'Expires' header, in seconds.
type ExpiresHeader uint32

func (h *ExpiresHeader) Name() string  { return "Expires" }
func (h *ExpiresHeader) Value() string { return strconv.Itoa(int(*h)) }
func (h *ExpiresHeader) String() string {
	return h.Name() + ": " + h.Value()
}
func (h *ExpiresHeader) StringWrite(buffer io.StringWriter) {
	writeNameValue(buffer, h.Name(), h.Value())
}
func (h *ExpiresHeader) headerClone() Header {
	c := *h
	return &c
}

// ContentTypeHeader is the 'Content-Type' header, e.g. "Application/SDP".
type ContentTypeHeader string

func (h *ContentTypeHeader) Name() string  { return "Content-Type" }
func (h *ContentTypeHeader) Value() string { return string(*h) }
func (h *ContentTypeHeader) String() string {
	return h.Name() + ": " + h.Value()
}
func (h *ContentTypeHeader) StringWrite(buffer io.StringWriter) {
	writeNameValue(buffer, h.Name(), h.Value())
}
func (h *ContentTypeHeader) headerClone() Header {
	c := *h
	return &c
}

// ContentLengthHeader is the mandatory 'Content-Length' header.
type ContentLengthHeader uint32

func (h *ContentLengthHeader) Name() string  { return "Content-Length" }
func (h *ContentLengthHeader) Value() string { return strconv.Itoa(int(*h)) }
func (h *ContentLengthHeader) String() string {
	return h.Name() + ": " + h.Value()
}
func (h *ContentLengthHeader) StringWrite(buffer io.StringWriter) {
	writeNameValue(buffer, h.Name(), h.Value())
}
func (h *ContentLengthHeader) headerClone() Header {
	c := *h
	return &c
}

// SubjectHeader carries the GB28181 "<from>:<ssrc>,<to>:0" subject line on
// INVITE requests.
type SubjectHeader string

func (h *SubjectHeader) Name() string  { return "Subject" }
func (h *SubjectHeader) Value() string { return string(*h) }
func (h *SubjectHeader) String() string {
	return h.Name() + ": " + h.Value()
}
func (h *SubjectHeader) StringWrite(buffer io.StringWriter) {
	writeNameValue(buffer, h.Name(), h.Value())
}
func (h *SubjectHeader) headerClone() Header {
	c := *h
	return &c
}

// GenericHeader is any header outside the fixed set above (e.g.
// User-Agent, Server): preserved verbatim but never specially addressed.
type GenericHeader struct {
	HeaderName string
	Contents   string
}

func (h *GenericHeader) Name() string  { return h.HeaderName }
func (h *GenericHeader) Value() string { return h.Contents }
func (h *GenericHeader) String() string {
	return h.Name() + ": " + h.Value()
}
func (h *GenericHeader) StringWrite(buffer io.StringWriter) {
	writeNameValue(buffer, h.Name(), h.Value())
}
func (h *GenericHeader) headerClone() Header {
	c := *h
	return &c
}

func NewHeader(name, value string) Header {
	return &GenericHeader{HeaderName: name, Contents: value}
}

// CloneHeader returns a deep copy of h, for callers outside this package
// building a new message that echoes a header from another one.
func CloneHeader(h Header) Header {
	return h.headerClone()
}
