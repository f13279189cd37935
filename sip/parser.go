package sip

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gb28181gw/gateway/gbgwerrors"
)

// Sentinel parse errors, grounded on the teacher's sip/parser.go set.
var (
	ErrParseSipPartial         = errors.New("sip: partial message")
	ErrParseReadBodyIncomplete = errors.New("sip: body incomplete")
	ErrMessageTooLarge         = errors.New("sip: message exceeds MaxMessageLength")

	errParseNoMoreHeaders = errors.New("sip: no more headers")
)

// defaultMaxMessageLength bounds a single SIP message read off the wire;
// GB28181 REGISTER/INVITE/MESSAGE bodies are small XML/SDP blobs.
const defaultMaxMessageLength = 64 * 1024

// Parser turns raw bytes into a Request or Response under this gateway's
// constrained SIP profile (spec.md section 4.1).
type Parser struct {
	MaxMessageLength int
}

func NewParser() *Parser {
	return &Parser{MaxMessageLength: defaultMaxMessageLength}
}

// ParseMessage parses a single, complete SIP message.
func ParseMessage(data []byte) (Message, error) {
	return NewParser().ParseSIP(data)
}

// ParseSIP parses a single, complete SIP message held entirely in data.
func (p *Parser) ParseSIP(data []byte) (Message, error) {
	msg, n, err := p.parseStartLine(data)
	if err != nil {
		return nil, err
	}
	rest := data[n:]

	var contentLength *ContentLengthHeader
	for {
		var headers []Header
		var hn int
		headers, hn, err = p.parseNextHeader(nil, rest)
		rest = rest[hn:]
		for _, h := range headers {
			if cl, ok := h.(*ContentLengthHeader); ok {
				contentLength = cl
			}
			msg.AppendHeader(h)
		}
		if errors.Is(err, errParseNoMoreHeaders) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if contentLength == nil {
		// RFC 3261 section 7.5: Content-Length locates the end of the
		// message on a stream transport and is mandatory here.
		return nil, gbgwerrors.New(gbgwerrors.SIPHeader, "sip.ParseSIP", ErrParseReadBodyIncomplete)
	}
	n = int(*contentLength)
	if n == 0 {
		return msg, nil
	}
	if len(rest) < n {
		return nil, gbgwerrors.New(gbgwerrors.SIPMessage, "sip.ParseSIP", ErrParseReadBodyIncomplete)
	}
	msg.SetBody(rest[:n])
	return msg, nil
}

// NewSIPStream returns a fresh incremental parser for a single connection.
func (p *Parser) NewSIPStream() *ParserStream {
	return &ParserStream{p: p}
}

// parseStartLine consumes the request-line or status-line and the CRLF that
// terminates it, returning the bytes consumed.
func (p *Parser) parseStartLine(buf []byte) (Message, int, error) {
	idx := bytes.Index(buf, []byte("\r\n"))
	if idx < 0 {
		return nil, 0, io.ErrUnexpectedEOF
	}
	line := string(buf[:idx])
	n := idx + 2

	if isRequestLine(line) {
		parts := strings.Split(line, " ")
		if len(parts) != 3 {
			return nil, 0, gbgwerrors.New(gbgwerrors.SIPMessage, "sip.parseStartLine",
				fmt.Errorf("request line %q must have exactly two spaces", line))
		}
		method := RequestMethod(strings.ToUpper(parts[0]))
		switch method {
		case REGISTER, MESSAGE, INVITE, ACK, BYE:
		default:
			return nil, 0, gbgwerrors.New(gbgwerrors.SIPMessage, "sip.parseStartLine",
				fmt.Errorf("method %q is not REGISTER, MESSAGE, INVITE, ACK or BYE", parts[0]))
		}
		var recipient Uri
		if err := ParseUri(parts[1], &recipient); err != nil {
			return nil, 0, gbgwerrors.New(gbgwerrors.SIPMessage, "sip.parseStartLine", err)
		}
		req := NewRequest(method, recipient)
		req.SipVersion = parts[2]
		return req, n, nil
	}

	if isStatusLine(line) {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 {
			return nil, 0, gbgwerrors.New(gbgwerrors.SIPMessage, "sip.parseStartLine",
				fmt.Errorf("status line %q has too few spaces", line))
		}
		code, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return nil, 0, gbgwerrors.New(gbgwerrors.SIPMessage, "sip.parseStartLine",
				fmt.Errorf("status line %q has a non-numeric status: %w", line, err))
		}
		res := NewResponse(StatusCode(code), parts[2])
		res.SipVersion = parts[0]
		return res, n, nil
	}

	return nil, 0, gbgwerrors.New(gbgwerrors.SIPMessage, "sip.parseStartLine",
		fmt.Errorf("%q is neither a SIP request nor a response start-line", line))
}

// parseNextHeader parses one header line out of buf, appending to out. At
// the blank line terminating the header section it returns
// errParseNoMoreHeaders having consumed just that blank line.
func (p *Parser) parseNextHeader(out []Header, buf []byte) ([]Header, int, error) {
	idx := bytes.Index(buf, []byte("\r\n"))
	if idx < 0 {
		return out, 0, io.ErrUnexpectedEOF
	}
	if idx == 0 {
		return out, 2, errParseNoMoreHeaders
	}
	line := string(buf[:idx])
	n := idx + 2

	h, err := parseHeaderLine(line)
	if err != nil {
		return out, n, gbgwerrors.New(gbgwerrors.SIPHeader, "sip.parseNextHeader", err)
	}
	out = append(out, h)
	return out, n, nil
}

// isRequestLine reports whether line looks like "METHOD sip:uri SIP/2.0":
// exactly two spaces with a sip: URI in the middle field.
func isRequestLine(line string) bool {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return false
	}
	return strings.HasPrefix(strings.ToLower(parts[1]), "sip:")
}

// isStatusLine reports whether line looks like "SIP/2.0 200 OK".
func isStatusLine(line string) bool {
	return strings.HasPrefix(line, "SIP/2.0 ")
}
