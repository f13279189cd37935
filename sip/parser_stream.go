package sip

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

type parserState int

const (
	stateStartLine = parserState(iota)
	stateHeader
	stateContent
)

// ParserStream parses SIP messages out of a connection's byte stream, one
// message at a time, keeping enough state between Write calls to resume
// where it left off. Grounded on the teacher's sip/parser_stream.go state
// machine (stateStartLine -> stateHeader -> stateContent).
type ParserStream struct {
	p *Parser

	buf           bytes.Buffer
	state         parserState
	totalRead     int
	msg           Message
	contentLength *ContentLengthHeader
	contentOff    int
}

func (ps *ParserStream) reset() {
	ps.state = stateStartLine
	ps.totalRead = 0
	ps.msg = nil
	ps.contentLength = nil
	ps.contentOff = 0
}

// Reset discards any in-progress message and the buffered bytes behind it.
func (ps *ParserStream) Reset() {
	ps.reset()
	ps.buf.Reset()
}

// Buffer exposes the internal buffer so callers can inspect it.
func (ps *ParserStream) Buffer() *bytes.Buffer { return &ps.buf }

// Discard drops n bytes from the front of the buffer and resets parser
// state, used to skip a malformed message and resynchronize the stream.
func (ps *ParserStream) Discard(n int) {
	ps.reset()
	_ = ps.buf.Next(n)
}

// Write appends data to the internal buffer; call ParseNext afterward.
func (ps *ParserStream) Write(data []byte) (int, error) {
	return ps.buf.Write(data)
}

// ParseNext parses the next complete message out of the internal buffer. It
// returns io.ErrUnexpectedEOF when more data must be written before a full
// message is available.
func (ps *ParserStream) ParseNext() (Message, int, error) {
	err := ps.parseSingle()
	reset := err == nil
	msg, n := ps.msg, ps.totalRead
	if err == nil && ps.p.MaxMessageLength > 0 && ps.totalRead > ps.p.MaxMessageLength {
		err = ErrMessageTooLarge
	}
	if reset {
		ps.reset()
	}
	return msg, n, err
}

// ParseSIPStream writes data then parses and hands off every complete
// message found so far via cb.
func (ps *ParserStream) ParseSIPStream(data []byte, cb func(msg Message)) error {
	if _, err := ps.Write(data); err != nil {
		return err
	}
	for ps.buf.Len() > 0 {
		msg, _, err := ps.ParseNext()
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrParseSipPartial
		} else if err != nil {
			return err
		}
		cb(msg)
	}
	return nil
}

func (ps *ParserStream) advance(n int) {
	ps.totalRead += n
	_ = ps.buf.Next(n)
}

func (ps *ParserStream) parseSingle() error {
	var (
		n   int
		err error
	)
	switch ps.state {
	case stateStartLine:
		var msg Message
		msg, n, err = ps.p.parseStartLine(ps.buf.Bytes())
		if err != nil {
			return err
		}
		ps.advance(n)
		ps.state = stateHeader
		ps.msg = msg
		fallthrough
	case stateHeader:
		for {
			var headers []Header
			headers, n, err = ps.p.parseNextHeader(nil, ps.buf.Bytes())
			if err != nil && !errors.Is(err, errParseNoMoreHeaders) && !errors.Is(err, io.ErrUnexpectedEOF) {
				ps.advance(n)
				return err
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return err
			}
			ps.advance(n)
			for _, h := range headers {
				if cl, ok := h.(*ContentLengthHeader); ok {
					ps.contentLength = cl
				}
				ps.msg.AppendHeader(h)
			}
			if errors.Is(err, errParseNoMoreHeaders) {
				break
			}
		}
		if ps.contentLength == nil {
			return ErrParseReadBodyIncomplete
		}
		contentLength := int(*ps.contentLength)
		if contentLength == 0 {
			ps.state = -1
			return nil
		}
		ps.msg.SetBody(make([]byte, contentLength))
		ps.state = stateContent
		fallthrough
	case stateContent:
		body := ps.msg.Body()
		contentLength := len(body)

		n = copy(body[ps.contentOff:], ps.buf.Bytes())
		ps.advance(n)
		ps.contentOff += n

		if ps.contentOff < contentLength {
			return io.ErrUnexpectedEOF
		}
		ps.state = -1
		return nil
	default:
		return fmt.Errorf("sip: parser in unknown state")
	}
}
