package sip

import (
	"fmt"
	"strconv"
	"strings"
)

// headerParser turns a raw header value into a typed Header, or an error if
// the value violates this profile's constrained grammar (spec.md section
// 4.1). Grounded on the teacher's per-header parser table
// (sip/parse_header.go), narrowed to the headers this gateway understands.
type headerParser func(name, value string) (Header, error)

var headerParsers = map[string]headerParser{
	"via":            parseViaHeaderField,
	"v":              parseViaHeaderField,
	"from":           parseFromHeaderField,
	"f":              parseFromHeaderField,
	"to":             parseToHeaderField,
	"t":              parseToHeaderField,
	"contact":        parseContactHeaderField,
	"m":              parseContactHeaderField,
	"call-id":        parseCallIDHeaderField,
	"i":              parseCallIDHeaderField,
	"cseq":           parseCSeqHeaderField,
	"max-forwards":   parseMaxForwardsHeaderField,
	"content-length": parseContentLengthHeaderField,
	"l":              parseContentLengthHeaderField,
	"content-type":   parseContentTypeHeaderField,
	"c":              parseContentTypeHeaderField,
	"expires":        parseExpiresHeaderField,
	"subject":        parseSubjectHeaderField,
	"s":              parseSubjectHeaderField,
}

// parseHeaderLine splits "Name: value" and dispatches to the registered
// parser, falling back to GenericHeader for anything outside this profile's
// fixed header set (e.g. User-Agent, Server).
func parseHeaderLine(line string) (Header, error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return nil, fmt.Errorf("header line %q has no ':'", line)
	}
	name := strings.TrimSpace(line[:colon])
	value := strings.TrimSpace(line[colon+1:])
	if name == "" {
		return nil, fmt.Errorf("header line %q has an empty name", line)
	}

	parser, ok := headerParsers[strings.ToLower(name)]
	if !ok {
		return NewHeader(name, value), nil
	}
	return parser(name, value)
}

func parseViaHeaderField(name, value string) (Header, error) {
	h := &ViaHeader{}
	if err := parseViaHeaderValue(value, h); err != nil {
		return nil, err
	}
	if h.Transport != "TCP" && h.Transport != "UDP" {
		return nil, fmt.Errorf("Via transport %q is not TCP or UDP", h.Transport)
	}
	branch := h.Branch()
	if !strings.HasPrefix(branch, RFC3261BranchMagicCookie) {
		return nil, fmt.Errorf("Via branch %q missing magic cookie %q", branch, RFC3261BranchMagicCookie)
	}
	return h, nil
}

func parseFromHeaderField(name, value string) (Header, error) {
	h := &FromHeader{}
	dn, err := ParseAddressValue(value, &h.Address, &h.Params)
	if err != nil {
		return nil, err
	}
	h.DisplayName = dn
	if h.Tag() == "" {
		return nil, fmt.Errorf("From %q has no tag=", value)
	}
	return h, nil
}

func parseToHeaderField(name, value string) (Header, error) {
	h := &ToHeader{}
	dn, err := ParseAddressValue(value, &h.Address, &h.Params)
	if err != nil {
		return nil, err
	}
	h.DisplayName = dn
	return h, nil
}

func parseContactHeaderField(name, value string) (Header, error) {
	h := &ContactHeader{}
	var params HeaderParams
	if _, err := ParseAddressValue(value, &h.Address, &params); err != nil {
		return nil, err
	}
	return h, nil
}

func parseCallIDHeaderField(name, value string) (Header, error) {
	if value == "" {
		return nil, fmt.Errorf("empty Call-ID")
	}
	h := CallIDHeader(value)
	return &h, nil
}

func parseCSeqHeaderField(name, value string) (Header, error) {
	sp := strings.IndexByte(value, ' ')
	if sp < 1 || sp == len(value)-1 {
		return nil, fmt.Errorf("CSeq %q must be \"<number> <method>\"", value)
	}
	seqNo, err := strconv.ParseUint(value[:sp], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("CSeq %q has a non-numeric sequence: %w", value, err)
	}
	h := &CSeqHeader{SeqNo: uint32(seqNo), MethodName: RequestMethod(strings.TrimSpace(value[sp+1:]))}
	return h, nil
}

func parseMaxForwardsHeaderField(name, value string) (Header, error) {
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("Max-Forwards %q is not a non-negative integer: %w", value, err)
	}
	h := MaxForwardsHeader(v)
	return &h, nil
}

func parseContentLengthHeaderField(name, value string) (Header, error) {
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("Content-Length %q is not a non-negative integer: %w", value, err)
	}
	h := ContentLengthHeader(v)
	return &h, nil
}

func parseContentTypeHeaderField(name, value string) (Header, error) {
	if value == "" {
		return nil, fmt.Errorf("empty Content-Type")
	}
	h := ContentTypeHeader(value)
	return &h, nil
}

func parseExpiresHeaderField(name, value string) (Header, error) {
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("Expires %q is not a non-negative decimal integer: %w", value, err)
	}
	h := ExpiresHeader(v)
	return &h, nil
}

func parseSubjectHeaderField(name, value string) (Header, error) {
	h := SubjectHeader(value)
	return &h, nil
}
