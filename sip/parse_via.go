package sip

import (
	"fmt"
	"strconv"
	"strings"
)

// parseViaHeaderValue parses "SIP/2.0/<transport> host[:port][;params]".
// Grounded on the teacher's parseViaHeader FSM (sip/parse_via.go), collapsed
// since this profile's Via is always SIP/2.0 over a single transport.
func parseViaHeaderValue(raw string, h *ViaHeader) error {
	const prefix = "SIP/2.0/"
	if len(raw) < len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return fmt.Errorf("Via %q is not SIP/2.0", raw)
	}
	s := raw[len(prefix):]

	sp := strings.IndexAny(s, " \t")
	if sp < 0 {
		return fmt.Errorf("Via %q has no sent-by", raw)
	}
	h.Transport = strings.ToUpper(s[:sp])
	s = strings.TrimLeft(s[sp+1:], " \t")

	sentBy := s
	paramsStart := -1
	if semi := strings.IndexByte(s, ';'); semi >= 0 {
		sentBy = s[:semi]
		paramsStart = semi + 1
	}

	if colon := strings.IndexByte(sentBy, ':'); colon >= 0 {
		h.Host = sentBy[:colon]
		port, err := strconv.Atoi(sentBy[colon+1:])
		if err != nil {
			return fmt.Errorf("Via %q has a non-numeric port", raw)
		}
		h.Port = port
	} else {
		h.Host = sentBy
	}
	if h.Host == "" {
		return fmt.Errorf("Via %q has no host", raw)
	}

	h.Params = NewParams()
	if paramsStart >= 0 {
		if _, err := ParseParams(s[paramsStart:], ';', 0, &h.Params); err != nil {
			return err
		}
	}
	return nil
}
