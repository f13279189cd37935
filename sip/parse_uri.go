package sip

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseUri parses a "sip:" URI: sip:user@host[:port][;param=value...]. This
// profile never sees sips:, tel: or the wildcard '*' form (spec.md section
// 4.1), so unlike a general-purpose SIP stack this parser rejects them
// outright instead of modelling them.
func ParseUri(raw string, uri *Uri) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty URI")
	}
	const scheme = "sip:"
	if len(raw) < len(scheme) || !strings.EqualFold(raw[:len(scheme)], scheme) {
		return fmt.Errorf("URI %q has no sip: scheme", raw)
	}
	s := raw[len(scheme):]

	if at := strings.IndexByte(s, '@'); at >= 0 {
		uri.User = s[:at]
		s = s[at+1:]
	}

	hostEnd := len(s)
	paramsStart := -1
	for i, c := range s {
		if c == ';' {
			hostEnd = i
			paramsStart = i + 1
			break
		}
	}
	hostPort := s[:hostEnd]
	if colon := strings.IndexByte(hostPort, ':'); colon >= 0 {
		uri.Host = hostPort[:colon]
		port, err := strconv.Atoi(hostPort[colon+1:])
		if err != nil {
			return fmt.Errorf("URI %q has a non-numeric port", raw)
		}
		uri.Port = port
	} else {
		uri.Host = hostPort
	}
	if uri.Host == "" {
		return fmt.Errorf("URI %q has no host", raw)
	}

	uri.UriParams = NewParams()
	if paramsStart >= 0 {
		if _, err := ParseParams(s[paramsStart:], ';', 0, &uri.UriParams); err != nil {
			return err
		}
	}
	return nil
}
