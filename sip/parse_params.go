package sip

import (
	"strings"
	"unicode"
)

const (
	paramsStateKey = iota
	paramsStateEqual
	paramsStateValue
	paramsStateQuote
)

// ParseParams parses a ";"-or-","-separated key=value list into p, stopping
// at the first rune equal to ending (0 means read to the end of s). It
// returns how much of s was consumed, mirroring the teacher's
// UnmarshalHeaderParams (sip/parse_params.go in the sipgo package).
func ParseParams(s string, separator, ending rune, p *HeaderParams) (n int, err error) {
	var start, sep int = 0, 0
	var quote int = -1
	state := paramsStateKey

	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	n = len(s)
	for i, c := range s {
		if ending != 0 && c == ending {
			n = i
			break
		}

		switch state {
		case paramsStateKey:
			sep = 0
			start = i
			state = paramsStateEqual

		case paramsStateEqual:
			if c == separator {
				p.Add(s[start:i], "")
				state = paramsStateKey
				continue
			}
			if c != '=' {
				continue
			}
			sep = i
			state = paramsStateValue

		case paramsStateValue:
			switch c {
			case '"':
				state = paramsStateQuote
				quote = i
			case separator:
				p.Add(s[start:sep], s[sep+1:i])
				start = sep + 1
				state = paramsStateKey
			}
		case paramsStateQuote:
			if c != '"' {
				continue
			}
			p.Add(s[start:], s[quote+1:i])
			state = paramsStateKey
		}
	}

	if sep > 0 && n >= 0 && start < sep {
		p.Add(s[start:sep], s[sep+1:n])
	}
	if sep == 0 && start < n && n >= 0 {
		p.Add(s[start:], "")
	}
	return n, nil
}
