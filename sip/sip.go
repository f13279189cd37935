package sip

import (
	"crypto/rand"
	"strings"
)

// RFC3261BranchMagicCookie must prefix every Via branch we generate, and is
// required on every Via branch we accept from a device.
const RFC3261BranchMagicCookie = "z9hG4bK"

// ProductName identifies this gateway: it is sent in the User-Agent header
// of the INVITE and ACK requests and in the Server header of the REGISTER
// response.
const ProductName = "gb28181gw/1.0"

const randAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandString returns n random alphanumeric characters.
func RandString(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand on a sane platform never fails; fall back to a fixed
		// pattern rather than panic so callers never see an error return.
		for i := range buf {
			buf[i] = byte(i)
		}
	}
	for _, b := range buf {
		sb.WriteByte(randAlphabet[int(b)%len(randAlphabet)])
	}
	return sb.String()
}

// RandDigits returns n random decimal digits.
func RandDigits(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		for i := range buf {
			buf[i] = byte(i)
		}
	}
	var sb strings.Builder
	sb.Grow(n)
	for _, b := range buf {
		sb.WriteByte('0' + b%10)
	}
	return sb.String()
}

// GenerateBranch returns a fresh Via branch: the magic cookie followed by n
// random characters, per RFC 3261 section 8.1.1.7.
func GenerateBranch(n int) string {
	var sb strings.Builder
	sb.Grow(len(RFC3261BranchMagicCookie) + n)
	sb.WriteString(RFC3261BranchMagicCookie)
	sb.WriteString(RandString(n))
	return sb.String()
}
