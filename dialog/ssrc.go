package dialog

import (
	"fmt"
	"strconv"

	"github.com/gb28181gw/gateway/gbgwerrors"
	"github.com/gb28181gw/gateway/registry"
	"github.com/gb28181gw/gateway/sip"
)

// ssrcMaxRetries bounds how many candidates AllocateSSRC tries before
// giving up, per spec.md section 4.2.
const ssrcMaxRetries = 16

const (
	ssrcDomainLen = 5
	ssrcDomainPad = "00000"
)

// AllocateSSRC builds a unique 10-digit decimal SSRC for a device whose
// REGISTER request-URI user is registerUserURI, checking uniqueness
// against reg. Format and retry bound grounded on
// original_source/trunk/src/app/srs_app_gb28181.cpp: flag "0" (realtime)
// + a 5-digit GB28181 domain slice of the request-URI user + 4 random
// decimal digits, retried against registry.FindByFastID.
func AllocateSSRC[T any](registerUserURI string, reg *registry.Registry[T]) (string, uint32, error) {
	domain := ssrcDomain(registerUserURI)
	for i := 0; i < ssrcMaxRetries; i++ {
		candidate := "0" + domain + sip.RandDigits(4)
		numeric, err := strconv.ParseUint(candidate, 10, 32)
		if err != nil {
			continue
		}
		if _, exists := reg.FindByFastID(uint32(numeric)); exists {
			continue
		}
		return candidate, uint32(numeric), nil
	}
	return "", 0, gbgwerrors.New(gbgwerrors.SSRCGenerate, "dialog.AllocateSSRC",
		fmt.Errorf("no unique SSRC found for %q after %d tries", registerUserURI, ssrcMaxRetries))
}

// ssrcDomain extracts characters 4..8 of user, padding with "00000" if
// short, per spec.md section 4.2.
func ssrcDomain(user string) string {
	const start = 4
	if len(user) <= start {
		return ssrcDomainPad
	}
	end := start + ssrcDomainLen
	if end > len(user) {
		end = len(user)
	}
	domain := user[start:end]
	if len(domain) < ssrcDomainLen {
		domain += ssrcDomainPad[:ssrcDomainLen-len(domain)]
	}
	return domain
}
