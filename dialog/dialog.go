package dialog

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	satoriuuid "github.com/satori/go.uuid"

	"github.com/gb28181gw/gateway/sip"
)

// Dialog owns the SIP dialog state for one device's SIP connection: the
// tagged state machine, the cached REGISTER/200-OK-to-INVITE messages
// needed across reconnects, and the builders for every message this
// gateway originates (spec.md section 4.2).
type Dialog struct {
	mu sync.Mutex

	State State

	// ServerHost/ServerPort/ServerUser identify this gateway on outbound
	// From/Via headers; set once at construction from the listening
	// configuration.
	ServerHost string
	ServerPort int
	ServerUser string

	LastRegister  *sip.Request
	LastInviteOK  *sip.Response
	lastInviteReq *sip.Request

	SSRC        string
	SSRCNumeric uint32
}

// NewDialog returns a fresh dialog in state Init for a connection bound to
// this gateway's own SIP identity (serverHost:serverPort, serverUser).
func NewDialog(serverHost string, serverPort int, serverUser string) *Dialog {
	return &Dialog{
		State:      Init,
		ServerHost: serverHost,
		ServerPort: serverPort,
		ServerUser: serverUser,
	}
}

// OnRegister processes an inbound REGISTER and returns the 200 OK to send
// back, per spec.md section 4.2 response synthesis. Expires=0 moves the
// dialog to Bye; Expires>0 (default 3600 if absent) moves it to Registered
// from Init and leaves any later state untouched.
func (d *Dialog) OnRegister(req *sip.Request) *sip.Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	expires := uint32(3600)
	if hdr, ok := req.Expires(); ok {
		expires = uint32(*hdr)
	}

	d.LastRegister = req
	if expires == 0 {
		d.advance(eventRegisterExpired)
	} else {
		d.advance(eventRegisterActive)
	}

	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	if contact, ok := req.Contact(); ok {
		res.AppendHeader(sip.CloneHeader(contact))
	}
	expiresHdr := sip.ExpiresHeader(expires)
	res.AppendHeader(&expiresHdr)
	res.AppendHeader(sip.NewHeader("Server", sip.ProductName))
	return res
}

// OnMessage processes an inbound MESSAGE (used as a device heartbeat) and
// returns the response: 403 while the dialog has not yet seen a REGISTER,
// 200 OK otherwise.
func (d *Dialog) OnMessage(req *sip.Request) *sip.Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State == Init {
		d.advance(eventMessage)
		return sip.NewResponseFromRequest(req, sip.StatusForbidden, "Forbidden", nil)
	}
	return sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
}

// OnBye processes an inbound BYE and returns the 200 OK to send back.
func (d *Dialog) OnBye(req *sip.Request) *sip.Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.advance(eventBye)
	return sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
}

// MarkInviteSent records that an INVITE built by BuildInvite has actually
// been handed to the sender, driving Registered -> Inviting (spec.md
// section 4.2: "INVITE observed being sent").
func (d *Dialog) MarkInviteSent(req *sip.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastInviteReq = req
	d.advance(eventInviteSent)
}

// OnInviteResponse processes a response correlated to our own INVITE: a
// 100 Trying moves Inviting->Trying; a 200 OK moves to Stable (skipping
// Trying is tolerated, per SPEC_FULL.md section 13) and the response is
// cached for ACK construction and reconnect copy.
func (d *Dialog) OnInviteResponse(res *sip.Response) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res.IsTrying() {
		d.advance(eventTrying)
		return
	}
	if res.IsInviteOK() {
		d.LastInviteOK = res
		d.advance(eventInviteOK)
	}
}

// OnByeOK processes the 200 OK to a BYE we issued ourselves (Reinviting),
// moving back to Inviting so the caller can immediately re-issue an
// INVITE with the cached SSRC.
func (d *Dialog) OnByeOK() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance(eventByeOK)
}

// BuildACK constructs the ACK for a cached 200-OK-to-INVITE, per spec.md
// section 4.2 response synthesis. Grounded on the teacher's ACK builder in
// sip/request.go (newAckRequestNon2xx), adapted for the 2xx case this
// profile always takes.
func (d *Dialog) BuildACK() (*sip.Request, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := d.LastInviteOK
	if res == nil {
		return nil, fmt.Errorf("dialog: no cached 200 OK to INVITE to ACK")
	}
	to, ok := res.To()
	if !ok {
		return nil, fmt.Errorf("dialog: 200 OK has no To header")
	}
	from, ok := res.From()
	if !ok {
		return nil, fmt.Errorf("dialog: 200 OK has no From header")
	}
	callID, ok := res.CallID()
	if !ok {
		return nil, fmt.Errorf("dialog: 200 OK has no Call-ID header")
	}
	cseq, ok := res.CSeq()
	if !ok {
		return nil, fmt.Errorf("dialog: 200 OK has no CSeq header")
	}

	recipient := to.Address.Clone()
	ack := sip.NewRequest(sip.ACK, recipient)

	via := &sip.ViaHeader{
		Transport: "TCP",
		Host:      d.ServerHost,
		Port:      d.ServerPort,
		Params:    sip.NewParams(),
	}
	via.Params.Add("branch", sip.GenerateBranch(6))
	ack.AppendHeader(via)
	ack.AppendHeader(sip.CloneHeader(from))
	ack.AppendHeader(sip.CloneHeader(to))
	ack.AppendHeader(sip.CloneHeader(callID))
	ack.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.ACK})
	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)
	ack.AppendHeader(sip.NewHeader("User-Agent", sip.ProductName))
	return ack, nil
}

// BuildInvite constructs an INVITE carrying an SDP offer for ssrc, per
// spec.md section 4.2/3: Subject "<from-user>:<ssrc>,<to-user>:0",
// Content-Type Application/SDP, Max-Forwards 70, fresh 6-char branch,
// 8-char tag, 16-char Call-ID, random CSeq < 1000.
func (d *Dialog) BuildInvite(ssrc string, ssrcNumeric uint32, mediaPort int, candidateIP string) (*sip.Request, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := d.LastRegister
	if reg == nil {
		return nil, fmt.Errorf("dialog: no cached REGISTER to build an INVITE against")
	}
	regFrom, ok := reg.From()
	if !ok {
		return nil, fmt.Errorf("dialog: cached REGISTER has no From header")
	}
	regTo, ok := reg.To()
	if !ok {
		return nil, fmt.Errorf("dialog: cached REGISTER has no To header")
	}

	d.SSRC = ssrc
	d.SSRCNumeric = ssrcNumeric

	recipient := sip.Uri{User: regFrom.Address.User, Host: regFrom.Address.Host, Port: regFrom.Address.Port}
	req := sip.NewRequest(sip.INVITE, recipient)

	via := &sip.ViaHeader{
		Transport: "TCP",
		Host:      d.ServerHost,
		Port:      d.ServerPort,
		Params:    sip.NewParams(),
	}
	via.Params.Add("branch", sip.GenerateBranch(6))
	req.AppendHeader(via)

	from := &sip.FromHeader{}
	from.Address = sip.Uri{User: d.ServerUser, Host: d.ServerHost, Port: d.ServerPort}
	from.Params = sip.NewParams()
	from.Params.Add("tag", sip.RandString(8))
	req.AppendHeader(from)

	to := &sip.ToHeader{}
	to.Address = sip.Uri{User: regTo.Address.User, Host: regTo.Address.Host, Port: regTo.Address.Port}
	req.AppendHeader(to)

	callIDUUID, err := satoriuuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("dialog: generating Call-ID: %w", err)
	}
	callID := sip.CallIDHeader(strings.ReplaceAll(callIDUUID.String(), "-", "")[:16])
	req.AppendHeader(&callID)

	cseq := &sip.CSeqHeader{SeqNo: uint32(rand.Intn(1000)), MethodName: sip.INVITE}
	req.AppendHeader(cseq)

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	subject := sip.SubjectHeader(fmt.Sprintf("%s:%s,%s:0", regFrom.Address.User, ssrc, regTo.Address.User))
	req.AppendHeader(&subject)

	contentType := sip.ContentTypeHeader("Application/SDP")
	req.AppendHeader(&contentType)
	req.AppendHeader(sip.NewHeader("User-Agent", sip.ProductName))

	offer := sip.SDPOffer{
		UserName:     regFrom.Address.User,
		AddressIP:    candidateIP,
		SessionName:  "Play",
		ConnectionIP: candidateIP,
		MediaPort:    mediaPort,
		PayloadType:  96,
		SSRC:         ssrcNumeric,
	}
	req.SetBody([]byte(offer.Encode()))

	return req, nil
}

// Snapshot returns the dialog's current state and cached SSRC under its
// lock, for callers (the session controller's tick) that only ever read.
func (d *Dialog) Snapshot() (state State, ssrc string, ssrcNumeric uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.State, d.SSRC, d.SSRCNumeric
}

// ResetToRegistered forces the dialog back to Registered. Unlike every
// other state change here, this is not a reaction to a SIP message but a
// supervisory decision the session controller makes on its own (spec.md
// section 4.5: the SIP connecting-timeout retry and the reinvite_wait
// fallback both "reset SIP state to Registered" from outside the
// protocol exchange itself).
func (d *Dialog) ResetToRegistered() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.State = Registered
}

// RegisterRequestURIUser returns the user part of the cached REGISTER's
// Request-URI, the value spec.md section 4.2 step 1 derives the SSRC
// domain slice from (distinct from the From-header user, which is the
// device-id).
func (d *Dialog) RegisterRequestURIUser() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LastRegister == nil {
		return "", false
	}
	return d.LastRegister.Recipient.User, true
}

// CopyFrom copies the state a reconnecting SIP connection needs from the
// dialog of a previous connection for the same device-id: SIP state,
// SSRC, cached REGISTER, cached 200-OK (spec.md section 4.5).
func (d *Dialog) CopyFrom(prev *Dialog) {
	prev.mu.Lock()
	defer prev.mu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()

	d.State = prev.State
	d.SSRC = prev.SSRC
	d.SSRCNumeric = prev.SSRCNumeric
	d.LastRegister = prev.LastRegister
	d.LastInviteOK = prev.LastInviteOK
	d.lastInviteReq = prev.lastInviteReq
}
