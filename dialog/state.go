// Package dialog implements the per-SIP-connection dialog state machine,
// INVITE/ACK/BYE message construction, and SSRC allocation (spec.md
// section 4.2).
package dialog

// State is one of the tagged dialog states spec.md section 4.2 names, not
// an ad-hoc integer enum with inline guards (spec.md section 9).
type State int

const (
	Init State = iota
	Registered
	Inviting
	Trying
	Stable
	Reinviting
	Bye
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case Registered:
		return "Registered"
	case Inviting:
		return "Inviting"
	case Trying:
		return "Trying"
	case Stable:
		return "Stable"
	case Reinviting:
		return "Reinviting"
	case Bye:
		return "Bye"
	default:
		return "Unknown"
	}
}

// event drives the state machine. Grounded on the teacher's fsmInput style
// (sip/transaction_server_tx_fsm.go): each state handler returns the next
// event to chain, or eventNone to stop.
type event int

const (
	eventNone event = iota
	eventRegisterActive
	eventRegisterExpired
	eventMessage
	eventInviteSent
	eventTrying
	eventInviteOK
	eventBye
	eventByeOK
)

// fsm is a single state's transition function, mirroring the teacher's
// func (tx *ServerTx) stateName(input fsmInput) fsmInput signature.
type fsm func(d *Dialog, evt event) event

func (d *Dialog) stateInit(evt event) event {
	switch evt {
	case eventRegisterActive:
		d.State = Registered
	case eventRegisterExpired:
		d.State = Bye
	case eventMessage:
		d.State = Stable
	}
	return eventNone
}

func (d *Dialog) stateRegistered(evt event) event {
	switch evt {
	case eventInviteSent:
		d.State = Inviting
	}
	return eventNone
}

func (d *Dialog) stateInviting(evt event) event {
	switch evt {
	case eventTrying:
		d.State = Trying
	case eventInviteOK:
		// Preserved per SPEC_FULL.md section 13 open question 2: devices
		// observed in the wild skip the 100 Trying response entirely.
		d.State = Stable
	case eventRegisterActive:
		// Re-registration while waiting on INVITE re-issues it; caller is
		// responsible for actually resending, state just stays put.
	}
	return eventNone
}

func (d *Dialog) stateTrying(evt event) event {
	switch evt {
	case eventInviteOK:
		d.State = Stable
	}
	return eventNone
}

func (d *Dialog) stateStable(evt event) event {
	switch evt {
	case eventRegisterExpired:
		d.State = Bye
	case eventBye:
		d.State = Bye
	}
	return eventNone
}

func (d *Dialog) stateReinviting(evt event) event {
	switch evt {
	case eventByeOK:
		d.State = Inviting
	}
	return eventNone
}

func (d *Dialog) stateBye(evt event) event {
	return eventNone
}

func (d *Dialog) fsmFor(s State) fsm {
	switch s {
	case Init:
		return (*Dialog).stateInit
	case Registered:
		return (*Dialog).stateRegistered
	case Inviting:
		return (*Dialog).stateInviting
	case Trying:
		return (*Dialog).stateTrying
	case Stable:
		return (*Dialog).stateStable
	case Reinviting:
		return (*Dialog).stateReinviting
	case Bye:
		return (*Dialog).stateBye
	default:
		return (*Dialog).stateBye
	}
}

// advance drives evt (and whatever it chains to) through the current
// state's handler until the chain settles on eventNone.
func (d *Dialog) advance(evt event) {
	for evt != eventNone {
		evt = d.fsmFor(d.State)(d, evt)
	}
}
