package siptransport

import (
	"net"

	"github.com/gb28181gw/gateway/dialog"
	"github.com/gb28181gw/gateway/sip"
)

// Binder resolves the dialog a freshly accepted connection should start
// with and the Handler that will own it. Kept separate from Handler so a
// listener can be constructed before any session-binding logic exists.
type Binder interface {
	Bind(raddr string) (*dialog.Dialog, Handler)
}

// Serve accepts connections on l until it errors (including on
// listener.Close), spawning one Conn per accepted socket. Grounded on the
// teacher's TransportTCP.Serve accept loop in sip/transport_tcp.go.
func Serve(l net.Listener, parser *sip.Parser, binder Binder) error {
	for {
		netConn, err := l.Accept()
		if err != nil {
			return err
		}
		dlg, handler := binder.Bind(netConn.RemoteAddr().String())
		New(netConn, parser, dlg, handler)
	}
}
