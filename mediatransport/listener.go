package mediatransport

import (
	"net"

	"github.com/gb28181gw/gateway/ps"
)

// Binder resolves the Handler a freshly accepted media connection should
// report to. Kept separate from Handler, mirroring siptransport.Binder,
// so a listener can be constructed before any session-binding logic
// exists.
type Binder interface {
	Bind(raddr string) Handler
}

// Serve accepts connections on l until it errors (including on
// listener.Close), spawning one Conn per accepted socket. Grounded on the
// teacher's TransportTCP.Serve accept loop, the same shape as
// siptransport.Serve.
func Serve(l net.Listener, binder Binder, opts ...ps.Option) error {
	for {
		netConn, err := l.Accept()
		if err != nil {
			return err
		}
		handler := binder.Bind(netConn.RemoteAddr().String())
		New(netConn, handler, opts...)
	}
}
