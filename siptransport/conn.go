// Package siptransport implements the per-TCP-connection SIP actor: a
// receive loop driven by sip.ParserStream, an unbounded outgoing FIFO
// drained by a dedicated sender goroutine, and a supervisor goroutine
// that tears the connection down once either side exits.
package siptransport

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gb28181gw/gateway/dialog"
	"github.com/gb28181gw/gateway/sip"
)

// recvBufferSize mirrors the teacher's transportBufferSize used for
// per-Read scratch buffers in sip/transport_tcp.go.
const recvBufferSize = 65535

// Handler is implemented by whatever owns device-id/session binding
// (the session package). Conn calls back into it for every parsed
// request/response and once, finally, on teardown; Conn itself knows
// nothing about sessions, which is what lets siptransport avoid
// depending on the session package.
type Handler interface {
	HandleRequest(c *Conn, req *sip.Request)
	HandleResponse(c *Conn, res *sip.Response)
	Closed(c *Conn)
}

// Conn is one accepted SIP TCP connection. Modeled on the teacher's
// TCPConnection/readConnection pairing in sip/transport_tcp.go, adapted
// from a ref-counted pool entry to a standalone actor with its own
// dialog.
type Conn struct {
	netConn net.Conn
	handler Handler
	parser  *sip.Parser
	Dialog  *dialog.Dialog

	sendMu   sync.Mutex
	sendCond *sync.Cond
	sendQ    [][]byte
	closing  bool

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps an accepted connection and starts its receive, send, and
// supervisor goroutines. dlg is the dialog state for the device bound to
// this connection (or a fresh dialog.NewDialog if the device is not yet
// known).
func New(netConn net.Conn, parser *sip.Parser, dlg *dialog.Dialog, handler Handler) *Conn {
	c := &Conn{
		netConn: netConn,
		handler: handler,
		parser:  parser,
		Dialog:  dlg,
		done:    make(chan struct{}),
	}
	c.sendCond = sync.NewCond(&c.sendMu)

	go c.receiveLoop()
	go c.sendLoop()
	go c.supervise()
	return c
}

// RemoteAddr returns the peer address string, used as the transport
// source tag on every parsed message.
func (c *Conn) RemoteAddr() string {
	return c.netConn.RemoteAddr().String()
}

// Send enqueues msg for the sender goroutine; never blocks on the
// network. Grounded on the cooperative single-writer discipline implied
// by spec.md section 5 (one goroutine ever touches the socket for
// writes).
func (c *Conn) Send(msg sip.Message) error {
	var buf bytes.Buffer
	msg.StringWrite(&buf)

	c.sendMu.Lock()
	if c.closing {
		c.sendMu.Unlock()
		return net.ErrClosed
	}
	c.sendQ = append(c.sendQ, buf.Bytes())
	c.sendMu.Unlock()
	c.sendCond.Signal()
	return nil
}

// Close tears the connection down exactly once; safe to call from any
// goroutine (receive loop on read error, supervisor on handler exit,
// caller on explicit teardown).
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closing = true
		c.sendMu.Unlock()
		c.sendCond.Signal()
		err = c.netConn.Close()
		close(c.done)
	})
	return err
}

// Done is closed once Close has run, letting callers wait for teardown.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) receiveLoop() {
	defer c.Close()

	buf := make([]byte, recvBufferSize)
	stream := c.parser.NewSIPStream()
	raddr := c.RemoteAddr()

	for {
		n, err := c.netConn.Read(buf)
		if err != nil {
			return
		}
		data := buf[:n]
		if len(bytes.Trim(data, "\x00")) == 0 {
			continue
		}
		if len(data) <= 4 && len(bytes.Trim(data, "\r\n")) == 0 {
			// Keep-alive CRLF, per spec.md section 5's keep-alive note.
			continue
		}

		err = stream.ParseSIPStream(data, func(msg sip.Message) {
			c.dispatch(msg, raddr)
		})
		if err != nil && !errors.Is(err, sip.ErrParseSipPartial) {
			return
		}
	}
}

func (c *Conn) dispatch(msg sip.Message, raddr string) {
	switch m := msg.(type) {
	case *sip.Request:
		m.Source = raddr
		c.handler.HandleRequest(c, m)
	case *sip.Response:
		m.Source = raddr
		c.handler.HandleResponse(c, m)
	}
}

func (c *Conn) sendLoop() {
	for {
		c.sendMu.Lock()
		for len(c.sendQ) == 0 && !c.closing {
			c.sendCond.Wait()
		}
		if c.closing && len(c.sendQ) == 0 {
			c.sendMu.Unlock()
			return
		}
		next := c.sendQ[0]
		c.sendQ = c.sendQ[1:]
		c.sendMu.Unlock()

		if _, err := c.netConn.Write(next); err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			return
		}
	}
}

func (c *Conn) supervise() {
	<-c.done
	c.handler.Closed(c)
}
