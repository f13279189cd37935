// Package mediatransport implements the per-TCP-connection media actor:
// an RFC 4571 framing reader, RTP/RTCP classification, and a per-connection
// ps.Decoder feeding decoded packs to whatever binds to this connection's
// SSRC (spec.md section 4.2 "media connection" / section 4.6). Modeled on
// siptransport.Conn's receive-loop/supervisor shape, minus the send side:
// this gateway never writes to the media socket.
package mediatransport

import (
	"bufio"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/gb28181gw/gateway/ps"
)

// recvBufferSize mirrors siptransport.recvBufferSize: one scratch buffer
// per connection, sized generously above a single PS-over-RTP packet.
const recvBufferSize = 65535

// Handler is implemented by whatever owns SSRC-to-session binding (the
// session package). mediatransport itself knows nothing about sessions or
// the registry, for the same import-cycle reason siptransport.Handler
// does not reference *session.Session directly.
type Handler interface {
	// HandlePack is called once per PS pack this connection's decoder
	// accumulated at least one message for. ssrc is the SSRC observed on
	// the RTP packets this pack arrived in, for the handler's first-pack
	// session binding (spec.md section 4.6).
	HandlePack(c *Conn, ssrc uint32, pack *ps.Pack, msgs []*ps.Message)

	// HandleRecoverMode is called every time the connection's decoder
	// (re-)enters recover mode.
	HandleRecoverMode(c *Conn, count int)

	// Closed is called once, when the connection's receive loop exits,
	// whether or not it ever bound to a Session.
	Closed(c *Conn)
}

// Conn is one accepted media TCP connection.
type Conn struct {
	netConn net.Conn
	handler Handler
	decoder *ps.Decoder

	mu       sync.Mutex
	lastSSRC uint32

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps an accepted connection and starts its receive loop. opts are
// forwarded to ps.NewDecoder (e.g. ps.WithHEVC per the config's HEVC flag).
func New(netConn net.Conn, handler Handler, opts ...ps.Option) *Conn {
	c := &Conn{
		netConn: netConn,
		handler: handler,
		done:    make(chan struct{}),
	}
	c.decoder = ps.NewDecoder(c, opts...)
	go c.receiveLoop()
	return c
}

// RemoteAddr returns the peer address string.
func (c *Conn) RemoteAddr() string {
	return c.netConn.RemoteAddr().String()
}

// Close tears the connection down exactly once; safe to call from any
// goroutine.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.netConn.Close()
		close(c.done)
	})
	return err
}

// Done is closed once Close has run.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Stats returns the underlying decoder's current counters, for the
// session controller's periodic stats reporting (spec.md section 3,
// "accumulated statistics").
func (c *Conn) Stats() ps.Stats {
	return c.decoder.Stats
}

// OnPack implements ps.Handler, forwarding to the connection's Handler
// together with the SSRC observed on the RTP packets that carried it.
func (c *Conn) OnPack(pack *ps.Pack, msgs []*ps.Message) error {
	c.mu.Lock()
	ssrc := c.lastSSRC
	c.mu.Unlock()
	c.handler.HandlePack(c, ssrc, pack, msgs)
	return nil
}

// OnRecoverMode implements ps.Handler.
func (c *Conn) OnRecoverMode(count int) {
	c.handler.HandleRecoverMode(c, count)
}

// receiveLoop reads RFC 4571 length-framed datagrams (a 2-byte big-endian
// length prefix followed by exactly that many bytes of RTP or RTCP),
// classifies each, and feeds RTP payloads to the connection's ps.Decoder.
// Grounded on spec.md section 4.3 step 1-2 ("read RFC4571 frame; if the
// frame is RTCP, drop it").
func (c *Conn) receiveLoop() {
	defer c.Close()
	defer c.decoder.Flush()
	defer c.handler.Closed(c)

	r := bufio.NewReaderSize(c.netConn, recvBufferSize)
	var lenBuf [2]byte

	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return
		}
		frameLen := binary.BigEndian.Uint16(lenBuf[:])
		if frameLen == 0 {
			continue
		}
		frame := make([]byte, frameLen)
		if _, err := io.ReadFull(r, frame); err != nil {
			return
		}

		payload, info, isRTCP, err := ps.ParseRTP(frame)
		if err != nil {
			slog.Default().Warn("mediatransport: dropping unparsable frame",
				"remote", c.RemoteAddr(), "error", err)
			continue
		}
		if isRTCP {
			continue
		}

		c.mu.Lock()
		c.lastSSRC = info.SSRC
		c.mu.Unlock()

		if err := c.decoder.Feed(payload); err != nil {
			slog.Default().Warn("mediatransport: decoder gave up, closing connection",
				"remote", c.RemoteAddr(), "ssrc", info.SSRC, "error", err)
			return
		}
	}
}
