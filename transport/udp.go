// Package transport provides the production coap.Transport implementation
// over net.UDPConn (spec.md section 6).
package transport

import (
	"errors"
	"net"
	"time"
)

// Errors returned by UDP's capability methods, in the sentinel style of
// the CoAP socket glue this package is grounded on.
var (
	ErrNotBound     = errors.New("transport: socket not bound")
	ErrAlreadyBound = errors.New("transport: already bound")
)

// maxDatagram is the largest UDP payload UDP will ever read; it is sized
// above coap.MaxPDU so a datagram of up to coap.MaxPDU bytes is never
// truncated.
const maxDatagram = 1500

// UDP implements coap.Transport over a single unconnected *net.UDPConn.
// Recv is made non-blocking with a short read deadline rather than a
// background goroutine, matching the tick-driven engine's synchronous
// contract (spec.md section 6 "Transport capability").
type UDP struct {
	conn *net.UDPConn
	buf  [maxDatagram]byte
}

// New returns an unbound UDP transport.
func New() *UDP {
	return &UDP{}
}

// Bind opens a UDP socket on the given local port, listening on all
// interfaces.
func (u *UDP) Bind(localPort int) error {
	if u.conn != nil {
		return ErrAlreadyBound
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: localPort})
	if err != nil {
		return err
	}
	u.conn = conn
	return nil
}

// Close releases the underlying socket.
func (u *UDP) Close() error {
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}

// Send writes b to the given destination.
func (u *UDP) Send(destIP net.IP, destPort int, b []byte) error {
	if u.conn == nil {
		return ErrNotBound
	}
	_, err := u.conn.WriteToUDP(b, &net.UDPAddr{IP: destIP, Port: destPort})
	return err
}

// Recv polls for one waiting datagram without blocking the caller for
// more than a token read deadline; ok is false if nothing arrived in
// that window. This keeps TickRX suitable for a fixed-period poll loop.
func (u *UDP) Recv() (b []byte, fromIP net.IP, fromPort int, ok bool, err error) {
	if u.conn == nil {
		return nil, nil, 0, false, ErrNotBound
	}
	if deadlineErr := u.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); deadlineErr != nil {
		return nil, nil, 0, false, deadlineErr
	}
	n, addr, readErr := u.conn.ReadFromUDP(u.buf[:])
	if readErr != nil {
		if netErr, isNet := readErr.(net.Error); isNet && netErr.Timeout() {
			return nil, nil, 0, false, nil
		}
		return nil, nil, 0, false, readErr
	}
	return u.buf[:n], addr.IP, addr.Port, true, nil
}
