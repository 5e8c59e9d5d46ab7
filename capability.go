package coap

import "net"

// Transport is the UDP send/receive capability the engine consumes. The
// engine makes no assumption about the transport's internals beyond this
// contract (spec.md section 6); transport.UDP provides the production
// implementation over net.UDPConn.
type Transport interface {
	// Bind opens the local UDP socket used for both send and receive.
	Bind(localPort int) error
	// Send transmits b to the given destination. It must not block.
	Send(destIP net.IP, destPort int, b []byte) error
	// Recv polls for one waiting datagram without blocking. ok is false
	// if nothing was waiting.
	Recv() (b []byte, fromIP net.IP, fromPort int, ok bool, err error)
}

// Clock is the monotonic millisecond time source the engine consumes.
// Only differences between two NowMS() calls are meaningful; callers must
// use modular subtraction to survive the 2^32ms rollover (spec.md
// section 6).
type Clock interface {
	NowMS() uint32
}

// Handlers is the callback surface the engine dispatches to from TickRX
// and TickTX. Every field is optional; a nil handler is a silent no-op.
// Handlers run synchronously on the caller's goroutine, must not block,
// and receive a read-only borrow of the packet bytes valid only for the
// callback's duration (spec.md section 4.4 "Callback contract").
type Handlers struct {
	// OnPacketAvailable fires for an inbound NON/RST, or a CON not yet
	// past its response deadline.
	OnPacketAvailable func(b []byte)
	// OnTXSuccess fires when an outstanding CON is matched by an
	// incoming ACK with the same message id.
	OnTXSuccess func(b []byte)
	// OnTXFailure fires when a CON's global deadline (MajorTimeoutMS)
	// passes without a matching ACK.
	OnTXFailure func(b []byte)
	// OnResponseTimeout fires when an inbound CON is not marked processed
	// (MarkProcessed) before its response deadline. Sending a reply, e.g.
	// with EmptyACK, does not by itself mark the inbound slot processed.
	OnResponseTimeout func(b []byte)
}

func (h Handlers) packetAvailable(b []byte) {
	if h.OnPacketAvailable != nil {
		h.OnPacketAvailable(b)
	}
}

func (h Handlers) txSuccess(b []byte) {
	if h.OnTXSuccess != nil {
		h.OnTXSuccess(b)
	}
}

func (h Handlers) txFailure(b []byte) {
	if h.OnTXFailure != nil {
		h.OnTXFailure(b)
	}
}

func (h Handlers) responseTimeout(b []byte) {
	if h.OnResponseTimeout != nil {
		h.OnResponseTimeout(b)
	}
}
