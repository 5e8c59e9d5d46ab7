package coap

import "net"

// Retransmission timing (spec.md section 4.4). AckTimeout is expressed in
// milliseconds to match Clock.NowMS().
const (
	AckTimeoutMS    = 2000
	AckRandomFactor = 1.5
	// MajorTimeoutMS is the global per-confirmable deadline, approximately
	// 45s: AckTimeoutMS * (2^MaxRetransmit - 1) * AckRandomFactor. Computed
	// from AckRandomFactor itself (not a re-typed literal) so the two stay
	// in lockstep if the retransmit schedule is ever retuned.
	MajorTimeoutMS = uint32(AckTimeoutMS * 15 * AckRandomFactor) // 45000
)

// responseDeadlineMS returns the per-attempt timeout before the next
// retransmit, given a slot that has been sent `transmissions` times.
func responseDeadlineMS(transmissions int) uint32 {
	if transmissions < 1 {
		transmissions = 1
	}
	return uint32(AckTimeoutMS) << uint(transmissions-1)
}

// elapsed computes now-since with wraparound at 2^32ms, per spec.md section 6.
func elapsed(now, since uint32) uint32 {
	return now - since
}

// Config wires an Engine's external collaborators (spec.md section 6).
type Config struct {
	Transport Transport
	Clock     Clock
	Handlers  Handlers
}

// Engine is the protocol state machine (C4): two fixed-capacity rings, a
// transport, a clock, and the four user callbacks. Engine is a value that
// owns all of its state; multiple independent instances are supported.
type Engine struct {
	transport Transport
	clock     Clock
	handlers  Handlers

	rx Ring
	tx Ring

	// txFirstSent tracks, per TX slot, the timestamp of that
	// confirmable's first transmission attempt — the basis for the
	// global deadline (spec.md section 4.4), independent of
	// Slot.Timestamp which tracks only the most recent send.
	txFirstSent [MaxQueue]uint32

	destIP   net.IP
	destPort int

	stats Counters
}

// Counters tracks engine activity for observability
// (metrics.EngineCollector reads these via Engine.Counters()).
type Counters struct {
	Sent        uint64
	Retransmits uint64
	Failures    uint64
	Successes   uint64
	Timeouts    uint64
	Dropped     uint64
}

// NewEngine constructs an Engine from its collaborators. It performs no
// allocation beyond the Engine value itself.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		transport: cfg.Transport,
		clock:     cfg.Clock,
		handlers:  cfg.Handlers,
	}
}

// Bind initializes the transport on the given local port and zeroes both
// rings.
func (e *Engine) Bind(localPort int) error {
	e.rx.ClearAll()
	e.tx.ClearAll()
	e.txFirstSent = [MaxQueue]uint32{}
	return e.transport.Bind(localPort)
}

// SetDestination configures the single outbound peer this engine talks to
// (spec.md Non-goals: one destination per engine instance).
func (e *Engine) SetDestination(ip net.IP, port int) {
	e.destIP = ip
	e.destPort = port
}

// Counters returns a snapshot of the engine's activity counters.
func (e *Engine) Counters() Counters { return e.stats }

// QueueDepths returns the number of FILLED slots currently in the RX and
// TX rings.
func (e *Engine) QueueDepths() (rx, tx int) {
	for i := range e.rx.Slots {
		if e.rx.Slots[i].filled() {
			rx++
		}
	}
	for i := range e.tx.Slots {
		if e.tx.Slots[i].filled() {
			tx++
		}
	}
	return rx, tx
}

// EnqueueTX parses encoded bytes and copies them into the first free TX
// slot, marking it FILLED (and IS_CON if the message is Confirmable). It
// returns ErrFull if no slot is available.
func (e *Engine) EnqueueTX(encoded []byte) (int, error) {
	idx := e.tx.findSpace()
	if idx == MaxQueue {
		return -1, ErrFull
	}
	slot := &e.tx.Slots[idx]
	if err := slot.Packet.CopyFrom(encoded); err != nil {
		return -1, err
	}
	if err := slot.Packet.Parse(); err != nil {
		slot.clear()
		return -1, err
	}
	slot.setFilled()
	if slot.Packet.Type() == Confirmable {
		slot.setIsCon()
	}
	e.txFirstSent[idx] = 0
	return idx, nil
}

// EmptyACK allocates a TX slot containing an ACK whose code and message
// id mirror the referenced RX slot. It returns ErrFull if no slot is
// available.
func (e *Engine) EmptyACK(rxIndex int) (int, error) {
	if rxIndex < 0 || rxIndex >= MaxQueue || !e.rx.Slots[rxIndex].filled() {
		return -1, ErrFull
	}
	idx := e.tx.findSpace()
	if idx == MaxQueue {
		return -1, ErrFull
	}
	src := &e.rx.Slots[rxIndex].Packet
	slot := &e.tx.Slots[idx]
	slot.Packet.Begin()
	if err := slot.Packet.AddHeader(Acknowledgement, src.Code(), src.MessageID()); err != nil {
		return -1, err
	}
	slot.Packet.Finish()
	slot.setFilled()
	e.txFirstSent[idx] = 0
	return idx, nil
}

// MarkProcessed sets PROCESSED on every FILLED RX slot whose message id
// matches, so process_rx_queue reaps it on the next tick.
func (e *Engine) MarkProcessed(messageID uint16) {
	for i := range e.rx.Slots {
		s := &e.rx.Slots[i]
		if s.filled() && s.Packet.MessageID() == messageID {
			s.setProcessed()
		}
	}
}

// ClearQueue zeroes a single slot (rx=true selects the RX ring).
func (e *Engine) ClearQueue(rx bool, index int) {
	if rx {
		e.rx.Clear(index)
	} else {
		e.tx.Clear(index)
		if index >= 0 && index < MaxQueue {
			e.txFirstSent[index] = 0
		}
	}
}

// ClearAll zeroes every slot in both rings.
func (e *Engine) ClearAll() {
	e.rx.ClearAll()
	e.tx.ClearAll()
	e.txFirstSent = [MaxQueue]uint32{}
}

func (e *Engine) send(idx int) {
	slot := &e.tx.Slots[idx]
	now := e.clock.NowMS()
	_ = e.transport.Send(e.destIP, e.destPort, slot.Packet.Bytes())
	if slot.transmissions() == 0 {
		e.txFirstSent[idx] = now
	}
	slot.Timestamp = now
	slot.incrementTransmissions()
	if debugEnable {
		traceTrace("[coap] tx[%d] send #%d: %s", idx, slot.transmissions(), slot.Packet.DebugString())
	}
}

// TickTX drives process_tx_queue: sends unsent TX slots, retransmits
// confirmables whose response deadline has passed (at most MaxAttempts
// sends in all), and fails confirmables past their global deadline
// (spec.md section 4.4).
func (e *Engine) TickTX() {
	now := e.clock.NowMS()
	for i := range e.tx.Slots {
		slot := &e.tx.Slots[i]
		if !slot.filled() {
			continue
		}
		switch {
		case slot.transmissions() == 0:
			e.send(i)
			e.stats.Sent++
		case slot.Packet.Type() != Confirmable:
			e.tx.Clear(i)
			e.txFirstSent[i] = 0
		default:
			if elapsed(now, e.txFirstSent[i]) >= MajorTimeoutMS {
				e.handlers.txFailure(slot.Packet.Bytes())
				e.stats.Failures++
				e.tx.Clear(i)
				e.txFirstSent[i] = 0
			} else if elapsed(now, slot.Timestamp) >= responseDeadlineMS(slot.transmissions()) && slot.transmissions() < MaxAttempts {
				e.send(i)
				e.stats.Retransmits++
			}
			// A slot at MaxAttempts with no ACK yet simply waits: no 6th
			// attempt is sent, and the global deadline above always fires
			// before a 6th response deadline would (MajorTimeoutMS is
			// smaller than AckTimeoutMS<<MaxAttempts).
		}
	}
}

// TickRX polls the transport for one waiting datagram, files it into the
// RX ring if there's space, then runs process_rx_queue (spec.md
// section 4.4).
func (e *Engine) TickRX() {
	b, _, _, ok, err := e.transport.Recv()
	if ok && err == nil {
		e.receive(b)
	}
	e.processRXQueue()
}

func (e *Engine) receive(b []byte) {
	idx := e.rx.findSpace()
	if idx == MaxQueue {
		e.stats.Dropped++
		return
	}
	slot := &e.rx.Slots[idx]
	if err := slot.Packet.CopyFrom(b); err != nil {
		return
	}
	slot.Timestamp = e.clock.NowMS()
	if err := slot.Packet.Parse(); err != nil {
		slot.clear()
		e.stats.Dropped++
		return
	}
	slot.setFilled()
	switch slot.Packet.Type() {
	case Acknowledgement:
		slot.setAckRcvd()
	case Confirmable:
		slot.setIsCon()
	}
	if debugEnable {
		traceTrace("[coap] rx[%d] recv: %s", idx, slot.Packet.DebugString())
	}
}

func (e *Engine) processRXQueue() {
	now := e.clock.NowMS()
	for i := range e.rx.Slots {
		rxSlot := &e.rx.Slots[i]
		if !rxSlot.filled() {
			continue
		}
		switch {
		case rxSlot.processed():
			e.rx.Clear(i)

		case rxSlot.ackRcvd():
			if j := e.findMatchingTX(rxSlot.Packet.MessageID()); j >= 0 {
				e.handlers.txSuccess(rxSlot.Packet.Bytes())
				e.stats.Successes++
				e.rx.Clear(i)
				e.tx.Clear(j)
				e.txFirstSent[j] = 0
			} else {
				e.rx.Clear(i)
			}

		case rxSlot.isCon():
			if elapsed(now, rxSlot.Timestamp) >= responseDeadlineMS(1) {
				if ackIdx := e.tx.findSpace(); ackIdx < MaxQueue {
					ackSlot := &e.tx.Slots[ackIdx]
					ackSlot.Packet.Begin()
					_ = ackSlot.Packet.AddHeader(Acknowledgement, rxSlot.Packet.Code(), rxSlot.Packet.MessageID())
					ackSlot.Packet.Finish()
					e.send(ackIdx)
					e.tx.Clear(ackIdx)
				}
				e.handlers.responseTimeout(rxSlot.Packet.Bytes())
				e.stats.Timeouts++
				e.rx.Clear(i)
			} else {
				e.handlers.packetAvailable(rxSlot.Packet.Bytes())
			}

		default: // NON or RST
			e.handlers.packetAvailable(rxSlot.Packet.Bytes())
		}
	}
}

func (e *Engine) findMatchingTX(messageID uint16) int {
	for i := range e.tx.Slots {
		if e.tx.Slots[i].filled() && e.tx.Slots[i].Packet.MessageID() == messageID {
			return i
		}
	}
	return -1
}
