package coap

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/xid"
)

// buildStage tracks how far a Packet has progressed through the required
// Begin -> AddHeader -> AddTokens? -> AddOption* -> AddPayload? sequence,
// so that an out-of-order call can be rejected instead of corrupting the
// buffer (spec.md section 4.2.1).
type buildStage uint8

const (
	stageEmpty buildStage = iota
	stageHeader
	stageTokens
	stageOptions
	stagePayload
)

// optionEntry is a decoded option's position in the packet's own buffer:
// a borrow, not a copy (spec.md section 9, "Option index storage").
type optionEntry struct {
	number OptionNumber
	offset int
	length int
}

// Packet is a single CoAP message backed by a fixed-capacity byte buffer.
// It owns no heap-allocated storage beyond its own fields: buffer is a
// value array, and the option index is a value array too. A Packet is
// reused across its queue slot's lifetime (spec.md section 3 "Lifecycle").
type Packet struct {
	buffer [MaxPDU]byte
	length int

	headerOff  int
	tokenOff   int
	optionsOff int
	payloadOff int

	version     uint8
	typ         Type
	tokenLength uint8
	code        Code
	messageID   uint16

	options     [MaxOptions]optionEntry
	optionCount int
	cursor      int

	stage                 buildStage
	lastAddedOptionNumber OptionNumber
	index                 int // write cursor during build
}

// Begin resets the packet for a new build, clearing all offsets and the
// option index. It must be called before any Add* method.
func (p *Packet) Begin() {
	*p = Packet{buffer: p.buffer}
	p.tokenOff = absent
	p.optionsOff = absent
	p.payloadOff = absent
	p.stage = stageEmpty
}

// Bytes returns the encoded packet's meaningful bytes. The slice aliases
// the packet's own buffer and is only valid for the packet's lifetime.
func (p *Packet) Bytes() []byte {
	return p.buffer[:p.length]
}

// Len returns the number of meaningful bytes currently in the packet.
func (p *Packet) Len() int { return p.length }

// Type returns the cached message type.
func (p *Packet) Type() Type { return p.typ }

// Code returns the cached method/response code.
func (p *Packet) Code() Code { return p.code }

// MessageID returns the cached 16-bit message id.
func (p *Packet) MessageID() uint16 { return p.messageID }

// Token returns the token bytes, a borrow into the packet's own buffer.
func (p *Packet) Token() []byte {
	if p.tokenOff == absent || p.tokenLength == 0 {
		return nil
	}
	return p.buffer[p.tokenOff : p.tokenOff+int(p.tokenLength)]
}

// Payload returns the payload bytes, a borrow into the packet's own
// buffer, or nil if the packet carries no payload.
func (p *Packet) Payload() []byte {
	if p.payloadOff == absent {
		return nil
	}
	return p.buffer[p.payloadOff:p.length]
}

func (p *Packet) appendByte(b byte) error {
	if p.index >= MaxPDU {
		return ErrCapacityExceeded
	}
	p.buffer[p.index] = b
	p.index++
	return nil
}

func (p *Packet) appendBytes(b []byte) error {
	if p.index+len(b) > MaxPDU {
		return ErrCapacityExceeded
	}
	copy(p.buffer[p.index:], b)
	p.index += len(b)
	return nil
}

// AddHeader writes the 4-byte fixed header. Byte 0's token-length nibble
// is written as 0 here and patched by AddTokens.
func (p *Packet) AddHeader(typ Type, code Code, messageID uint16) error {
	if p.stage != stageEmpty {
		return ErrOutOfOrder
	}
	p.headerOff = p.index
	if err := p.appendByte((1 << 6) | (uint8(typ&0x03) << 4)); err != nil {
		return err
	}
	if err := p.appendByte(byte(code)); err != nil {
		return err
	}
	if err := p.appendByte(byte(messageID >> 8)); err != nil {
		return err
	}
	if err := p.appendByte(byte(messageID)); err != nil {
		return err
	}
	p.typ = typ
	p.code = code
	p.messageID = messageID
	p.stage = stageHeader
	return nil
}

// AddTokens appends a 0..8 byte token and patches the header's TKL nibble.
func (p *Packet) AddTokens(token []byte) error {
	if p.stage != stageHeader {
		return ErrOutOfOrder
	}
	if len(token) > MaxTokenSize {
		return ErrBadToken
	}
	p.tokenOff = p.index
	p.buffer[p.headerOff] = (p.buffer[p.headerOff] & 0xF0) | byte(len(token)&0x0f)
	if err := p.appendBytes(token); err != nil {
		return err
	}
	p.tokenLength = uint8(len(token))
	p.stage = stageTokens
	return nil
}

// extendOption splits a delta or length value into its 4-bit nibble code
// and, if any, the extension bytes that follow the option header byte,
// per RFC 7252 section 3.1 (ported from original_source's extendOpt).
func extendOption(v int) (nibble int, extraBytes []byte) {
	switch {
	case v < 13:
		return v, nil
	case v <= 268:
		return 13, []byte{byte(v - 13)}
	default:
		ext := v - 269
		return 14, []byte{byte(ext >> 8), byte(ext)}
	}
}

// AddOption appends one option. Options must be added in non-decreasing
// number order (RFC 7252 section 3.1, invariant I2).
func (p *Packet) AddOption(number OptionNumber, value []byte) error {
	if p.stage != stageHeader && p.stage != stageTokens && p.stage != stageOptions {
		return ErrOutOfOrder
	}
	if number == optionRepeat {
		return ErrBadOption
	}
	if number < p.lastAddedOptionNumber {
		return ErrBadOrder
	}
	if p.optionCount >= MaxOptions {
		return ErrTooManyOptions
	}

	if p.optionsOff == absent {
		p.optionsOff = p.index
	}

	delta := int(number - p.lastAddedOptionNumber)
	deltaNibble, deltaExt := extendOption(delta)
	lengthNibble, lengthExt := extendOption(len(value))

	if err := p.appendByte(byte(deltaNibble<<4) | byte(lengthNibble)); err != nil {
		return err
	}
	if err := p.appendBytes(deltaExt); err != nil {
		return err
	}
	if err := p.appendBytes(lengthExt); err != nil {
		return err
	}
	valueOff := p.index
	if err := p.appendBytes(value); err != nil {
		return err
	}

	p.options[p.optionCount] = optionEntry{number: number, offset: valueOff, length: len(value)}
	p.optionCount++
	p.lastAddedOptionNumber = number
	p.stage = stageOptions
	return nil
}

// AddPayload writes the 0xFF payload marker followed by the payload
// bytes. A packet may carry at most one payload.
func (p *Packet) AddPayload(payload []byte) error {
	if p.stage == stagePayload {
		return ErrPayloadAlreadyPresent
	}
	if p.stage != stageHeader && p.stage != stageTokens && p.stage != stageOptions {
		return ErrOutOfOrder
	}
	if len(payload) == 0 {
		p.stage = stagePayload
		p.length = p.index
		return nil
	}
	if err := p.appendByte(payloadMarker); err != nil {
		return err
	}
	p.payloadOff = p.index
	if err := p.appendBytes(payload); err != nil {
		return err
	}
	p.stage = stagePayload
	p.length = p.index
	return nil
}

// Finish closes out a build that has no payload, setting the authoritative
// length (invariant I1). Callers that do call AddPayload do not need to
// call Finish; AddPayload already finalizes length.
func (p *Packet) Finish() {
	if p.stage != stagePayload {
		p.length = p.index
	}
}

// CopyFrom replaces the packet's contents wholesale with raw bytes and
// resets build/parse state. The caller must call Parse afterwards.
func (p *Packet) CopyFrom(src []byte) error {
	if len(src) > MaxPDU {
		return ErrCapacityExceeded
	}
	p.Begin()
	copy(p.buffer[:], src)
	p.length = len(src)
	p.index = len(src)
	return nil
}

// Parse decodes the packet's raw buffer (spec.md section 4.2.2),
// populating the cached header fields and option index. The buffer must
// already contain the bytes to parse (see CopyFrom).
func (p *Packet) Parse() error {
	data := p.buffer[:p.length]
	if len(data) < 4 {
		return ErrTruncated
	}
	if data[0]>>6 != 1 {
		return ErrBadVersion
	}
	p.version = 1
	p.typ = Type((data[0] >> 4) & 0x03)
	tokenLength := data[0] & 0x0f
	if tokenLength > MaxTokenSize {
		return ErrBadToken
	}
	p.code = Code(data[1])
	p.messageID = binary.BigEndian.Uint16(data[2:4])

	p.headerOff = 0
	p.tokenOff = 4
	if tokenLength == 0 {
		p.tokenOff = absent
	}
	p.tokenLength = tokenLength

	cursor := 4 + int(tokenLength)
	if cursor > len(data) {
		return ErrTruncated
	}

	p.optionsOff = absent
	p.optionCount = 0
	p.cursor = 0
	prev := OptionNumber(0)

	for cursor < len(data) && data[cursor] != payloadMarker {
		if p.optionsOff == absent {
			p.optionsOff = cursor
		}
		hdr := data[cursor]
		deltaNibble := int(hdr >> 4)
		lengthNibble := int(hdr & 0x0f)
		if deltaNibble == 15 || lengthNibble == 15 {
			return ErrMalformedOption
		}
		cursor++

		delta, n, err := decodeExtended(deltaNibble, data[cursor:])
		if err != nil {
			return err
		}
		cursor += n

		length, n, err := decodeExtended(lengthNibble, data[cursor:])
		if err != nil {
			return err
		}
		cursor += n

		number := prev + OptionNumber(delta)
		if cursor+length > len(data) {
			return ErrTruncated
		}
		if p.optionCount >= MaxOptions {
			return ErrTooManyOptions
		}
		p.options[p.optionCount] = optionEntry{number: number, offset: cursor, length: length}
		p.optionCount++
		prev = number
		cursor += length
	}

	if cursor < len(data) && data[cursor] == payloadMarker {
		p.payloadOff = cursor + 1
		if p.payloadOff > len(data) {
			return ErrTruncated
		}
	} else {
		p.payloadOff = absent
	}

	return nil
}

// decodeExtended is the inverse of extendOption: given a 4-bit nibble and
// the bytes following the option header, returns the real value and how
// many extension bytes it consumed.
func decodeExtended(nibble int, rest []byte) (value int, consumed int, err error) {
	switch nibble {
	case 13:
		if len(rest) < 1 {
			return 0, 0, ErrTruncated
		}
		return int(rest[0]) + 13, 1, nil
	case 14:
		if len(rest) < 2 {
			return 0, 0, ErrTruncated
		}
		return int(binary.BigEndian.Uint16(rest[:2])) + 269, 2, nil
	default:
		return nibble, 0, nil
	}
}

// OptionStart resets the iterator cursor and returns the first option's
// number, or false if the packet has no options.
func (p *Packet) OptionStart() (OptionNumber, bool) {
	p.cursor = 0
	if p.optionCount == 0 {
		return 0, false
	}
	return p.options[0].number, true
}

// NextOption advances the iterator and returns the next option's number.
func (p *Packet) NextOption() (OptionNumber, bool) {
	p.cursor++
	if p.cursor >= p.optionCount {
		return 0, false
	}
	return p.options[p.cursor].number, true
}

// CurrentOptionValue returns the value of the option the iterator is
// currently positioned at, a borrow into the packet's own buffer.
func (p *Packet) CurrentOptionValue() []byte {
	if p.cursor < 0 || p.cursor >= p.optionCount {
		return nil
	}
	e := p.options[p.cursor]
	return p.buffer[e.offset : e.offset+e.length]
}

// Options returns all values recorded for a given option number, in
// encoded order. Each returned slice aliases the packet's own buffer.
func (p *Packet) Options(number OptionNumber) [][]byte {
	var out [][]byte
	for i := 0; i < p.optionCount; i++ {
		e := p.options[i]
		if e.number == number {
			out = append(out, p.buffer[e.offset:e.offset+e.length])
		}
	}
	return out
}

// PathString joins all Uri-Path option values with "/", the teacher's
// convenience for reading a request path as one string.
func (p *Packet) PathString() string {
	segs := p.Options(URIPath)
	if len(segs) == 0 {
		return ""
	}
	out := make([]byte, 0, 32)
	for i, s := range segs {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, s...)
	}
	return string(out)
}

// DebugString renders the packet in a human-readable form. The engine
// calls it only for trace logging while Debug(true) is set (see debug.go).
func (p *Packet) DebugString() string {
	s := fmt.Sprintf("CoAP %s %s id=%d token=% X", p.typ, p.code, p.messageID, p.Token())
	for i := 0; i < p.optionCount; i++ {
		e := p.options[i]
		s += fmt.Sprintf(" opt[%d]=% X", e.number, p.buffer[e.offset:e.offset+e.length])
	}
	if pl := p.Payload(); pl != nil {
		s += fmt.Sprintf(" payload=%d bytes", len(pl))
	}
	return s
}

// NewToken mints an opaque 8-byte CoAP token from a fresh xid, for client
// code that doesn't want to manage its own token counter across restarts.
func NewToken() []byte {
	id := xid.New()
	b := id.Bytes() // 12 bytes; CoAP tokens are capped at 8
	return b[:MaxTokenSize]
}
