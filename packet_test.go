package coap

import "testing"

// S1: CON GET id=0x1234 token=[0xAB] with Uri-Path "hi" encodes to the
// bit-exact wire form from spec.md section 5.
func TestPacket_EncodeS1(t *testing.T) {
	var p Packet
	p.Begin()
	if err := p.AddHeader(Confirmable, GET, 0x1234); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}
	if err := p.AddTokens([]byte{0xAB}); err != nil {
		t.Fatalf("AddTokens: %v", err)
	}
	if err := p.AddOption(URIPath, []byte("hi")); err != nil {
		t.Fatalf("AddOption: %v", err)
	}
	p.Finish()

	want := []byte{0x41, 0x01, 0x12, 0x34, 0xAB, 0xB2, 0x68, 0x69}
	got := p.Bytes()
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d (% X)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x (% X)", i, got[i], want[i], got)
		}
	}
}

// S2: NON code=0 id=0, no token, a single empty-valued option number 269
// uses extended delta encoding (nibble 14) with no length extension.
func TestPacket_EncodeS2(t *testing.T) {
	var p Packet
	p.Begin()
	if err := p.AddHeader(NonConfirmable, Empty, 0); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}
	if err := p.AddTokens(nil); err != nil {
		t.Fatalf("AddTokens: %v", err)
	}
	if err := p.AddOption(OptionNumber(269), nil); err != nil {
		t.Fatalf("AddOption: %v", err)
	}
	p.Finish()

	// 4-byte header (NON, code 0, id 0), then the option header E0 00 00.
	want := []byte{0x50, 0x00, 0x00, 0x00, 0xE0, 0x00, 0x00}
	got := p.Bytes()
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d (% X)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x (% X)", i, got[i], want[i], got)
		}
	}
}

// P1: encoding then parsing a packet recovers the header fields, token,
// Uri-Path options and payload.
func TestPacket_RoundTrip(t *testing.T) {
	var p Packet
	p.Begin()
	if err := p.AddHeader(Confirmable, GET, 0xBEEF); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}
	if err := p.AddTokens([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("AddTokens: %v", err)
	}
	if err := p.AddOption(URIPath, []byte("a")); err != nil {
		t.Fatalf("AddOption 1: %v", err)
	}
	if err := p.AddOption(URIPath, []byte("b")); err != nil {
		t.Fatalf("AddOption 2: %v", err)
	}
	if err := p.AddOption(ContentFormat, []byte{byte(TextPlain)}); err != nil {
		t.Fatalf("AddOption 3: %v", err)
	}
	if err := p.AddPayload([]byte("hello")); err != nil {
		t.Fatalf("AddPayload: %v", err)
	}

	var out Packet
	if err := out.CopyFrom(p.Bytes()); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if err := out.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if out.Type() != Confirmable {
		t.Errorf("Type() = %v, want Confirmable", out.Type())
	}
	if out.Code() != GET {
		t.Errorf("Code() = %v, want GET", out.Code())
	}
	if out.MessageID() != 0xBEEF {
		t.Errorf("MessageID() = %#x, want 0xBEEF", out.MessageID())
	}
	if string(out.Token()) != "\x01\x02\x03" {
		t.Errorf("Token() = % X, want 01 02 03", out.Token())
	}
	if got := out.PathString(); got != "a/b" {
		t.Errorf("PathString() = %q, want %q", got, "a/b")
	}
	if string(out.Payload()) != "hello" {
		t.Errorf("Payload() = %q, want %q", out.Payload(), "hello")
	}
}

// P2: the iterator walks options in encoded order.
func TestPacket_Iterator(t *testing.T) {
	var p Packet
	p.Begin()
	_ = p.AddHeader(Confirmable, GET, 1)
	_ = p.AddOption(URIPath, []byte("x"))
	_ = p.AddOption(URIPath, []byte("y"))
	_ = p.AddOption(ContentFormat, []byte{0})
	p.Finish()

	var out Packet
	_ = out.CopyFrom(p.Bytes())
	if err := out.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var seen []OptionNumber
	num, ok := out.OptionStart()
	for ok {
		seen = append(seen, num)
		num, ok = out.NextOption()
	}
	want := []OptionNumber{URIPath, URIPath, ContentFormat}
	if len(seen) != len(want) {
		t.Fatalf("saw %d options, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("option %d = %d, want %d", i, seen[i], want[i])
		}
	}
}

// P5: options must be added in non-decreasing number order.
func TestPacket_AddOption_BadOrder(t *testing.T) {
	var p Packet
	p.Begin()
	_ = p.AddHeader(Confirmable, GET, 1)
	if err := p.AddOption(URIPath, []byte("z")); err != nil {
		t.Fatalf("first AddOption: %v", err)
	}
	if err := p.AddOption(IfMatch, []byte("x")); err != ErrBadOrder {
		t.Fatalf("AddOption out of order = %v, want ErrBadOrder", err)
	}
}

// AddOption rejects only the reserved OPTION_REPEAT number (0); any other
// number, named or not, is legal (spec.md section 8 S2 builds option 269,
// which has no name in wire.go).
func TestPacket_AddOption_ReservedZero(t *testing.T) {
	var p Packet
	p.Begin()
	_ = p.AddHeader(Confirmable, GET, 1)
	if err := p.AddOption(OptionNumber(0), []byte("x")); err != ErrBadOption {
		t.Fatalf("AddOption(0) = %v, want ErrBadOption", err)
	}
}

func TestPacket_AddOption_UnnamedNumberAllowed(t *testing.T) {
	var p Packet
	p.Begin()
	_ = p.AddHeader(Confirmable, GET, 1)
	if err := p.AddOption(OptionNumber(2), []byte("x")); err != nil {
		t.Fatalf("AddOption(2) = %v, want nil (2 has no name but is not reserved)", err)
	}
}

func TestPacket_AddOption_OutOfOrderStage(t *testing.T) {
	var p Packet
	p.Begin()
	if err := p.AddOption(URIPath, []byte("x")); err != ErrOutOfOrder {
		t.Fatalf("AddOption before AddHeader = %v, want ErrOutOfOrder", err)
	}
}

func TestPacket_AddTokens_TooLong(t *testing.T) {
	var p Packet
	p.Begin()
	_ = p.AddHeader(Confirmable, GET, 1)
	if err := p.AddTokens(make([]byte, 9)); err != ErrBadToken {
		t.Fatalf("AddTokens(9 bytes) = %v, want ErrBadToken", err)
	}
}

func TestPacket_AddPayload_Twice(t *testing.T) {
	var p Packet
	p.Begin()
	_ = p.AddHeader(Confirmable, GET, 1)
	if err := p.AddPayload([]byte("a")); err != nil {
		t.Fatalf("first AddPayload: %v", err)
	}
	if err := p.AddPayload([]byte("b")); err != ErrPayloadAlreadyPresent {
		t.Fatalf("second AddPayload = %v, want ErrPayloadAlreadyPresent", err)
	}
}

func TestPacket_Parse_BadVersion(t *testing.T) {
	var p Packet
	if err := p.CopyFrom([]byte{0x00, 0x01, 0x00, 0x00}); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if err := p.Parse(); err != ErrBadVersion {
		t.Fatalf("Parse() = %v, want ErrBadVersion", err)
	}
}

func TestPacket_Parse_Truncated(t *testing.T) {
	var p Packet
	if err := p.CopyFrom([]byte{0x40, 0x01}); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if err := p.Parse(); err != ErrTruncated {
		t.Fatalf("Parse() = %v, want ErrTruncated", err)
	}
}

func TestNewToken_Length(t *testing.T) {
	tok := NewToken()
	if len(tok) != MaxTokenSize {
		t.Fatalf("len(NewToken()) = %d, want %d", len(tok), MaxTokenSize)
	}
}
