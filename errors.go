package coap

import "errors"

// Programmer errors: the caller issued build/parse calls out of order or
// with invalid arguments. The packet under construction is left poisoned;
// the caller must Begin() again.
var (
	ErrOutOfOrder            = errors.New("coap: build call issued out of order")
	ErrBadToken              = errors.New("coap: token length must be in [0,8]")
	ErrBadOrder              = errors.New("coap: option number must be non-decreasing")
	ErrBadOption             = errors.New("coap: option number 0 (OPTION_REPEAT) is reserved")
	ErrPayloadAlreadyPresent = errors.New("coap: payload already added")
	ErrBadVersion            = errors.New("coap: unsupported protocol version")
	ErrMalformedOption       = errors.New("coap: option nibble 15 is reserved")
	ErrTruncated             = errors.New("coap: packet truncated")
)

// Capacity errors: the operation would exceed a fixed-size resource. The
// caller decides whether to drop or retry.
var (
	ErrCapacityExceeded = errors.New("coap: packet would exceed MAX_PDU")
	ErrTooManyOptions   = errors.New("coap: option table full")
	ErrFull             = errors.New("coap: queue ring full")
)
