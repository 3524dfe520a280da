package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrFraming   = errors.New("protocol: framing error")
	ErrAlignment = errors.New("protocol: word alignment error")
	ErrStray     = errors.New("protocol: bytes outside of an encounter")

	ErrMarkerCollision = errors.New("protocol: instruction word collides with the frame marker")
)

// Kind classifies a batch-local decode failure.
type Kind int

const (
	KindFraming Kind = iota + 1
	KindAlignment
	KindStray
)

func (k Kind) sentinel() error {
	switch k {
	case KindFraming:
		return ErrFraming
	case KindAlignment:
		return ErrAlignment
	case KindStray:
		return ErrStray
	}
	return fmt.Errorf("protocol: unknown error kind %d", int(k))
}

func (k Kind) String() string {
	switch k {
	case KindFraming:
		return "framing"
	case KindAlignment:
		return "alignment"
	case KindStray:
		return "stray"
	}
	return "unknown"
}

// DecodeError reports a read that could not be decoded. Buffer is a copy of
// the bytes the decoder was working on (any carried bytes from the previous
// read followed by the read itself) and Offset indexes into it.
type DecodeError struct {
	Kind   Kind
	Offset int
	Detail string
	Buffer []byte
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%v at offset %d of %d bytes", e.Kind.sentinel(), e.Offset, len(e.Buffer))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Kind.sentinel() }
