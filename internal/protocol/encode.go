package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/banshee-data/gantry/internal/encounter"
)

// MaxAngle is the largest value representable as a u16 in hundredths.
const MaxAngle = math.MaxUint16 / 100.0

// HandshakeLen is the size of the clock-set message sent once at startup.
const HandshakeLen = 2 + encounter.TimestampLen + 4

// BeginMarker returns a copy of the begin marker bytes.
func BeginMarker() []byte { return append([]byte(nil), beginMarker...) }

// CommitMarker returns a copy of the commit marker bytes.
func CommitMarker() []byte { return append([]byte(nil), commitMarker...) }

func scaleAngle(name string, v float64) (uint16, error) {
	scaled := math.Round(v * 100)
	if math.IsNaN(scaled) || scaled < 0 || scaled > math.MaxUint16 {
		return 0, fmt.Errorf("%s %.2f outside 0..%.2f", name, v, MaxAngle)
	}
	return uint16(scaled), nil
}

// AppendInstruction appends the 4 byte wire form of in to dst. An azimuth
// that scales to the marker value cannot be framed and is rejected.
func AppendInstruction(dst []byte, in encounter.Instruction) ([]byte, error) {
	az, err := scaleAngle("azimuth", in.Azimuth)
	if err != nil {
		return dst, err
	}
	// the azimuth half sits on a word boundary, where the decoder looks for
	// markers first
	if az == Marker {
		return dst, fmt.Errorf("%w: azimuth %.2f", ErrMarkerCollision, in.Azimuth)
	}
	el, err := scaleAngle("elevation", in.Elevation)
	if err != nil {
		return dst, err
	}
	dst = binary.BigEndian.AppendUint16(dst, az)
	dst = binary.BigEndian.AppendUint16(dst, el)
	return dst, nil
}

// AppendEncounter appends a complete batch (begin marker, timestamp,
// padding, instructions, commit marker) to dst.
func AppendEncounter(dst []byte, start encounter.Timestamp, ins []encounter.Instruction) ([]byte, error) {
	if !start.Complete() {
		return dst, encounter.ErrTimestampIncomplete
	}
	frame := len(beginMarker) + encounter.TimestampLen
	out := append(dst, beginMarker...)
	out = append(out, start.Digits()...)
	for pad := (WordSize - frame%WordSize) % WordSize; pad > 0; pad-- {
		out = append(out, 0)
	}
	for i, in := range ins {
		var err error
		if out, err = AppendInstruction(out, in); err != nil {
			return dst, fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return append(out, commitMarker...), nil
}

// EncodeHandshake returns the 20 byte clock-set message for ts.
func EncodeHandshake(ts encounter.Timestamp) ([]byte, error) {
	if !ts.Complete() {
		return nil, encounter.ErrTimestampIncomplete
	}
	out := make([]byte, 0, HandshakeLen)
	out = append(out, beginMarker...)
	out = append(out, ts.Digits()...)
	return append(out, commitMarker...), nil
}
