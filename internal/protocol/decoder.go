// Package protocol decodes the orchestrator's instruction stream.
//
// A batch on the wire is
//
//	[C2 AA] [14 ASCII digits YYMMDDWWHHMMSS] [pad to 4 bytes]
//	{ [az*100 u16 BE] [el*100 u16 BE] }*
//	[C2 AA C2 AA]
//
// Word alignment is measured from the first byte of the begin marker.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/gantry/internal/encounter"
	"github.com/banshee-data/gantry/internal/monitoring"
)

// Marker is the two byte sentinel. Sent once it begins an encounter, sent
// twice it commits one.
const Marker uint16 = 0xC2AA

// WordSize is the alignment unit of the instruction stream.
const WordSize = 4

const (
	markerHi = byte(Marker >> 8)
	markerLo = byte(Marker & 0xFF)
)

var (
	beginMarker  = []byte{markerHi, markerLo}
	commitMarker = []byte{markerHi, markerLo, markerHi, markerLo}
)

// Stats counts what the decoder has seen since it was created.
type Stats struct {
	Bytes           uint64 `json:"bytes"`
	Begun           uint64 `json:"begun"`
	Committed       uint64 `json:"committed"`
	Abandoned       uint64 `json:"abandoned"`
	Instructions    uint64 `json:"instructions"`
	FramingErrors   uint64 `json:"framing_errors"`
	AlignmentErrors uint64 `json:"alignment_errors"`
	StrayErrors     uint64 `json:"stray_errors"`
}

// Decoder turns successive reads into encounters on a Queue. State that
// survives between reads lives in the queue's in-progress slot plus the
// frame cursor and up to three carried bytes.
type Decoder struct {
	queue *encounter.Queue

	// cursor is the offset of the next byte from the start of the
	// current frame's begin marker.
	cursor int
	// pad is the number of padding bytes still to skip after the
	// timestamp.
	pad   int
	carry []byte

	stats Stats

	// OnCommit, if set, is called for every encounter moved onto the queue.
	OnCommit func(*encounter.Encounter)
}

// NewDecoder returns a decoder that assembles encounters onto q.
func NewDecoder(q *encounter.Queue) *Decoder {
	return &Decoder{queue: q, carry: make([]byte, 0, WordSize-1)}
}

// Stats returns a copy of the decoder counters.
func (d *Decoder) Stats() Stats { return d.stats }

// Feed decodes one read. On a framing, alignment or stray-byte error the
// in-progress encounter is dropped, the rest of the read is discarded and a
// *DecodeError is returned; the next read starts clean.
func (d *Decoder) Feed(p []byte) error {
	d.stats.Bytes += uint64(len(p))

	buf := p
	if len(d.carry) > 0 {
		buf = make([]byte, 0, len(d.carry)+len(p))
		buf = append(append(buf, d.carry...), p...)
		d.carry = d.carry[:0]
	}

	for pos := 0; pos < len(buf); {
		rest := buf[pos:]

		switch {
		case bytes.HasPrefix(rest, commitMarker):
			if err := d.commit(buf, pos); err != nil {
				return err
			}
			pos += len(commitMarker)
			continue
		case len(rest) < len(commitMarker) && bytes.HasPrefix(commitMarker, rest):
			// Could still become a commit marker.
			d.hold(rest)
			return nil
		case bytes.HasPrefix(rest, beginMarker):
			d.begin()
			pos += len(beginMarker)
			continue
		}

		e := d.queue.InProgress()
		if e == nil {
			return d.fail(KindStray, buf, pos, "no begin marker seen")
		}

		switch {
		case !e.Start.Complete():
			for pos < len(buf) && !e.Start.Complete() {
				if err := e.Start.Fill(buf[pos]); err != nil {
					return d.fail(KindFraming, buf, pos, fmt.Sprintf("byte 0x%02x in timestamp digit %d", buf[pos], e.Start.Filled()))
				}
				pos++
				d.cursor++
			}
			if e.Start.Complete() {
				d.pad = (WordSize - d.cursor%WordSize) % WordSize
			}

		case d.pad > 0:
			n := min(d.pad, len(rest))
			pos += n
			d.cursor += n
			d.pad -= n

		case d.cursor%WordSize != 0:
			return d.fail(KindAlignment, buf, pos, fmt.Sprintf("frame offset %d is not word aligned", d.cursor))

		case len(rest) < WordSize:
			d.hold(rest)
			return nil

		default:
			in := decodeInstruction(rest[:WordSize])
			if err := e.Append(in); err != nil {
				return d.fail(KindFraming, buf, pos, err.Error())
			}
			d.stats.Instructions++
			pos += WordSize
			d.cursor += WordSize
		}
	}
	return nil
}

func (d *Decoder) begin() {
	_, abandoned := d.queue.Begin()
	if abandoned != nil {
		d.stats.Abandoned++
		monitoring.Logf("protocol: begin marker dropped unfinished encounter %s (%d instructions)", abandoned.ID, abandoned.Len())
	}
	d.stats.Begun++
	d.cursor = len(beginMarker)
	d.pad = 0
}

func (d *Decoder) commit(buf []byte, pos int) error {
	e := d.queue.InProgress()
	if e == nil {
		return nil
	}
	if !e.Start.Complete() {
		return d.fail(KindFraming, buf, pos, fmt.Sprintf("commit marker after %d of %d timestamp digits", e.Start.Filled(), encounter.TimestampLen))
	}
	d.queue.Commit()
	d.stats.Committed++
	d.resetFrame()
	if d.OnCommit != nil {
		d.OnCommit(e)
	}
	return nil
}

func (d *Decoder) hold(rest []byte) {
	d.carry = append(d.carry[:0], rest...)
}

func (d *Decoder) resetFrame() {
	d.cursor = 0
	d.pad = 0
	d.carry = d.carry[:0]
}

func (d *Decoder) fail(kind Kind, buf []byte, pos int, detail string) error {
	if abandoned := d.queue.Abandon(); abandoned != nil {
		d.stats.Abandoned++
	}
	d.resetFrame()
	switch kind {
	case KindFraming:
		d.stats.FramingErrors++
	case KindAlignment:
		d.stats.AlignmentErrors++
	case KindStray:
		d.stats.StrayErrors++
	}
	return &DecodeError{
		Kind:   kind,
		Offset: pos,
		Detail: detail,
		Buffer: append([]byte(nil), buf...),
	}
}

func decodeInstruction(w []byte) encounter.Instruction {
	return encounter.Instruction{
		Azimuth:   float64(binary.BigEndian.Uint16(w[0:2])) / 100,
		Elevation: float64(binary.BigEndian.Uint16(w[2:4])) / 100,
	}
}
