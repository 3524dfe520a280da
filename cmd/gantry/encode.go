package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/gantry/internal/encounter"
	"github.com/banshee-data/gantry/internal/protocol"
)

// runEncode implements `gantry encode`: it writes the wire bytes for one
// encounter (or a clock handshake) so a bench rig can be driven from a shell,
// for example `gantry encode -start 23011002121530 180,45 90,10 > /dev/ttyUSB0`.
func runEncode(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	fs.SetOutput(out)
	start := fs.String("start", "", "Start time as 14 digits YYMMDDWWHHMMSS (defaults to now)")
	handshake := fs.Bool("handshake", false, "Emit a clock handshake instead of an encounter")
	asHex := fs.Bool("hex", false, "Write hex text instead of raw bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ts, err := startTimestamp(*start, time.Now())
	if err != nil {
		return err
	}

	var frame []byte
	if *handshake {
		if fs.NArg() > 0 {
			return errors.New("a handshake carries no instructions")
		}
		frame, err = protocol.EncodeHandshake(ts)
	} else {
		var ins []encounter.Instruction
		ins, err = parseInstructions(fs.Args())
		if err != nil {
			return err
		}
		frame, err = protocol.AppendEncounter(nil, ts, ins)
	}
	if err != nil {
		return err
	}

	if *asHex {
		_, err = fmt.Fprintln(out, hex.EncodeToString(frame))
		return err
	}
	_, err = out.Write(frame)
	return err
}

func startTimestamp(digits string, now time.Time) (encounter.Timestamp, error) {
	if digits == "" {
		return encounter.TimestampFromTime(now)
	}
	return encounter.ParseTimestamp(digits)
}

// parseInstructions reads "az,el" pairs in degrees.
func parseInstructions(args []string) ([]encounter.Instruction, error) {
	ins := make([]encounter.Instruction, 0, len(args))
	for _, arg := range args {
		azStr, elStr, ok := strings.Cut(arg, ",")
		if !ok {
			return nil, fmt.Errorf("instruction %q: want az,el", arg)
		}
		az, err := strconv.ParseFloat(strings.TrimSpace(azStr), 64)
		if err != nil {
			return nil, fmt.Errorf("instruction %q: azimuth: %w", arg, err)
		}
		el, err := strconv.ParseFloat(strings.TrimSpace(elStr), 64)
		if err != nil {
			return nil, fmt.Errorf("instruction %q: elevation: %w", arg, err)
		}
		ins = append(ins, encounter.Instruction{Azimuth: az, Elevation: el})
	}
	return ins, nil
}

// devFrames is the fixture traffic replayed in -dev mode: a slow pan across
// the sky starting at ts.
func devFrames(ts encounter.Timestamp) ([][]byte, error) {
	passes := [][]encounter.Instruction{
		{{Azimuth: 90, Elevation: 10}, {Azimuth: 120, Elevation: 35}, {Azimuth: 150, Elevation: 60}},
		{{Azimuth: 180, Elevation: 45}, {Azimuth: 210, Elevation: 30}},
	}
	frames := make([][]byte, 0, len(passes))
	for i, ins := range passes {
		frame, err := protocol.AppendEncounter(nil, ts, ins)
		if err != nil {
			return nil, fmt.Errorf("fixture %d: %w", i, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
