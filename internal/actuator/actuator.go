// Package actuator provides the executor.Actuator implementations the rig
// can run with.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/banshee-data/gantry/internal/executor"
	"github.com/banshee-data/gantry/internal/monitoring"
)

var ErrOutOfRange = errors.New("actuator: command outside drive limits")

// Limits bounds the angles the drive accepts, in degrees.
type Limits struct {
	MinAzimuth   float64 `json:"min_azimuth"`
	MaxAzimuth   float64 `json:"max_azimuth"`
	MinElevation float64 `json:"min_elevation"`
	MaxElevation float64 `json:"max_elevation"`
}

// DefaultLimits covers a full azimuth turn and horizon to zenith.
func DefaultLimits() Limits {
	return Limits{MinAzimuth: 0, MaxAzimuth: 360, MinElevation: 0, MaxElevation: 90}
}

// Validate reports ranges that are empty or not numbers.
func (l Limits) Validate() error {
	if math.IsNaN(l.MinAzimuth) || math.IsNaN(l.MaxAzimuth) || l.MinAzimuth > l.MaxAzimuth {
		return fmt.Errorf("azimuth range [%v, %v] is empty", l.MinAzimuth, l.MaxAzimuth)
	}
	if math.IsNaN(l.MinElevation) || math.IsNaN(l.MaxElevation) || l.MinElevation > l.MaxElevation {
		return fmt.Errorf("elevation range [%v, %v] is empty", l.MinElevation, l.MaxElevation)
	}
	return nil
}

// Check returns an error when cmd is outside l.
func (l Limits) Check(cmd executor.Command) error {
	if cmd.Azimuth < l.MinAzimuth || cmd.Azimuth > l.MaxAzimuth {
		return fmt.Errorf("%w: azimuth %.2f outside [%.2f, %.2f]", ErrOutOfRange, cmd.Azimuth, l.MinAzimuth, l.MaxAzimuth)
	}
	if cmd.Elevation < l.MinElevation || cmd.Elevation > l.MaxElevation {
		return fmt.Errorf("%w: elevation %.2f outside [%.2f, %.2f]", ErrOutOfRange, cmd.Elevation, l.MinElevation, l.MaxElevation)
	}
	return nil
}

// Limited forwards commands within Limits to Next and rejects the rest, so
// the executor counts them as faults and the drive never sees them.
type Limited struct {
	Limits Limits
	Next   executor.Actuator
}

func (l Limited) Point(ctx context.Context, cmd executor.Command) error {
	if err := l.Limits.Check(cmd); err != nil {
		return err
	}
	return l.Next.Point(ctx, cmd)
}

// Logging only logs each command. It is the default when no drive is
// attached.
type Logging struct{}

func (Logging) Point(_ context.Context, cmd executor.Command) error {
	monitoring.Logf("Executing an instruction: Azimuth = %.2f, Elevation = %.2f (encounter %s #%d)",
		cmd.Azimuth, cmd.Elevation, cmd.EncounterID, cmd.Seq)
	return nil
}

// SerialEcho writes a "POINT <az> <el>" line per command so the
// orchestrator can observe execution on the same link.
type SerialEcho struct {
	W io.Writer
}

func (s SerialEcho) Point(_ context.Context, cmd executor.Command) error {
	_, err := fmt.Fprintf(s.W, "POINT %.2f %.2f\n", cmd.Azimuth, cmd.Elevation)
	return err
}

// Multi sends each command to every actuator in order and returns the first
// error after trying them all.
type Multi []executor.Actuator

func (m Multi) Point(ctx context.Context, cmd executor.Command) error {
	var first error
	for _, a := range m {
		if err := a.Point(ctx, cmd); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps every command it receives. Err, if set, is returned from
// every call after recording.
type Recorder struct {
	mu       sync.Mutex
	commands []executor.Command
	Err      error
}

func (r *Recorder) Point(_ context.Context, cmd executor.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return r.Err
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []executor.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]executor.Command(nil), r.commands...)
}
