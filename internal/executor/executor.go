// Package executor fires one queued instruction per tick at the actuator.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/gantry/internal/encounter"
	"github.com/banshee-data/gantry/internal/monitoring"
)

// DefaultInterval is the tick period.
const DefaultInterval = time.Second

// maxIntervalSamples bounds the firing-interval history kept for Stats.
const maxIntervalSamples = 300

// Command is one absolute pointing request sent to the actuator.
type Command struct {
	EncounterID uuid.UUID `json:"encounter_id"`
	Seq         int       `json:"seq"`
	Azimuth     float64   `json:"azimuth"`
	Elevation   float64   `json:"elevation"`
}

// Actuator drives the gantry to an absolute position. There is no feedback
// into the executor beyond the returned error.
type Actuator interface {
	Point(ctx context.Context, cmd Command) error
}

// Firing describes one Fire transition that produced a command.
type Firing struct {
	At      time.Time
	Command Command
	Err     error
}

// Stats summarises executor activity.
type Stats struct {
	Ticks          uint64  `json:"ticks"`
	Fired          uint64  `json:"fired"`
	Empty          uint64  `json:"empty"`
	Failed         uint64  `json:"failed"`
	LastFire       string  `json:"last_fire,omitempty"`
	MeanIntervalMs float64 `json:"mean_interval_ms"`
	StdIntervalMs  float64 `json:"std_interval_ms"`
}

// Executor is the Idle -> Fire -> Idle tick state machine. Call Tick from
// the control loop as often as convenient; it fires only once Interval has
// elapsed since the previous firing.
type Executor struct {
	queue    *encounter.Queue
	actuator Actuator
	interval time.Duration

	lastFire time.Time
	seq      map[uuid.UUID]int

	stats     Stats
	intervals []float64

	// OnFire, if set, is called after every firing that issued a command.
	OnFire func(Firing)
	// Faults, if set, receives actuator failures. The instruction is not
	// retried either way.
	Faults func(Command, error)
}

// New returns an executor draining q into a. interval <= 0 selects
// DefaultInterval.
func New(q *encounter.Queue, a Actuator, interval time.Duration) *Executor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Executor{
		queue:    q,
		actuator: a,
		interval: interval,
		seq:      make(map[uuid.UUID]int),
	}
}

// Interval returns the tick period.
func (x *Executor) Interval() time.Duration { return x.interval }

// Due reports whether a Tick at now would fire.
func (x *Executor) Due(now time.Time) bool {
	return x.lastFire.IsZero() || now.Sub(x.lastFire) >= x.interval
}

// Tick fires if the interval has elapsed and reports whether it did. Firing
// with an empty queue records the tick and does nothing else.
func (x *Executor) Tick(ctx context.Context, now time.Time) bool {
	if !x.Due(now) {
		return false
	}
	x.fire(ctx, now)
	return true
}

func (x *Executor) fire(ctx context.Context, now time.Time) {
	if !x.lastFire.IsZero() {
		x.intervals = append(x.intervals, float64(now.Sub(x.lastFire))/float64(time.Millisecond))
		if len(x.intervals) > maxIntervalSamples {
			x.intervals = x.intervals[len(x.intervals)-maxIntervalSamples:]
		}
	}
	x.lastFire = now
	x.stats.Ticks++

	in, from, ok := x.queue.PopFrontInstruction()
	if !ok {
		x.stats.Empty++
		return
	}

	seq := x.seq[from.ID]
	if from.Len() == 0 {
		delete(x.seq, from.ID)
	} else {
		x.seq[from.ID] = seq + 1
	}

	cmd := Command{
		EncounterID: from.ID,
		Seq:         seq,
		Azimuth:     in.Azimuth,
		Elevation:   in.Elevation,
	}
	err := x.actuator.Point(ctx, cmd)
	if err != nil {
		x.stats.Failed++
		monitoring.Logf("executor: actuator rejected %s #%d (az=%.2f el=%.2f): %v", cmd.EncounterID, cmd.Seq, cmd.Azimuth, cmd.Elevation, err)
		if x.Faults != nil {
			x.Faults(cmd, err)
		}
	} else {
		x.stats.Fired++
	}
	if x.OnFire != nil {
		x.OnFire(Firing{At: now, Command: cmd, Err: err})
	}
}

// Stats returns counters and the mean and standard deviation of recent
// intervals between firings.
func (x *Executor) Stats() Stats {
	s := x.stats
	if !x.lastFire.IsZero() {
		s.LastFire = x.lastFire.Format(time.RFC3339Nano)
	}
	if len(x.intervals) > 0 {
		s.MeanIntervalMs = stat.Mean(x.intervals, nil)
	}
	if len(x.intervals) > 1 {
		s.StdIntervalMs = stat.StdDev(x.intervals, nil)
	}
	return s
}
