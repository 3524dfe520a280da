// Package rig runs the gantry control loop: read a bounded chunk from the
// transport, decode it into the encounter queue, then give the executor a
// chance to fire.
package rig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/gantry/internal/clocksync"
	"github.com/banshee-data/gantry/internal/encounter"
	"github.com/banshee-data/gantry/internal/executor"
	"github.com/banshee-data/gantry/internal/monitoring"
	"github.com/banshee-data/gantry/internal/protocol"
	"github.com/banshee-data/gantry/internal/timeutil"
)

// DefaultReadSize is the per-iteration read bound.
const DefaultReadSize = 64

// injectBacklog bounds frames queued through the debug inject route.
const injectBacklog = 8

var ErrInjectBacklog = errors.New("rig: inject backlog full")

// Journal receives audit records from the loop. Failures are logged and
// otherwise ignored; the journal never holds up actuation.
type Journal interface {
	RecordEncounter(e *encounter.Encounter, committedAt time.Time) error
	RecordFiring(f executor.Firing) error
	RecordDecodeFault(err *protocol.DecodeError, seen time.Time) error
}

type nopJournal struct{}

func (nopJournal) RecordEncounter(*encounter.Encounter, time.Time) error    { return nil }
func (nopJournal) RecordFiring(executor.Firing) error                       { return nil }
func (nopJournal) RecordDecodeFault(*protocol.DecodeError, time.Time) error { return nil }

type Options struct {
	// ReadSize bounds a single read; DefaultReadSize when zero.
	ReadSize int
	// Interval is the executor tick period; executor.DefaultInterval when zero.
	Interval time.Duration
	Order    encounter.Order
	Clock    timeutil.Clock
	Journal  Journal
	RTC      *clocksync.SoftwareRTC
	// IdlePause is slept after a read that returned nothing. Real serial
	// ports already block for their read timeout, so it is only needed for
	// transports that return immediately.
	IdlePause time.Duration
}

// Snapshot is the state published to the debug handlers after each
// iteration.
type Snapshot struct {
	UpdatedAt         string             `json:"updated_at"`
	Queue             encounter.Snapshot `json:"queue"`
	Decoder           protocol.Stats     `json:"decoder"`
	Executor          executor.Stats     `json:"executor"`
	LastFault         string             `json:"last_fault,omitempty"`
	LastActuatorFault string             `json:"last_actuator_fault,omitempty"`
}

// Rig owns the queue, decoder and executor. Only the goroutine running Run
// (or Step) touches them; everything else reads the published Snapshot.
type Rig struct {
	port    io.ReadWriter
	clock   timeutil.Clock
	journal Journal
	rtc     *clocksync.SoftwareRTC
	idle    time.Duration

	queue    *encounter.Queue
	decoder  *protocol.Decoder
	executor *executor.Executor

	buf               []byte
	inject            chan []byte
	lastFault         string
	lastActuatorFault string
	dirty             bool

	mu   sync.Mutex
	snap Snapshot
}

// New wires a rig reading frames from port and driving act.
func New(port io.ReadWriter, act executor.Actuator, opts Options) *Rig {
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultReadSize
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Journal == nil {
		opts.Journal = nopJournal{}
	}

	q := encounter.NewQueue(opts.Order)
	r := &Rig{
		port:     port,
		clock:    opts.Clock,
		journal:  opts.Journal,
		rtc:      opts.RTC,
		idle:     opts.IdlePause,
		queue:    q,
		decoder:  protocol.NewDecoder(q),
		executor: executor.New(q, act, opts.Interval),
		buf:      make([]byte, opts.ReadSize),
		inject:   make(chan []byte, injectBacklog),
		dirty:    true,
	}
	r.decoder.OnCommit = r.onCommit
	r.executor.OnFire = r.onFire
	r.executor.Faults = r.onActuatorFault
	r.publish()
	return r
}

// Run loops until ctx is cancelled or the transport fails. Cancellation is
// a normal shutdown and returns nil.
func (r *Rig) Run(ctx context.Context) error {
	monitoring.Logf("rig: control loop started (read size %d, interval %v)", len(r.buf), r.executor.Interval())
	defer monitoring.Logf("rig: control loop stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Step performs one read, decode and tick. It returns an error only when
// the transport read fails.
func (r *Rig) Step(ctx context.Context) error {
	r.drainInjected()

	n, err := r.port.Read(r.buf)
	if n > 0 {
		r.feed(r.buf[:n])
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read transport: %w", err)
	}

	fired := r.executor.Tick(ctx, r.clock.Now())
	if fired || r.dirty {
		r.publish()
	}
	if n == 0 && !fired && r.idle > 0 {
		r.clock.Sleep(r.idle)
	}
	return nil
}

// Inject queues raw wire bytes to be decoded by the loop as if they had
// arrived on the transport.
func (r *Rig) Inject(frame []byte) error {
	select {
	case r.inject <- append([]byte(nil), frame...):
		return nil
	default:
		return ErrInjectBacklog
	}
}

func (r *Rig) drainInjected() {
	for {
		select {
		case frame := <-r.inject:
			r.feed(frame)
		default:
			return
		}
	}
}

func (r *Rig) feed(p []byte) {
	r.dirty = true
	err := r.decoder.Feed(p)
	if err == nil {
		return
	}

	var derr *protocol.DecodeError
	if !errors.As(err, &derr) {
		monitoring.Logf("rig: decode failed: %v", err)
		return
	}
	now := r.clock.Now()
	r.lastFault = fmt.Sprintf("%s: %v", now.Format(time.RFC3339), derr)
	monitoring.Logf("rig: discarded read: %v", derr)
	monitoring.Dump("Offending buffer:", derr.Buffer)

	if _, werr := fmt.Fprintf(r.port, "error: %v\n", derr); werr != nil {
		monitoring.Logf("rig: failed to echo diagnostic: %v", werr)
	}
	if jerr := r.journal.RecordDecodeFault(derr, now); jerr != nil {
		monitoring.Logf("rig: journal: %v", jerr)
	}
}

func (r *Rig) onCommit(e *encounter.Encounter) {
	monitoring.Logf("rig: committed encounter %s start=%s instructions=%d", e.ID, e.Start, e.Len())
	if err := r.journal.RecordEncounter(e, r.clock.Now()); err != nil {
		monitoring.Logf("rig: journal: %v", err)
	}
}

func (r *Rig) onFire(f executor.Firing) {
	if err := r.journal.RecordFiring(f); err != nil {
		monitoring.Logf("rig: journal: %v", err)
	}
}

func (r *Rig) onActuatorFault(cmd executor.Command, err error) {
	r.lastActuatorFault = fmt.Sprintf("%s: %s #%d: %v", r.clock.Now().Format(time.RFC3339), cmd.EncounterID, cmd.Seq, err)
}

func (r *Rig) publish() {
	s := Snapshot{
		UpdatedAt:         r.clock.Now().Format(time.RFC3339Nano),
		Queue:             r.queue.Snapshot(),
		Decoder:           r.decoder.Stats(),
		Executor:          r.executor.Stats(),
		LastFault:         r.lastFault,
		LastActuatorFault: r.lastActuatorFault,
	}
	r.mu.Lock()
	r.snap = s
	r.mu.Unlock()
	r.dirty = false
}

// Snapshot returns the most recently published state. Safe for concurrent use.
func (r *Rig) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}
