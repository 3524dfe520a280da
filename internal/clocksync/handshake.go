// Package clocksync performs the one-time clock handshake with the
// orchestrator and keeps the resulting rig time.
package clocksync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/gantry/internal/encounter"
	"github.com/banshee-data/gantry/internal/monitoring"
	"github.com/banshee-data/gantry/internal/protocol"
	"github.com/banshee-data/gantry/internal/timeutil"
)

var (
	ErrHandshakeTimeout = errors.New("clocksync: timed out waiting for clock handshake")
	ErrBadEndMarker     = errors.New("clocksync: invalid end marker")
	ErrBadDigits        = errors.New("clocksync: invalid time digits")
)

// DefaultTimeout is how long startup waits for the orchestrator to send the
// time before giving up.
const DefaultTimeout = 30 * time.Second

// pollInterval is the pause after a read that returned nothing.
const pollInterval = 10 * time.Millisecond

// ReadHandshake reads the 20 byte clock-set message from r: begin marker,
// 14 time digits, commit marker. Bytes ahead of the begin marker are
// discarded. Any error is fatal to startup; there is no time reference to
// schedule against without it.
func ReadHandshake(ctx context.Context, r io.Reader, clock timeutil.Clock, timeout time.Duration) (encounter.Timestamp, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	begin := protocol.BeginMarker()
	deadline := clock.Now().Add(timeout)

	buf := make([]byte, 0, protocol.HandshakeLen)
	chunk := make([]byte, protocol.HandshakeLen)
	skipped := 0

	for len(buf) < protocol.HandshakeLen {
		if err := ctx.Err(); err != nil {
			return encounter.Timestamp{}, err
		}
		if !clock.Now().Before(deadline) {
			return encounter.Timestamp{}, fmt.Errorf("%w after %v (%d bytes received)", ErrHandshakeTimeout, timeout, len(buf)+skipped)
		}

		n, err := r.Read(chunk[:protocol.HandshakeLen-len(buf)])
		if err != nil {
			return encounter.Timestamp{}, fmt.Errorf("read clock handshake: %w", err)
		}
		if n == 0 {
			clock.Sleep(pollInterval)
			continue
		}

		buf = append(buf, chunk[:n]...)
		// resync until the buffer starts with (a prefix of) the begin marker
		for len(buf) > 0 && !bytes.HasPrefix(begin, buf[:min(len(buf), len(begin))]) {
			buf = buf[1:]
			skipped++
		}
	}
	if skipped > 0 {
		monitoring.Logf("clocksync: skipped %d bytes before begin marker", skipped)
	}

	if !bytes.Equal(buf[protocol.HandshakeLen-len(protocol.CommitMarker()):], protocol.CommitMarker()) {
		monitoring.Dump("Invalid end marker.", buf)
		return encounter.Timestamp{}, ErrBadEndMarker
	}
	ts, err := encounter.ParseTimestamp(string(buf[len(begin) : len(begin)+encounter.TimestampLen]))
	if err != nil {
		return encounter.Timestamp{}, fmt.Errorf("%w: %v", ErrBadDigits, err)
	}
	return ts, nil
}

// RTC is the real-time clock the handshake sets.
type RTC interface {
	Set(ts encounter.Timestamp) error
}

// SoftwareRTC keeps rig time as an offset from the host clock.
type SoftwareRTC struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	loc       *time.Location
	offset    time.Duration
	dayOfWeek int
	set       bool
}

// NewSoftwareRTC returns an unset RTC reading time from clock, interpreting
// handshake times in loc (UTC when nil).
func NewSoftwareRTC(clock timeutil.Clock, loc *time.Location) *SoftwareRTC {
	if loc == nil {
		loc = time.UTC
	}
	return &SoftwareRTC{clock: clock, loc: loc}
}

// Set records ts as the current time.
func (r *SoftwareRTC) Set(ts encounter.Timestamp) error {
	t, err := ts.Time(r.loc)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offset = t.Sub(r.clock.Now())
	r.dayOfWeek = ts.Fields().DayOfWeek
	r.set = true
	return nil
}

// Now returns the rig time and whether the RTC has been set.
func (r *SoftwareRTC) Now() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		return time.Time{}, false
	}
	return r.clock.Now().Add(r.offset).In(r.loc), true
}

// DayOfWeek returns the day-of-week value sent in the handshake.
func (r *SoftwareRTC) DayOfWeek() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dayOfWeek
}
