package clocksync

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gantry/internal/encounter"
	"github.com/banshee-data/gantry/internal/monitoring"
	"github.com/banshee-data/gantry/internal/protocol"
	"github.com/banshee-data/gantry/internal/serialmux"
	"github.com/banshee-data/gantry/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

var start = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

func handshake(t *testing.T, digits string) []byte {
	t.Helper()
	ts, err := encounter.ParseTimestamp(digits)
	require.NoError(t, err)
	msg, err := protocol.EncodeHandshake(ts)
	require.NoError(t, err)
	return msg
}

func TestReadHandshake_Valid(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	port.AddReadData(handshake(t, "23011002121530"))

	ts, err := ReadHandshake(context.Background(), port, timeutil.NewMockClock(start), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "23011002121530", ts.Digits())
}

func TestReadHandshake_ByteAtATimeWithLeadingGarbage(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	port.MaxReadSize = 1
	port.AddReadData([]byte{0x00, 'x', 0xC2, 0x13})
	port.AddReadData(handshake(t, "23011002121530"))
	port.AddReadData([]byte{0xC2, 0xAA}) // start of the instruction stream

	ts, err := ReadHandshake(context.Background(), port, timeutil.NewMockClock(start), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "23011002121530", ts.Digits())
	assert.Equal(t, 2, port.Pending(), "handshake must not consume bytes past its end")
}

func TestReadHandshake_BadEndMarker(t *testing.T) {
	msg := handshake(t, "23011002121530")
	msg[len(msg)-1] = 0xBB

	port := serialmux.NewTestableSerialPort()
	port.AddReadData(msg)

	_, err := ReadHandshake(context.Background(), port, timeutil.NewMockClock(start), time.Second)
	assert.ErrorIs(t, err, ErrBadEndMarker)
}

func TestReadHandshake_BadDigits(t *testing.T) {
	msg := handshake(t, "23011002121530")
	msg[5] = 'Z'

	port := serialmux.NewTestableSerialPort()
	port.AddReadData(msg)

	_, err := ReadHandshake(context.Background(), port, timeutil.NewMockClock(start), time.Second)
	assert.ErrorIs(t, err, ErrBadDigits)
}

func TestReadHandshake_Timeout(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	port.AddReadData(handshake(t, "23011002121530")[:7])
	clock := timeutil.NewMockClock(start)

	_, err := ReadHandshake(context.Background(), port, clock, 500*time.Millisecond)
	require.ErrorIs(t, err, ErrHandshakeTimeout)
	assert.GreaterOrEqual(t, clock.Since(start), 500*time.Millisecond)
}

func TestReadHandshake_ReadError(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	boom := errors.New("device unplugged")
	port.ReadError = boom

	_, err := ReadHandshake(context.Background(), port, timeutil.NewMockClock(start), time.Second)
	assert.ErrorIs(t, err, boom)
}

func TestReadHandshake_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadHandshake(ctx, bytes.NewReader(nil), timeutil.NewMockClock(start), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSoftwareRTC(t *testing.T) {
	clock := timeutil.NewMockClock(start)
	rtc := NewSoftwareRTC(clock, nil)

	_, ok := rtc.Now()
	assert.False(t, ok)

	ts, err := encounter.ParseTimestamp("23011002121530")
	require.NoError(t, err)
	require.NoError(t, rtc.Set(ts))

	clock.Advance(90 * time.Second)
	now, ok := rtc.Now()
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, time.January, 10, 12, 17, 0, 0, time.UTC), now)
	assert.Equal(t, 2, rtc.DayOfWeek())
}

func TestSoftwareRTC_RejectsInvalidDate(t *testing.T) {
	rtc := NewSoftwareRTC(timeutil.NewMockClock(start), nil)
	ts, err := encounter.ParseTimestamp("23133102121530")
	require.NoError(t, err)
	assert.Error(t, rtc.Set(ts))
}
