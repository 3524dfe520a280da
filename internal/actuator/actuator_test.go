package actuator

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gantry/internal/executor"
)

func TestLimited_WithinLimits(t *testing.T) {
	rec := &Recorder{}
	l := Limited{Limits: DefaultLimits(), Next: rec}

	require.NoError(t, l.Point(context.Background(), executor.Command{Azimuth: 360, Elevation: 0}))
	require.NoError(t, l.Point(context.Background(), executor.Command{Azimuth: 180, Elevation: 45}))
	assert.Len(t, rec.Commands(), 2)
}

func TestLimited_OutsideLimits(t *testing.T) {
	rec := &Recorder{}
	l := Limited{Limits: DefaultLimits(), Next: rec}

	err := l.Point(context.Background(), executor.Command{Azimuth: 400, Elevation: 10})
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorContains(t, err, "azimuth")
	err = l.Point(context.Background(), executor.Command{Azimuth: 10, Elevation: 91})
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorContains(t, err, "elevation")
	assert.Empty(t, rec.Commands(), "drive must not see rejected commands")
}

func TestLimits_Validate(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate())
	assert.Error(t, Limits{MinAzimuth: 10, MaxAzimuth: 5, MaxElevation: 90}.Validate())
	assert.Error(t, Limits{MaxAzimuth: 360, MinElevation: 1, MaxElevation: 0}.Validate())
	assert.Error(t, Limits{MinAzimuth: math.NaN(), MaxAzimuth: 360, MaxElevation: 90}.Validate())
}

func TestSerialEcho(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SerialEcho{W: &buf}.Point(context.Background(), executor.Command{Azimuth: 180, Elevation: 45.5}))
	assert.Equal(t, "POINT 180.00 45.50\n", buf.String())
}

func TestMulti_TriesAllReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	a := &Recorder{Err: boom}
	b := &Recorder{}

	err := Multi{a, b}.Point(context.Background(), executor.Command{Azimuth: 1})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.Commands(), 1)
	assert.Len(t, b.Commands(), 1)
}

func TestLogging(t *testing.T) {
	assert.NoError(t, Logging{}.Point(context.Background(), executor.Command{}))
}
