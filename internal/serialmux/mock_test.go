package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestableSerialPort_EmptyReadReturnsZero(t *testing.T) {
	port := NewTestableSerialPort()
	buf := make([]byte, 64)

	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, port.ReadCalls)
}

func TestTestableSerialPort_MaxReadSize(t *testing.T) {
	port := NewTestableSerialPort()
	port.MaxReadSize = 3
	port.AddReadData([]byte("abcdefg"))

	buf := make([]byte, 64)
	var got []byte
	for port.Pending() > 0 {
		n, err := port.Read(buf)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 3)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "abcdefg", string(got))
}

func TestTestableSerialPort_ErrorsAndClose(t *testing.T) {
	port := NewTestableSerialPort()
	boom := errors.New("boom")

	port.ReadError = boom
	_, err := port.Read(make([]byte, 1))
	assert.ErrorIs(t, err, boom)

	port.WriteError = boom
	_, err = port.Write([]byte("x"))
	assert.ErrorIs(t, err, boom)

	_, err = port.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(port.GetWrittenData()))

	require.NoError(t, port.Close())
	_, err = port.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrPortClosed)
	_, err = port.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestTestableSerialPort_SetReadTimeout(t *testing.T) {
	var port TimeoutSerialPorter = NewTestableSerialPort()
	require.NoError(t, port.SetReadTimeout(75*time.Millisecond))
	assert.Equal(t, 75*time.Millisecond, port.(*TestableSerialPort).ReadTimeout)
}

func TestTestableSerialPort_Replay(t *testing.T) {
	port := NewTestableSerialPort()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		port.Replay(ctx, [][]byte{[]byte("one"), []byte("two")}, time.Millisecond)
	}()

	require.Eventually(t, func() bool { return port.Pending() >= len("onetwo") }, time.Second, time.Millisecond)
	cancel()
	<-done

	buf := make([]byte, 6)
	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(buf[:n]))
}
