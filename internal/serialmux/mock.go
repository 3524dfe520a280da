package serialmux

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

var ErrPortClosed = errors.New("serial port closed")

// TestableSerialPort implements TimeoutSerialPorter in memory. Reads never
// block: with nothing buffered they return 0, nil exactly like a real port
// whose read timeout expired. It backs the tests and the --dev mode.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// MaxReadSize caps the bytes returned per Read to simulate short reads.
	// Zero means no cap beyond len(p).
	MaxReadSize int

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// OnRead, if set, runs at the start of every Read without the lock
	// held. Tests use it to advance a mock clock per poll.
	OnRead func()
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read returns buffered data, at most MaxReadSize bytes at a time.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	hook := t.OnRead
	t.mu.Unlock()
	if hook != nil {
		hook()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, ErrPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	if t.MaxReadSize > 0 && len(p) > t.MaxReadSize {
		p = p[:t.MaxReadSize]
	}
	return t.ReadBuffer.Read(p)
}

// Write appends to the write buffer.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, ErrPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
}

// GetWrittenData returns a copy of all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}

// Pending returns the number of buffered bytes not yet read.
func (t *TestableSerialPort) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ReadBuffer.Len()
}

// Replay queues frames onto the port one every interval until ctx is done,
// then starts again from the first frame. It stands in for the orchestrator
// in --dev mode.
func (t *TestableSerialPort) Replay(ctx context.Context, frames [][]byte, interval time.Duration) {
	if len(frames) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; ; i = (i + 1) % len(frames) {
		t.AddReadData(frames[i])
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
