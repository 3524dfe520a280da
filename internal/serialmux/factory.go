package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenPort opens the orchestrator link at path with the given options and
// applies the read timeout so reads never block longer than one poll.
func OpenPort(path string, opts PortOptions) (TimeoutSerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}

	timeout, err := opts.ReadTimeoutDuration()
	if err != nil {
		port.Close()
		return nil, err
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	return port, nil
}
