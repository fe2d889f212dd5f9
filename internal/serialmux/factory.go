package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return NewSerialMux[serial.Port](port), nil
}

// RealPortFactory opens ports with go.bug.st/serial.
type RealPortFactory struct{}

// Open implements SerialPortFactory.
func (RealPortFactory) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	if mode == nil {
		mode = DefaultSerialPortMode()
	}
	sm := &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch mode.Parity {
	case OddParity:
		sm.Parity = serial.OddParity
	case EvenParity:
		sm.Parity = serial.EvenParity
	}
	if mode.StopBits == TwoStopBits {
		sm.StopBits = serial.TwoStopBits
	}
	return serial.Open(path, sm)
}

// Open returns a mux over a port opened by factory. Options are normalised
// first so zero values pick the NMEA defaults.
func Open(factory SerialPortFactory, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	norm, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &SerialPortMode{BaudRate: norm.BaudRate, DataBits: norm.DataBits}
	switch norm.Parity {
	case "E":
		mode.Parity = EvenParity
	case "O":
		mode.Parity = OddParity
	}
	if norm.StopBits == 2 {
		mode.StopBits = TwoStopBits
	}
	port, err := factory.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	diagf("opened %s at %d baud", path, mode.BaudRate)
	return NewSerialMux(port), nil
}
