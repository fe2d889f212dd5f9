package serialmux

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"defaults", PortOptions{}, PortOptions{BaudRate: 4800, DataBits: 8, StopBits: 1, Parity: "N"}, false},
		{"high speed", PortOptions{BaudRate: 38400, Parity: "even"}, PortOptions{BaudRate: 38400, DataBits: 8, StopBits: 1, Parity: "E"}, false},
		{"bad data bits", PortOptions{DataBits: 9}, PortOptions{}, true},
		{"bad stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"bad parity", PortOptions{Parity: "mark"}, PortOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.True(t, PortOptions{}.Equal(PortOptions{BaudRate: 4800, Parity: "none"}))
}

func TestSerialMode(t *testing.T) {
	mode, err := PortOptions{Parity: "O", StopBits: 2}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 4800, mode.BaudRate)
	assert.Equal(t, serial.OddParity, mode.Parity)
	assert.Equal(t, serial.StopBits(2), mode.StopBits)
}

func TestOpenWithFactory(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)

	mux, err := Open(factory, "/dev/ttyUSB0", PortOptions{Parity: "E"})
	require.NoError(t, err)
	require.NotNil(t, mux)

	call := factory.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "/dev/ttyUSB0", call.Path)
	assert.Equal(t, &SerialPortMode{BaudRate: 4800, DataBits: 8, Parity: EvenParity, StopBits: OneStopBit}, call.Mode)

	factory.Error = errors.New("busy")
	_, err = Open(factory, "/dev/ttyUSB0", PortOptions{})
	assert.ErrorContains(t, err, "busy")

	_, err = Open(factory, "/dev/ttyUSB0", PortOptions{DataBits: 4})
	assert.Error(t, err)
}
