package nmea

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Asw1n/advancedwind/internal/timeutil"
)

// LineHandler receives one raw line and the time it was received.
type LineHandler func(line string, t time.Time)

// maxDatagram bounds one UDP read; NMEA over UDP is usually one sentence
// per datagram but multiplexers batch several.
const maxDatagram = 64 * 1024

// UDPSource reads NMEA sentences from UDP datagrams.
type UDPSource struct {
	conn  net.PacketConn
	clock timeutil.Clock
}

// ListenUDP binds addr, for example ":10110".
func ListenUDP(addr string, clock timeutil.Clock) (*UDPSource, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	diagf("listening for NMEA on udp %s", conn.LocalAddr())
	return &UDPSource{conn: conn, clock: clock}, nil
}

// Addr returns the bound address.
func (u *UDPSource) Addr() net.Addr { return u.conn.LocalAddr() }

// Run delivers lines to handle until ctx is done, then closes the socket.
func (u *UDPSource) Run(ctx context.Context, handle LineHandler) error {
	stop := context.AfterFunc(ctx, func() { u.conn.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := u.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}
		now := u.clock.Now()
		tracef("udp %d bytes from %s", n, from)
		splitLines(buf[:n], now, handle)
	}
}

// Close releases the socket.
func (u *UDPSource) Close() error { return u.conn.Close() }

func splitLines(payload []byte, t time.Time, handle LineHandler) int {
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(payload))
	sc.Buffer(make([]byte, 0, 1024), maxDatagram)
	for sc.Scan() {
		line := string(bytes.TrimSpace(sc.Bytes()))
		if line == "" {
			continue
		}
		handle(line, t)
		n++
	}
	return n
}
