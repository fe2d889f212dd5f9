package nmea

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/Asw1n/advancedwind/internal/timeutil"
)

// PcapSource replays NMEA carried in UDP payloads of a capture file. Both
// pcap and pcapng files are accepted.
type PcapSource struct {
	Path string
	// Port restricts replay to one UDP destination port; 0 accepts all.
	Port int
	// Realtime paces replay by the capture timestamps. Lines are delivered
	// with their capture time rebased onto Clock, so the first packet is
	// stamped with the time replay started.
	Realtime bool
	Clock    timeutil.Clock
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Run replays the capture and returns the number of lines delivered. It
// returns nil at the end of the file.
func (p *PcapSource) Run(ctx context.Context, handle LineHandler) (int, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to open capture %s: %w", p.Path, err)
	}
	defer f.Close()

	r, err := openCapture(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read capture %s: %w", p.Path, err)
	}
	clock := p.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	var (
		packets, lines int
		prev           time.Time
		first, base    time.Time
	)
	for {
		if err := ctx.Err(); err != nil {
			diagf("capture replay cancelled after %d packets", packets)
			return lines, err
		}
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			diagf("capture replay complete: %d packets, %d lines", packets, lines)
			return lines, nil
		}
		if err != nil {
			return lines, fmt.Errorf("read packet %d: %w", packets+1, err)
		}
		packets++

		payload := udpPayload(data, r.LinkType(), p.Port)
		if len(payload) == 0 {
			continue
		}
		if p.Realtime && !prev.IsZero() {
			if wait := ci.Timestamp.Sub(prev); wait > 0 {
				select {
				case <-ctx.Done():
					return lines, ctx.Err()
				case <-clock.After(wait):
				}
			}
		}
		prev = ci.Timestamp
		if first.IsZero() {
			first, base = ci.Timestamp, clock.Now()
		}
		lines += splitLines(payload, base.Add(ci.Timestamp.Sub(first)), handle)
	}
}

func openCapture(f *os.File) (packetReader, error) {
	r, err := pcapgo.NewReader(f)
	if err == nil {
		return r, nil
	}
	if _, serr := f.Seek(0, io.SeekStart); serr != nil {
		return nil, serr
	}
	ng, ngErr := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if ngErr != nil {
		return nil, errors.Join(err, ngErr)
	}
	return ng, nil
}

func udpPayload(data []byte, link layers.LinkType, port int) []byte {
	packet := gopacket.NewPacket(data, link, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil
	}
	if port != 0 && int(udp.DstPort) != port {
		return nil
	}
	return udp.Payload
}
