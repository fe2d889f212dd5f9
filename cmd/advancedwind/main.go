package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Asw1n/advancedwind/internal/api"
	"github.com/Asw1n/advancedwind/internal/config"
	"github.com/Asw1n/advancedwind/internal/db"
	"github.com/Asw1n/advancedwind/internal/nmea"
	"github.com/Asw1n/advancedwind/internal/readiness"
	"github.com/Asw1n/advancedwind/internal/serialmux"
	"github.com/Asw1n/advancedwind/internal/session"
	"github.com/Asw1n/advancedwind/internal/telemetry"
	"github.com/Asw1n/advancedwind/internal/timeutil"
	"github.com/Asw1n/advancedwind/internal/version"
	"github.com/Asw1n/advancedwind/internal/windcorrect"
)

var (
	listen       = flag.String("listen", ":3000", "HTTP listen address")
	port         = flag.String("port", "", "Serial port carrying NMEA 0183 (empty disables serial input)")
	baud         = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	replay       = flag.String("replay", "", "Replay NMEA sentences from this file instead of a serial port")
	replayEvery  = flag.Duration("replay-interval", 100*time.Millisecond, "Delay between passes over the replay file")
	udpAddr      = flag.String("udp", "", "UDP address to receive NMEA datagrams on, e.g. :10110")
	pcapFile     = flag.String("pcap", "", "Replay NMEA carried in UDP payloads of this capture file")
	pcapPort     = flag.Int("pcap-port", 10110, "UDP destination port to extract from the capture")
	pcapRealtime = flag.Bool("pcap-realtime", true, "Pace capture replay by packet timestamps; false replays as fast as the hub drains")
	relayAddr    = flag.String("relay", "", "UDP address to relay input and computed sentences to (default: computed sentences to the serial port)")
	talker       = flag.String("talker", nmea.DefaultTalker, "Talker ID for computed sentences")
	dbPath       = flag.String("db", "advancedwind.db", "Path to the options database")
	optionsPath  = flag.String("options", "", "Options JSON used when the database holds none")
	trace        = flag.Bool("trace", false, "Log every sample and relayed sentence")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("advancedwind", version.String(), version.BuildTime)
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	configureLogging(os.Stderr, *trace)

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	opts, err := resolveOptions(store, *optionsPath)
	if err != nil {
		log.Fatalf("Failed to load options: %v", err)
	}

	nmeaSerial, err := openSerial(*port, *replay)
	if err != nil {
		log.Fatalf("Failed to open serial input: %v", err)
	}
	defer nmeaSerial.Close()

	var relayOut io.Writer = nmeaSerial
	forwardRaw := false
	if *relayAddr != "" {
		conn, err := net.Dial("udp", *relayAddr)
		if err != nil {
			log.Fatalf("Failed to open relay %s: %v", *relayAddr, err)
		}
		defer conn.Close()
		relayOut = conn
		forwardRaw = true
	}
	relay := nmea.NewRelay(relayOut, nmea.Encoder{Talker: *talker})

	clock := timeutil.RealClock{}
	hub := telemetry.NewHub(clock, telemetry.HubOptions{StaleFactor: opts.GetStaleFactor()})
	hub.AddPublisher(relay)
	decoder := nmea.NewDecoder(nmea.DecoderOptions{})
	handle := lineHandler(decoder, relay, forwardRaw, func(s telemetry.Sample) { hub.Ingest(s) })

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hub.Run(ctx); err != nil {
			log.Printf("telemetry hub stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := nmeaSerial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := nmeaSerial.Subscribe()
		defer nmeaSerial.Unsubscribe(id)
		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				handle(line, clock.Now())
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	if *udpAddr != "" {
		src, err := nmea.ListenUDP(*udpAddr, clock)
		if err != nil {
			log.Fatalf("Failed to listen for UDP: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.Run(ctx, handle); err != nil {
				log.Printf("UDP source stopped: %v", err)
			}
		}()
	}

	if *pcapFile != "" {
		src := &nmea.PcapSource{Path: *pcapFile, Port: *pcapPort, Realtime: *pcapRealtime, Clock: clock}
		replayHandle := lineHandler(decoder, relay, forwardRaw, func(s telemetry.Sample) { _ = hub.IngestWait(ctx, s) })
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := src.Run(ctx, replayHandle)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("capture replay stopped after %d sentences: %v", n, err)
				return
			}
			log.Printf("capture replay finished: %d sentences", n)
		}()
	}

	manager := session.NewManager(hub, relay)
	manager.OnStart(func(o *config.Options) { decoder.SetMastPath(o.GetRotationPath()) })
	if _, err := manager.Start(ctx, opts); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer manager.Stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(manager, store).ServeMux()
		nmeaSerial.AttachAdminRoutes(mux)
		store.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("advancedwind %s listening on %s", version.String(), *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	written, suppressed := relay.Stats()
	decoded, failed := decoder.Stats()
	log.Printf("Graceful shutdown complete (decoded=%d failed=%d written=%d suppressed=%d)", decoded, failed, written, suppressed)
}

// configureLogging routes the ops and diag streams of every package to w.
// Trace output is only enabled on request.
func configureLogging(w io.Writer, withTrace bool) {
	var tr io.Writer
	if withTrace {
		tr = w
	}
	telemetry.SetLogWriters(w, w, tr)
	nmea.SetLogWriters(w, w, tr)
	session.SetLogWriters(w, w, tr)
	windcorrect.SetLogWriters(w, w, tr)
	readiness.SetLogWriters(w, w, tr)
	serialmux.SetLogWriters(w, w)
	db.SetLogWriters(w, w)
}

// resolveOptions returns the stored options, falling back to the file at
// path and then to the built-in defaults. Options not read from the store
// are saved to it.
func resolveOptions(store *db.DB, path string) (*config.Options, error) {
	opts, ok, err := store.LoadOptions()
	if err != nil {
		return nil, err
	}
	if ok {
		return opts, nil
	}
	if path != "" {
		if opts, err = config.LoadOptions(path); err != nil {
			return nil, err
		}
	} else {
		opts = config.DefaultOptions()
	}
	if err := store.SaveOptions(opts, "startup"); err != nil {
		return nil, err
	}
	return opts, nil
}

// openSerial returns the NMEA input mux: a replay of file, the serial port
// at path, or a disabled mux when neither is set.
func openSerial(path, file string) (serialmux.SerialMuxInterface, error) {
	switch {
	case file != "":
		lines, err := readLines(file)
		if err != nil {
			return nil, err
		}
		return serialmux.NewReplaySerialMux(lines, *replayEvery), nil
	case path != "":
		m, err := serialmux.NewRealSerialMux(path, serialmux.PortOptions{BaudRate: *baud})
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return serialmux.NewDisabledSerialMux(), nil
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("replay file %s holds no sentences", path)
	}
	return lines, nil
}

// lineHandler decodes each input line into ingest and, when forwardRaw is
// set, passes it on through the relay.
func lineHandler(dec *nmea.Decoder, relay *nmea.Relay, forwardRaw bool, ingest func(telemetry.Sample)) nmea.LineHandler {
	return func(line string, t time.Time) {
		if forwardRaw {
			_ = relay.Forward(line)
		}
		samples, err := dec.Decode(line, t)
		if err != nil {
			return
		}
		for _, s := range samples {
			ingest(s)
		}
	}
}
