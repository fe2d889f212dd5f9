// Serialmux provides an abstraction over a serial port with the ability for
// multiple clients to subscribe to NMEA lines from the port and send
// sentences to the single device on it.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// subscriberBuffer absorbs short bursts so one slow reader does not lose
// every other line of a talker that sends several sentences back to back.
const subscriberBuffer = 32

var sendSentenceTemplate = template.Must(template.New("send-sentence").Parse(`<!DOCTYPE html>
<html>
<head><title>NMEA port</title></head>
<body>
<form method="POST" action="send-sentence-api">
<input name="sentence" size="80" placeholder="$IIMWV,045.0,R,10.0,N,A*..">
<button type="submit">Send</button>
</form>
<pre id="tail"></pre>
<script>
const out = document.getElementById("tail");
const es = new EventSource("tail");
es.onmessage = (e) => {
  out.textContent = (e.data + "\n" + out.textContent).slice(0, 20000);
};
</script>
</body>
</html>
`))

// SerialMux is a generic serial port multiplexer that allows multiple clients to
// subscribe to lines from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      atomic.Bool
	skipped      atomic.Uint64
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving lines from the serial
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendSentence writes the provided sentence to the serial port.
	SendSentence(string) error
	// Write writes raw bytes to the serial port. Relays use it as their
	// output.
	Write([]byte) (int, error)
	// Monitor reads lines from the serial port and sends them to the
	// appropriate channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux over an open port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing.Load() {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendSentence writes one sentence to the port, terminated with CRLF as
// NMEA 0183 requires.
func (s *SerialMux[T]) SendSentence(sentence string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	sentence = strings.TrimRight(sentence, "\r\n") + "\r\n"
	n, err := s.port.Write([]byte(sentence))
	if err != nil {
		return err
	}
	if n != len(sentence) {
		return ErrWriteFailed
	}
	return nil
}

// Write lets the mux act as the output writer of an NMEA relay.
func (s *SerialMux[T]) Write(p []byte) (int, error) {
	if err := s.SendSentence(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Skipped returns how many line deliveries were dropped because a
// subscriber's buffer was full.
func (s *SerialMux[T]) Skipped() uint64 { return s.skipped.Load() }

// Monitor reads lines from the port and sends them to subscribers until ctx
// is done or the port fails.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs on its own goroutine so the loop below can
	// still observe context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- strings.TrimRight(scan.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			opsf("serial read failed: %v", err)
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			if s.closing.Load() {
				return nil
			}
			if line == "" {
				continue
			}

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					if n := s.skipped.Add(1); n == 1 || n%1000 == 0 {
						opsf("subscriber buffer full, %d lines skipped", n)
					}
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	if s.closing.Swap(true) {
		return nil
	}

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-sentence", "send an NMEA sentence and tail the serial port", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := sendSentenceTemplate.Execute(w, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("send-sentence-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sentence := strings.TrimSpace(r.FormValue("sentence"))
		if sentence == "" {
			http.Error(w, "Missing sentence", http.StatusBadRequest)
			return
		}
		if ClassifySentence(sentence) == SentenceUnknown {
			http.Error(w, "Not an NMEA sentence", http.StatusBadRequest)
			return
		}
		if err := s.SendSentence(sentence); err != nil {
			http.Error(w, "Failed to write sentence", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote sentence %q to serial port", sentence))
	})

	// Server-Sent Events for lines coming from the serial port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
