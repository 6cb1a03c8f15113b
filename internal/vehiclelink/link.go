// Package vehiclelink connects the operator station to the vehicle: a
// line-oriented serial link to the vehicle bridge (commands out; poses,
// transforms and operator requests in), plus an optional SocketCAN
// actuator.
package vehiclelink

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"
)

// ErrWriteFailed is returned when a command was only partially written.
var ErrWriteFailed = errors.New("failed to write to vehicle link")

// subscriberBuffer is the per-subscriber line backlog. Lines beyond it are
// dropped for that subscriber.
const subscriberBuffer = 64

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// Conn is the line-oriented vehicle link used by the actuator, the
// dispatcher and the admin routes.
type Conn interface {
	// Subscribe returns a channel receiving every line read from the link.
	// The ID identifies the subscription when unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe closes and removes a subscription.
	Unsubscribe(string)
	// SendCommand writes one line to the link.
	SendCommand(string) error
	// Monitor reads lines until ctx is done or the link fails.
	Monitor(context.Context) error
	// Close closes every subscription and the underlying port.
	Close() error
	// AttachAdminRoutes registers debug endpoints on mux under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Link multiplexes one serial port between many line subscribers and
// serialises writes to it.
type Link[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      atomic.Bool

	linesRead atomic.Uint64
	dropped   atomic.Uint64
}

// NewLink wraps port.
func NewLink[T SerialPorter](port T) *Link[T] {
	return &Link[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random subscription ID (8 random bytes, hex).
func randomID() string {
	b := make([]byte, 8)
	_, _ = crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe implements Conn.
func (l *Link[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	if l.closing.Load() {
		close(ch)
		return id, ch
	}
	l.subscribers[id] = ch
	return id, ch
}

// Unsubscribe implements Conn.
func (l *Link[T]) Unsubscribe(id string) {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	if ch, ok := l.subscribers[id]; ok {
		close(ch)
		delete(l.subscribers, id)
	}
}

// SendCommand implements Conn. A trailing newline is added if missing.
func (l *Link[T]) SendCommand(command string) error {
	l.commandMu.Lock()
	defer l.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := l.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	tracef("> %s", strings.TrimSuffix(command, "\n"))
	return nil
}

// Monitor implements Conn. It returns nil when the port reaches EOF or the
// link is closed, and ctx.Err() when ctx is done.
func (l *Link[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(l.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking Scan runs in its own goroutine so the loop below can
	// still observe cancellation
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
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
			if l.closing.Load() {
				return nil
			}
			return fmt.Errorf("read vehicle link: %w", err)

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if !l.closing.Load() {
						return fmt.Errorf("read vehicle link: %w", err)
					}
				default:
				}
				return nil
			}
			if l.closing.Load() {
				return nil
			}
			l.linesRead.Add(1)
			tracef("< %s", line)

			l.subscriberMu.Lock()
			for _, ch := range l.subscribers {
				select {
				case ch <- line:
				default:
					l.dropped.Add(1)
				}
			}
			l.subscriberMu.Unlock()
		}
	}
}

// Stats reports lines read and lines dropped for slow subscribers.
func (l *Link[T]) Stats() (read, dropped uint64) {
	return l.linesRead.Load(), l.dropped.Load()
}

// Close implements Conn.
func (l *Link[T]) Close() error {
	l.closing.Store(true)

	l.subscriberMu.Lock()
	for id, ch := range l.subscribers {
		close(ch)
		delete(l.subscribers, id)
	}
	l.subscriberMu.Unlock()
	return l.port.Close()
}

// AttachAdminRoutes implements Conn: a send-command page, its POST API and
// a server-sent-events tail of inbound lines.
func (l *Link[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a command to the vehicle link", func(w http.ResponseWriter, r *http.Request) {
		if err := sendCommandTemplate.Execute(w, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := l.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to vehicle link", command)
	})

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
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := l.Subscribe()
		defer l.Unsubscribe(id)

		_, _ = io.WriteString(w, ": ping\n\n")
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

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		_, _ = io.Copy(w, f)
	})
}
