// Package obslog provides the structured logger used across every
// component. Writes never block a caller: log lines go through a bounded
// in-memory queue drained by a background goroutine, so a slow disk can't
// stall a forwarding path in the proxy. Under backpressure lines are shed
// and counted, and the count is reported once the queue drains again.
package obslog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"

	"mcpaudit/internal/paths"
)

const (
	defaultMaxLogBytes = 8 << 20
	queueLimit         = 1024
)

// nonBlockingWriter queues writes for a background drain goroutine. When
// the queue is full the line is dropped and counted; the next time the
// queue empties, a single notice records how many lines were shed. Losing
// a log line is acceptable, stalling a capture path is not.
type nonBlockingWriter struct {
	mu      sync.Mutex
	queue   [][]byte
	dropped int

	wake chan struct{}
	out  io.Writer
}

func newNonBlockingWriter(out io.Writer) *nonBlockingWriter {
	w := &nonBlockingWriter{
		wake: make(chan struct{}, 1),
		out:  out,
	}
	go w.drain()
	return w
}

func (w *nonBlockingWriter) Write(p []byte) (int, error) {
	line := append([]byte(nil), p...)

	w.mu.Lock()
	if len(w.queue) >= queueLimit {
		w.dropped++
		w.mu.Unlock()
		return len(p), nil
	}
	w.queue = append(w.queue, line)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return len(p), nil
}

func (w *nonBlockingWriter) drain() {
	for range w.wake {
		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				shed := w.dropped
				w.dropped = 0
				w.mu.Unlock()
				if shed > 0 {
					fmt.Fprintf(w.out,
						`{"level":"warn","component":"obslog","message":"shed %d log lines under backpressure"}`+"\n", shed)
				}
				break
			}
			batch := w.queue
			w.queue = nil
			w.mu.Unlock()

			for _, line := range batch {
				w.out.Write(line) //nolint:errcheck
			}
		}
	}
}

// cappedFile appends to a single log file and, when the next write would
// push it past its byte cap, renames it to <path>.1 and starts fresh. One
// previous generation is kept, bounding disk use at roughly twice the cap
// regardless of how long the proxy runs.
type cappedFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	size     int64
	file     *os.File
}

func openCappedFile(path string, maxBytes int64) (*cappedFile, error) {
	w := &cappedFile{path: path, maxBytes: maxBytes}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *cappedFile) open() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *cappedFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *cappedFile) rotate() error {
	w.file.Close()
	if err := os.Rename(w.path, w.path+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return w.open()
}

var (
	once sync.Once
	base zerolog.Logger
)

// Level returns the configured log level from MCPAUDIT_LOG_LEVEL (a
// zerolog level name like "debug" or "warn"), defaulting to Info.
func Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(os.Getenv("MCPAUDIT_LOG_LEVEL"))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func maxLogBytes() int64 {
	if raw := os.Getenv("MCPAUDIT_LOG_MAX_BYTES"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return defaultMaxLogBytes
}

func root() zerolog.Logger {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		var out io.Writer = consoleWriter

		if dir, err := paths.LogDir(); err == nil {
			if fw, err := openCappedFile(filepath.Join(dir, "mcpaudit.log"), maxLogBytes()); err == nil {
				out = zerolog.MultiLevelWriter(consoleWriter, fw)
			}
		}

		base = zerolog.New(newNonBlockingWriter(out)).
			Level(Level()).
			With().
			Timestamp().
			Logger()
	})
	return base
}

// Get returns a logger scoped to the named component (e.g. "proxy",
// "eventstore", "correlator").
func Get(component string) zerolog.Logger {
	return root().With().Str("component", component).Logger()
}
