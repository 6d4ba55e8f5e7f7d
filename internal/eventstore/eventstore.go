// Package eventstore is the append-only JSONL store every captured event
// lands in. Each named stream gets its own file; writers within a stream
// are serialized so lines are never interleaved, and readers tolerate a
// partial final line left by a writer that was killed mid-append.
package eventstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"mcpaudit/internal/mcperrors"
)

// Store appends JSON-encodable records to named JSONL streams under a
// state directory, and reads them back.
type Store struct {
	dir string

	mu      sync.Mutex
	writers map[string]*streamWriter
}

type streamWriter struct {
	mu   sync.Mutex
	file *os.File
}

// New returns a Store rooted at dir. dir must already exist.
func New(dir string) *Store {
	return &Store{dir: dir, writers: make(map[string]*streamWriter)}
}

func (s *Store) writerFor(stream string) (*streamWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.writers[stream]; ok {
		return w, nil
	}

	f, err := os.OpenFile(streamPath(s.dir, stream), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, mcperrors.New(mcperrors.KindIO, "eventstore.writerFor", err)
	}
	w := &streamWriter{file: f}
	s.writers[stream] = w
	return w, nil
}

// Append marshals record and appends it as one JSONL line to stream,
// flushing before returning so a crash immediately after Append never loses
// the line silently.
func (s *Store) Append(stream string, record any) error {
	w, err := s.writerFor(stream)
	if err != nil {
		return err
	}

	line, err := json.Marshal(record)
	if err != nil {
		return mcperrors.New(mcperrors.KindParse, "eventstore.Append", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return mcperrors.New(mcperrors.KindIO, "eventstore.Append", err)
	}
	return nil
}

// Close flushes and closes every open stream writer.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, w := range s.writers {
		w.mu.Lock()
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.mu.Unlock()
	}
	return firstErr
}

// Read decodes every complete JSONL line in stream and invokes decode for
// each one in file order. A trailing line with no terminating newline is
// skipped rather than treated as an error, since it may be an in-flight
// write from a concurrent writer. A missing stream file yields no records
// and no error.
func Read(path string, decode func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return mcperrors.New(mcperrors.KindIO, "eventstore.Read", err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// A final fragment with no terminating newline is an
			// in-flight append from a live writer; leave it for the
			// next read rather than hand a half-written record down.
			if err == io.EOF {
				return nil
			}
			return mcperrors.New(mcperrors.KindIO, "eventstore.Read", err)
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		if len(trimmed) == 0 {
			continue
		}
		if err := decode(trimmed); err != nil {
			return mcperrors.New(mcperrors.KindParse, "eventstore.Read", err)
		}
	}
}

func streamPath(dir, stream string) string {
	return filepath.Join(dir, stream+".jsonl")
}
