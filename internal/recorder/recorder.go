// Package recorder writes readings to NDJSON files and plays them back.
package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/synheart/roomwatch/internal/models"
)

// Recorder writes readings to an NDJSON file, one reading per line
type Recorder struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
	count  int
	err    error
}

// NewRecorder creates a new recorder
func NewRecorder(filename string) (*Recorder, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	return &Recorder{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Record appends one reading
func (r *Recorder) Record(reading models.Reading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write reading: %w", err)
	}
	if err := r.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	r.count++
	return nil
}

// Subscriber returns a callback for generator.Subscribe. The first write
// error is kept and reported by Err; later readings are skipped.
func (r *Recorder) Subscriber() func(models.Reading) {
	return func(reading models.Reading) {
		r.mu.Lock()
		failed := r.err != nil
		r.mu.Unlock()
		if failed {
			return
		}
		if err := r.Record(reading); err != nil {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
		}
	}
}

// RecordFromChannel records readings until the channel closes or ctx ends
func (r *Recorder) RecordFromChannel(ctx context.Context, readings <-chan models.Reading, onEntry func()) error {
	for {
		select {
		case <-ctx.Done():
			return r.Close()
		case reading, ok := <-readings:
			if !ok {
				return r.Close()
			}
			if err := r.Record(reading); err != nil {
				return err
			}
			if onEntry != nil {
				onEntry()
			}
		}
	}
}

// Count returns the number of readings written so far
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the first error seen by the Subscriber callback
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Flush flushes the buffer to disk
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Flush()
}

// Close flushes and closes the recorder
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writer.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to flush buffer: %w", err)
	}

	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	return nil
}
