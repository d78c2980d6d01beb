package recorder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/synheart/roomwatch/internal/models"
)

const maxLineSize = 1 << 20

// Replayer reads readings from an NDJSON file and sends them in order.
// Speed scales the recorded gaps between readings; 0 replays without
// waiting.
type Replayer struct {
	filename string
	speed    float64
	loop     bool

	count  int
	first  *models.Reading
	last   *models.Reading
	loaded bool
}

// NewReplayer creates a new replayer
func NewReplayer(filename string, speed float64, loop bool) *Replayer {
	return &Replayer{
		filename: filename,
		speed:    speed,
		loop:     loop,
	}
}

// Replay sends readings to output until the file ends (or forever with loop)
func (r *Replayer) Replay(ctx context.Context, output chan<- models.Reading) error {
	for {
		if err := r.replayOnce(ctx, output); err != nil {
			return err
		}

		if !r.loop {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (r *Replayer) replayOnce(ctx context.Context, output chan<- models.Reading) error {
	var last time.Time
	sent := 0

	return r.scan(func(line int, reading models.Reading) error {
		if sent > 0 && r.speed > 0 {
			delay := time.Duration(float64(reading.Timestamp.Sub(last)) / r.speed)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
		}
		last = reading.Timestamp
		sent++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case output <- reading:
		}
		return nil
	})
}

// scan calls fn for every valid reading in the file
func (r *Replayer) scan(fn func(line int, reading models.Reading) error) error {
	file, err := os.Open(r.filename)
	if err != nil {
		return fmt.Errorf("failed to open recording file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var reading models.Reading
		if err := json.Unmarshal(data, &reading); err != nil {
			return fmt.Errorf("failed to parse reading at line %d: %w", lineNum, err)
		}
		if err := reading.Validate(); err != nil {
			return fmt.Errorf("invalid reading at line %d: %w", lineNum, err)
		}
		if err := fn(lineNum, reading); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}
	return nil
}

// loadMetadata reads the file once to cache count, first and last reading
func (r *Replayer) loadMetadata() error {
	if r.loaded {
		return nil
	}

	count := 0
	var first, last models.Reading
	err := r.scan(func(line int, reading models.Reading) error {
		if count == 0 {
			first = reading
		}
		last = reading
		count++
		return nil
	})
	if err != nil {
		return err
	}

	r.count = count
	if count > 0 {
		r.first, r.last = &first, &last
	}
	r.loaded = true
	return nil
}

// CountReadings returns the number of readings in the recording
func (r *Replayer) CountReadings() (int, error) {
	if err := r.loadMetadata(); err != nil {
		return 0, err
	}
	return r.count, nil
}

// FirstReading returns the first reading in the recording
func (r *Replayer) FirstReading() (*models.Reading, error) {
	if err := r.loadMetadata(); err != nil {
		return nil, err
	}
	if r.first == nil {
		return nil, fmt.Errorf("recording is empty")
	}
	return r.first, nil
}

// Span returns the timestamps of the first and last readings
func (r *Replayer) Span() (time.Time, time.Time, error) {
	if err := r.loadMetadata(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if r.first == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("recording is empty")
	}
	return r.first.Timestamp, r.last.Timestamp, nil
}
