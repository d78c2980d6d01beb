package server

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/models"
)

const maxBodySize = 10 * 1024 * 1024

var errBodyTooLarge = fmt.Errorf("request body exceeds %d bytes", maxBodySize)

// IngestResult is the response to POST /v1/readings
type IngestResult struct {
	Status    string         `json:"status"`
	Accepted  int            `json:"accepted"`
	Duplicate bool           `json:"duplicate"`
	Alerts    []models.Alert `json:"alerts"`
}

// handleIngest accepts readings pushed by real sensors. The body is a
// single reading, a JSON array, or NDJSON (Content-Type application/x-ndjson).
// A repeated Idempotency-Key is acknowledged without processing again.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if key != "" && s.idempotent.Exists(key) {
		s.mu.Lock()
		s.stats.TotalDuplicates++
		s.mu.Unlock()
		s.writeJSON(w, http.StatusOK, IngestResult{Status: "ok", Duplicate: true, Alerts: []models.Alert{}})
		return
	}

	body, err := s.readBody(r)
	if errors.Is(err, errBodyTooLarge) {
		s.countError()
		s.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err != nil {
		s.countError()
		s.writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}

	readings, err := parseReadings(body, r.Header.Get("Content-Type"))
	if err != nil {
		s.countError()
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// nothing is processed unless the whole batch is valid
	for i, reading := range readings {
		if err := reading.Validate(); err != nil {
			s.countError()
			s.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("reading %d: %v", i, err))
			return
		}
	}

	if key != "" {
		s.idempotent.Mark(key)
	}

	alerts := []models.Alert{}
	for _, reading := range readings {
		alerts = append(alerts, s.engine.Process(r.Context(), reading)...)
		if s.live != nil {
			s.live.Feed.PublishReading(reading)
		}
	}

	s.mu.Lock()
	s.stats.TotalReceived += len(readings)
	s.mu.Unlock()

	s.logger.Debug("Readings ingested", zap.Int("readings", len(readings)), zap.Int("alerts", len(alerts)))
	s.writeJSON(w, http.StatusOK, IngestResult{Status: "ok", Accepted: len(readings), Alerts: alerts})
}

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body

	if s.config.AcceptGzip && r.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	// the limit applies after decompression
	body, err := io.ReadAll(io.LimitReader(reader, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodySize {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func parseReadings(body []byte, contentType string) ([]models.Reading, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	if strings.HasPrefix(contentType, "application/x-ndjson") {
		var readings []models.Reading
		scanner := bufio.NewScanner(bytes.NewReader(body))
		scanner.Buffer(make([]byte, 64*1024), maxBodySize)
		line := 0
		for scanner.Scan() {
			line++
			data := bytes.TrimSpace(scanner.Bytes())
			if len(data) == 0 {
				continue
			}
			var reading models.Reading
			if err := json.Unmarshal(data, &reading); err != nil {
				return nil, fmt.Errorf("invalid JSON at line %d: %w", line, err)
			}
			readings = append(readings, reading)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read NDJSON: %w", err)
		}
		return readings, nil
	}

	if !strings.HasPrefix(contentType, "application/json") {
		return nil, fmt.Errorf("Content-Type must be application/json or application/x-ndjson")
	}
	if body[0] == '[' {
		var readings []models.Reading
		if err := json.Unmarshal(body, &readings); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		if len(readings) == 0 {
			return nil, fmt.Errorf("empty batch")
		}
		return readings, nil
	}
	var reading models.Reading
	if err := json.Unmarshal(body, &reading); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return []models.Reading{reading}, nil
}

// IdempotencyStore tracks processed request keys for a limited time
type IdempotencyStore struct {
	ttl  time.Duration
	seen map[string]time.Time
	mu   sync.Mutex
	now  func() time.Time
}

// NewIdempotencyStore creates a store that forgets keys after ttl
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Exists checks if a key has been processed within the ttl
func (s *IdempotencyStore) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.seen[key]
	if !ok {
		return false
	}
	if s.ttl > 0 && s.now().Sub(at) > s.ttl {
		delete(s.seen, key)
		return false
	}
	return true
}

// Mark records a key as processed and prunes expired keys
func (s *IdempotencyStore) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.seen[key] = now
	if s.ttl <= 0 {
		return
	}
	for k, at := range s.seen {
		if now.Sub(at) > s.ttl {
			delete(s.seen, k)
		}
	}
}
