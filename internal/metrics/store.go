package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store provides thread-safe storage for metric records, keyed by issue number.
type Store struct {
	mu      sync.RWMutex
	records map[int]Record
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{
		records: make(map[int]Record),
	}
}

// Append adds records to the store. A record with an issue number already present
// replaces the stored one. Returns the number of issue numbers seen for the first time.
func (s *Store) Append(records []Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, r := range records {
		if _, ok := s.records[r.IssueNumber]; !ok {
			added++
		}
		s.records[r.IssueNumber] = r
	}
	return added
}

// Records returns a copy of all records ordered by issue number.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssueNumber < out[j].IssueNumber
	})
	return out
}

// Count returns the number of records in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// InRange returns the records whose timestamp falls within r, ordered by issue number.
func (s *Store) InRange(r TimeRange) []Record {
	return FilterByTimestamp(s.Records(), r)
}

// Load reads records from a JSONL file. A missing file is not an error.
func (s *Store) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open records file: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			log.Warn().Err(err).Str("path", path).Int("line", line).Msg("Skipping invalid record line")
			continue
		}
		records = append(records, r)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading records file: %w", err)
	}

	added := s.Append(records)
	log.Info().Str("path", path).Int("count", len(records)).Int("new", added).Msg("Loaded metric records")
	return nil
}

// Save writes all records to a JSONL file, replacing it atomically.
func (s *Store) Save(path string) error {
	records := s.Records()
	if len(records) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create records directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp records file: %w", err)
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)

	for _, r := range records {
		if err := encoder.Encode(r); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename records file: %w", err)
	}

	log.Info().Str("path", path).Int("count", len(records)).Msg("Metric records saved")
	return nil
}
