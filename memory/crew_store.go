package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// CrewStore is the durable tier: one JSON document per crew, rewritten in
// full on every write.
//
// Concurrency: the crew map has its own short-held lock and every crew record
// has a lock of its own, so file I/O for one crew never blocks another.
type CrewStore struct {
	dir      string
	maxBytes int64
	logger   *log.Logger

	mu      sync.RWMutex
	records map[string]*crewRecord
}

type crewRecord struct {
	mu        sync.RWMutex
	entries   []Entry
	size      int64
	persisted bool
}

// crewFile is the on-disk shape.
type crewFile struct {
	Entries []Entry `json:"entries"`
}

// CrewStats summarizes one crew record.
type CrewStats struct {
	EntriesCount int     `json:"entries_count"`
	SizeBytes    int64   `json:"size_bytes"`
	SizeMB       float64 `json:"size_mb"`
}

// NewCrewStore creates a store rooted at cfg.Directory. Nothing touches the
// disk until Load.
func NewCrewStore(cfg CrewMemoryConfig, logger *log.Logger) *CrewStore {
	if logger == nil {
		logger = log.Default()
	}
	return &CrewStore{
		dir:      cfg.Directory,
		maxBytes: cfg.MaxSizeBytes(),
		logger:   logger,
		records:  make(map[string]*crewRecord),
	}
}

// Dir returns the directory holding crew files.
func (s *CrewStore) Dir() string {
	return s.dir
}

// Load creates the directory if needed and loads every *.json file in it.
// Malformed files are skipped with a warning.
func (s *CrewStore) Load() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("%w: create directory %s: %v", ErrPersistence, s.dir, err)
	}
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("%w: scan %s: %v", ErrPersistence, s.dir, err)
	}

	loaded := make(map[string]*crewRecord, len(paths))
	for _, path := range paths {
		crew := strings.TrimSuffix(filepath.Base(path), ".json")
		if err := ValidateCrewName(crew); err != nil {
			s.logger.Warn("skipping crew file", "path", path, "err", err)
			continue
		}
		entries, size, err := readCrewFile(path)
		if err != nil {
			s.logger.Warn("skipping crew file", "path", path, "err", err)
			continue
		}
		loaded[crew] = &crewRecord{entries: entries, size: size, persisted: true}
		s.logger.Debug("loaded crew memory", "crew", crew, "entries", len(entries))
	}

	s.mu.Lock()
	s.records = loaded
	s.mu.Unlock()

	s.logger.Info("crew memory initialized", "dir", s.dir, "crews", len(loaded))
	return nil
}

// Append adds an entry for crew and rewrites the crew's file. The in-memory
// record only changes once the file write has succeeded.
func (s *CrewStore) Append(crew string, entry Entry) error {
	if err := ValidateCrewName(crew); err != nil {
		return err
	}
	rec := s.record(crew, true)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	next := make([]Entry, len(rec.entries), len(rec.entries)+1)
	copy(next, rec.entries)
	next = append(next, entry)

	_, err := s.commit(crew, rec, next, true)
	return err
}

// Entries returns a copy of the crew's entries in chronological order.
func (s *CrewStore) Entries(crew string) ([]Entry, error) {
	rec := s.record(crew, false)
	if rec == nil {
		return nil, ErrNotFound
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	if len(rec.entries) == 0 {
		return nil, ErrNotFound
	}
	out := make([]Entry, len(rec.entries))
	copy(out, rec.entries)
	return out, nil
}

// Save rewrites the crew's file from memory. Saving an unchanged record
// produces a byte-identical file.
func (s *CrewStore) Save(crew string) error {
	_, err := s.saveAndRender(crew)
	return err
}

// saveAndRender saves crew and returns the bytes written, nil when skipped.
func (s *CrewStore) saveAndRender(crew string) ([]byte, error) {
	rec := s.record(crew, false)
	if rec == nil {
		return nil, fmt.Errorf("save %s: %w", crew, ErrNotFound)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	// A record whose first write failed has nothing on disk worth creating.
	if !rec.persisted && len(rec.entries) == 0 {
		return nil, nil
	}
	return s.commit(crew, rec, rec.entries, false)
}

// commit fits entries into the size limit, writes them and swaps them in.
// With appended set, the last entry is new and must survive the fit on its
// own; otherwise nothing is written. Caller holds rec.mu. Returns the bytes
// written.
func (s *CrewStore) commit(crew string, rec *crewRecord, entries []Entry, appended bool) ([]byte, error) {
	fitted, data, err := fitEntries(entries, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: render %s: %v", ErrPersistence, crew, err)
	}
	if appended && len(entries) > 0 && len(fitted) == 0 {
		return nil, fmt.Errorf("%w: entry for %s exceeds max_size_mb", ErrPersistence, crew)
	}
	if dropped := len(entries) - len(fitted); dropped > 0 {
		s.logger.Warn("crew memory exceeds size limit, truncating",
			"crew", crew, "dropped", dropped, "max_bytes", s.maxBytes)
	}

	if err := writeFileAtomic(s.path(crew), data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPersistence, crew, err)
	}
	rec.entries = fitted
	rec.size = int64(len(data))
	rec.persisted = true
	return data, nil
}

// Crews returns the names of all crews, sorted.
func (s *CrewStore) Crews() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats summarizes every persisted crew record.
func (s *CrewStore) Stats() map[string]CrewStats {
	out := make(map[string]CrewStats)
	for _, crew := range s.Crews() {
		rec := s.record(crew, false)
		if rec == nil {
			continue
		}
		rec.mu.RLock()
		if rec.persisted {
			out[crew] = CrewStats{
				EntriesCount: len(rec.entries),
				SizeBytes:    rec.size,
				SizeMB:       roundMB(rec.size),
			}
		}
		rec.mu.RUnlock()
	}
	return out
}

// Reset drops every in-memory record. Files are left on disk.
func (s *CrewStore) Reset() {
	s.mu.Lock()
	s.records = make(map[string]*crewRecord)
	s.mu.Unlock()
}

func (s *CrewStore) record(crew string, create bool) *crewRecord {
	s.mu.RLock()
	rec, ok := s.records[crew]
	s.mu.RUnlock()
	if ok || !create {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring write lock
	if rec, ok := s.records[crew]; ok {
		return rec
	}
	rec = &crewRecord{}
	s.records[crew] = rec
	return rec
}

func (s *CrewStore) path(crew string) string {
	return filepath.Join(s.dir, crew+".json")
}

// ValidateCrewName rejects names that cannot safely name a crew file.
func ValidateCrewName(crew string) error {
	switch {
	case strings.TrimSpace(crew) == "":
		return fmt.Errorf("%w: empty", ErrInvalidCrew)
	case crew == "." || crew == "..":
		return fmt.Errorf("%w: %q", ErrInvalidCrew, crew)
	case strings.ContainsAny(crew, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidCrew, crew)
	}
	return nil
}

func readCrewFile(path string) ([]Entry, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read %s: %v", ErrPersistence, path, err)
	}
	var f crewFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, path, err)
	}
	return f.Entries, int64(len(data)), nil
}

// renderCrewFile produces the canonical file bytes for entries.
func renderCrewFile(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(crewFile{Entries: entries}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fitEntries drops the oldest entries until the rendered file fits maxBytes.
func fitEntries(entries []Entry, maxBytes int64) ([]Entry, []byte, error) {
	trimmed := false
	for {
		data, err := renderCrewFile(entries)
		if err != nil {
			return nil, nil, err
		}
		if maxBytes <= 0 || int64(len(data)) <= maxBytes || len(entries) == 0 {
			if trimmed {
				entries = append([]Entry(nil), entries...)
			}
			return entries, data, nil
		}

		excess := int64(len(data)) - maxBytes
		drop := 0
		for drop < len(entries) && excess > 0 {
			b, err := json.Marshal(entries[drop])
			if err != nil {
				return nil, nil, err
			}
			excess -= int64(len(b))
			drop++
		}
		entries = entries[drop:]
		trimmed = true
	}
}

// writeFileAtomic writes via a temporary file and rename so a crash never
// leaves a half-written crew file behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename %s: %w", path, err)
	}
	return nil
}

func roundMB(size int64) float64 {
	mb := float64(size) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}
