package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultStorageFileName = ".phorus-history.json"
)

// Storage persists session records to a JSON file.
type Storage struct {
	filePath string
	mu       sync.RWMutex
	records  map[string]*Record
}

// HistoryStorage represents the JSON structure for storage
type HistoryStorage struct {
	Records map[string]*Record `json:"records"`
}

// NewStorage opens the history file, defaulting to the home directory.
func NewStorage(filePath string) (*Storage, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	storage := &Storage{
		filePath: filePath,
		records:  make(map[string]*Record),
	}

	if err := storage.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
	}

	return storage, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var historyStorage HistoryStorage
	if err := json.Unmarshal(data, &historyStorage); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}

	s.records = historyStorage.Records
	if s.records == nil {
		s.records = make(map[string]*Record)
	}

	return nil
}

// saveLocked writes records to the storage file. Callers hold mu.
func (s *Storage) saveLocked() error {
	data, err := json.MarshalIndent(HistoryStorage{Records: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Save inserts or replaces a record.
func (s *Storage) Save(record *Record) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.records[record.ID]; ok {
		record.Created = existing.Created
		// Dismissal is sticky.
		record.Dismissed = record.Dismissed || existing.Dismissed
	} else if record.Created.IsZero() {
		record.Created = now
	}
	record.Updated = now

	stored := *record
	s.records[record.ID] = &stored

	return s.saveLocked()
}

// Get retrieves a record by id
func (s *Storage) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("record '%s' not found", id)
	}

	copied := *record
	return &copied, nil
}

// FindByReference returns the record with the given tx hash or relay id.
func (s *Storage) FindByReference(reference string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.records {
		if matchesReference(record, reference) {
			copied := *record
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("no record for '%s'", reference)
}

// Dismiss marks every record referencing hash as dismissed.
func (s *Storage) Dismiss(reference string) error {
	if reference == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, record := range s.records {
		if matchesReference(record, reference) && !record.Dismissed {
			record.Dismissed = true
			record.Updated = time.Now().UTC()
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveLocked()
}

// IsDismissed reports whether a record referencing hash was dismissed.
func (s *Storage) IsDismissed(reference string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.records {
		if record.Dismissed && matchesReference(record, reference) {
			return true
		}
	}
	return false
}

// List returns all records, newest first.
func (s *Storage) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.records))
	for _, record := range s.records {
		copied := *record
		records = append(records, &copied)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Created.After(records[j].Created)
	})

	return records
}

// ListByStatus returns records filtered by status, newest first.
func (s *Storage) ListByStatus(status Status) []*Record {
	records := make([]*Record, 0)
	for _, record := range s.List() {
		if record.Status == status {
			records = append(records, record)
		}
	}
	return records
}

// Count returns the total number of records
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// GetFilePath returns the storage file path
func (s *Storage) GetFilePath() string {
	return s.filePath
}

func matchesReference(record *Record, reference string) bool {
	return reference != "" &&
		(strings.EqualFold(record.TxHash, reference) || strings.EqualFold(record.RelayID, reference))
}
