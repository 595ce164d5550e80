package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Snapshot — счётчики на момент чтения.
type Snapshot struct {
	Requests int
	Lectures map[string]int
	Joins    map[string]int
	Leaves   map[string]int
	Messages map[string]int
}

type fileData struct {
	Requests int            `json:"requests"`
	Lectures map[string]int `json:"lectures"`
	Joins    map[string]int `json:"joins"`
	Leaves   map[string]int `json:"leaves"`
	Messages map[string]int `json:"messages"`
}

// Store хранит счётчики использования и синхронизирует их с JSON-файлом.
// Нечитаемый файл не считается ошибкой: счётчики стартуют с нуля.
type Store struct {
	mu   sync.Mutex
	path string
	data fileData
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("stats path is empty")
	}

	s := &Store{
		path: path,
		data: fileData{
			Lectures: make(map[string]int),
			Joins:    make(map[string]int),
			Leaves:   make(map[string]int),
			Messages: make(map[string]int),
		},
	}
	s.load()
	return s, nil
}

// RecordContribution увеличивает счётчик лекций пользователя и возвращает
// новое значение.
func (s *Store) RecordContribution(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Lectures[userID]++
	count := s.data.Lectures[userID]
	if err := s.persistLocked(); err != nil {
		return count, err
	}
	return count, nil
}

// RecordRequest увеличивает счётчик выданных лекций.
func (s *Store) RecordRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Requests++
	if err := s.persistLocked(); err != nil {
		log.Printf("stats: persist after request failed: %v", err)
	}
}

// RecordJoin отмечает вступление в группу.
func (s *Store) RecordJoin(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Joins[groupID]++
	if err := s.persistLocked(); err != nil {
		log.Printf("stats: persist after join failed: %v", err)
	}
}

// RecordLeave отмечает выход бота из группы.
func (s *Store) RecordLeave(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Leaves[groupID]++
	if err := s.persistLocked(); err != nil {
		log.Printf("stats: persist after leave failed: %v", err)
	}
}

// RecordMessage отмечает сообщение в группе.
func (s *Store) RecordMessage(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Messages[groupID]++
	if err := s.persistLocked(); err != nil {
		log.Printf("stats: persist after message failed: %v", err)
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Requests: s.data.Requests,
		Lectures: make(map[string]int, len(s.data.Lectures)),
		Joins:    make(map[string]int, len(s.data.Joins)),
		Leaves:   make(map[string]int, len(s.data.Leaves)),
		Messages: make(map[string]int, len(s.data.Messages)),
	}
	for k, v := range s.data.Lectures {
		snap.Lectures[k] = v
	}
	for k, v := range s.data.Joins {
		snap.Joins[k] = v
	}
	for k, v := range s.data.Leaves {
		snap.Leaves[k] = v
	}
	for k, v := range s.data.Messages {
		snap.Messages[k] = v
	}
	return snap
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("stats: read %s: %v", s.path, err)
		}
		return
	}
	if len(data) == 0 {
		return
	}

	var parsed fileData
	if err := json.Unmarshal(data, &parsed); err != nil {
		log.Printf("stats: unmarshal %s: %v", s.path, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Requests = parsed.Requests
	for k, v := range parsed.Lectures {
		s.data.Lectures[k] = v
	}
	for k, v := range parsed.Joins {
		s.data.Joins[k] = v
	}
	for k, v := range parsed.Leaves {
		s.data.Leaves[k] = v
	}
	for k, v := range parsed.Messages {
		s.data.Messages[k] = v
	}
}

func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
