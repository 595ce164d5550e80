package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// FileStore хранит записи в памяти и синхронизирует их с JSON-файлом на диске.
// Формат файла: объект с массивом ключей (порядок добавления) и картой записей.
// Файл перезаписывается целиком после каждой мутации: при падении теряется
// не больше одной незавершённой записи.
type FileStore struct {
	mu      sync.RWMutex
	order   []string
	records map[string]Record
	path    string
}

type fileStorePayload struct {
	Order   []string          `json:"order"`
	Records map[string]Record `json:"records"`
}

// NewFileStore создаёт FileStore и загружает данные из указанного файла.
// Отсутствующий или нечитаемый файл не считается ошибкой: хранилище
// стартует пустым и пересоздаёт файл при первом сохранении.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("filestore path is empty")
	}

	fs := &FileStore{
		records: make(map[string]Record),
		path:    path,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (s *FileStore) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.Key]; exists {
		return fmt.Errorf("append %q: %w", rec.Key, ErrDuplicateKey)
	}

	s.order = append(s.order, rec.Key)
	s.records[rec.Key] = rec
	return s.persistLocked()
}

func (s *FileStore) Get(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	return rec, ok
}

func (s *FileStore) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.order))
	for _, key := range s.order {
		if rec, ok := s.records[key]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *FileStore) load() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		log.Printf("catalog filestore: read %s: %v", s.path, err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var payload fileStorePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("catalog filestore: unmarshal %s: %v", s.path, err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range payload.Order {
		rec, ok := payload.Records[key]
		if !ok {
			log.Printf("catalog filestore: skip dangling key %q", key)
			continue
		}
		s.order = append(s.order, key)
		s.records[key] = rec
	}
	return nil
}

func (s *FileStore) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	payload := fileStorePayload{
		Order:   s.order,
		Records: s.records,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
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
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
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
