package catalog

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound            = errors.New("lecture not found")
	ErrDuplicateKey        = errors.New("duplicate lecture key")
	ErrInvalidContentType  = errors.New("invalid content type")
	ErrEmptyOrOversizedSet = errors.New("empty or oversized image set")
)

type ContentType string

const (
	ContentDocument ContentType = "document"
	ContentImageSet ContentType = "image-set"
)

// DefaultProfessor подставляется, когда автор не указал преподавателя.
const DefaultProfessor = "unspecified"

// DefaultCategory подставляется, когда подпись не содержит "категория: описание".
const DefaultCategory = "general"

// Record — запись каталога об одной загруженной лекции.
// Записи неизменяемы: повторная загрузка создаёт новую запись с новым ключом.
type Record struct {
	Key           string      `json:"key"`
	DisplayName   string      `json:"name"`
	Subject       string      `json:"subject"`
	Group         string      `json:"group"`
	LectureNumber int         `json:"number"`
	Professor     string      `json:"professor"`
	Category      string      `json:"category"`
	Description   string      `json:"description,omitempty"`
	ContentType   ContentType `json:"type"`
	// StoragePath — путь к файлу на диске (только документы).
	StoragePath string `json:"storage_path,omitempty"`
	// ArchiveRefs — упорядоченные идентификаторы сообщений в чате-архиве
	// (только наборы изображений).
	ArchiveRefs []string  `json:"archive_refs,omitempty"`
	UploadedBy  string    `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Matches сообщает, содержит ли запись подстроку query (без учёта регистра)
// в названии, описании, предмете или имени преподавателя.
func (r Record) Matches(query string) bool {
	q := strings.ToLower(query)
	for _, field := range []string{r.DisplayName, r.Description, r.Subject, r.Professor} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Store — хранилище записей каталога с сохранением порядка добавления.
type Store interface {
	// Append добавляет запись и сразу сохраняет состояние.
	Append(rec Record) error
	Get(key string) (Record, bool)
	// List возвращает записи в порядке добавления.
	List() []Record
	Len() int
}
