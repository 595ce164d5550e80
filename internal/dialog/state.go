package dialog

import (
	"sync"
	"time"
)

// Kind — вид диалога. Каждому виду соответствует своя таблица шагов.
type Kind string

const (
	KindAddDocument Kind = "add-document"
	KindAddImages   Kind = "add-image-set"
	KindSearch      Kind = "search"
	KindSelect      Kind = "select"
)

// Input — то, что диспетчер извлёк из входящего сообщения для движка.
type Input struct {
	Text      string
	HasMedia  bool
	MediaType string
	MimeType  string
	Filename  string
	MessageID string
}

// State — состояние одного диалога. У пользователя может быть не больше
// одного состояния; отсутствие состояния означает "нет активного диалога".
type State struct {
	UserID    string
	Kind      Kind
	StepIndex int

	Subject     string
	Group       string
	LectureName string
	Number      int
	Professor   string

	// Документ: идентификатор сообщения с вложением, подпись и имя файла.
	DocumentMessageID string
	DocumentMimeType  string
	DocumentFilename  string
	DocumentCaption   string

	// Сбор изображений: идентификаторы сообщений и начало окна сбора.
	ImageMessageIDs []string
	WindowStart     time.Time

	// Поиск и выбор из списка.
	Query       string
	Candidates  []string
	SelectedKey string

	StartedAt time.Time
}

// Store — потокобезопасное in-memory хранилище диалоговых состояний,
// по одному на пользователя.
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
}

func NewStore() *Store {
	return &Store{states: make(map[string]*State)}
}

func (s *Store) Get(userID string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	return st, ok
}

// Set сохраняет состояние, заменяя предыдущее состояние пользователя.
func (s *Store) Set(st *State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.UserID] = st
}

func (s *Store) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

func (s *Store) Has(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.states[userID]
	return ok
}
