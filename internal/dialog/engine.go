package dialog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SkipToken вводится вместо необязательного поля.
	SkipToken = "-"

	cancelHint = "💡 Напишите 'cancel' для отмены."
)

var cancelWords = []string{"cancel", "отмена"}
var finishWords = []string{"finish", "done", "готово"}

// Status — исход одного шага Advance.
type Status int

const (
	// StatusPrompt — диалог продолжается, Reply содержит следующий вопрос
	// либо повтор текущего после ошибки валидации.
	StatusPrompt Status = iota
	// StatusCancelled — состояние очищено по команде отмены или по
	// истечению окна сбора изображений.
	StatusCancelled
	// StatusCompleted — все шаги пройдены; State содержит собранные поля.
	StatusCompleted
)

type Result struct {
	Status Status
	Reply  string
	State  *State
}

// Step — один шаг таблицы: вопрос и валидатор-аккумулятор.
type Step struct {
	Field  string
	Prompt func(st *State) string
	Apply  func(st *State, in Input) error
	// Collect включает цикл сбора изображений: шаг повторяется, пока не
	// придёт завершающее слово или не истечёт окно.
	Collect bool
}

// Engine — универсальный диалоговый движок, параметризованный таблицами
// шагов по видам диалога.
type Engine struct {
	store       *Store
	tables      map[Kind][]Step
	imageCap    int
	imageWindow time.Duration
	now         func() time.Time
}

type EngineConfig struct {
	Store       *Store
	ImageCap    int
	ImageWindow time.Duration
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		store:       cfg.Store,
		imageCap:    cfg.ImageCap,
		imageWindow: cfg.ImageWindow,
		now:         time.Now,
	}
	e.tables = map[Kind][]Step{
		KindAddDocument: e.documentSteps(),
		KindAddImages:   e.imageSteps(),
		KindSearch:      e.searchSteps(),
		KindSelect:      e.selectSteps(),
	}
	return e
}

// Active сообщает, есть ли у пользователя открытый диалог.
func (e *Engine) Active(userID string) bool {
	return e.store.Has(userID)
}

// Clear безусловно снимает состояние пользователя.
func (e *Engine) Clear(userID string) {
	e.store.Delete(userID)
}

// Begin открывает диалог указанного вида и возвращает первый вопрос.
// Прежнее состояние пользователя, если было, замещается.
func (e *Engine) Begin(userID string, kind Kind) string {
	st := &State{
		UserID:    userID,
		Kind:      kind,
		StartedAt: e.now(),
	}
	e.store.Set(st)
	return e.tables[kind][0].Prompt(st)
}

// BeginSelect открывает диалог выбора по снимку списка ключей.
// Нумерация в ответах пользователя — 1-based по этому снимку.
func (e *Engine) BeginSelect(userID string, candidates []string) {
	keys := make([]string, len(candidates))
	copy(keys, candidates)
	st := &State{
		UserID:     userID,
		Kind:       KindSelect,
		Candidates: keys,
		StartedAt:  e.now(),
	}
	e.store.Set(st)
}

// Advance продвигает диалог пользователя на одно входящее сообщение.
// Отмена проверяется раньше любой логики шага и действует на любом шаге.
func (e *Engine) Advance(userID string, in Input) Result {
	st, ok := e.store.Get(userID)
	if !ok {
		return Result{Status: StatusCancelled, Reply: "Нет активного диалога."}
	}

	if isCancel(in.Text) {
		e.store.Delete(userID)
		return Result{Status: StatusCancelled, Reply: "✅ Операция отменена. Напишите 'help', чтобы увидеть команды."}
	}

	steps := e.tables[st.Kind]
	step := steps[st.StepIndex]

	if step.Collect {
		return e.advanceCollect(st, in)
	}

	if err := step.Apply(st, in); err != nil {
		// Состояние не меняется: пользователь просто пробует ещё раз.
		reply := fmt.Sprintf("⚠️ %s\n\n%s%s", err.Error(), progress(st), step.Prompt(st))
		return Result{Status: StatusPrompt, Reply: reply, State: st}
	}

	st.StepIndex++
	if st.StepIndex < len(steps) {
		next := steps[st.StepIndex]
		if next.Collect {
			st.WindowStart = e.now()
		}
		e.store.Set(st)
		return Result{Status: StatusPrompt, Reply: progress(st) + next.Prompt(st), State: st}
	}

	e.store.Delete(userID)
	return Result{Status: StatusCompleted, State: st}
}

// advanceCollect обрабатывает цикл сбора изображений: тот же индекс шага,
// пока не придёт завершающее слово. Окно проверяется лениво, на очередном
// входящем сообщении; пустое истёкшее окно отменяет диалог.
func (e *Engine) advanceCollect(st *State, in Input) Result {
	if len(st.ImageMessageIDs) == 0 && e.now().Sub(st.WindowStart) > e.imageWindow {
		e.store.Delete(st.UserID)
		return Result{Status: StatusCancelled, Reply: "⌛ Время ожидания изображений вышло, операция отменена."}
	}

	if isFinish(in.Text) {
		if len(st.ImageMessageIDs) == 0 {
			e.store.Delete(st.UserID)
			return Result{Status: StatusCancelled, Reply: "❌ Вы не отправили ни одного изображения, операция отменена."}
		}
		e.store.Delete(st.UserID)
		return Result{Status: StatusCompleted, State: st}
	}

	if in.HasMedia && in.MediaType == "image" {
		if len(st.ImageMessageIDs) >= e.imageCap {
			reply := fmt.Sprintf("⚠️ Лимит %d изображений достигнут, это изображение не принято. Напишите 'finish' для завершения.", e.imageCap)
			return Result{Status: StatusPrompt, Reply: reply, State: st}
		}
		st.ImageMessageIDs = append(st.ImageMessageIDs, in.MessageID)
		e.store.Set(st)
		reply := fmt.Sprintf("📸 Изображение %d/%d принято. Отправьте ещё или напишите 'finish'.", len(st.ImageMessageIDs), e.imageCap)
		return Result{Status: StatusPrompt, Reply: reply, State: st}
	}

	reply := fmt.Sprintf("📸 Отправьте изображение (принято %d/%d) или напишите 'finish'.\n%s", len(st.ImageMessageIDs), e.imageCap, cancelHint)
	return Result{Status: StatusPrompt, Reply: reply, State: st}
}

func (e *Engine) documentSteps() []Step {
	return []Step{
		subjectStep(), groupStep(), lectureNameStep(), numberStep(), professorStep(),
		{
			Field: "file",
			Prompt: func(st *State) string {
				return "📎 Прикрепите PDF-файл. Подпись вида 'категория: описание' станет описанием лекции.\n" + cancelHint
			},
			Apply: func(st *State, in Input) error {
				if !in.HasMedia {
					return errors.New("Вы не отправили файл. Прикрепите PDF-документ.")
				}
				if in.MediaType != "document" {
					return errors.New("Это не документ. Прикрепите PDF-файл.")
				}
				if !looksLikePDF(in) {
					return errors.New("Файл не похож на PDF. Прикрепите корректный PDF.")
				}
				st.DocumentMessageID = in.MessageID
				st.DocumentMimeType = in.MimeType
				st.DocumentFilename = in.Filename
				st.DocumentCaption = strings.TrimSpace(in.Text)
				return nil
			},
		},
	}
}

func (e *Engine) imageSteps() []Step {
	return []Step{
		subjectStep(), groupStep(), lectureNameStep(), numberStep(), professorStep(),
		{
			Field:   "images",
			Collect: true,
			Prompt: func(st *State) string {
				return fmt.Sprintf("📸 Отправляйте изображения (не больше %d). Когда закончите, напишите 'finish'.\n%s", e.imageCap, cancelHint)
			},
		},
	}
}

func (e *Engine) searchSteps() []Step {
	return []Step{
		{
			Field: "query",
			Prompt: func(st *State) string {
				return "🔍 Введите слово для поиска (например: алгебра).\n" + cancelHint
			},
			Apply: func(st *State, in Input) error {
				query := strings.TrimSpace(in.Text)
				if query == "" {
					return errors.New("Пустой запрос. Введите слово для поиска.")
				}
				st.Query = query
				return nil
			},
		},
	}
}

func (e *Engine) selectSteps() []Step {
	return []Step{
		{
			Field: "selection",
			Prompt: func(st *State) string {
				return fmt.Sprintf("✉️ Отправьте номер лекции (1-%d).", len(st.Candidates))
			},
			Apply: func(st *State, in Input) error {
				idx, err := strconv.Atoi(strings.TrimSpace(in.Text))
				if err != nil || idx < 1 || idx > len(st.Candidates) {
					return fmt.Errorf("Неверный номер. Отправьте число от 1 до %d.", len(st.Candidates))
				}
				st.SelectedKey = st.Candidates[idx-1]
				return nil
			},
		},
	}
}

func subjectStep() Step {
	return Step{
		Field: "subject",
		Prompt: func(st *State) string {
			return "📌 Введите название предмета (например: алгебра).\n" + cancelHint
		},
		Apply: func(st *State, in Input) error {
			subject := strings.TrimSpace(in.Text)
			if subject == "" || subject == SkipToken {
				return errors.New("Название предмета обязательно.")
			}
			st.Subject = subject
			return nil
		},
	}
}

func groupStep() Step {
	return Step{
		Field: "group",
		Prompt: func(st *State) string {
			return "👥 Введите номер группы (например: 1 или 1,2,3).\n" + cancelHint
		},
		Apply: func(st *State, in Input) error {
			group := strings.TrimSpace(in.Text)
			if group == "" || group == SkipToken {
				return errors.New("Группа обязательна.")
			}
			st.Group = group
			return nil
		},
	}
}

func lectureNameStep() Step {
	return Step{
		Field: "lecture_name",
		Prompt: func(st *State) string {
			return "📝 Введите название лекции ('-' чтобы пропустить).\n" + cancelHint
		},
		Apply: func(st *State, in Input) error {
			name := strings.TrimSpace(in.Text)
			if name != SkipToken {
				st.LectureName = name
			}
			return nil
		},
	}
}

func numberStep() Step {
	return Step{
		Field: "number",
		Prompt: func(st *State) string {
			return "🔢 Введите номер лекции ('-' — вычислить автоматически).\n" + cancelHint
		},
		Apply: func(st *State, in Input) error {
			text := strings.TrimSpace(in.Text)
			if text == SkipToken || text == "" {
				st.Number = 0
				return nil
			}
			number, err := strconv.Atoi(text)
			if err != nil || number < 1 {
				return errors.New("Номер лекции должен быть положительным числом или '-'.")
			}
			st.Number = number
			return nil
		},
	}
}

func professorStep() Step {
	return Step{
		Field: "professor",
		Prompt: func(st *State) string {
			return "👨‍🏫 Введите имя преподавателя ('-' чтобы пропустить).\n" + cancelHint
		},
		Apply: func(st *State, in Input) error {
			professor := strings.TrimSpace(in.Text)
			if professor != SkipToken {
				st.Professor = professor
			}
			return nil
		},
	}
}

// progress показывает уже собранные поля, чтобы пользователь видел прогресс.
func progress(st *State) string {
	var b strings.Builder
	if st.Subject != "" {
		fmt.Fprintf(&b, "✅ Предмет: %s\n", st.Subject)
	}
	if st.Group != "" {
		fmt.Fprintf(&b, "✅ Группа: %s\n", st.Group)
	}
	if st.LectureName != "" {
		fmt.Fprintf(&b, "✅ Название: %s\n", st.LectureName)
	}
	if st.Number > 0 {
		fmt.Fprintf(&b, "✅ Номер: %d\n", st.Number)
	}
	if st.Professor != "" {
		fmt.Fprintf(&b, "✅ Преподаватель: %s\n", st.Professor)
	}
	return b.String()
}

func looksLikePDF(in Input) bool {
	if strings.Contains(strings.ToLower(in.MimeType), "application/pdf") {
		return true
	}
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(in.Filename)), ".pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(in.Text)), ".pdf")
}

func isCancel(text string) bool {
	return matchesWord(text, cancelWords)
}

func isFinish(text string) bool {
	return matchesWord(text, finishWords)
}

func matchesWord(text string, words []string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	for _, w := range words {
		if trimmed == w {
			return true
		}
	}
	return false
}
