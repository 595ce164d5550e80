package dialog

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestEngine() *Engine {
	return NewEngine(EngineConfig{
		Store:       NewStore(),
		ImageCap:    10,
		ImageWindow: 60 * time.Second,
	})
}

func text(s string) Input {
	return Input{Text: s}
}

func image(id string) Input {
	return Input{HasMedia: true, MediaType: "image", MessageID: id}
}

func TestAddDocumentHappyPath(t *testing.T) {
	e := newTestEngine()

	prompt := e.Begin("u1", KindAddDocument)
	if !strings.Contains(prompt, "предмет") {
		t.Fatalf("expected subject prompt, got %q", prompt)
	}

	for _, answer := range []string{"алгебра", "1,2", "Матрицы", "3", "Иванов"} {
		res := e.Advance("u1", text(answer))
		if res.Status != StatusPrompt {
			t.Fatalf("answer %q: expected prompt, got status %v reply %q", answer, res.Status, res.Reply)
		}
	}

	res := e.Advance("u1", Input{
		Text:      "math: конспект",
		HasMedia:  true,
		MediaType: "document",
		MimeType:  "application/pdf",
		Filename:  "lecture.pdf",
		MessageID: "m42",
	})
	if res.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v reply %q", res.Status, res.Reply)
	}

	st := res.State
	if st.Subject != "алгебра" || st.Group != "1,2" || st.LectureName != "Матрицы" {
		t.Fatalf("unexpected collected fields: %+v", st)
	}
	if st.Number != 3 || st.Professor != "Иванов" {
		t.Fatalf("unexpected number/professor: %+v", st)
	}
	if st.DocumentMessageID != "m42" || st.DocumentCaption != "math: конспект" {
		t.Fatalf("unexpected document fields: %+v", st)
	}
	if e.Active("u1") {
		t.Fatalf("state must be cleared after completion")
	}
}

func TestCancelWorksOnEveryStep(t *testing.T) {
	answers := []string{"алгебра", "1", "Матрицы", "-", "-"}

	for stop := 0; stop <= len(answers); stop++ {
		e := newTestEngine()
		e.Begin("u1", KindAddDocument)

		for i := 0; i < stop; i++ {
			if res := e.Advance("u1", text(answers[i])); res.Status != StatusPrompt {
				t.Fatalf("step %d: unexpected status %v", i, res.Status)
			}
		}

		res := e.Advance("u1", text("отмена"))
		if res.Status != StatusCancelled {
			t.Fatalf("cancel at step %d: expected cancelled, got %v", stop, res.Status)
		}
		if e.Active("u1") {
			t.Fatalf("cancel at step %d: state must be cleared", stop)
		}
	}
}

func TestValidationErrorKeepsStep(t *testing.T) {
	e := newTestEngine()
	e.Begin("u1", KindAddDocument)

	res := e.Advance("u1", text("   "))
	if res.Status != StatusPrompt {
		t.Fatalf("expected re-prompt, got %v", res.Status)
	}
	if res.State.StepIndex != 0 {
		t.Fatalf("step index must not advance on validation error, got %d", res.State.StepIndex)
	}

	// Валидный ответ после ошибки продвигает диалог.
	res = e.Advance("u1", text("физика"))
	if res.State.StepIndex != 1 || res.State.Subject != "физика" {
		t.Fatalf("expected advance to group step, got %+v", res.State)
	}
}

func TestNumberStepValidation(t *testing.T) {
	e := newTestEngine()
	e.Begin("u1", KindAddDocument)
	e.Advance("u1", text("алгебра"))
	e.Advance("u1", text("1"))
	e.Advance("u1", text("-"))

	res := e.Advance("u1", text("abc"))
	if res.State.StepIndex != 3 {
		t.Fatalf("non-numeric number must re-prompt, got step %d", res.State.StepIndex)
	}
	res = e.Advance("u1", text("0"))
	if res.State.StepIndex != 3 {
		t.Fatalf("zero number must re-prompt, got step %d", res.State.StepIndex)
	}

	res = e.Advance("u1", text("-"))
	if res.State.StepIndex != 4 || res.State.Number != 0 {
		t.Fatalf("skip token must set auto number, got %+v", res.State)
	}
}

func TestDocumentStepRejectsNonPDF(t *testing.T) {
	e := newTestEngine()
	e.Begin("u1", KindAddDocument)
	for _, answer := range []string{"алгебра", "1", "-", "-", "-"} {
		e.Advance("u1", text(answer))
	}

	res := e.Advance("u1", text("вот файл"))
	if res.Status != StatusPrompt {
		t.Fatalf("text without media must re-prompt, got %v", res.Status)
	}

	res = e.Advance("u1", Input{HasMedia: true, MediaType: "image", MessageID: "m1"})
	if res.Status != StatusPrompt {
		t.Fatalf("non-document media must re-prompt, got %v", res.Status)
	}

	res = e.Advance("u1", Input{HasMedia: true, MediaType: "document", MimeType: "application/zip", Filename: "a.zip"})
	if res.Status != StatusPrompt {
		t.Fatalf("non-pdf document must re-prompt, got %v", res.Status)
	}

	res = e.Advance("u1", Input{HasMedia: true, MediaType: "document", Filename: "a.PDF", MessageID: "m2"})
	if res.Status != StatusCompleted {
		t.Fatalf("pdf by filename extension must complete, got %v reply %q", res.Status, res.Reply)
	}
}

func collectImagesTo(t *testing.T, e *Engine, userID string) {
	t.Helper()
	e.Begin(userID, KindAddImages)
	for _, answer := range []string{"алгебра", "1", "-", "-", "-"} {
		if res := e.Advance(userID, text(answer)); res.Status != StatusPrompt {
			t.Fatalf("answer %q: unexpected status %v", answer, res.Status)
		}
	}
}

func TestImageCollectCapAndFinish(t *testing.T) {
	e := newTestEngine()
	collectImagesTo(t, e, "u1")

	for i := 1; i <= 10; i++ {
		res := e.Advance("u1", image(fmt.Sprintf("img%d", i)))
		if res.Status != StatusPrompt {
			t.Fatalf("image %d: unexpected status %v", i, res.Status)
		}
	}

	// Одиннадцатое изображение отвергается, но диалог жив.
	res := e.Advance("u1", image("img11"))
	if res.Status != StatusPrompt || len(res.State.ImageMessageIDs) != 10 {
		t.Fatalf("11th image must be rejected keeping 10, got %v / %d", res.Status, len(res.State.ImageMessageIDs))
	}

	res = e.Advance("u1", text("finish"))
	if res.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", res.Status)
	}
	if len(res.State.ImageMessageIDs) != 10 || res.State.ImageMessageIDs[0] != "img1" {
		t.Fatalf("unexpected collected ids: %v", res.State.ImageMessageIDs)
	}
}

func TestFinishWithoutImagesCancels(t *testing.T) {
	e := newTestEngine()
	collectImagesTo(t, e, "u1")

	res := e.Advance("u1", text("готово"))
	if res.Status != StatusCancelled {
		t.Fatalf("finish with zero images must cancel, got %v", res.Status)
	}
	if e.Active("u1") {
		t.Fatalf("state must be cleared")
	}
}

func TestImageWindowExpiry(t *testing.T) {
	e := newTestEngine()
	collectImagesTo(t, e, "u1")

	e.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	res := e.Advance("u1", image("late"))
	if res.Status != StatusCancelled {
		t.Fatalf("expired empty window must cancel, got %v", res.Status)
	}
}

func TestImageWindowDoesNotExpireAfterFirstImage(t *testing.T) {
	e := newTestEngine()
	collectImagesTo(t, e, "u1")
	e.Advance("u1", image("img1"))

	e.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	res := e.Advance("u1", image("img2"))
	if res.Status != StatusPrompt || len(res.State.ImageMessageIDs) != 2 {
		t.Fatalf("window must not expire once collecting started, got %v", res.Status)
	}
}

func TestSelectDialog(t *testing.T) {
	e := newTestEngine()
	candidates := []string{"k1", "k2", "k3"}
	e.BeginSelect("u1", candidates)

	// Снимок не зависит от последующих изменений исходного списка.
	candidates[0] = "mutated"

	res := e.Advance("u1", text("99"))
	if res.Status != StatusPrompt {
		t.Fatalf("out of range selection must re-prompt, got %v", res.Status)
	}
	res = e.Advance("u1", text("abc"))
	if res.Status != StatusPrompt {
		t.Fatalf("non-numeric selection must re-prompt, got %v", res.Status)
	}

	res = e.Advance("u1", text(" 1 "))
	if res.Status != StatusCompleted || res.State.SelectedKey != "k1" {
		t.Fatalf("expected k1 selected, got %v / %q", res.Status, res.State.SelectedKey)
	}
}

func TestSearchDialog(t *testing.T) {
	e := newTestEngine()
	e.Begin("u1", KindSearch)

	res := e.Advance("u1", text("  "))
	if res.Status != StatusPrompt {
		t.Fatalf("empty query must re-prompt, got %v", res.Status)
	}

	res = e.Advance("u1", text("алгебра"))
	if res.Status != StatusCompleted || res.State.Query != "алгебра" {
		t.Fatalf("expected completed search, got %v / %q", res.Status, res.State.Query)
	}
}

func TestBeginReplacesExistingDialog(t *testing.T) {
	e := newTestEngine()
	e.Begin("u1", KindAddDocument)
	e.Advance("u1", text("алгебра"))

	e.Begin("u1", KindSearch)
	res := e.Advance("u1", text("физика"))
	if res.Status != StatusCompleted || res.State.Kind != KindSearch {
		t.Fatalf("new dialog must replace old one, got %v / %v", res.Status, res.State.Kind)
	}
}
