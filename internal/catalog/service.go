package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/irizigit/whatsapbootirizi/internal/wweb"
	"log/slog"

	"github.com/google/uuid"
)

// Archiver пересылает изображение в чат-архив и возвращает идентификатор
// получившегося сообщения.
type Archiver interface {
	ArchiveImage(ctx context.Context, media wweb.Media, caption string) (string, error)
}

// Announcer рассылает уведомления администраторам и во все группы бота.
type Announcer interface {
	NotifyAdmins(ctx context.Context, text string)
	Broadcast(ctx context.Context, text string)
}

// ContributionCounter учитывает добавленные пользователем лекции и
// возвращает его накопленный счётчик.
type ContributionCounter interface {
	RecordContribution(userID string) (int, error)
}

// Meta — поля, собранные диалогом добавления лекции.
type Meta struct {
	Subject     string
	Group       string
	LectureName string
	// Number — номер лекции; 0 означает "вычислить автоматически".
	Number     int
	Professor  string
	Caption    string
	UploadedBy string
}

type ServiceConfig struct {
	Store         Store
	Archiver      Archiver
	Announcer     Announcer
	Contributions ContributionCounter
	DataDir       string
	ImageCap      int
	Logger        *slog.Logger
}

// Service реализует операции каталога: добавление, список, фильтр, поиск.
type Service struct {
	store         Store
	archiver      Archiver
	announcer     Announcer
	contributions ContributionCounter
	dataDir       string
	imageCap      int
	logger        *slog.Logger
	now           func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:         cfg.Store,
		archiver:      cfg.Archiver,
		announcer:     cfg.Announcer,
		contributions: cfg.Contributions,
		dataDir:       cfg.DataDir,
		imageCap:      cfg.ImageCap,
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

// AddDocument валидирует и сохраняет документ, пишет запись в каталог и
// возвращает её. Документ считается PDF, если об этом говорит хотя бы один
// из трёх признаков: MIME-тип, расширение имени файла, расширение в подписи.
func (s *Service) AddDocument(ctx context.Context, meta Meta, payload []byte, mimeType, filename string) (Record, error) {
	if !isPDF(mimeType, filename, meta.Caption) {
		return Record{}, fmt.Errorf("document %q (%s): %w", filename, mimeType, ErrInvalidContentType)
	}

	name := filename
	if name == "" {
		name = strings.TrimSpace(meta.Caption)
	}
	if name == "" {
		name = fmt.Sprintf("lecture_%d.pdf", s.store.Len()+1)
	}
	name = sanitizeFilename(name)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}

	uniqueName, err := uniqueFilename(s.dataDir, name)
	if err != nil {
		return Record{}, fmt.Errorf("pick unique filename: %w", err)
	}

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return Record{}, fmt.Errorf("create data dir: %w", err)
	}
	storagePath := filepath.Join(s.dataDir, uniqueName)
	if err := os.WriteFile(storagePath, payload, 0o644); err != nil {
		return Record{}, fmt.Errorf("write document: %w", err)
	}

	rec := s.buildRecord(meta, uniqueName, ContentDocument)
	rec.StoragePath = storagePath

	if err := s.store.Append(rec); err != nil {
		return Record{}, fmt.Errorf("append record: %w", err)
	}

	s.afterAdd(ctx, rec)
	return rec, nil
}

// AddImageSet пересылает изображения в архив по порядку и пишет запись с
// полученными ссылками. Пустой набор и набор больше лимита отклоняются.
func (s *Service) AddImageSet(ctx context.Context, meta Meta, images []wweb.Media) (Record, error) {
	if len(images) == 0 || len(images) > s.imageCap {
		return Record{}, fmt.Errorf("%d images (cap %d): %w", len(images), s.imageCap, ErrEmptyOrOversizedSet)
	}

	rec := s.buildRecord(meta, uuid.NewString(), ContentImageSet)

	refs := make([]string, 0, len(images))
	for i, img := range images {
		caption := fmt.Sprintf("%s\nизображение %d/%d", rec.DisplayName, i+1, len(images))
		ref, err := s.archiver.ArchiveImage(ctx, img, caption)
		if err != nil {
			return Record{}, fmt.Errorf("archive image %d: %w", i+1, err)
		}
		refs = append(refs, ref)
	}
	rec.ArchiveRefs = refs

	if err := s.store.Append(rec); err != nil {
		return Record{}, fmt.Errorf("append record: %w", err)
	}

	s.afterAdd(ctx, rec)
	return rec, nil
}

// List возвращает все записи в порядке добавления.
func (s *Service) List() []Record {
	return s.store.List()
}

// Filter возвращает записи, удовлетворяющие предикату, в порядке добавления.
func (s *Service) Filter(pred func(Record) bool) []Record {
	all := s.store.List()
	out := make([]Record, 0, len(all))
	for _, rec := range all {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// ByCategory возвращает записи указанной категории (без учёта регистра).
func (s *Service) ByCategory(category string) []Record {
	return s.Filter(func(r Record) bool {
		return strings.EqualFold(r.Category, category)
	})
}

// Search ищет подстроку в названии, описании, предмете и преподавателе.
func (s *Service) Search(query string) []Record {
	return s.Filter(func(r Record) bool {
		return r.Matches(query)
	})
}

func (s *Service) Get(key string) (Record, error) {
	rec, ok := s.store.Get(key)
	if !ok {
		return Record{}, fmt.Errorf("get %q: %w", key, ErrNotFound)
	}
	return rec, nil
}

func (s *Service) Len() int {
	return s.store.Len()
}

func (s *Service) buildRecord(meta Meta, key string, ct ContentType) Record {
	professor := strings.TrimSpace(meta.Professor)
	if professor == "" {
		professor = DefaultProfessor
	}

	number := meta.Number
	if number <= 0 {
		number = s.nextLectureNumber(meta.Subject, meta.Group)
	}

	lectureName := strings.TrimSpace(meta.LectureName)
	if lectureName == "" {
		lectureName = meta.Subject
	}

	category, description := splitCaption(meta.Caption)
	if category == "" {
		category = strings.TrimSpace(meta.Subject)
	}
	if category == "" {
		category = DefaultCategory
	}

	serial := fmt.Sprintf("%03d", s.store.Len()+1)
	displayName := fmt.Sprintf("%s - %s - %d - %s", serial, lectureName, number, professor)

	return Record{
		Key:           key,
		DisplayName:   displayName,
		Subject:       meta.Subject,
		Group:         meta.Group,
		LectureNumber: number,
		Professor:     professor,
		Category:      category,
		Description:   description,
		ContentType:   ct,
		UploadedBy:    meta.UploadedBy,
		CreatedAt:     s.now(),
	}
}

// nextLectureNumber — количество записей с той же парой (предмет, группа)
// плюс один. Даёт монотонный номер, начиная с 1.
func (s *Service) nextLectureNumber(subject, group string) int {
	count := 0
	for _, rec := range s.store.List() {
		if strings.EqualFold(rec.Subject, subject) && strings.EqualFold(rec.Group, group) {
			count++
		}
	}
	return count + 1
}

// afterAdd — побочные эффекты добавления: уведомление администраторов и
// поздравительная рассылка на каждом пятом вкладе пользователя.
func (s *Service) afterAdd(ctx context.Context, rec Record) {
	s.announcer.NotifyAdmins(ctx, fmt.Sprintf("📢 Новая лекция: *%s* (%s) от %s", rec.DisplayName, rec.ContentType, rec.UploadedBy))

	if s.contributions == nil || rec.UploadedBy == "" {
		return
	}
	count, err := s.contributions.RecordContribution(rec.UploadedBy)
	if err != nil {
		s.logger.Error("record contribution failed", slog.String("error", err.Error()), slog.String("user", rec.UploadedBy))
		return
	}
	if count%5 == 0 {
		s.announcer.Broadcast(ctx, fmt.Sprintf("🎉 Поздравляем %s: уже %d лекций в архиве! Спасибо за вклад! 🚀", rec.UploadedBy, count))
	}
}

// isPDF — документ принимается, если PDF подтверждает хотя бы один признак.
func isPDF(mimeType, filename, caption string) bool {
	if strings.Contains(strings.ToLower(mimeType), "application/pdf") {
		return true
	}
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(caption)), ".pdf")
}

// splitCaption разбирает подпись вида "категория: описание".
func splitCaption(caption string) (category, description string) {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return "", ""
	}
	before, after, found := strings.Cut(caption, ":")
	if !found {
		return "", caption
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}

var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}\s._-]`)

func sanitizeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// uniqueFilename подбирает свободное имя, добавляя числовой суффикс перед
// расширением, пока имя занято.
func uniqueFilename(dir, filename string) (string, error) {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	candidate := filename
	for counter := 1; ; counter++ {
		_, err := os.Stat(filepath.Join(dir, candidate))
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s_%d%s", base, counter, ext)
	}
}
