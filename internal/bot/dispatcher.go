package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/irizigit/whatsapbootirizi/internal/catalog"
	"github.com/irizigit/whatsapbootirizi/internal/dialog"
	"github.com/irizigit/whatsapbootirizi/internal/stats"
	"github.com/irizigit/whatsapbootirizi/internal/wweb"
	"log/slog"
)

const signature = "\n\n👨‍💻 *dev by: IRIZI 😊*"

// Transport — операции моста, которые нужны диспетчеру.
type Transport interface {
	SendMessage(ctx context.Context, chatID string, text string) error
	SendDocument(ctx context.Context, chatID string, media wweb.Media, caption string) (string, error)
	ForwardMessage(ctx context.Context, chatID string, messageID string) error
	DownloadMedia(ctx context.Context, messageID string) (wweb.Media, error)
	React(ctx context.Context, messageID string, emoji string) error
}

// Groups — реестр групп и проверки прав.
type Groups interface {
	IsAdmin(ctx context.Context, userID, groupID string) bool
	IsBotAdmin(ctx context.Context, groupID string) bool
	IsLocked(ctx context.Context, groupID string) (bool, error)
	SetLocked(ctx context.Context, groupID string, locked bool) error
	DefaultGroup() (string, bool)
	Remember(groupID, name string)
	OwnerID() string
}

// Catalog — операции каталога лекций.
type Catalog interface {
	AddDocument(ctx context.Context, meta catalog.Meta, payload []byte, mimeType, filename string) (catalog.Record, error)
	AddImageSet(ctx context.Context, meta catalog.Meta, images []wweb.Media) (catalog.Record, error)
	List() []catalog.Record
	ByCategory(category string) []catalog.Record
	Search(query string) []catalog.Record
	Get(key string) (catalog.Record, error)
	Len() int
}

// Stats — счётчики использования.
type Stats interface {
	RecordRequest()
	RecordMessage(groupID string)
	RecordJoin(groupID string)
	RecordLeave(groupID string)
	Snapshot() stats.Snapshot
}

type DispatcherDeps struct {
	Transport Transport
	Groups    Groups
	Catalog   Catalog
	Engine    *dialog.Engine
	Stats     Stats
	Logger    *slog.Logger
}

// Dispatcher разбирает входящие сообщения: активный диалог, таблица команд,
// затем фильтр закрытой группы. Сообщения одного пользователя обрабатываются
// строго по очереди (keyed mutex), разные пользователи — параллельно.
type Dispatcher struct {
	transport Transport
	groups    Groups
	catalog   Catalog
	engine    *dialog.Engine
	stats     Stats
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		transport: deps.Transport,
		groups:    deps.Groups,
		catalog:   deps.Catalog,
		engine:    deps.Engine,
		stats:     deps.Stats,
		logger:    deps.Logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// HandleGroupJoin запоминает группу как группу по умолчанию.
func (d *Dispatcher) HandleGroupJoin(ctx context.Context, groupID, groupName string) {
	d.groups.Remember(groupID, groupName)
	d.stats.RecordJoin(groupID)
	d.logger.Info("joined group", slog.String("group", groupID), slog.String("name", groupName))
}

// HandleGroupLeave учитывает выход из группы.
func (d *Dispatcher) HandleGroupLeave(ctx context.Context, groupID string) {
	d.stats.RecordLeave(groupID)
	d.logger.Info("left group", slog.String("group", groupID))
}

// HandleMessage обрабатывает одно входящее сообщение до конца.
// Любая паника конвертируется в извинение пользователю: процесс не падает
// из-за одного сообщения.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *wweb.Message) {
	isGroup := wweb.IsGroupID(msg.ChatID)

	userID := msg.ChatID
	if isGroup {
		userID = msg.Author
	}
	if userID == "" {
		d.logger.Warn("message without sender", slog.String("chat", msg.ChatID))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic in message handler", slog.Any("error", rec), slog.String("user", userID))
			d.reply(ctx, msg.ChatID, "⚠️ Произошла ошибка, попробуйте позже!")
		}
	}()

	lock := d.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if isGroup {
		d.stats.RecordMessage(msg.ChatID)
	}

	activeGroup := msg.ChatID
	if !isGroup {
		activeGroup, _ = d.groups.DefaultGroup()
	}

	text := strings.TrimSpace(msg.Body)
	lower := strings.ToLower(text)

	// Команды управления группой доступны даже посреди диалога, но только
	// тем, кому они разрешены: для остальных это обычный текст.
	if isGateCommand(lower) && d.canGate(ctx, msg.ChatID, userID, isGroup) {
		d.handleGate(ctx, msg, activeGroup, lower == cmdCloseGroup)
		return
	}

	if d.engine.Active(userID) {
		d.advanceDialogue(ctx, msg, userID)
		return
	}

	// Закрытая группа: сообщения не-администраторов молча игнорируются.
	if isGroup {
		locked, err := d.groups.IsLocked(ctx, msg.ChatID)
		if err != nil {
			d.logger.Error("group lock check failed", slog.String("group", msg.ChatID), slog.String("error", err.Error()))
		} else if locked && !d.groups.IsAdmin(ctx, userID, msg.ChatID) {
			d.logger.Debug("dropped message in locked group", slog.String("user", userID))
			return
		}
	}

	d.dispatchCommand(ctx, msg, userID, isGroup, activeGroup, text, lower)
}

const (
	cmdCloseGroup = "close group"
	cmdOpenGroup  = "open group"
)

func isGateCommand(lower string) bool {
	return lower == cmdCloseGroup || lower == cmdOpenGroup
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, msg *wweb.Message, userID string, isGroup bool, activeGroup, text, lower string) {
	switch {
	case lower == "help" || lower == "!help" || lower == "commands":
		d.reply(ctx, msg.ChatID, helpText)

	case lower == "lectures" || lower == "pdf":
		d.sendList(ctx, msg.ChatID, userID, d.catalog.List(), "📚 *Список лекций:*")

	case strings.HasPrefix(lower, "lectures "):
		category := strings.TrimSpace(text[len("lectures "):])
		d.sendList(ctx, msg.ChatID, userID, d.catalog.ByCategory(category),
			fmt.Sprintf("📚 *Лекции в категории «%s»:*", category))

	case lower == "search":
		prompt := d.engine.Begin(userID, dialog.KindSearch)
		d.reply(ctx, msg.ChatID, prompt)

	case lower == "add pdf":
		prompt := d.engine.Begin(userID, dialog.KindAddDocument)
		d.reply(ctx, msg.ChatID, "📎 *Добавление PDF-лекции!*\n"+prompt)

	case lower == "add images":
		prompt := d.engine.Begin(userID, dialog.KindAddImages)
		d.reply(ctx, msg.ChatID, "📸 *Добавление лекции из изображений!*\n"+prompt)

	case lower == "stats":
		d.reply(ctx, msg.ChatID, d.statsText(ctx, activeGroup))

	case lower == "id":
		if isGroup {
			d.reply(ctx, msg.ChatID, "🆔 Идентификатор группы: "+msg.ChatID)
		}

	default:
		// Обычный разговор — не наше дело.
	}
}

// canGate: из личного чата команды управления доступны только владельцу,
// из группы — её администраторам.
func (d *Dispatcher) canGate(ctx context.Context, chatID, userID string, isGroup bool) bool {
	if isGroup {
		return d.groups.IsAdmin(ctx, userID, chatID)
	}
	return userID == d.groups.OwnerID()
}

// handleGate выполняет закрытие/открытие группы.
func (d *Dispatcher) handleGate(ctx context.Context, msg *wweb.Message, activeGroup string, lock bool) {
	if activeGroup == "" {
		d.reply(ctx, msg.ChatID, "⚠️ Группа ещё не определена.")
		return
	}

	if !d.groups.IsBotAdmin(ctx, activeGroup) {
		d.reply(ctx, msg.ChatID, "⚠️ Я не администратор в этой группе, переключить режим не могу.")
		return
	}

	if current, err := d.groups.IsLocked(ctx, activeGroup); err == nil && current == lock {
		if lock {
			d.reply(ctx, msg.ChatID, "🌙 Группа уже закрыта.")
		} else {
			d.reply(ctx, msg.ChatID, "☀️ Группа уже открыта.")
		}
		return
	}

	if err := d.groups.SetLocked(ctx, activeGroup, lock); err != nil {
		d.logger.Error("gate toggle failed", slog.String("group", activeGroup), slog.String("error", err.Error()))
		d.reply(ctx, msg.ChatID, "⚠️ Не получилось переключить группу, попробуйте позже.")
		return
	}

	if lock {
		d.reply(ctx, msg.ChatID, "🚫 Группа закрыта: писать могут только администраторы.")
	} else {
		d.reply(ctx, msg.ChatID, "✅ Группа открыта для всех.")
	}
}

func (d *Dispatcher) userLock(userID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[userID] = lock
	}
	return lock
}

func (d *Dispatcher) reply(ctx context.Context, chatID, text string) {
	if err := d.transport.SendMessage(ctx, chatID, text+signature); err != nil {
		d.logger.Error("send reply failed", slog.String("chat", chatID), slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) react(ctx context.Context, messageID, emoji string) {
	if err := d.transport.React(ctx, messageID, emoji); err != nil {
		d.logger.Debug("react failed", slog.String("message", messageID), slog.String("error", err.Error()))
	}
}

// advanceDialogue передаёт сообщение движку и выполняет эффекты завершения.
func (d *Dispatcher) advanceDialogue(ctx context.Context, msg *wweb.Message, userID string) {
	in := dialog.Input{
		Text:      msg.Body,
		HasMedia:  msg.HasMedia,
		MediaType: msg.MediaType,
		MimeType:  msg.MimeType,
		Filename:  msg.Filename,
		MessageID: msg.ID,
	}

	res := d.engine.Advance(userID, in)
	switch res.Status {
	case dialog.StatusPrompt:
		d.reply(ctx, msg.ChatID, res.Reply)
	case dialog.StatusCancelled:
		d.react(ctx, msg.ID, "❌")
		d.reply(ctx, msg.ChatID, res.Reply)
	case dialog.StatusCompleted:
		d.completeDialogue(ctx, msg, userID, res.State)
	}
}

func (d *Dispatcher) completeDialogue(ctx context.Context, msg *wweb.Message, userID string, st *dialog.State) {
	switch st.Kind {
	case dialog.KindAddDocument:
		d.finishAddDocument(ctx, msg, userID, st)
	case dialog.KindAddImages:
		d.finishAddImages(ctx, msg, userID, st)
	case dialog.KindSearch:
		d.sendList(ctx, msg.ChatID, userID, d.catalog.Search(st.Query),
			fmt.Sprintf("📚 *Результаты поиска «%s»:*", st.Query))
	case dialog.KindSelect:
		d.deliver(ctx, msg, userID, st.SelectedKey)
	}
}

func (d *Dispatcher) finishAddDocument(ctx context.Context, msg *wweb.Message, userID string, st *dialog.State) {
	media, err := d.transport.DownloadMedia(ctx, st.DocumentMessageID)
	if err != nil {
		d.logger.Error("download document failed", slog.String("message", st.DocumentMessageID), slog.String("error", err.Error()))
		d.reply(ctx, msg.ChatID, "❌ Не удалось скачать файл, попробуйте позже.")
		return
	}

	meta := metaFromState(st, userID)
	filename := st.DocumentFilename
	if filename == "" {
		filename = media.Filename
	}

	rec, err := d.catalog.AddDocument(ctx, meta, media.Data, media.MimeType, filename)
	if err != nil {
		d.replyAddError(ctx, msg.ChatID, err)
		return
	}

	d.react(ctx, msg.ID, "✅")
	d.reply(ctx, msg.ChatID, addedSummary(rec))
}

func (d *Dispatcher) finishAddImages(ctx context.Context, msg *wweb.Message, userID string, st *dialog.State) {
	images := make([]wweb.Media, 0, len(st.ImageMessageIDs))
	for _, id := range st.ImageMessageIDs {
		media, err := d.transport.DownloadMedia(ctx, id)
		if err != nil {
			d.logger.Error("download image failed", slog.String("message", id), slog.String("error", err.Error()))
			d.reply(ctx, msg.ChatID, "❌ Не удалось скачать изображения, попробуйте позже.")
			return
		}
		images = append(images, media)
	}

	rec, err := d.catalog.AddImageSet(ctx, metaFromState(st, userID), images)
	if err != nil {
		d.replyAddError(ctx, msg.ChatID, err)
		return
	}

	d.react(ctx, msg.ID, "✅")
	d.reply(ctx, msg.ChatID, addedSummary(rec))
}

func (d *Dispatcher) replyAddError(ctx context.Context, chatID string, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidContentType):
		d.reply(ctx, chatID, "❌ Файл не является PDF-документом, лекция не сохранена.")
	case errors.Is(err, catalog.ErrEmptyOrOversizedSet):
		d.reply(ctx, chatID, "❌ Недопустимое количество изображений, лекция не сохранена.")
	default:
		d.logger.Error("catalog add failed", slog.String("error", err.Error()))
		d.reply(ctx, chatID, "❌ Не удалось сохранить лекцию, попробуйте позже.")
	}
}

// sendList показывает нумерованный список и открывает диалог выбора по нему.
// Нумерация в ответе пользователя ссылается именно на этот снимок списка.
func (d *Dispatcher) sendList(ctx context.Context, chatID, userID string, records []catalog.Record, header string) {
	if len(records) == 0 {
		d.reply(ctx, chatID, "📂 Лекций пока нет.")
		return
	}

	keys := make([]string, len(records))
	var b strings.Builder
	b.WriteString(header + "\n")
	for i, rec := range records {
		keys[i] = rec.Key
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, rec.DisplayName, rec.ContentType)
	}
	fmt.Fprintf(&b, "\n✉️ Отправьте номер лекции (например: 1).")

	d.engine.BeginSelect(userID, keys)
	d.reply(ctx, chatID, b.String())
}

// deliver отправляет выбранную лекцию запросившему в личный чат.
func (d *Dispatcher) deliver(ctx context.Context, msg *wweb.Message, userID, key string) {
	rec, err := d.catalog.Get(key)
	if err != nil {
		d.logger.Error("selected record missing", slog.String("key", key), slog.String("error", err.Error()))
		d.reply(ctx, msg.ChatID, "❌ Лекция больше недоступна, обратитесь к администратору.")
		return
	}

	caption := recordCaption(rec)

	switch rec.ContentType {
	case catalog.ContentDocument:
		payload, err := os.ReadFile(rec.StoragePath)
		if err != nil {
			d.logger.Error("read stored document failed", slog.String("path", rec.StoragePath), slog.String("error", err.Error()))
			d.reply(ctx, msg.ChatID, "❌ Файл сейчас недоступен, попробуйте позже.")
			return
		}
		media := wweb.Media{Data: payload, MimeType: "application/pdf", Filename: rec.Key}
		if _, err := d.transport.SendDocument(ctx, userID, media, caption+signature); err != nil {
			d.logger.Error("send document failed", slog.String("error", err.Error()))
			d.reply(ctx, msg.ChatID, "❌ Не удалось отправить лекцию, попробуйте позже.")
			return
		}
	case catalog.ContentImageSet:
		for _, ref := range rec.ArchiveRefs {
			if err := d.transport.ForwardMessage(ctx, userID, ref); err != nil {
				d.logger.Error("forward image failed", slog.String("ref", ref), slog.String("error", err.Error()))
				d.reply(ctx, msg.ChatID, "❌ Не удалось переслать лекцию, попробуйте позже.")
				return
			}
		}
		d.reply(ctx, userID, caption)
	}

	d.stats.RecordRequest()
}

func metaFromState(st *dialog.State, userID string) catalog.Meta {
	return catalog.Meta{
		Subject:     st.Subject,
		Group:       st.Group,
		LectureName: st.LectureName,
		Number:      st.Number,
		Professor:   st.Professor,
		Caption:     st.DocumentCaption,
		UploadedBy:  userID,
	}
}
