package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/irizigit/whatsapbootirizi/internal/catalog"
)

const helpText = `🤖 *Архив лекций — команды:*

📚 lectures — список всех лекций
📚 lectures <категория> — лекции одной категории
🔍 search — поиск по названию, предмету или преподавателю
📎 add pdf — добавить лекцию в формате PDF
📸 add images — добавить лекцию из изображений
📊 stats — статистика бота
🆔 id — идентификатор группы (только в группе)

🔧 *Для администраторов:*
🚫 close group — закрыть группу
✅ open group — открыть группу

✋ В любом диалоге напишите «cancel», чтобы выйти.`

func (d *Dispatcher) statsText(ctx context.Context, activeGroup string) string {
	snap := d.stats.Snapshot()

	contributions := 0
	for _, n := range snap.Lectures {
		contributions += n
	}

	state := "неизвестно"
	if activeGroup != "" {
		if locked, err := d.groups.IsLocked(ctx, activeGroup); err == nil {
			if locked {
				state = "🌙 закрыта"
			} else {
				state = "☀️ открыта"
			}
		}
	}

	var b strings.Builder
	b.WriteString("📊 *Статистика бота:*\n")
	fmt.Fprintf(&b, "📚 Лекций в архиве: %d\n", d.catalog.Len())
	fmt.Fprintf(&b, "📥 Загрузок от участников: %d\n", contributions)
	fmt.Fprintf(&b, "📤 Выдано лекций: %d\n", snap.Requests)
	fmt.Fprintf(&b, "🏠 Состояние группы: %s", state)
	return b.String()
}

func addedSummary(rec catalog.Record) string {
	var b strings.Builder
	b.WriteString("✅ *Лекция сохранена!*\n")
	fmt.Fprintf(&b, "📖 Название: %s\n", rec.DisplayName)
	fmt.Fprintf(&b, "📚 Предмет: %s\n", rec.Subject)
	fmt.Fprintf(&b, "👥 Группа: %s\n", rec.Group)
	fmt.Fprintf(&b, "🔢 Номер: %d\n", rec.LectureNumber)
	fmt.Fprintf(&b, "👨‍🏫 Преподаватель: %s", rec.Professor)
	return b.String()
}

func recordCaption(rec catalog.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📖 %s\n", rec.DisplayName)
	fmt.Fprintf(&b, "📚 Предмет: %s\n", rec.Subject)
	fmt.Fprintf(&b, "👥 Группа: %s\n", rec.Group)
	fmt.Fprintf(&b, "👨‍🏫 Преподаватель: %s", rec.Professor)
	if rec.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s", rec.Description)
	}
	return b.String()
}
