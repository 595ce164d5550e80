package wweb

import "strings"

// Event — событие, которое мост WhatsApp Web доставляет на webhook.
type Event struct {
	Type      string   `json:"type"` // "message" | "group_join" | "group_leave"
	Message   *Message `json:"message,omitempty"`
	GroupID   string   `json:"group_id,omitempty"`
	GroupName string   `json:"group_name,omitempty"`
}

// Message — входящее сообщение. Body содержит текст либо подпись к вложению.
type Message struct {
	ID       string `json:"id"`
	ChatID   string `json:"chat_id"`
	Author   string `json:"author,omitempty"` // заполнен только в группах
	Body     string `json:"body"`
	HasMedia bool   `json:"has_media"`
	// MediaType различает вложения: "document", "image" или пусто.
	MediaType string `json:"media_type,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

type Chat struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsGroup    bool   `json:"is_group"`
	IsReadOnly bool   `json:"is_read_only"`
}

type Participant struct {
	ID           string `json:"id"`
	IsAdmin      bool   `json:"is_admin"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

// Media — скачанное вложение.
type Media struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
}

// IsGroupID сообщает, указывает ли идентификатор чата на группу.
func IsGroupID(chatID string) bool {
	return strings.HasSuffix(chatID, "@g.us")
}
