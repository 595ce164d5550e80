package wweb

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/irizigit/whatsapbootirizi/internal/httpserver"
	"log/slog"
)

// Dispatcher обрабатывает события моста. Реализуется пакетом bot.
type Dispatcher interface {
	HandleMessage(ctx context.Context, msg *Message)
	HandleGroupJoin(ctx context.Context, groupID string, groupName string)
	HandleGroupLeave(ctx context.Context, groupID string)
}

type WebhookDeps struct {
	Dispatcher    Dispatcher
	Logger        *slog.Logger
	WebhookSecret string
}

type WebhookHandler struct {
	dispatcher    Dispatcher
	logger        *slog.Logger
	webhookSecret string
}

func NewWebhookHandler(deps WebhookDeps) *WebhookHandler {
	return &WebhookHandler{
		dispatcher:    deps.Dispatcher,
		logger:        deps.Logger,
		webhookSecret: deps.WebhookSecret,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret != "" {
		if secret := r.Header.Get("X-Bridge-Secret"); secret != h.webhookSecret {
			httpserver.WriteJSONError(w, http.StatusForbidden, "forbidden", "invalid webhook secret")
			return
		}
	}

	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		httpserver.WriteJSONError(w, http.StatusBadRequest, "bad_request", "cannot parse event")
		return
	}

	ctx := r.Context()
	switch ev.Type {
	case "message":
		if ev.Message == nil || ev.Message.ChatID == "" {
			// Мост иногда присылает служебные события без сообщения.
			break
		}
		h.dispatcher.HandleMessage(ctx, ev.Message)
	case "group_join":
		if ev.GroupID != "" {
			h.dispatcher.HandleGroupJoin(ctx, ev.GroupID, ev.GroupName)
		}
	case "group_leave":
		if ev.GroupID != "" {
			h.dispatcher.HandleGroupLeave(ctx, ev.GroupID)
		}
	default:
		h.logger.Debug("unknown bridge event", slog.String("type", ev.Type))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true}`))
}
