package groups

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/irizigit/whatsapbootirizi/internal/wweb"
	"log/slog"
)

// fakeClient покрывает только операции, которые использует Service.
type fakeClient struct {
	selfID           string
	chats            []wweb.Chat
	participants     map[string][]wweb.Participant
	participantCalls int
	sent             []string
	lockedCalls      []bool
	chatErr          error
	readOnly         bool
}

func (f *fakeClient) SendMessage(ctx context.Context, chatID, text string) error {
	f.sent = append(f.sent, chatID)
	return nil
}

func (f *fakeClient) SendDocument(ctx context.Context, chatID string, media wweb.Media, caption string) (string, error) {
	return "", nil
}

func (f *fakeClient) SendImage(ctx context.Context, chatID string, media wweb.Media, caption string) (string, error) {
	return "", nil
}

func (f *fakeClient) ForwardMessage(ctx context.Context, chatID, messageID string) error {
	return nil
}

func (f *fakeClient) DownloadMedia(ctx context.Context, messageID string) (wweb.Media, error) {
	return wweb.Media{}, nil
}

func (f *fakeClient) GetChat(ctx context.Context, chatID string) (wweb.Chat, error) {
	if f.chatErr != nil {
		return wweb.Chat{}, f.chatErr
	}
	return wweb.Chat{ID: chatID, IsGroup: true, IsReadOnly: f.readOnly}, nil
}

func (f *fakeClient) GetGroups(ctx context.Context) ([]wweb.Chat, error) {
	return f.chats, nil
}

func (f *fakeClient) GetParticipants(ctx context.Context, chatID string) ([]wweb.Participant, error) {
	f.participantCalls++
	parts, ok := f.participants[chatID]
	if !ok {
		return nil, fmt.Errorf("unknown group %s", chatID)
	}
	return parts, nil
}

func (f *fakeClient) SetGroupLocked(ctx context.Context, chatID string, locked bool) error {
	f.lockedCalls = append(f.lockedCalls, locked)
	return nil
}

func (f *fakeClient) React(ctx context.Context, messageID, emoji string) error { return nil }

func (f *fakeClient) GetSelfID(ctx context.Context) (string, error) {
	return f.selfID, nil
}

func newTestService(client *fakeClient) *Service {
	return NewService(ServiceConfig{
		Client:        client,
		OwnerID:       "owner@c.us",
		AdminCacheTTL: time.Minute,
		Logger:        slog.New(slog.NewTextHandler(os.Stdout, nil)),
	})
}

func TestBootstrapPicksFirstGroup(t *testing.T) {
	client := &fakeClient{
		selfID: "bot@c.us",
		chats: []wweb.Chat{
			{ID: "g1@g.us", Name: "Первая"},
			{ID: "g2@g.us", Name: "Вторая"},
		},
	}
	svc := newTestService(client)

	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	groupID, ok := svc.DefaultGroup()
	if !ok || groupID != "g1@g.us" {
		t.Fatalf("expected g1 as default, got %q", groupID)
	}
}

func TestRememberOverridesDefaultGroup(t *testing.T) {
	svc := newTestService(&fakeClient{})

	if _, ok := svc.DefaultGroup(); ok {
		t.Fatalf("fresh service must have no default group")
	}

	svc.Remember("g9@g.us", "Новая")
	if groupID, ok := svc.DefaultGroup(); !ok || groupID != "g9@g.us" {
		t.Fatalf("expected g9 as default, got %q", groupID)
	}
}

func TestIsAdminUsesParticipantCache(t *testing.T) {
	client := &fakeClient{
		participants: map[string][]wweb.Participant{
			"g1@g.us": {
				{ID: "admin@c.us", IsAdmin: true},
				{ID: "user@c.us"},
			},
		},
	}
	svc := newTestService(client)
	ctx := context.Background()

	if !svc.IsAdmin(ctx, "admin@c.us", "g1@g.us") {
		t.Fatalf("expected admin")
	}
	if svc.IsAdmin(ctx, "user@c.us", "g1@g.us") {
		t.Fatalf("plain member must not be admin")
	}
	if svc.IsAdmin(ctx, "ghost@c.us", "g1@g.us") {
		t.Fatalf("unknown member must not be admin")
	}

	if client.participantCalls != 1 {
		t.Fatalf("participants must be cached, got %d calls", client.participantCalls)
	}
}

func TestIsAdminFalseOnLookupError(t *testing.T) {
	svc := newTestService(&fakeClient{})

	if svc.IsAdmin(context.Background(), "admin@c.us", "unknown@g.us") {
		t.Fatalf("lookup error must be treated as no rights")
	}
}

func TestSetLockedRequiresBotAdmin(t *testing.T) {
	client := &fakeClient{
		selfID: "bot@c.us",
		chats:  []wweb.Chat{{ID: "g1@g.us"}},
		participants: map[string][]wweb.Participant{
			"g1@g.us": {{ID: "bot@c.us"}},
		},
	}
	svc := newTestService(client)
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	err := svc.SetLocked(context.Background(), "g1@g.us", true)
	if !errors.Is(err, ErrBotNotAdmin) {
		t.Fatalf("expected ErrBotNotAdmin, got %v", err)
	}
	if len(client.lockedCalls) != 0 {
		t.Fatalf("bridge must not be called without admin rights")
	}
}

func TestSetDefaultLockedWithoutGroup(t *testing.T) {
	svc := newTestService(&fakeClient{})

	err := svc.SetDefaultLocked(context.Background(), true)
	if !errors.Is(err, ErrNoDefaultGroup) {
		t.Fatalf("expected ErrNoDefaultGroup, got %v", err)
	}
}

func TestSetDefaultLockedTogglesGroup(t *testing.T) {
	client := &fakeClient{
		selfID: "bot@c.us",
		chats:  []wweb.Chat{{ID: "g1@g.us"}},
		participants: map[string][]wweb.Participant{
			"g1@g.us": {{ID: "bot@c.us", IsAdmin: true}},
		},
	}
	svc := newTestService(client)
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if err := svc.SetDefaultLocked(context.Background(), true); err != nil {
		t.Fatalf("set default locked: %v", err)
	}
	if len(client.lockedCalls) != 1 || client.lockedCalls[0] != true {
		t.Fatalf("expected one lock call, got %v", client.lockedCalls)
	}
}

func TestNotifyAdminsFallsBackToOwner(t *testing.T) {
	client := &fakeClient{}
	svc := newTestService(client)

	svc.NotifyAdmins(context.Background(), "тест")

	if len(client.sent) != 1 || client.sent[0] != "owner@c.us" {
		t.Fatalf("expected owner DM, got %v", client.sent)
	}
}

func TestNotifyAdminsMessagesEachAdmin(t *testing.T) {
	client := &fakeClient{
		participants: map[string][]wweb.Participant{
			"g1@g.us": {
				{ID: "a1@c.us", IsAdmin: true},
				{ID: "a2@c.us", IsSuperAdmin: true},
				{ID: "user@c.us"},
			},
		},
	}
	svc := newTestService(client)
	svc.Remember("g1@g.us", "Лекции")

	svc.NotifyAdmins(context.Background(), "тест")

	if len(client.sent) != 2 {
		t.Fatalf("expected 2 admin DMs, got %v", client.sent)
	}
}

func TestBroadcastSkipsGroupsWithoutBotAdmin(t *testing.T) {
	client := &fakeClient{
		selfID: "bot@c.us",
		chats: []wweb.Chat{
			{ID: "g1@g.us", Name: "Первая"},
			{ID: "g2@g.us", Name: "Вторая"},
		},
		participants: map[string][]wweb.Participant{
			"g1@g.us": {{ID: "bot@c.us", IsAdmin: true}},
			"g2@g.us": {{ID: "bot@c.us"}},
		},
	}
	svc := newTestService(client)
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	svc.Broadcast(context.Background(), "🎉")

	if len(client.sent) != 1 || client.sent[0] != "g1@g.us" {
		t.Fatalf("broadcast must reach only admin groups, got %v", client.sent)
	}
}

func TestIsLockedReflectsChatState(t *testing.T) {
	client := &fakeClient{readOnly: true}
	svc := newTestService(client)

	locked, err := svc.IsLocked(context.Background(), "g1@g.us")
	if err != nil || !locked {
		t.Fatalf("expected locked=true, got %v / %v", locked, err)
	}

	client.chatErr = errors.New("bridge down")
	if _, err := svc.IsLocked(context.Background(), "g1@g.us"); err == nil {
		t.Fatalf("expected error from bridge")
	}
}
