package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"courier/internal/config"
	"courier/internal/notifications"
	"courier/internal/queue"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, captured *[]capturedRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		*captured = append(*captured, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func deadItem() *queue.Item {
	return &queue.Item{
		ID:           "01JTESTDEADITEM0000000000",
		TaskType:     queue.TaskSkillInvocation,
		Status:       queue.StatusDead,
		AttemptCount: 3,
		MaxAttempts:  3,
		LastError:    "skill_invocation: gateway down",
		UserID:       "u1",
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyItemDead(context.Background(), deadItem()); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("expected nil config to yield noop, got %v", err)
	}
}

func TestNotifyItemDeadFormatsPayload(t *testing.T) {
	var captured []capturedRequest
	server := newCaptureServer(t, &captured)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.DeadLetter = true
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyItemDead(context.Background(), deadItem()); err != nil {
		t.Fatalf("NotifyItemDead: %v", err)
	}
	if len(captured) != 1 {
		t.Fatalf("expected 1 request, got %d", len(captured))
	}
	got := captured[0]
	if got.title != "Courier - Item Dead" {
		t.Fatalf("unexpected title %q", got.title)
	}
	if got.tags != "courier,dead-letter,skill_invocation" {
		t.Fatalf("unexpected tags %q", got.tags)
	}
	if got.priority != "high" {
		t.Fatalf("unexpected priority %q", got.priority)
	}
	for _, want := range []string{"after 3 attempts", "gateway down", "courier queue retry 01JTESTDEADITEM0000000000"} {
		if !strings.Contains(got.body, want) {
			t.Fatalf("body %q missing %q", got.body, want)
		}
	}
}

func TestNotifyItemDeadHonoursDeadLetterToggle(t *testing.T) {
	var captured []capturedRequest
	server := newCaptureServer(t, &captured)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.DeadLetter = false
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyItemDead(context.Background(), deadItem()); err != nil {
		t.Fatalf("NotifyItemDead: %v", err)
	}
	if err := svc.NotifyError(context.Background(), errors.New("store unreachable"), "housekeeping"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	if len(captured) != 1 {
		t.Fatalf("expected only the error notification, got %d", len(captured))
	}
	if captured[0].body != "❌ Error with housekeeping: store unreachable" {
		t.Fatalf("unexpected error body %q", captured[0].body)
	}
}

func TestSendReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic locked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
